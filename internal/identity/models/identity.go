package models

import (
	"strings"

	id "projectdesk/pkg/domain"
	dErrors "projectdesk/pkg/domain-errors"
)

// Role is the authorization tier of an actor.
type Role string

const (
	RoleSuperAdmin    Role = "SUPER_ADMIN"
	RoleCountryAdmin  Role = "COUNTRY_ADMIN"
	RoleCountryMember Role = "COUNTRY_MEMBER"
)

var validRoles = map[Role]bool{
	RoleSuperAdmin:    true,
	RoleCountryAdmin:  true,
	RoleCountryMember: true,
}

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	return validRoles[r]
}

func (r Role) String() string {
	return string(r)
}

// ParseRole validates a role at a trust boundary. Matching is case-insensitive.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid role")
	}
	return r, nil
}

// Identity is the authenticated actor behind a request. It is resolved once per
// request by the identity provider and never mutated afterwards.
type Identity struct {
	ID       id.UserID
	Username string
	Role     Role
	Country  string
	Active   bool
}

// IsAuthenticated is false for a nil identity, an identity without an ID, an
// unknown role, or a deactivated account. Every policy check starts here.
func (i *Identity) IsAuthenticated() bool {
	return i != nil && !i.ID.IsNil() && i.Role.IsValid() && i.Active
}

func (i *Identity) IsSuperAdmin() bool {
	return i.IsAuthenticated() && i.Role == RoleSuperAdmin
}

func (i *Identity) IsCountryAdmin() bool {
	return i.IsAuthenticated() && i.Role == RoleCountryAdmin
}

func (i *Identity) IsCountryMember() bool {
	return i.IsAuthenticated() && i.Role == RoleCountryMember
}

// DisplayName is the denormalized label stored in audit snapshots.
func (i *Identity) DisplayName() string {
	if i == nil {
		return ""
	}
	return i.Username
}
