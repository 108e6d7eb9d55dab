// Package policy decides which records an identity may see and mutate.
//
// Every function is pure: the outcome depends only on the identity's role and
// country and on the record's country (or owner, for a member reading users). The
// rules are written once against CountryScoped, so projects and users share them.
//
// Absence of an allow rule is deny. An unauthenticated identity (nil, inactive, or
// without a valid role) is denied everywhere and lists nothing.
package policy

import (
	"projectdesk/internal/identity/models"
	id "projectdesk/pkg/domain"
)

// CountryScoped is implemented by every record partitioned by country.
type CountryScoped interface {
	CountryOf() string
}

// Owned is implemented by records that belong to a single account.
type Owned interface {
	OwnerID() id.UserID
}

// Resource names a family of records.
type Resource string

const (
	ResourceProjects Resource = "projects"
	ResourceUsers    Resource = "users"
)

// Action is a mutation kind.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Decision is the outcome of a write check.
type Decision int

const (
	// Deny refuses a mutation on a record the actor can see.
	Deny Decision = iota
	// Allow permits the mutation.
	Allow
	// Hidden refuses a mutation on a record outside the actor's visibility. Callers
	// must report it exactly like a missing record.
	Hidden
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Hidden:
		return "hidden"
	default:
		return "deny"
	}
}

// Filter is the visibility predicate for list and read queries. The zero value
// denies everything.
type Filter struct {
	allowed  bool
	country  string
	ownerID  id.UserID
	hasOwner bool
}

// Unrestricted reports whether the filter admits every record.
func (f Filter) Unrestricted() bool {
	return f.allowed && f.country == "" && !f.hasOwner
}

// Denied reports whether the filter admits nothing.
func (f Filter) Denied() bool {
	return !f.allowed
}

// Country returns the country the filter is pinned to, if any.
func (f Filter) Country() (string, bool) {
	return f.country, f.allowed && f.country != ""
}

// Owner returns the single account the filter is pinned to, if any.
func (f Filter) Owner() (id.UserID, bool) {
	return f.ownerID, f.allowed && f.hasOwner
}

// Matches applies the predicate to one record.
func (f Filter) Matches(record CountryScoped) bool {
	if !f.allowed || record == nil {
		return false
	}
	if f.country != "" && record.CountryOf() != f.country {
		return false
	}
	if f.hasOwner {
		owned, ok := record.(Owned)
		if !ok || owned.OwnerID() != f.ownerID {
			return false
		}
	}
	return true
}

func allowAll() Filter {
	return Filter{allowed: true}
}

func countryOnly(country string) Filter {
	return Filter{allowed: true, country: country}
}

func ownerOnly(identity *models.Identity) Filter {
	return Filter{allowed: true, country: identity.Country, ownerID: identity.ID, hasOwner: true}
}

// CanList returns the visibility filter for listing resource as identity.
func CanList(identity *models.Identity, resource Resource) Filter {
	switch {
	case !identity.IsAuthenticated():
		return Filter{}
	case identity.IsSuperAdmin():
		return allowAll()
	case identity.IsCountryAdmin():
		return countryOnly(identity.Country)
	case identity.IsCountryMember():
		if resource == ResourceUsers {
			return ownerOnly(identity)
		}
		if resource == ResourceProjects {
			return countryOnly(identity.Country)
		}
	}
	return Filter{}
}

// CanRead reports whether identity may see record.
func CanRead(identity *models.Identity, resource Resource, record CountryScoped) bool {
	return CanList(identity, resource).Matches(record)
}

// CanWrite decides a mutation. For ActionCreate, record is the candidate record
// (already carrying its country) or nil to ask whether the actor may create at all.
// For update and delete, record is the existing record.
func CanWrite(identity *models.Identity, resource Resource, record CountryScoped, action Action) Decision {
	if !identity.IsAuthenticated() {
		return Deny
	}
	if action != ActionCreate {
		if record == nil {
			return Deny
		}
		if !CanRead(identity, resource, record) {
			return Hidden
		}
	}
	if identity.IsSuperAdmin() {
		return Allow
	}

	switch resource {
	case ResourceProjects:
		if !identity.IsCountryAdmin() && !identity.IsCountryMember() {
			return Deny
		}
	case ResourceUsers:
		if !identity.IsCountryAdmin() {
			return Deny
		}
	default:
		return Deny
	}

	if record == nil {
		return Allow
	}
	if record.CountryOf() != identity.Country {
		return Deny
	}
	return Allow
}

// CanCreateUser decides whether identity may create an account with role in
// country. A country admin may only create country members in their own country.
func CanCreateUser(identity *models.Identity, role models.Role, country string) bool {
	switch {
	case !identity.IsAuthenticated():
		return false
	case identity.IsSuperAdmin():
		return role.IsValid()
	case identity.IsCountryAdmin():
		return role == models.RoleCountryMember && country == identity.Country
	}
	return false
}

// ProjectCountry resolves the country a new project is created in. A super admin
// may choose any country and defaults to their own; a country admin may only name
// their own; a member's request is ignored and their own country is forced.
func ProjectCountry(identity *models.Identity, requested string) (string, bool) {
	switch {
	case !identity.IsAuthenticated():
		return "", false
	case identity.IsSuperAdmin():
		if requested != "" {
			return requested, true
		}
		return identity.Country, identity.Country != ""
	case identity.IsCountryAdmin():
		if requested != "" && requested != identity.Country {
			return "", false
		}
		return identity.Country, true
	case identity.IsCountryMember():
		return identity.Country, true
	}
	return "", false
}
