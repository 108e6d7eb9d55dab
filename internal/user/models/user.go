package models

import (
	"net/mail"
	"strings"
	"time"

	identitymodels "projectdesk/internal/identity/models"
	id "projectdesk/pkg/domain"
	dErrors "projectdesk/pkg/domain-errors"
)

// User is an account that can act on projects.
//
// Invariants:
//   - Email is unique (case-insensitive domain) and non-empty
//   - Role is one of the known roles
//   - Country is non-empty; it is the tenant partition for everything the user sees
type User struct {
	ID           id.UserID           `json:"id"`
	Username     string              `json:"username"`
	Email        string              `json:"email"`
	PasswordHash string              `json:"-"`
	Role         identitymodels.Role `json:"role"`
	Country      string              `json:"country"`
	Active       bool                `json:"is_active"`
	DateJoined   time.Time           `json:"date_joined"`
}

// CountryOf is the user's own country attribute.
func (u *User) CountryOf() string {
	return u.Country
}

// OwnerID lets visibility filters restrict a member to their own record.
func (u *User) OwnerID() id.UserID {
	return u.ID
}

// Identity projects the account onto the actor type used by policy checks.
func (u *User) Identity() *identitymodels.Identity {
	return &identitymodels.Identity{
		ID:       u.ID,
		Username: u.Username,
		Role:     u.Role,
		Country:  u.Country,
		Active:   u.Active,
	}
}

// NormalizeEmail lower-cases the domain part, keeping the local part as given.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

// CreateUserRequest is the input for an administrator creating an account.
type CreateUserRequest struct {
	Username        string
	Email           string
	Password        string
	PasswordConfirm string
	Role            identitymodels.Role
	Country         string
}

func (r *CreateUserRequest) Normalize() {
	if r == nil {
		return
	}
	r.Username = strings.TrimSpace(r.Username)
	r.Email = NormalizeEmail(r.Email)
	r.Country = strings.TrimSpace(r.Country)
	r.Role = identitymodels.Role(strings.ToUpper(strings.TrimSpace(string(r.Role))))
}

func (r *CreateUserRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	if err := validateCredentials(r.Email, r.Password, r.PasswordConfirm); err != nil {
		return err
	}
	if !r.Role.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid role")
	}
	if r.Country == "" {
		return dErrors.New(dErrors.CodeValidation, "country is required")
	}
	return nil
}

// RegisterRequest is the input for public self-registration.
type RegisterRequest struct {
	Username        string
	Email           string
	Password        string
	PasswordConfirm string
	Country         string
}

func (r *RegisterRequest) Normalize() {
	if r == nil {
		return
	}
	r.Username = strings.TrimSpace(r.Username)
	r.Email = NormalizeEmail(r.Email)
	r.Country = strings.TrimSpace(r.Country)
}

func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	if err := validateCredentials(r.Email, r.Password, r.PasswordConfirm); err != nil {
		return err
	}
	if r.Country == "" {
		return dErrors.New(dErrors.CodeValidation, "country is required")
	}
	return nil
}

// UpdateUserRequest carries the mutable account fields. Nil means unchanged.
type UpdateUserRequest struct {
	Email   *string
	Country *string
	Active  *bool
}

func (r *UpdateUserRequest) Normalize() {
	if r == nil {
		return
	}
	if r.Email != nil {
		email := NormalizeEmail(*r.Email)
		r.Email = &email
	}
	if r.Country != nil {
		country := strings.TrimSpace(*r.Country)
		r.Country = &country
	}
}

func (r *UpdateUserRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	if r.Email != nil {
		if err := validateEmail(*r.Email); err != nil {
			return err
		}
	}
	if r.Country != nil && *r.Country == "" {
		return dErrors.New(dErrors.CodeValidation, "country cannot be empty")
	}
	return nil
}

func validateCredentials(email, password, confirm string) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	if password == "" {
		return dErrors.New(dErrors.CodeValidation, "password is required")
	}
	if password != confirm {
		return dErrors.New(dErrors.CodeValidation, "password fields didn't match")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return dErrors.New(dErrors.CodeValidation, "invalid email")
	}
	return nil
}

// ListFilter is the visibility-derived restriction for user listings. Zero values
// match everything.
type ListFilter struct {
	Country string
	ID      *id.UserID
}

// Apply writes the non-nil fields of req onto the user.
func (u *User) Apply(req *UpdateUserRequest) {
	if req.Email != nil {
		u.Email = *req.Email
	}
	if req.Country != nil {
		u.Country = *req.Country
	}
	if req.Active != nil {
		u.Active = *req.Active
	}
}
