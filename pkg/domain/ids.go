// Package domain holds the typed identifiers shared across modules.
//
// IDs are distinct named types over uuid.UUID so a ProjectID can never be passed
// where a UserID is expected. Construct them via the Parse* functions at trust
// boundaries; direct conversion skips validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "projectdesk/pkg/domain-errors"
)

type (
	UserID       uuid.UUID
	ProjectID    uuid.UUID
	AuditEntryID uuid.UUID
)

func NewUserID() UserID             { return UserID(uuid.New()) }
func NewProjectID() ProjectID       { return ProjectID(uuid.New()) }
func NewAuditEntryID() AuditEntryID { return AuditEntryID(uuid.New()) }

func (id UserID) String() string       { return uuid.UUID(id).String() }
func (id ProjectID) String() string    { return uuid.UUID(id).String() }
func (id AuditEntryID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id ProjectID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id AuditEntryID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// MarshalText renders IDs as canonical UUID strings in JSON payloads.
func (id UserID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id ProjectID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id AuditEntryID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ProjectID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *AuditEntryID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

// ParseUserID validates and converts a string to a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user ID")
	return UserID(u), err
}

// ParseProjectID validates and converts a string to a ProjectID.
func ParseProjectID(s string) (ProjectID, error) {
	u, err := parseUUID(s, "project ID")
	return ProjectID(u), err
}

// ParseAuditEntryID validates and converts a string to an AuditEntryID.
func ParseAuditEntryID(s string) (AuditEntryID, error) {
	u, err := parseUUID(s, "audit entry ID")
	return AuditEntryID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}
