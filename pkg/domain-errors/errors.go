// Package domainerrors defines the typed error taxonomy services return to callers.
//
// Stores return sentinel errors (pkg/platform/sentinel); services translate them into
// a *Error carrying a Code so the outer API layer can map outcomes without string
// matching. Wrapped causes remain reachable through errors.Is / errors.As.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	// CodeForbidden is a policy denial on a record the actor is allowed to see.
	CodeForbidden Code = "forbidden"
	// CodeUnauthorized means no authenticated identity was presented.
	CodeUnauthorized Code = "unauthorized"
	// CodeNotFound covers missing records and records outside the actor's visibility.
	CodeNotFound Code = "not_found"
	// CodeValidation is malformed mutation input. Local to the mutation, never retried.
	CodeValidation Code = "validation_failed"
	// CodeInvalidInput is a malformed identifier or primitive at a trust boundary.
	CodeInvalidInput Code = "invalid_input"
	// CodeConflict is a uniqueness violation.
	CodeConflict Code = "conflict"
	// CodeAuditWriteFailed aborts the surrounding mutation.
	CodeAuditWriteFailed Code = "audit_write_failed"
	// CodeTimeout means the transaction deadline passed before commit.
	CodeTimeout Code = "timeout"
	CodeInternal Code = "internal_error"
)

// Error is a coded domain error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a coded error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to err. A nil err yields a plain coded error.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether the outermost domain error in err's chain carries code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf returns the code of the outermost domain error, or CodeInternal when err
// carries none. A nil err returns "".
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
