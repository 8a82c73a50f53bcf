// Package autherr defines the error taxonomy shared by the token, identity and RBAC layers.
// Services return these sentinels (possibly wrapped); the HTTP layer maps them to status codes.
package autherr

import (
	"errors"
	"fmt"
)

var (
	ErrIdentityInvalid        = errors.New("identity invalid")
	ErrDuplicateIdentity      = errors.New("duplicate identity")
	ErrInvalidCredentials     = errors.New("invalid username or password")
	ErrAccountDisabled        = errors.New("account has been deactivated")
	ErrTokenMalformed         = errors.New("token malformed")
	ErrTokenExpired           = errors.New("token expired")
	ErrTokenRevoked           = errors.New("token revoked")
	ErrTokenWrongKind         = errors.New("token wrong kind")
	ErrInsufficientPermission = errors.New("insufficient permission")
	ErrNotFound               = errors.New("not found")
	ErrStoreUnavailable       = errors.New("store unavailable")
)

// ErrConstraintViolation is returned by repositories when a unique or foreign key constraint rejects a write.
// Services translate it into ErrDuplicateIdentity or ErrNotFound.
var ErrConstraintViolation = errors.New("constraint violation")

// ValidationError reports a single invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid returns a ValidationError for field.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PermissionDenied wraps ErrInsufficientPermission with the requirement that was not met.
func PermissionDenied(requirement string) error {
	return fmt.Errorf("%w, requires: %s", ErrInsufficientPermission, requirement)
}

// Unavailable wraps a driver or network error as ErrStoreUnavailable, keeping the cause for logs.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}

// ConstraintError is a unique-constraint rejection. It matches ErrConstraintViolation.
type ConstraintError struct {
	Op         string
	Constraint string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Op, ErrConstraintViolation, e.Constraint)
}

func (e *ConstraintError) Unwrap() error {
	return ErrConstraintViolation
}

// Constraint returns the violated constraint name carried by err, or "".
func Constraint(err error) string {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Constraint
	}
	return ""
}

// DuplicateError names the field whose uniqueness was violated. It matches ErrDuplicateIdentity.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return e.Field + " already exists"
}

func (e *DuplicateError) Unwrap() error {
	return ErrDuplicateIdentity
}

// Duplicate returns a DuplicateError for field.
func Duplicate(field string) error {
	return &DuplicateError{Field: field}
}
