// errors.go defines the three domain error kinds returned by the use cases. The HTTP layer
// maps them to 400, 404 and 409 respectively; use cases never swallow them.
package services

import (
	"errors"
	"fmt"
)

// ValidationError reports caller input that violates a domain rule
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotFoundError reports an id that does not resolve to a live entity
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ConflictError reports a uniqueness or state invariant that the operation would violate
type ConflictError struct {
	Field   string
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// ErrInvalidCredentials is returned by UserService.Authenticate for any login failure.
var ErrInvalidCredentials = errors.New("invalid email or password")

func newValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func newNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func newConflictError(field, format string, args ...any) error {
	return &ConflictError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is or wraps a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is or wraps a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is or wraps a ConflictError
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}
