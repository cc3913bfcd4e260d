package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates malformed or rule-breaking input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found in the caller's tenant.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the write collides with existing data.
	ErrConflict = errors.New("conflict")
	// ErrState indicates the operation is not allowed in the entity's current state.
	ErrState = errors.New("invalid state")
	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the caller may not touch the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	// ErrNoTenant is returned when a tenant-scoped operation runs without tenant context.
	ErrNoTenant = fmt.Errorf("%w: tenant context missing", ErrUnauthorized)
)

// Invalid wraps ErrValidation with a message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with the entity name.
func NotFound(entity string, id any) error {
	return fmt.Errorf("%w: %s %v", ErrNotFound, entity, id)
}

// StateError wraps ErrState with a message.
func StateError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrState, fmt.Sprintf(format, args...))
}

// Conflict wraps ErrConflict with a message.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
