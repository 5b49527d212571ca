package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or out-of-range input: negative values,
// zero-division conditions, empty collections, unset required fields. It is
// always surfaced synchronously to the caller and never retried internally.
//
// Operations against entities in terminal states are deliberately NOT errors:
// they return the unchanged entity with a no-op indication, because polling a
// completed schedule or a triggered stop order is normal operation.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrVersionConflict is returned by repositories when an optimistic
// compare-and-swap save loses the race against a concurrent writer.
// The caller should re-read the entity and retry on its next pass.
var ErrVersionConflict = errors.New("entity version conflict")

// ErrNotFound is returned by repositories when an entity does not exist.
var ErrNotFound = errors.New("entity not found")
