package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a session does not exist
	ErrNotFound = errors.New("session not found")

	// ErrUnavailable is returned when the history store cannot be reached
	ErrUnavailable = errors.New("history store unavailable")

	// ErrAlreadyFinished is returned when cancelling a session that has
	// reached a terminal status
	ErrAlreadyFinished = errors.New("session already finished")
)

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
