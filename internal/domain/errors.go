package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the services and repositories.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state transition")
	ErrStaleSuggestion   = errors.New("stale suggestion")
	ErrGenerationTimeout = errors.New("suggestion generation timed out")
	ErrContentLocked     = errors.New("content is locked by another insertion pass")
	ErrConflict          = errors.New("content changed during insertion")
)

// ValidationError reports a malformed input. It is returned before anything
// is persisted.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewValidationError builds a *ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
