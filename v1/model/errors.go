package model

import (
	"errors"
	"fmt"
)

// ValidationError is a field-scoped rule violation. It is deliberately a
// distinct type from storage errors so callers can render form feedback for
// one and alerting for the other.
type ValidationError struct {
	// Field is the schema field that failed, index-qualified for array
	// elements (e.g. "tags[2]").
	Field string
	// Rule names the violated rule, e.g. "required" or "unique".
	Rule string
	// Message is a human-readable description.
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s (%s): %s", e.Field, e.Rule, e.Message)
}

func newValidationError(field, rule, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrModelNotFound is returned by Registry.Model for unregistered names.
var ErrModelNotFound = errors.New("model: not registered")

// ErrRecordNotFound is returned by single-record reads that match nothing.
var ErrRecordNotFound = errors.New("model: record not found")
