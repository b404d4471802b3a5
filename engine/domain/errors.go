package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the model and its consumers.
var (
	ErrEmptyQuery          = errors.New("no search filters provided")
	ErrInvalidPagination   = errors.New("invalid pagination parameter")
	ErrInvalidTherapyGroup = errors.New("invalid therapy group")
	ErrNotNormalized       = errors.New("entity did not normalize")

	// ErrUnsupportedProposition indicates a data-model mismatch that must be
	// fixed in code; consumption sites panic with it rather than degrade.
	ErrUnsupportedProposition = errors.New("unsupported proposition type")
)

// ValidationError wraps a sentinel with the field and value that failed.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
