package models

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors. Store and service code returns these (usually wrapped with
// %w); handlers map them to HTTP responses with errors.Is.
var (
	ErrPriceNotFound       = errors.New("no price for this product and provider")
	ErrProviderInactive    = errors.New("provider is not accepting orders")
	ErrForbiddenTransition = errors.New("status transition not permitted")
	ErrNotOwner            = errors.New("resource belongs to another user")
	ErrImportRejected      = errors.New("price list names a different provider")
	ErrOrderNotFound       = errors.New("order not found")
	ErrProductNotFound     = errors.New("product not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrTokenNotFound       = errors.New("token not found")
)

// ValidationError reports malformed or missing input, keyed by field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, reason := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, reason))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

// AsValidationError unwraps err into a *ValidationError if it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
