package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates a referenced ledger, account, budget or subscription
// does not exist or is outside the caller's ledger scope.
var ErrNotFound = errors.New("not found")

// ErrForbidden indicates the acting user lacks the membership role required
// for a write operation on the ledger.
var ErrForbidden = errors.New("forbidden")

// ValidationError rejects malformed input before any side effect happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError for one field.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
