package availability

import (
	"errors"
	"fmt"
)

// ErrValidation matches every ValidationError via errors.Is.
var ErrValidation = errors.New("availability: validation failed")

// ValidationError reports a rejected input. Field uses the wire name of the
// offending value so callers can surface it directly.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Message)
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Message)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
