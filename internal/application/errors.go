package application

import (
	"errors"

	"github.com/example/delivery-availability/internal/availability"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrConflict is returned when a write collides with a concurrent one.
	ErrConflict = errors.New("application: conflict")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error. The first message for a field wins.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// addEngine records an engine validation failure, prefixing the engine's
// field name.
func (v *ValidationError) addEngine(prefix string, err error) bool {
	var engineErr *availability.ValidationError
	if !errors.As(err, &engineErr) {
		return false
	}
	v.add(prefix+engineErr.Field, engineErr.Message)
	return true
}

// fromEngineError converts engine validation failures and passes anything
// else through.
func fromEngineError(err error) error {
	if err == nil {
		return nil
	}
	vErr := &ValidationError{}
	if vErr.addEngine("", err) {
		return vErr
	}
	return err
}
