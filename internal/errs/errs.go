// Package errs defines the error taxonomy shared by the search and alert
// components: user-correctable validation failures, ownership failures,
// infrastructure outages and delivery failures.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

// ValidationError reports bad user input, naming the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Validation builds a ValidationError for a field.
func Validation(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// StoreUnavailable wraps an infrastructure failure of the backing store.
// It is surfaced to the caller, never retried inline.
type StoreUnavailable struct {
	Op  string
	Err error
}

func (e *StoreUnavailable) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailable) Unwrap() error { return e.Err }

// Unavailable wraps err as a StoreUnavailable for the named operation.
func Unavailable(op string, err error) error {
	return &StoreUnavailable{Op: op, Err: err}
}

// DeliveryError is a failed notification send. It is retried by the queue's
// backoff policy up to the attempt budget.
type DeliveryError struct {
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed: %v", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsUnavailable reports whether err is a StoreUnavailable.
func IsUnavailable(err error) bool {
	var se *StoreUnavailable
	return errors.As(err, &se)
}
