package maestro

import (
	"errors"
	"fmt"
)

var (
	// Store errors.
	ErrNoStore     = errors.New("maestro: no store configured")
	ErrStoreClosed = errors.New("maestro: store closed")

	// Not found errors.
	ErrJobNotFound        = errors.New("maestro: job not found")
	ErrDLQNotFound        = errors.New("maestro: dlq entry not found")
	ErrCacheMiss          = errors.New("maestro: cache miss")
	ErrCredentialNotFound = errors.New("maestro: credential not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("maestro: job already exists")

	// State errors.
	ErrInvalidTransition = errors.New("maestro: invalid state transition")
	ErrJobTerminal       = errors.New("maestro: job already terminal")

	// Admission errors. Surfaced synchronously at enqueue time.
	ErrRateLimited = errors.New("maestro: rate limit exceeded")

	// ErrCircuitOpen is returned by a breaker in the open state without
	// invoking the wrapped call. It counts as a retryable attempt.
	ErrCircuitOpen = errors.New("maestro: circuit open")

	// ErrNoHandler means no handler is registered for the job type.
	ErrNoHandler = errors.New("maestro: no handler registered")
)

// ValidationError rejects a request before it is persisted or enqueued.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "maestro: invalid request: " + e.Reason
	}
	return fmt.Sprintf("maestro: invalid request: %s: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError for the given field.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PermanentError marks a handler failure as non-retryable: the job skips
// its remaining attempts and goes straight to the dead letter queue.
// Handler errors are transient (retryable) unless wrapped with Permanent.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the executor treats it as non-retryable.
// Wrapping nil returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries the permanent marker.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
