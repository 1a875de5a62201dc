// internal/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or out-of-range input. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrAuth marks a bad shared secret. Checked before any data is touched.
	ErrAuth = errors.New("authentication failed")
	// ErrStorage marks a database-layer failure.
	ErrStorage = errors.New("storage error")
	// ErrDuplicateKey marks a constraint violation the upsert clause did not
	// anticipate. The offending batch is archived for forensic replay.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrInvalidRange marks a min/max pair with min > max.
	ErrInvalidRange = errors.New("invalid quantity range")
	// ErrNotFound marks a missing row.
	ErrNotFound = errors.New("not found")
)

// RetryableError wraps a failure inside a queued task so the worker
// re-schedules it per the task's backoff policy.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return fmt.Sprintf("retryable: %v", e.Err) }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err, unless it is a validation or auth failure which must
// surface immediately.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrAuth) {
		return err
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err asks for re-queueing.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// ValidationErrorf builds a wrapped validation error.
func ValidationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}
