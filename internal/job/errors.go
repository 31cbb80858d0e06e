package job

import "errors"

var (
	// ErrNotFound is returned when a job cannot be found in the store
	ErrNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when a mutation violates the state
	// machine (e.g. progress update on a terminal job, duplicate complete)
	ErrInvalidTransition = errors.New("invalid job state transition")

	// ErrValidation is returned when creation input fails per-type schema checks
	ErrValidation = errors.New("invalid job input")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
