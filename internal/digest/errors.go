package digest

import "errors"

// Repository errors.
var (
	ErrEntryNotFound  = errors.New("queue entry not found")
	ErrEntryNotFailed = errors.New("queue entry is not in failed state")
)

// Renderer errors.
var (
	ErrUnknownNotificationType = errors.New("unknown notification type")
	ErrNoRecipientEmail        = errors.New("queue entry has no recipient email")
)

// RetryableError wraps an error and marks it as retryable or not.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

// IsRetryable returns whether the error is retryable.
func (e *RetryableError) IsRetryable() bool {
	return e.Retryable
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a retryable error.
func NewRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: true}
}

// NewNonRetryableError creates a non-retryable error.
func NewNonRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: false}
}

// isRetryable checks if an error is retryable. Errors that don't declare
// themselves are treated as transient.
func isRetryable(err error) bool {
	type retryable interface {
		IsRetryable() bool
	}
	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return true
}
