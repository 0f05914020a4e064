// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Classification errors.
	ErrClassificationFailed = errors.New("classification failed")
	ErrMalformedResponse    = errors.New("malformed classifier response")

	// Validation errors.
	ErrSplitAmountMismatch = errors.New("split amount mismatch")
	ErrMissingField        = errors.New("missing required field")

	// Configuration errors.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ValidationError rejects a request before any state mutation, carrying a
// message suitable for surfacing verbatim to the caller.
type ValidationError struct {
	Err     error
	Message string
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a validation error wrapping a sentinel.
func NewValidationError(message string, err error) error {
	return &ValidationError{
		Message: message,
		Err:     err,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrMalformedResponse) {
		return false
	}

	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
