package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/golem-api/internal/domain"
	"github.com/phrazzld/golem-api/internal/store"
	"github.com/phrazzld/golem-api/internal/task"
)

// Common service errors - sentinel errors used across service implementations.
// These errors represent common conditions that callers may want to check for with errors.Is().
//
// Error handling principles:
// 1. Service methods return sentinel errors for expected error conditions
// 2. Unexpected errors are wrapped in service-specific error types
// 3. Callers use errors.Is/errors.As to check for specific error conditions
// 4. The API layer maps service errors to appropriate HTTP status codes
var (
	// ErrJobNotFound indicates that the job does not exist.
	// API layer should map this to HTTP 404 Not Found.
	ErrJobNotFound = errors.New("job not found")
)

// JobServiceError wraps errors from the job service with context.
type JobServiceError struct {
	// Operation is the operation that failed (e.g., "submit_job", "cancel_job")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for JobServiceError.
func (e *JobServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("job service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *JobServiceError) Unwrap() error {
	return e.Err
}

// NewJobServiceError creates a new JobServiceError. Errors the caller is
// expected to branch on pass through unwrapped so errors.Is keeps
// working at the API boundary.
func NewJobServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	// Validation and state errors are part of the service contract.
	switch {
	case errors.Is(err, ErrJobNotFound),
		errors.Is(err, task.ErrUnknownJobType),
		errors.Is(err, task.ErrPayloadRejected),
		errors.Is(err, domain.ErrJobPayloadInvalid),
		errors.Is(err, domain.ErrJobMaxRetriesNegative),
		errors.Is(err, domain.ErrJobNotCancellable):
		return err
	}

	// Store-level not-found maps to the service-level sentinel.
	if errors.Is(err, store.ErrJobNotFound) {
		return ErrJobNotFound
	}

	return &JobServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
