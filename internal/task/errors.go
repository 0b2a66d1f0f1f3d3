package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/phrazzld/golem-api/internal/domain"
)

// Error is a classified execution failure. Handlers return (or wrap) an
// *Error carrying one of the domain error codes so the retry policy can
// tell transient faults from permanent ones. Any failure that is not an
// *Error is treated as UNKNOWN and never retried.
type Error struct {
	// Code is one of the domain.ErrorCode* values.
	Code string

	// Message is the client-safe description recorded on the job.
	Message string

	// Err optionally carries the underlying cause. It is kept for
	// logging and error chains but never written to the job record.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause to support errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified execution error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf builds a classified execution error with a formatted message.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies an underlying error without losing its chain.
func WrapError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Classify maps a handler failure to the stable error recorded on the
// job. Classified errors keep their code as long as it is a known one,
// a deadline expiry maps to TIMEOUT, and everything else fails closed
// as UNKNOWN so unclassified faults cannot loop through retries.
func Classify(err error) domain.JobError {
	var taskErr *Error
	if errors.As(err, &taskErr) {
		code := taskErr.Code
		if !knownCodes[code] {
			code = domain.ErrorCodeUnknown
		}
		message := taskErr.Message
		if message == "" {
			message = "execution failed"
		}
		return domain.JobError{Code: code, Message: message}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.JobError{
			Code:    domain.ErrorCodeTimeout,
			Message: "execution deadline exceeded",
		}
	}

	return domain.JobError{
		Code:    domain.ErrorCodeUnknown,
		Message: err.Error(),
	}
}
