package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/golem-api/internal/domain"
	"github.com/phrazzld/golem-api/internal/service"
	"github.com/phrazzld/golem-api/internal/store"
	"github.com/phrazzld/golem-api/internal/task"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, service.ErrJobNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors. A job that a worker already claimed cannot be
	// cancelled, and a lost conditional update means somebody else got
	// there first.
	case errors.Is(err, domain.ErrJobNotCancellable),
		errors.Is(err, store.ErrUpdateConflict):
		return http.StatusConflict

	// Payload rejections: the request is well-formed HTTP and JSON but
	// the job payload fails the type's schema.
	case errors.Is(err, task.ErrPayloadRejected),
		errors.Is(err, domain.ErrJobPayloadInvalid):
		return http.StatusUnprocessableEntity

	// Bad request errors
	case errors.Is(err, task.ErrUnknownJobType),
		errors.Is(err, domain.ErrJobMaxRetriesNegative),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidFormat),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
// Validation-family errors keep their own message because clients need the
// detail (which schema rule failed, what status blocked cancellation); the
// sentinel texts carry no internals.
func GetSafeErrorMessage(err error) string {
	// Handle nil error
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	// Not found errors
	case errors.Is(err, service.ErrJobNotFound),
		errors.Is(err, store.ErrNotFound):
		return "Job not found"

	// Cancellation rejections embed the job's current status, which the
	// client needs to decide what to do next.
	case errors.Is(err, domain.ErrJobNotCancellable):
		return err.Error()

	case errors.Is(err, store.ErrUpdateConflict):
		return "Job was modified concurrently, retry the request"

	// Schema rejections carry the validator's explanation of which rule
	// failed. The schema is public via the job types endpoint, so the
	// detail leaks nothing.
	case errors.Is(err, task.ErrPayloadRejected):
		return err.Error()

	case errors.Is(err, domain.ErrJobPayloadInvalid):
		return err.Error()

	case errors.Is(err, task.ErrUnknownJobType):
		return err.Error()

	case errors.Is(err, domain.ErrJobMaxRetriesNegative):
		return err.Error()

	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid job ID"

	// Format errors name the offending parameter and the expected shape,
	// both taken from the client's own request.
	case errors.Is(err, domain.ErrInvalidFormat):
		return err.Error()

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"

	// Default case for unknown errors
	default:
		// Service errors name their operation; use it to pick a message
		// without echoing the wrapped cause.
		msg := err.Error()
		switch {
		case strings.Contains(msg, "submit_job"):
			return "Failed to submit job"
		case strings.Contains(msg, "list_jobs"):
			return "Failed to list jobs"
		case strings.Contains(msg, "cancel_job"):
			return "Failed to cancel job"
		case strings.Contains(msg, "count_jobs"):
			return "Failed to fetch queue statistics"
		case strings.Contains(msg, "get_job"):
			return "Failed to fetch job"
		}
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Check if this is likely a validation error message
	if strings.Contains(errMsg, "Field validation") {
		// Extract the field name and validation tag
		// Example format: "Key: 'SubmitJobRequest.JobType' Error:Field validation for 'JobType' failed on the 'required' tag"
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			// Further split to get just the field validation part
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}

				// Create a cleaner error message
				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	// Fall back to a generic validation error message
	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min", "gte":
		return "value too small"
	case "max", "lte":
		return "value too large"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
