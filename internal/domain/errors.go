package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidFormat is returned when data is not in the expected format.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidTransition is returned when a status change violates the
	// job state machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrJobNotCancellable is returned when cancellation is requested for
	// a job that a worker already claimed or that is already terminal.
	ErrJobNotCancellable = errors.New("job can no longer be cancelled")
)
