package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "generic error",
			err:      errors.New("some error"),
			expected: false,
		},
		{
			name:     "wrapped generic error",
			err:      fmt.Errorf("failed to do something: %w", errors.New("some error")),
			expected: false,
		},
		{
			name:     "ErrNotFound",
			err:      ErrNotFound,
			expected: true,
		},
		{
			name:     "wrapped ErrNotFound",
			err:      fmt.Errorf("failed to do something: %w", ErrNotFound),
			expected: true,
		},
		{
			name:     "ErrJobNotFound",
			err:      ErrJobNotFound,
			expected: true,
		},
		{
			name:     "wrapped ErrJobNotFound",
			err:      fmt.Errorf("failed to find job: %w", ErrJobNotFound),
			expected: true,
		},
		{
			name:     "ErrUpdateConflict is not a not-found error",
			err:      ErrUpdateConflict,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFoundError(tt.err); got != tt.expected {
				t.Errorf("IsNotFoundError() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsDuplicateError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "ErrDuplicate",
			err:      ErrDuplicate,
			expected: true,
		},
		{
			name:     "ErrDisplayIDExists",
			err:      ErrDisplayIDExists,
			expected: true,
		},
		{
			name:     "wrapped ErrDisplayIDExists",
			err:      fmt.Errorf("failed to create job: %w", ErrDisplayIDExists),
			expected: true,
		},
		{
			name:     "ErrNotFound is not a duplicate error",
			err:      ErrNotFound,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDuplicateError(tt.err); got != tt.expected {
				t.Errorf("IsDuplicateError() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsConflictError(t *testing.T) {
	if !IsConflictError(ErrUpdateConflict) {
		t.Error("IsConflictError(ErrUpdateConflict) = false, want true")
	}

	if !IsConflictError(fmt.Errorf("claim lost: %w", ErrUpdateConflict)) {
		t.Error("IsConflictError(wrapped ErrUpdateConflict) = false, want true")
	}

	if IsConflictError(ErrNotFound) {
		t.Error("IsConflictError(ErrNotFound) = true, want false")
	}

	if IsConflictError(nil) {
		t.Error("IsConflictError(nil) = true, want false")
	}
}

func TestStoreError(t *testing.T) {
	base := errors.New("driver broke")
	storeErr := NewStoreError("job", "claim", "conditional update failed", base)

	if got := storeErr.Error(); got != "claim operation on job failed: conditional update failed: driver broke" {
		t.Errorf("unexpected Error() output: %s", got)
	}

	if !errors.Is(storeErr, base) {
		t.Error("expected errors.Is to see the wrapped error")
	}

	var asTarget *StoreError
	if !errors.As(storeErr, &asTarget) {
		t.Error("expected errors.As to match *StoreError")
	}

	bare := NewStoreError("job", "create", "validation failed", nil)
	if got := bare.Error(); got != "create operation on job failed: validation failed" {
		t.Errorf("unexpected Error() output without wrapped error: %s", got)
	}
}
