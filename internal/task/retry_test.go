package task_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/phrazzld/golem-api/internal/domain"
	"github.com/phrazzld/golem-api/internal/task"
)

func TestRetryDelay(t *testing.T) {
	t.Run("doubles per retry from the base delay", func(t *testing.T) {
		base := 5 * time.Second
		max := 5 * time.Minute

		assert.Equal(t, 5*time.Second, task.RetryDelay(base, 1, max))
		assert.Equal(t, 10*time.Second, task.RetryDelay(base, 2, max))
		assert.Equal(t, 20*time.Second, task.RetryDelay(base, 3, max))
		assert.Equal(t, 40*time.Second, task.RetryDelay(base, 4, max))
	})

	t.Run("delays strictly increase until the cap", func(t *testing.T) {
		base := 5000 * time.Millisecond
		max := 10 * time.Minute

		prev := time.Duration(0)
		for retry := 1; retry <= 7; retry++ {
			delay := task.RetryDelay(base, retry, max)
			assert.Greater(t, delay, prev, "retry %d", retry)
			prev = delay
		}
	})

	t.Run("caps at max", func(t *testing.T) {
		base := 5 * time.Second
		max := 1 * time.Minute

		assert.Equal(t, time.Minute, task.RetryDelay(base, 5, max))
		assert.Equal(t, time.Minute, task.RetryDelay(base, 30, max))
	})

	t.Run("treats retries below one as the first retry", func(t *testing.T) {
		base := 5 * time.Second

		assert.Equal(t, base, task.RetryDelay(base, 0, time.Minute))
		assert.Equal(t, base, task.RetryDelay(base, -3, time.Minute))
	})

	t.Run("zero max leaves the schedule uncapped", func(t *testing.T) {
		assert.Equal(t, 80*time.Second, task.RetryDelay(5*time.Second, 5, 0))
	})
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		code      string
		retryable bool
	}{
		{domain.ErrorCodeTimeout, true},
		{domain.ErrorCodeNetwork, true},
		{domain.ErrorCodeRateLimited, true},
		{domain.ErrorCodeElementNotFound, true},
		{domain.ErrorCodeAuthFailed, false},
		{domain.ErrorCodeInvalidInput, false},
		{domain.ErrorCodeTargetNotFound, false},
		{domain.ErrorCodePermissionDenied, false},
		{domain.ErrorCodeUnknown, false},
		{"", false},
		{"SOMETHING_ELSE", false},
	}

	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			assert.Equal(t, tc.retryable, task.IsRetryable(tc.code))
		})
	}
}

func TestClassify(t *testing.T) {
	t.Run("classified error keeps its code and message", func(t *testing.T) {
		jobErr := task.Classify(task.NewError(domain.ErrorCodeNetwork, "connection reset by portal"))

		assert.Equal(t, domain.ErrorCodeNetwork, jobErr.Code)
		assert.Equal(t, "connection reset by portal", jobErr.Message)
	})

	t.Run("classified error survives wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("step 3: %w", task.NewError(domain.ErrorCodeRateLimited, "slow down"))

		jobErr := task.Classify(wrapped)

		assert.Equal(t, domain.ErrorCodeRateLimited, jobErr.Code)
		assert.Equal(t, "slow down", jobErr.Message)
	})

	t.Run("unrecognized code falls back to UNKNOWN", func(t *testing.T) {
		jobErr := task.Classify(task.NewError("MADE_UP_CODE", "what is this"))

		assert.Equal(t, domain.ErrorCodeUnknown, jobErr.Code)
		assert.Equal(t, "what is this", jobErr.Message)
	})

	t.Run("empty message gets a placeholder", func(t *testing.T) {
		jobErr := task.Classify(task.NewError(domain.ErrorCodeAuthFailed, ""))

		assert.Equal(t, domain.ErrorCodeAuthFailed, jobErr.Code)
		assert.Equal(t, "execution failed", jobErr.Message)
	})

	t.Run("deadline expiry maps to TIMEOUT", func(t *testing.T) {
		jobErr := task.Classify(fmt.Errorf("portal wait: %w", context.DeadlineExceeded))

		assert.Equal(t, domain.ErrorCodeTimeout, jobErr.Code)
	})

	t.Run("unclassified error fails closed as UNKNOWN", func(t *testing.T) {
		jobErr := task.Classify(errors.New("something broke"))

		assert.Equal(t, domain.ErrorCodeUnknown, jobErr.Code)
		assert.Equal(t, "something broke", jobErr.Message)
	})
}

func TestErrorFormatting(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := task.NewError(domain.ErrorCodeAuthFailed, "session rejected")
		assert.Equal(t, "AUTH_FAILED: session rejected", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("401 from portal")
		err := task.WrapError(domain.ErrorCodeAuthFailed, "session rejected", cause)

		assert.Equal(t, "AUTH_FAILED: session rejected: 401 from portal", err.Error())
		assert.ErrorIs(t, err, cause)
	})

	t.Run("errorf formats the message", func(t *testing.T) {
		err := task.Errorf(domain.ErrorCodeTargetNotFound, "listing %d missing", 42)
		assert.Equal(t, "TARGET_NOT_FOUND: listing 42 missing", err.Error())
	})
}
