package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/golem-api/internal/domain"
)

func newTestJob(t *testing.T) *domain.Job {
	t.Helper()

	job, err := domain.NewJob("test.job", json.RawMessage(`{"key":"value"}`), domain.JobOptions{
		MaxRetries:     3,
		RetryBaseDelay: 5 * time.Second,
		ScopeID:        "scope-1",
	})
	require.NoError(t, err)
	return job
}

func TestNewJobEvent(t *testing.T) {
	job := newTestJob(t)

	event := NewJobEvent(KindJobSubmitted, job)

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, KindJobSubmitted, event.Kind)
	assert.Equal(t, job.ID, event.JobID)
	assert.Equal(t, job.DisplayID, event.DisplayID)
	assert.Equal(t, "test.job", event.JobType)
	assert.Equal(t, "scope-1", event.ScopeID)
	assert.WithinDuration(t, time.Now(), event.CreatedAt, 2*time.Second)
}

// MockEventHandler implements the EventHandler interface for testing
type MockEventHandler struct {
	// The last event received by this handler
	LastEvent *JobEvent
	// Error to return from HandleEvent
	HandlerError error
	// Count of events handled
	HandledCount int
}

// HandleEvent implements the EventHandler interface
func (h *MockEventHandler) HandleEvent(ctx context.Context, event *JobEvent) error {
	h.LastEvent = event
	h.HandledCount++
	return h.HandlerError
}

func TestEventHandler(t *testing.T) {
	handler := &MockEventHandler{}
	event := NewJobEvent(KindJobCancelled, newTestJob(t))

	err := handler.HandleEvent(context.Background(), event)
	assert.NoError(t, err)
	assert.Equal(t, 1, handler.HandledCount)
	assert.Equal(t, event, handler.LastEvent)

	// Test error case
	expectedErr := errors.New("handler error")
	handler.HandlerError = expectedErr
	err = handler.HandleEvent(context.Background(), event)
	assert.Equal(t, expectedErr, err)
	assert.Equal(t, 2, handler.HandledCount)
}
