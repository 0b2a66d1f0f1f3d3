package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/golem-api/internal/domain"
)

// Kind identifies what happened to a job.
type Kind string

// Event kinds emitted by the job service.
const (
	KindJobSubmitted Kind = "job.submitted"
	KindJobCancelled Kind = "job.cancelled"
)

// JobEvent is an in-process notification that a job changed in a way
// other components may care about. It carries only identifying fields,
// never payloads or results; anyone who needs the full record reads it
// from the store.
type JobEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Kind indicates what happened
	Kind Kind `json:"kind"`

	// JobID and DisplayID identify the affected job
	JobID     uuid.UUID `json:"job_id"`
	DisplayID string    `json:"display_id"`

	// JobType is the affected job's registered type
	JobType string `json:"job_type"`

	// ScopeID is the job's grouping key, empty when unused
	ScopeID string `json:"scope_id,omitempty"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewJobEvent creates an event of the given kind for a job.
func NewJobEvent(kind Kind, job *domain.Job) *JobEvent {
	return &JobEvent{
		ID:        uuid.New(),
		Kind:      kind,
		JobID:     job.ID,
		DisplayID: job.DisplayID,
		JobType:   job.JobType,
		ScopeID:   job.ScopeID,
		CreatedAt: time.Now().UTC(),
	}
}

// EventHandler defines an interface for components that react to events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *JobEvent) error
}

// EventEmitter defines an interface for components that publish events.
// This allows services to announce changes without direct knowledge of
// the subscribers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *JobEvent) error
}
