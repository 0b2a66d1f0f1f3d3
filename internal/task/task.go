package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/golem-api/internal/domain"
)

// Execution limits applied when a Definition leaves them unset.
const (
	DefaultExecutionTimeout = 10 * time.Minute
	DefaultMaxRetries       = 3
	DefaultRetryBaseDelay   = 5 * time.Second
	DefaultMaxRetryDelay    = 5 * time.Minute
)

// ProgressFunc records a progress snapshot for a running job.
type ProgressFunc func(ctx context.Context, progress domain.Progress) error

// HandlerFunc executes one attempt of a job. The payload has already
// passed the job type's schema validation. The context carries the
// attempt's hard deadline; a handler that outlives it is treated as
// timed out regardless of what it returns afterwards. Handlers report
// failures by returning an error, preferably a classified *Error so the
// retry policy can tell transient faults from permanent ones.
// Version: 1.0
type HandlerFunc func(ctx context.Context, exec *Execution) (json.RawMessage, error)

// Definition describes one registered job type: the handler that
// executes it and the execution limits applied to jobs of that type.
// Zero-valued limits fall back to the package defaults at registration,
// matching the convention of domain.JobOptions.
type Definition struct {
	// Type is the unique name clients submit, e.g. "portal.update_listing".
	Type string

	// Handler executes one attempt of a job of this type.
	Handler HandlerFunc

	// PayloadSchema optionally holds a JSON Schema document. When set,
	// submission payloads are validated against it before a job record
	// is created.
	PayloadSchema json.RawMessage

	// ExecutionTimeout is the hard wall-clock budget for a single attempt.
	ExecutionTimeout time.Duration

	// MaxRetries is the default retry budget for jobs of this type.
	// Submissions may override it per job.
	MaxRetries int

	// RetryBaseDelay seeds the exponential backoff between retries.
	RetryBaseDelay time.Duration

	// Priority is the default claim priority for jobs of this type.
	// Higher runs sooner.
	Priority int

	// EstimatedDuration, when positive, is surfaced to clients on
	// submission so they can pick a sensible polling cadence.
	EstimatedDuration time.Duration
}

// Execution is the per-attempt view of a claimed job handed to its
// handler. All fields are copies; handlers reach shared state only
// through ReportProgress.
type Execution struct {
	// JobID and DisplayID identify the job being executed.
	JobID     uuid.UUID
	DisplayID string

	// JobType is the registered type name the handler was resolved from.
	JobType string

	// Payload is the submission payload, already schema-validated.
	Payload json.RawMessage

	// Metadata is the optional client-supplied annotation blob.
	Metadata json.RawMessage

	// ScopeID groups related jobs for filtering; empty when unused.
	ScopeID string

	// Attempt is 1-based: the first run is 1, the first retry is 2.
	Attempt int

	// MaxAttempts is the total number of runs the job may consume.
	MaxAttempts int

	// Deadline is the wall-clock instant the attempt context expires.
	Deadline time.Time

	report ProgressFunc
}

// ReportProgress writes a progress snapshot that status polls see
// immediately. The write is conditional on this worker still owning the
// job; a store conflict means the execution has been superseded and the
// handler should stop work and return promptly. Progress writes double
// as heartbeats.
func (e *Execution) ReportProgress(ctx context.Context, progress domain.Progress) error {
	if err := progress.Validate(); err != nil {
		return err
	}
	if e.report == nil {
		return nil
	}
	return e.report(ctx, progress)
}
