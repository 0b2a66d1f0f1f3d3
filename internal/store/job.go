package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/golem-api/internal/domain"
)

// Pagination limits for List.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// JobFilter narrows List results. Zero-valued fields are ignored.
type JobFilter struct {
	// Statuses filters to jobs in any of the given statuses.
	Statuses []domain.JobStatus

	// JobType filters to jobs of one registered type.
	JobType string

	// ScopeID filters to jobs sharing one client-supplied correlation scope.
	ScopeID string

	// CreatedAfter / CreatedBefore bound the creation time range.
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// Page selects one page of List results. Page numbers are 1-based.
type Page struct {
	Number int
	Size   int
}

// Limit returns the page size clamped to the allowed range.
func (p Page) Limit() int {
	if p.Size <= 0 {
		return DefaultPageSize
	}
	if p.Size > MaxPageSize {
		return MaxPageSize
	}
	return p.Size
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	if p.Number <= 1 {
		return 0
	}
	return (p.Number - 1) * p.Limit()
}

// JobStore defines the interface for job persistence. Every state
// transition is a single-row conditional update guarded by the current
// status and owner; a guard that no longer holds surfaces as
// ErrUpdateConflict rather than clobbering another worker's write. The
// store is the only synchronization point between workers.
// Version: 1.0
type JobStore interface {
	// Create saves a new pending job.
	// Returns validation errors from the domain Job if data is invalid,
	// or ErrDisplayIDExists when the display ID is already taken.
	Create(ctx context.Context, job *domain.Job) error

	// GetByID retrieves a job by its unique ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// List retrieves jobs matching the filter, newest first, along with
	// the total match count for pagination.
	List(ctx context.Context, filter JobFilter, page Page) ([]*domain.Job, int, error)

	// NextClaimable returns the best claim candidate: an unowned job in a
	// claimable status whose retry delay, if any, has elapsed, preferring
	// higher priority and then older creation time. Returns ErrJobNotFound
	// when no job is currently claimable. The returned job is a candidate
	// only; ownership is established by Claim.
	NextClaimable(ctx context.Context) (*domain.Job, error)

	// Claim atomically takes ownership of the job for workerID: sets
	// status to in_progress, stamps startedAt and the execution deadline
	// (now + timeout), and records the first heartbeat. The update is
	// conditional on the job still being unowned and claimable; losing
	// that race returns ErrUpdateConflict.
	Claim(ctx context.Context, id uuid.UUID, workerID string, timeout time.Duration) error

	// UpdateProgress writes a progress snapshot. Conditional on workerID
	// still owning the job; a superseded worker gets ErrUpdateConflict.
	// Progress writes double as heartbeats.
	UpdateProgress(ctx context.Context, id uuid.UUID, workerID string, progress domain.Progress) error

	// Heartbeat refreshes the liveness stamp for an owned in_progress job.
	// Conditional on ownership, as UpdateProgress.
	Heartbeat(ctx context.Context, id uuid.UUID, workerID string) error

	// Complete records the job's result and moves it to completed,
	// stamping completedAt and clearing owner and deadline. The result is
	// write-once; the conditional guard (owned, in_progress) makes any
	// later attempt an ErrUpdateConflict.
	Complete(ctx context.Context, id uuid.UUID, workerID string, result json.RawMessage) error

	// Fail moves an owned job to a terminal failure status (failed or
	// timed_out), recording the classified error and stamping completedAt.
	// Conditional on ownership.
	Fail(ctx context.Context, id uuid.UUID, workerID string, status domain.JobStatus, jobErr domain.JobError) error

	// Reschedule requeues an owned job for retry: increments retryCount,
	// sets nextRetryAt, resets progress, clears owner and deadline, and
	// returns the job to pending. Conditional on ownership.
	Reschedule(ctx context.Context, id uuid.UUID, workerID string, nextRetryAt time.Time) error

	// Cancel moves a still-unclaimed job to cancelled and returns the
	// updated record. Returns ErrJobNotFound if the job does not exist,
	// or domain.ErrJobNotCancellable (wrapped with the current status)
	// when a worker already claimed the job or it is already terminal.
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// StalledJobs returns in_progress jobs whose execution deadline has
	// passed, oldest deadline first.
	StalledJobs(ctx context.Context, limit int) ([]*domain.Job, error)

	// OrphanedJobs returns in_progress jobs whose last heartbeat is older
	// than the cutoff, regardless of deadline. These usually belong to
	// crashed workers.
	OrphanedJobs(ctx context.Context, heartbeatCutoff time.Time, limit int) ([]*domain.Job, error)

	// DeleteExpired removes terminal jobs that completed before the
	// cutoff and reports how many rows were deleted.
	DeleteExpired(ctx context.Context, completedBefore time.Time) (int64, error)

	// CountByStatus returns the number of jobs per status.
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error)

	// WithTx returns a new JobStore instance that uses the provided transaction.
	// This allows for multiple operations to be executed within a single transaction.
	// The transaction should be created and managed by the caller (typically a service).
	WithTx(tx *sql.Tx) JobStore
}
