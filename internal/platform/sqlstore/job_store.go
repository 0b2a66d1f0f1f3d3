package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/golem-api/internal/domain"
	"github.com/phrazzld/golem-api/internal/platform/logger"
	"github.com/phrazzld/golem-api/internal/store"
)

// jobColumns is the canonical column list for the jobs table. Every SELECT
// uses it so scanJob can rely on one fixed scan order.
const jobColumns = `id, display_id, job_type, status, payload, result,
	error_code, error_message, progress_percent, progress_message,
	progress_current_step, progress_total_steps, retry_count, max_retries,
	retry_base_delay_ms, next_retry_at, priority, owner_worker_id, scope_id,
	metadata, timeout_at, heartbeat_at, started_at, completed_at,
	cancelled_at, created_at, updated_at`

// SQLJobStore implements the store.JobStore interface on a SQL database.
// It works against both PostgreSQL and SQLite; see the package documentation
// for the portability rules the queries follow.
type SQLJobStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewSQLJobStore creates a new SQL implementation of the JobStore interface.
// It accepts a database connection or transaction that should be initialized
// and managed by the caller. If logger is nil, a default logger will be used.
func NewSQLJobStore(db store.DBTX, logger *slog.Logger) *SQLJobStore {
	// Validate inputs
	if db == nil {
		panic("db cannot be nil")
	}

	// Use provided logger or create default
	if logger == nil {
		logger = slog.Default()
	}

	return &SQLJobStore{
		db:     db,
		logger: logger.With(slog.String("component", "job_store")),
	}
}

// Ensure SQLJobStore implements store.JobStore interface
var _ store.JobStore = (*SQLJobStore)(nil)

// Create implements store.JobStore.Create
// It saves a new job to the database, handling domain validation.
// Returns validation errors from the domain Job if data is invalid.
// Returns store.ErrDisplayIDExists if the display ID is already taken.
func (s *SQLJobStore) Create(ctx context.Context, job *domain.Job) error {
	// Get the logger from context or use default
	log := logger.FromContextOrDefault(ctx, s.logger)

	// Validate job data
	if err := job.Validate(); err != nil {
		log.Warn("job validation failed during create",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()))
		return err
	}

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.DisplayID,
		job.JobType,
		job.Status,
		[]byte(job.Payload),
		nullJSON(job.Result),
		nullErrorCode(job.Error),
		nullErrorMessage(job.Error),
		job.Progress.Percent,
		job.Progress.Message,
		job.Progress.CurrentStep,
		job.Progress.TotalSteps,
		job.RetryCount,
		job.MaxRetries,
		job.RetryBaseDelay.Milliseconds(),
		job.NextRetryAt,
		job.Priority,
		job.OwnerWorkerID,
		job.ScopeID,
		nullJSON(job.Metadata),
		job.TimeoutAt,
		job.HeartbeatAt,
		job.StartedAt,
		job.CompletedAt,
		job.CancelledAt,
		job.CreatedAt,
		job.UpdatedAt,
	)

	if err != nil {
		// The display ID carries a unique constraint; a collision means the
		// generated ID is already taken and the caller should regenerate.
		if IsUniqueViolation(err) {
			log.Warn("display ID collision during job creation",
				slog.String("job_id", job.ID.String()),
				slog.String("display_id", job.DisplayID))
			return fmt.Errorf("%w: %s", store.ErrDisplayIDExists, job.DisplayID)
		}

		// Log the error
		log.Error("failed to create job",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()),
			slog.String("job_type", job.JobType))

		return MapError(err)
	}

	log.Info("job created successfully",
		slog.String("job_id", job.ID.String()),
		slog.String("display_id", job.DisplayID),
		slog.String("job_type", job.JobType),
		slog.Int("priority", job.Priority))
	return nil
}

// GetByID implements store.JobStore.GetByID
// It retrieves a job by its unique ID.
// Returns store.ErrJobNotFound if the job does not exist.
func (s *SQLJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	// Get the logger from context or use default
	log := logger.FromContextOrDefault(ctx, s.logger)

	log.Debug("retrieving job by ID", slog.String("job_id", id.String()))

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE id = $1
	`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("job not found", slog.String("job_id", id.String()))
			return nil, store.ErrJobNotFound
		}
		log.Error("failed to get job by ID",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return nil, err
	}

	log.Debug("job retrieved successfully",
		slog.String("job_id", id.String()),
		slog.String("status", string(job.Status)))
	return job, nil
}

// List implements store.JobStore.List
// It retrieves jobs matching the filter, newest first, along with the total
// match count so handlers can paginate.
func (s *SQLJobStore) List(
	ctx context.Context,
	filter store.JobFilter,
	page store.Page,
) ([]*domain.Job, int, error) {
	// Get the logger from context or use default
	log := logger.FromContextOrDefault(ctx, s.logger)

	where, args := buildJobFilter(filter)

	// Count the full match set before applying the page window.
	var total int
	countQuery := `SELECT COUNT(*) FROM jobs` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		log.Error("failed to count jobs",
			slog.String("error", err.Error()))
		return nil, 0, err
	}

	args = append(args, page.Limit())
	limitArg := len(args)
	args = append(args, page.Offset())
	offsetArg := len(args)

	query := fmt.Sprintf(`
		SELECT `+jobColumns+`
		FROM jobs`+where+`
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, limitArg, offsetArg)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list jobs",
			slog.String("error", err.Error()))
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	// Return an empty slice rather than nil when nothing matches.
	jobs := []*domain.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			log.Error("failed to scan job row",
				slog.String("error", err.Error()))
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating job rows",
			slog.String("error", err.Error()))
		return nil, 0, err
	}

	log.Debug("jobs listed successfully",
		slog.Int("count", len(jobs)),
		slog.Int("total", total))
	return jobs, total, nil
}

// NextClaimable implements store.JobStore.NextClaimable
// It returns the best claim candidate: an unowned job in a claimable status
// whose retry delay, if any, has elapsed, preferring higher priority and
// then older creation time. Returns store.ErrJobNotFound when nothing is
// currently claimable. Ownership is only established by a subsequent Claim.
func (s *SQLJobStore) NextClaimable(ctx context.Context) (*domain.Job, error) {
	// Get the logger from context or use default
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := time.Now().UTC()

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status IN ($1, $2)
		  AND owner_worker_id IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= $3)
		ORDER BY priority DESC, created_at ASC
		LIMIT 1
	`

	job, err := scanJob(s.db.QueryRowContext(
		ctx,
		query,
		domain.JobStatusPending,
		domain.JobStatusQueued,
		now,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		log.Error("failed to query claimable jobs",
			slog.String("error", err.Error()))
		return nil, err
	}

	log.Debug("claim candidate found",
		slog.String("job_id", job.ID.String()),
		slog.String("job_type", job.JobType),
		slog.Int("priority", job.Priority))
	return job, nil
}

// Claim implements store.JobStore.Claim
// It atomically takes ownership of the job for the given worker: sets status
// to in_progress, stamps startedAt and the execution deadline, and records
// the first heartbeat. The update is conditional on the job still being
// unowned and claimable; losing that race returns store.ErrUpdateConflict.
func (s *SQLJobStore) Claim(
	ctx context.Context,
	id uuid.UUID,
	workerID string,
	timeout time.Duration,
) error {
	// Get the logger from context or use default
	log := logger.FromContextOrDefault(ctx, s.logger)

	if workerID == "" {
		return fmt.Errorf("%w: worker ID cannot be empty", store.ErrInvalidEntity)
	}
	if timeout <= 0 {
		return fmt.Errorf("%w: claim timeout must be positive", store.ErrInvalidEntity)
	}

	now := time.Now().UTC()
	timeoutAt := now.Add(timeout)

	query := `
		UPDATE jobs
		SET status = $1, owner_worker_id = $2, started_at = $3, timeout_at = $4,
			heartbeat_at = $5, next_retry_at = NULL, updated_at = $6
		WHERE id = $7 AND owner_worker_id IS NULL AND status IN ($8, $9)
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		domain.JobStatusInProgress,
		workerID,
		now,
		timeoutAt,
		now,
		now,
		id,
		domain.JobStatusPending,
		domain.JobStatusQueued,
	)
	if err != nil {
		log.Error("failed to claim job",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()),
			slog.String("worker_id", workerID))
		return MapError(err)
	}

	if err := CheckConflict(result); err != nil {
		log.Debug("claim lost to another worker",
			slog.String("job_id", id.String()),
			slog.String("worker_id", workerID))
		return err
	}

	log.Info("job claimed",
		slog.String("job_id", id.String()),
		slog.String("worker_id", workerID),
		slog.Time("timeout_at", timeoutAt))
	return nil
}

// UpdateProgress implements store.JobStore.UpdateProgress
// It writes a progress snapshot, conditional on the worker still owning the
// job. Progress writes double as heartbeats so a reporting worker never
// looks orphaned. A superseded worker gets store.ErrUpdateConflict.
func (s *SQLJobStore) UpdateProgress(
	ctx context.Context,
	id uuid.UUID,
	workerID string,
	progress domain.Progress,
) error {
	// Get the logger from context or use default
	log := logger.FromContextOrDefault(ctx, s.logger)

	// Validate the snapshot before writing
	if err := progress.Validate(); err != nil {
		log.Warn("progress validation failed",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return err
	}

	now := time.Now().UTC()

	query := `
		UPDATE jobs
		SET progress_percent = $1, progress_message = $2,
			progress_current_step = $3, progress_total_steps = $4,
			heartbeat_at = $5, updated_at = $6
		WHERE id = $7 AND status = $8 AND owner_worker_id = $9
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		progress.Percent,
		progress.Message,
		progress.CurrentStep,
		progress.TotalSteps,
		now,
		now,
		id,
		domain.JobStatusInProgress,
		workerID,
	)
	if err != nil {
		log.Error("failed to update job progress",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()),
			slog.String("worker_id", workerID))
		return MapError(err)
	}

	if err := CheckConflict(result); err != nil {
		log.Debug("progress write rejected, worker no longer owns job",
			slog.String("job_id", id.String()),
			slog.String("worker_id", workerID))
		return err
	}

	log.Debug("job progress updated",
		slog.String("job_id", id.String()),
		slog.Int("percent", progress.Percent))
	return nil
}

// Heartbeat implements store.JobStore.Heartbeat
// It refreshes the liveness stamp for an owned in_progress job, conditional
// on ownership like UpdateProgress.
func (s *SQLJobStore) Heartbeat(ctx context.Context, id uuid.UUID, workerID string) error {
	// Get the logger from context or use default
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := time.Now().UTC()

	query := `
		UPDATE jobs
		SET heartbeat_at = $1, updated_at = $2
		WHERE id = $3 AND status = $4 AND owner_worker_id = $5
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		now,
		now,
		id,
		domain.JobStatusInProgress,
		workerID,
	)
	if err != nil {
		log.Error("failed to record heartbeat",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()),
			slog.String("worker_id", workerID))
		return MapError(err)
	}

	return CheckConflict(result)
}

// Complete implements store.JobStore.Complete
// It records the job's result and moves it to completed, stamping
// completedAt and clearing the owner and deadline. The conditional guard
// (owned, in_progress) makes the result write-once: any later attempt
// returns store.ErrUpdateConflict.
func (s *SQLJobStore) Complete(
	ctx context.Context,
	id uuid.UUID,
	workerID string,
	result json.RawMessage,
) error {
	// Get the logger from context or use default
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := time.Now().UTC()

	query := `
		UPDATE jobs
		SET status = $1, result = $2, owner_worker_id = NULL, timeout_at = NULL,
			heartbeat_at = NULL, completed_at = $3, updated_at = $4
		WHERE id = $5 AND status = $6 AND owner_worker_id = $7
	`

	res, err := s.db.ExecContext(
		ctx,
		query,
		domain.JobStatusCompleted,
		nullJSON(result),
		now,
		now,
		id,
		domain.JobStatusInProgress,
		workerID,
	)
	if err != nil {
		log.Error("failed to complete job",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()),
			slog.String("worker_id", workerID))
		return MapError(err)
	}

	if err := CheckConflict(res); err != nil {
		log.Warn("completion rejected, worker no longer owns job",
			slog.String("job_id", id.String()),
			slog.String("worker_id", workerID))
		return err
	}

	log.Info("job completed",
		slog.String("job_id", id.String()),
		slog.String("worker_id", workerID))
	return nil
}

// Fail implements store.JobStore.Fail
// It moves an owned job to a terminal failure status (failed or timed_out),
// recording the classified error and stamping completedAt. Conditional on
// ownership like Complete.
func (s *SQLJobStore) Fail(
	ctx context.Context,
	id uuid.UUID,
	workerID string,
	status domain.JobStatus,
	jobErr domain.JobError,
) error {
	// Get the logger from context or use default
	log := logger.FromContextOrDefault(ctx, s.logger)

	if status != domain.JobStatusFailed && status != domain.JobStatusTimedOut {
		return fmt.Errorf("%w: %s is not a failure status", domain.ErrJobStatusInvalid, status)
	}
	if jobErr.Code == "" {
		return fmt.Errorf("%w: job error code is required", store.ErrInvalidEntity)
	}

	now := time.Now().UTC()

	query := `
		UPDATE jobs
		SET status = $1, error_code = $2, error_message = $3,
			owner_worker_id = NULL, timeout_at = NULL, heartbeat_at = NULL,
			completed_at = $4, updated_at = $5
		WHERE id = $6 AND status = $7 AND owner_worker_id = $8
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		status,
		jobErr.Code,
		jobErr.Message,
		now,
		now,
		id,
		domain.JobStatusInProgress,
		workerID,
	)
	if err != nil {
		log.Error("failed to record job failure",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()),
			slog.String("worker_id", workerID))
		return MapError(err)
	}

	if err := CheckConflict(result); err != nil {
		log.Warn("failure write rejected, worker no longer owns job",
			slog.String("job_id", id.String()),
			slog.String("worker_id", workerID))
		return err
	}

	log.Info("job failed",
		slog.String("job_id", id.String()),
		slog.String("status", string(status)),
		slog.String("error_code", jobErr.Code))
	return nil
}

// Reschedule implements store.JobStore.Reschedule
// It requeues an owned job for a retry attempt: increments retryCount, sets
// nextRetryAt, resets progress, clears the owner and deadline, and returns
// the job to pending. Conditional on ownership.
func (s *SQLJobStore) Reschedule(
	ctx context.Context,
	id uuid.UUID,
	workerID string,
	nextRetryAt time.Time,
) error {
	// Get the logger from context or use default
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := time.Now().UTC()

	query := `
		UPDATE jobs
		SET status = $1, retry_count = retry_count + 1, next_retry_at = $2,
			owner_worker_id = NULL, timeout_at = NULL, heartbeat_at = NULL,
			progress_percent = 0, progress_message = '',
			progress_current_step = 0, progress_total_steps = 0,
			updated_at = $3
		WHERE id = $4 AND status = $5 AND owner_worker_id = $6
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		domain.JobStatusPending,
		nextRetryAt.UTC(),
		now,
		id,
		domain.JobStatusInProgress,
		workerID,
	)
	if err != nil {
		log.Error("failed to reschedule job",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()),
			slog.String("worker_id", workerID))
		return MapError(err)
	}

	if err := CheckConflict(result); err != nil {
		log.Warn("reschedule rejected, worker no longer owns job",
			slog.String("job_id", id.String()),
			slog.String("worker_id", workerID))
		return err
	}

	log.Info("job rescheduled for retry",
		slog.String("job_id", id.String()),
		slog.Time("next_retry_at", nextRetryAt.UTC()))
	return nil
}

// Cancel implements store.JobStore.Cancel
// It moves a still-unclaimed job to cancelled and returns the updated
// record. Returns store.ErrJobNotFound if the job does not exist, or
// domain.ErrJobNotCancellable wrapped with the current status when a worker
// already claimed the job or it is already terminal.
func (s *SQLJobStore) Cancel(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	// Get the logger from context or use default
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := time.Now().UTC()

	query := `
		UPDATE jobs
		SET status = $1, cancelled_at = $2, completed_at = $3, updated_at = $4
		WHERE id = $5 AND owner_worker_id IS NULL AND status IN ($6, $7)
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		domain.JobStatusCancelled,
		now,
		now,
		now,
		id,
		domain.JobStatusPending,
		domain.JobStatusQueued,
	)
	if err != nil {
		log.Error("failed to cancel job",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return nil, MapError(err)
	}

	if err := CheckConflict(result); err != nil {
		// The guard failed: either the job is gone or it has moved past the
		// cancellable statuses. Re-read to tell the two apart.
		job, getErr := s.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		log.Debug("job not cancellable",
			slog.String("job_id", id.String()),
			slog.String("status", string(job.Status)))
		return nil, fmt.Errorf("%w: job is %s", domain.ErrJobNotCancellable, job.Status)
	}

	job, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	log.Info("job cancelled",
		slog.String("job_id", id.String()),
		slog.String("display_id", job.DisplayID))
	return job, nil
}

// StalledJobs implements store.JobStore.StalledJobs
// It returns in_progress jobs whose execution deadline has passed, oldest
// deadline first, for the reaper to reset or fail.
func (s *SQLJobStore) StalledJobs(ctx context.Context, limit int) ([]*domain.Job, error) {
	now := time.Now().UTC()

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1 AND timeout_at IS NOT NULL AND timeout_at <= $2
		ORDER BY timeout_at ASC
		LIMIT $3
	`

	return s.queryJobs(ctx, query, domain.JobStatusInProgress, now, limit)
}

// OrphanedJobs implements store.JobStore.OrphanedJobs
// It returns in_progress jobs whose last heartbeat is older than the cutoff,
// regardless of deadline. These usually belong to crashed workers. The
// started_at guard keeps freshly claimed jobs out of the sweep.
func (s *SQLJobStore) OrphanedJobs(
	ctx context.Context,
	heartbeatCutoff time.Time,
	limit int,
) ([]*domain.Job, error) {
	cutoff := heartbeatCutoff.UTC()

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1
		  AND (heartbeat_at IS NULL OR heartbeat_at <= $2)
		  AND started_at IS NOT NULL AND started_at <= $3
		ORDER BY started_at ASC
		LIMIT $4
	`

	return s.queryJobs(ctx, query, domain.JobStatusInProgress, cutoff, cutoff, limit)
}

// DeleteExpired implements store.JobStore.DeleteExpired
// It removes terminal jobs that completed before the cutoff and reports how
// many rows were deleted. completed_at is only ever set on terminal jobs, so
// no status filter is needed.
func (s *SQLJobStore) DeleteExpired(
	ctx context.Context,
	completedBefore time.Time,
) (int64, error) {
	// Get the logger from context or use default
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		DELETE FROM jobs
		WHERE completed_at IS NOT NULL AND completed_at <= $1
	`

	result, err := s.db.ExecContext(ctx, query, completedBefore.UTC())
	if err != nil {
		log.Error("failed to delete expired jobs",
			slog.String("error", err.Error()))
		return 0, MapError(err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if deleted > 0 {
		log.Info("expired jobs deleted",
			slog.Int64("count", deleted),
			slog.Time("completed_before", completedBefore.UTC()))
	}
	return deleted, nil
}

// CountByStatus implements store.JobStore.CountByStatus
// It returns the number of jobs per status, with zero entries for statuses
// that currently have no jobs so callers see a stable key set.
func (s *SQLJobStore) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	// Get the logger from context or use default
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT status, COUNT(*)
		FROM jobs
		GROUP BY status
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		log.Error("failed to count jobs by status",
			slog.String("error", err.Error()))
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[domain.JobStatus]int, len(domain.AllJobStatuses))
	for _, status := range domain.AllJobStatuses {
		counts[status] = 0
	}

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[domain.JobStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}

// WithTx implements store.JobStore.WithTx
// It returns a new JobStore instance that uses the provided transaction.
// This allows multiple operations to be executed within a single transaction.
func (s *SQLJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &SQLJobStore{
		db:     tx,
		logger: s.logger,
	}
}

// queryJobs runs a multi-row job query and scans the results.
func (s *SQLJobStore) queryJobs(
	ctx context.Context,
	query string,
	args ...any,
) ([]*domain.Job, error) {
	// Get the logger from context or use default
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query jobs",
			slog.String("error", err.Error()))
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	// Return an empty slice rather than nil when nothing matches.
	jobs := []*domain.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			log.Error("failed to scan job row",
				slog.String("error", err.Error()))
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating job rows",
			slog.String("error", err.Error()))
		return nil, err
	}

	return jobs, nil
}

// buildJobFilter turns a store.JobFilter into a WHERE clause and argument
// list. Placeholders are numbered in the order arguments are appended so the
// clause stays valid for both drivers.
func buildJobFilter(filter store.JobFilter) (string, []any) {
	var conds []string
	var args []any

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conds = append(conds, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	if filter.JobType != "" {
		args = append(args, filter.JobType)
		conds = append(conds, fmt.Sprintf("job_type = $%d", len(args)))
	}

	if filter.ScopeID != "" {
		args = append(args, filter.ScopeID)
		conds = append(conds, fmt.Sprintf("scope_id = $%d", len(args)))
	}

	if filter.CreatedAfter != nil {
		args = append(args, filter.CreatedAfter.UTC())
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	if filter.CreatedBefore != nil {
		args = append(args, filter.CreatedBefore.UTC())
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob reads one row in jobColumns order into a domain.Job, converting
// nullable columns to their pointer forms and normalizing timestamps to UTC.
func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job           domain.Job
		id            string
		status        string
		payload       []byte
		result        []byte
		errorCode     sql.NullString
		errorMessage  sql.NullString
		retryDelayMS  int64
		nextRetryAt   sql.NullTime
		ownerWorkerID sql.NullString
		metadata      []byte
		timeoutAt     sql.NullTime
		heartbeatAt   sql.NullTime
		startedAt     sql.NullTime
		completedAt   sql.NullTime
		cancelledAt   sql.NullTime
	)

	err := row.Scan(
		&id,
		&job.DisplayID,
		&job.JobType,
		&status,
		&payload,
		&result,
		&errorCode,
		&errorMessage,
		&job.Progress.Percent,
		&job.Progress.Message,
		&job.Progress.CurrentStep,
		&job.Progress.TotalSteps,
		&job.RetryCount,
		&job.MaxRetries,
		&retryDelayMS,
		&nextRetryAt,
		&job.Priority,
		&ownerWorkerID,
		&job.ScopeID,
		&metadata,
		&timeoutAt,
		&heartbeatAt,
		&startedAt,
		&completedAt,
		&cancelledAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	jobID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid job ID %q in row: %w", id, err)
	}
	job.ID = jobID
	job.Status = domain.JobStatus(status)
	job.Payload = json.RawMessage(payload)
	if len(result) > 0 {
		job.Result = json.RawMessage(result)
	}
	if len(metadata) > 0 {
		job.Metadata = json.RawMessage(metadata)
	}
	if errorCode.Valid {
		job.Error = &domain.JobError{
			Code:    errorCode.String,
			Message: errorMessage.String,
		}
	}
	job.RetryBaseDelay = time.Duration(retryDelayMS) * time.Millisecond
	if ownerWorkerID.Valid {
		owner := ownerWorkerID.String
		job.OwnerWorkerID = &owner
	}
	job.NextRetryAt = timePtr(nextRetryAt)
	job.TimeoutAt = timePtr(timeoutAt)
	job.HeartbeatAt = timePtr(heartbeatAt)
	job.StartedAt = timePtr(startedAt)
	job.CompletedAt = timePtr(completedAt)
	job.CancelledAt = timePtr(cancelledAt)
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()

	return &job, nil
}

// timePtr converts a nullable timestamp to a *time.Time in UTC.
func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}

// nullJSON converts an optional JSON document to a driver-friendly value,
// storing NULL rather than an empty string when the document is absent.
func nullJSON(doc json.RawMessage) any {
	if len(doc) == 0 {
		return nil
	}
	return []byte(doc)
}

// nullErrorCode extracts the error code column value from an optional JobError.
func nullErrorCode(jobErr *domain.JobError) sql.NullString {
	if jobErr == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: jobErr.Code, Valid: true}
}

// nullErrorMessage extracts the error message column value from an optional JobError.
func nullErrorMessage(jobErr *domain.JobError) sql.NullString {
	if jobErr == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: jobErr.Message, Valid: true}
}
