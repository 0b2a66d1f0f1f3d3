package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/phrazzld/golem-api/internal/domain"
	"github.com/phrazzld/golem-api/internal/store"
)

// Executor runs a single claimed job attempt end to end: it resolves
// the handler, enforces the wall-clock deadline, converts panics into
// classified failures, and settles exactly one outcome in the store,
// either a terminal write or a retry reschedule.
type Executor struct {
	registry      *Registry
	store         store.JobStore
	logger        *slog.Logger
	maxRetryDelay time.Duration
}

// NewExecutor creates an executor. maxRetryDelay caps the exponential
// backoff; zero means DefaultMaxRetryDelay.
func NewExecutor(
	registry *Registry,
	jobStore store.JobStore,
	maxRetryDelay time.Duration,
	logger *slog.Logger,
) *Executor {
	if registry == nil {
		panic("registry cannot be nil")
	}
	if jobStore == nil {
		panic("job store cannot be nil")
	}
	if maxRetryDelay <= 0 {
		maxRetryDelay = DefaultMaxRetryDelay
	}

	return &Executor{
		registry:      registry,
		store:         jobStore,
		logger:        logger.With(slog.String("component", "executor")),
		maxRetryDelay: maxRetryDelay,
	}
}

// Execute runs one attempt of an already claimed job. The job must be
// in_progress and owned by workerID. Handler outcomes, panics and
// deadline kills included, are settled in the store; the returned error
// reports only infrastructure trouble such as a failed store write. A
// settle that loses its conditional update is not an error: it means
// the reaper or a cancel took the job away, and the other writer's
// record stands.
func (e *Executor) Execute(ctx context.Context, job *domain.Job, workerID string) error {
	logger := e.logger.With(
		slog.String("job_id", job.ID.String()),
		slog.String("job_type", job.JobType),
		slog.String("worker_id", workerID),
		slog.Int("attempt", job.RetryCount+1),
	)

	// Settle writes must survive the attempt deadline and runner
	// shutdown; an expired attempt still records its outcome.
	settleCtx := context.WithoutCancel(ctx)

	def, err := e.registry.Get(job.JobType)
	if err != nil {
		// A claimed job whose type is no longer registered cannot run
		// here or anywhere else. Fail it permanently.
		logger.Error("no handler registered for claimed job")
		return e.fail(settleCtx, job, workerID, domain.JobStatusFailed, domain.JobError{
			Code:    domain.ErrorCodeInvalidInput,
			Message: fmt.Sprintf("job type %q is not registered", job.JobType),
		}, logger)
	}

	deadline := time.Now().UTC().Add(def.ExecutionTimeout)
	if job.TimeoutAt != nil {
		deadline = *job.TimeoutAt
	}

	attemptCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	exec := &Execution{
		JobID:       job.ID,
		DisplayID:   job.DisplayID,
		JobType:     job.JobType,
		Payload:     job.Payload,
		Metadata:    job.Metadata,
		ScopeID:     job.ScopeID,
		Attempt:     job.RetryCount + 1,
		MaxAttempts: job.MaxRetries + 1,
		Deadline:    deadline,
		report: func(ctx context.Context, progress domain.Progress) error {
			return e.store.UpdateProgress(ctx, job.ID, workerID, progress)
		},
	}

	result, execErr := e.run(attemptCtx, def, exec, logger)

	if execErr == nil {
		return e.complete(settleCtx, job, workerID, result, logger)
	}

	// A runner-initiated cancellation is not a job failure. Leave the
	// job in_progress for the reaper to recover instead of charging the
	// retry budget for a shutdown.
	if attemptCtx.Err() == context.Canceled {
		logger.Warn("execution cancelled before completion, leaving job for recovery",
			slog.String("error", execErr.Error()))
		return nil
	}

	deadlineHit := attemptCtx.Err() == context.DeadlineExceeded

	jobErr := Classify(execErr)
	if deadlineHit {
		jobErr = domain.JobError{
			Code:    domain.ErrorCodeTimeout,
			Message: fmt.Sprintf("execution exceeded the %s limit", def.ExecutionTimeout),
		}
	}

	if IsRetryable(jobErr.Code) && job.RetryCount < job.MaxRetries {
		return e.reschedule(settleCtx, job, workerID, jobErr, logger)
	}

	// An attempt killed by its own deadline with no budget left ends as
	// timed_out; a handler-reported failure ends as failed even when its
	// code is TIMEOUT.
	status := domain.JobStatusFailed
	if deadlineHit {
		status = domain.JobStatusTimedOut
	}
	return e.fail(settleCtx, job, workerID, status, jobErr, logger)
}

// run invokes the handler, converting panics into plain errors so one
// bad job can never take the worker process down.
func (e *Executor) run(
	ctx context.Context,
	def Definition,
	exec *Execution,
	logger *slog.Logger,
) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			result = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return def.Handler(ctx, exec)
}

func (e *Executor) complete(
	ctx context.Context,
	job *domain.Job,
	workerID string,
	result json.RawMessage,
	logger *slog.Logger,
) error {
	err := e.store.Complete(ctx, job.ID, workerID, result)
	if err == nil {
		logger.Info("job completed")
		return nil
	}
	if store.IsConflictError(err) {
		logger.Warn("completion superseded, discarding result",
			slog.String("error", err.Error()))
		return nil
	}
	logger.Error("failed to record completion", slog.String("error", err.Error()))
	return fmt.Errorf("record completion: %w", err)
}

func (e *Executor) reschedule(
	ctx context.Context,
	job *domain.Job,
	workerID string,
	jobErr domain.JobError,
	logger *slog.Logger,
) error {
	retry := job.RetryCount + 1
	delay := RetryDelay(job.RetryBaseDelay, retry, e.maxRetryDelay)
	nextRetryAt := time.Now().UTC().Add(delay)

	err := e.store.Reschedule(ctx, job.ID, workerID, nextRetryAt)
	if err == nil {
		logger.Info("job rescheduled for retry",
			slog.String("error_code", jobErr.Code),
			slog.Int("retry_count", retry),
			slog.Duration("retry_delay", delay))
		return nil
	}
	if store.IsConflictError(err) {
		logger.Warn("reschedule superseded", slog.String("error", err.Error()))
		return nil
	}
	logger.Error("failed to reschedule job", slog.String("error", err.Error()))
	return fmt.Errorf("reschedule job: %w", err)
}

func (e *Executor) fail(
	ctx context.Context,
	job *domain.Job,
	workerID string,
	status domain.JobStatus,
	jobErr domain.JobError,
	logger *slog.Logger,
) error {
	err := e.store.Fail(ctx, job.ID, workerID, status, jobErr)
	if err == nil {
		logger.Error("job failed",
			slog.String("status", status.String()),
			slog.String("error_code", jobErr.Code),
			slog.String("error_message", jobErr.Message),
			slog.Int("retry_count", job.RetryCount))
		return nil
	}
	if store.IsConflictError(err) {
		logger.Warn("failure record superseded", slog.String("error", err.Error()))
		return nil
	}
	logger.Error("failed to record job failure", slog.String("error", err.Error()))
	return fmt.Errorf("record failure: %w", err)
}
