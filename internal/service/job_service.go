package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/golem-api/internal/domain"
	"github.com/phrazzld/golem-api/internal/events"
	"github.com/phrazzld/golem-api/internal/store"
	"github.com/phrazzld/golem-api/internal/task"
)

// JobRepository defines the repository interface for the service layer.
// It is the subset of store.JobStore the service needs; the claim and
// settlement operations belong to the runner and reaper, not here.
type JobRepository interface {
	// Create saves a new pending job to the store
	Create(ctx context.Context, job *domain.Job) error

	// GetByID retrieves a job by its unique ID
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// List retrieves jobs matching the filter, newest first, with the
	// total match count
	List(ctx context.Context, filter store.JobFilter, page store.Page) ([]*domain.Job, int, error)

	// Cancel moves a still-unclaimed job to cancelled
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// CountByStatus returns the number of jobs per status
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error)
}

// JobTypeRegistry is the subset of the task registry the service needs
// to validate submissions and describe the available job types.
type JobTypeRegistry interface {
	// ValidatePayload checks a payload against the job type's schema
	ValidatePayload(jobType string, payload json.RawMessage) error

	// Get returns the registered definition for a job type
	Get(jobType string) (task.Definition, error)

	// Definitions returns all registered definitions, sorted by type
	Definitions() []task.Definition
}

// SubmitJobParams carries a submission request. Nil pointer fields mean
// "use the job type's default"; a pointer to zero is an explicit zero,
// so MaxRetries of 0 disables retries outright.
type SubmitJobParams struct {
	JobType    string
	Payload    json.RawMessage
	Priority   *int
	ScopeID    string
	Metadata   json.RawMessage
	MaxRetries *int
}

// SubmitJobResult is the accepted-submission receipt: the created job
// plus the type-level duration hint for the response.
type SubmitJobResult struct {
	Job               *domain.Job
	EstimatedDuration time.Duration
}

// JobService provides job submission, inspection, and cancellation.
// Execution is not here: workers pick up submitted jobs through the
// store on their own schedule.
type JobService interface {
	// SubmitJob validates the payload against the job type's schema,
	// creates a pending job, and emits a submission event. Validation
	// failures return before any row is created.
	SubmitJob(ctx context.Context, params SubmitJobParams) (*SubmitJobResult, error)

	// GetJob retrieves a job by its ID
	GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// ListJobs retrieves jobs matching the filter, newest first, along
	// with the total match count for pagination
	ListJobs(ctx context.Context, filter store.JobFilter, page store.Page) ([]*domain.Job, int, error)

	// CancelJob cancels a job that no worker has claimed yet. Jobs that
	// are in progress or already terminal return
	// domain.ErrJobNotCancellable without mutation.
	CancelJob(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// JobTypes returns the registered job type definitions
	JobTypes() []task.Definition

	// CountByStatus returns the number of jobs per status
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error)
}

// jobServiceImpl implements the JobService interface
type jobServiceImpl struct {
	jobRepo      JobRepository
	registry     JobTypeRegistry
	eventEmitter events.EventEmitter
	logger       *slog.Logger
}

// NewJobService creates a new JobService.
// It returns an error if any of the required dependencies are nil.
func NewJobService(
	jobRepo JobRepository,
	registry JobTypeRegistry,
	eventEmitter events.EventEmitter,
	logger *slog.Logger,
) (JobService, error) {
	if jobRepo == nil {
		return nil, &JobServiceError{
			Operation: "create_service",
			Message:   "jobRepo cannot be nil",
		}
	}
	if registry == nil {
		return nil, &JobServiceError{
			Operation: "create_service",
			Message:   "registry cannot be nil",
		}
	}
	if eventEmitter == nil {
		return nil, &JobServiceError{
			Operation: "create_service",
			Message:   "eventEmitter cannot be nil",
		}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &jobServiceImpl{
		jobRepo:      jobRepo,
		registry:     registry,
		eventEmitter: eventEmitter,
		logger:       logger.With("component", "job_service"),
	}, nil
}

// SubmitJob validates the submission synchronously and persists one
// pending job. The caller gets an acceptance receipt, never an
// execution result: outcomes are observed through GetJob.
func (s *jobServiceImpl) SubmitJob(
	ctx context.Context,
	params SubmitJobParams,
) (*SubmitJobResult, error) {
	// 1. Validate the payload against the type's registered schema.
	// Unknown types and schema violations fail here, before any row
	// exists.
	if err := s.registry.ValidatePayload(params.JobType, params.Payload); err != nil {
		s.logger.Warn("job submission rejected",
			"error", err,
			"job_type", params.JobType)
		return nil, NewJobServiceError("submit_job", "payload validation failed", err)
	}

	definition, err := s.registry.Get(params.JobType)
	if err != nil {
		// ValidatePayload already vouched for the type; losing it here
		// would mean the registry changed mid-request.
		return nil, NewJobServiceError("submit_job", "job type lookup failed", err)
	}

	// 2. Resolve submission options against the type's defaults.
	opts := domain.JobOptions{
		ScopeID:        params.ScopeID,
		Metadata:       params.Metadata,
		Priority:       definition.Priority,
		MaxRetries:     definition.MaxRetries,
		RetryBaseDelay: definition.RetryBaseDelay,
	}
	if params.Priority != nil {
		opts.Priority = *params.Priority
	}
	if params.MaxRetries != nil {
		if *params.MaxRetries < 0 {
			return nil, NewJobServiceError(
				"submit_job",
				"invalid retry budget",
				domain.ErrJobMaxRetriesNegative,
			)
		}
		opts.MaxRetries = *params.MaxRetries
	}

	job, err := domain.NewJob(params.JobType, params.Payload, opts)
	if err != nil {
		s.logger.Error("failed to construct job",
			"error", err,
			"job_type", params.JobType)
		return nil, NewJobServiceError("submit_job", "failed to construct job", err)
	}

	// 3. Persist the pending job.
	if err := s.jobRepo.Create(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			"error", err,
			"job_id", job.ID,
			"job_type", job.JobType)
		return nil, NewJobServiceError("submit_job", "failed to save job", err)
	}

	s.logger.Info("job submitted",
		"job_id", job.ID,
		"display_id", job.DisplayID,
		"job_type", job.JobType,
		"priority", job.Priority,
		"max_retries", job.MaxRetries)

	// 4. Nudge the local workers. The event is advisory: if it is lost,
	// the job still runs on the next poll, so emission failures must not
	// fail a submission that is already durable.
	event := events.NewJobEvent(events.KindJobSubmitted, job)
	if err := s.eventEmitter.EmitEvent(ctx, event); err != nil {
		s.logger.Warn("failed to emit submission event",
			"error", err,
			"job_id", job.ID,
			"event_id", event.ID)
	}

	return &SubmitJobResult{
		Job:               job,
		EstimatedDuration: definition.EstimatedDuration,
	}, nil
}

// GetJob retrieves a job by its ID
func (s *jobServiceImpl) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	job, err := s.jobRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return nil, ErrJobNotFound
		}
		s.logger.Error("failed to retrieve job",
			"error", err,
			"job_id", id)
		return nil, NewJobServiceError("get_job", "failed to retrieve job", err)
	}

	s.logger.Debug("retrieved job",
		"job_id", id,
		"job_type", job.JobType,
		"status", job.Status)

	return job, nil
}

// ListJobs retrieves jobs matching the filter, newest first
func (s *jobServiceImpl) ListJobs(
	ctx context.Context,
	filter store.JobFilter,
	page store.Page,
) ([]*domain.Job, int, error) {
	jobs, total, err := s.jobRepo.List(ctx, filter, page)
	if err != nil {
		s.logger.Error("failed to list jobs",
			"error", err,
			"page", page.Number)
		return nil, 0, NewJobServiceError("list_jobs", "failed to list jobs", err)
	}

	s.logger.Debug("listed jobs",
		"returned", len(jobs),
		"total", total,
		"page", page.Number)

	return jobs, total, nil
}

// CancelJob cancels a job that no worker has claimed yet. The store's
// conditional update decides the race against claiming workers: whoever
// writes first wins, and a lost cancellation surfaces as
// domain.ErrJobNotCancellable with the current status.
func (s *jobServiceImpl) CancelJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	job, err := s.jobRepo.Cancel(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return nil, ErrJobNotFound
		}
		if errors.Is(err, domain.ErrJobNotCancellable) {
			s.logger.Info("cancellation rejected",
				"job_id", id,
				"reason", err)
			return nil, err
		}
		s.logger.Error("failed to cancel job",
			"error", err,
			"job_id", id)
		return nil, NewJobServiceError("cancel_job", "failed to cancel job", err)
	}

	s.logger.Info("job cancelled",
		"job_id", job.ID,
		"display_id", job.DisplayID,
		"job_type", job.JobType)

	event := events.NewJobEvent(events.KindJobCancelled, job)
	if err := s.eventEmitter.EmitEvent(ctx, event); err != nil {
		s.logger.Warn("failed to emit cancellation event",
			"error", err,
			"job_id", job.ID,
			"event_id", event.ID)
	}

	return job, nil
}

// JobTypes returns the registered job type definitions
func (s *jobServiceImpl) JobTypes() []task.Definition {
	return s.registry.Definitions()
}

// CountByStatus returns the number of jobs per status
func (s *jobServiceImpl) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	counts, err := s.jobRepo.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("failed to count jobs",
			"error", err)
		return nil, NewJobServiceError("count_jobs", "failed to count jobs", err)
	}
	return counts, nil
}
