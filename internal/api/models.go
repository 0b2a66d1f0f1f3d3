package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/golem-api/internal/domain"
	"github.com/phrazzld/golem-api/internal/task"
)

// Wire representations of jobs, shared by the submission, status, detail,
// and list endpoints. Durations are surfaced as whole seconds so clients
// never parse Go duration syntax.

// JobLinks points a client at the follow-up endpoints for a submitted job.
type JobLinks struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
	Cancel string `json:"cancel"`
}

// JobSubmissionResponse acknowledges an accepted submission. The job has
// been durably recorded but not yet executed.
type JobSubmissionResponse struct {
	ID        uuid.UUID `json:"id"`
	DisplayID string    `json:"display_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`

	// EstimatedDurationSeconds hints how long jobs of this type usually
	// take, so clients can pick a polling cadence. Zero means no estimate.
	EstimatedDurationSeconds int `json:"estimated_duration_seconds,omitempty"`

	Links JobLinks `json:"links"`
}

// JobStatusResponse is the lightweight polling view: enough to render a
// progress bar and decide whether to stop polling, nothing more.
type JobStatusResponse struct {
	ID        uuid.UUID        `json:"id"`
	DisplayID string           `json:"display_id"`
	Status    string           `json:"status"`
	Progress  domain.Progress  `json:"progress"`
	Error     *domain.JobError `json:"error,omitempty"`
	HasResult bool             `json:"has_result,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// JobResponse is the full job record as served to clients. Worker
// heartbeat bookkeeping and retry tuning internals are not exposed.
type JobResponse struct {
	ID            uuid.UUID        `json:"id"`
	DisplayID     string           `json:"display_id"`
	JobType       string           `json:"job_type"`
	Status        string           `json:"status"`
	Payload       json.RawMessage  `json:"payload"`
	Result        json.RawMessage  `json:"result,omitempty"`
	Error         *domain.JobError `json:"error,omitempty"`
	Progress      domain.Progress  `json:"progress"`
	RetryCount    int              `json:"retry_count"`
	MaxRetries    int              `json:"max_retries"`
	NextRetryAt   *time.Time       `json:"next_retry_at,omitempty"`
	Priority      int              `json:"priority"`
	OwnerWorkerID *string          `json:"owner_worker_id,omitempty"`
	ScopeID       string           `json:"scope_id,omitempty"`
	Metadata      json.RawMessage  `json:"metadata,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	TimeoutAt     *time.Time       `json:"timeout_at,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	CancelledAt   *time.Time       `json:"cancelled_at,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// JobSummary is the list-endpoint view of a job. Payloads, results, and
// metadata are omitted; fetch the detail endpoint for those.
type JobSummary struct {
	ID          uuid.UUID        `json:"id"`
	DisplayID   string           `json:"display_id"`
	JobType     string           `json:"job_type"`
	Status      string           `json:"status"`
	Progress    domain.Progress  `json:"progress"`
	Error       *domain.JobError `json:"error,omitempty"`
	RetryCount  int              `json:"retry_count"`
	Priority    int              `json:"priority"`
	ScopeID     string           `json:"scope_id,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// JobListResponse wraps a page of job summaries with pagination totals.
type JobListResponse struct {
	Jobs       []JobSummary `json:"jobs"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
	TotalCount int          `json:"total_count"`
}

// JobTypeResponse describes one registered job type, including the
// payload schema clients must satisfy on submission.
type JobTypeResponse struct {
	Type                     string          `json:"type"`
	PayloadSchema            json.RawMessage `json:"payload_schema,omitempty"`
	ExecutionTimeoutSeconds  int             `json:"execution_timeout_seconds"`
	MaxRetries               int             `json:"max_retries"`
	Priority                 int             `json:"priority"`
	EstimatedDurationSeconds int             `json:"estimated_duration_seconds,omitempty"`
}

// QueueStatsResponse reports the number of jobs in each status.
type QueueStatsResponse struct {
	Statuses map[string]int `json:"statuses"`
	Total    int            `json:"total"`
}

// jobToResponse maps a domain job to its full wire representation.
func jobToResponse(job *domain.Job) JobResponse {
	return JobResponse{
		ID:            job.ID,
		DisplayID:     job.DisplayID,
		JobType:       job.JobType,
		Status:        job.Status.String(),
		Payload:       job.Payload,
		Result:        job.Result,
		Error:         job.Error,
		Progress:      job.Progress,
		RetryCount:    job.RetryCount,
		MaxRetries:    job.MaxRetries,
		NextRetryAt:   job.NextRetryAt,
		Priority:      job.Priority,
		OwnerWorkerID: job.OwnerWorkerID,
		ScopeID:       job.ScopeID,
		Metadata:      job.Metadata,
		CreatedAt:     job.CreatedAt,
		StartedAt:     job.StartedAt,
		TimeoutAt:     job.TimeoutAt,
		CompletedAt:   job.CompletedAt,
		CancelledAt:   job.CancelledAt,
		UpdatedAt:     job.UpdatedAt,
	}
}

// jobToSummary maps a domain job to its list representation.
func jobToSummary(job *domain.Job) JobSummary {
	return JobSummary{
		ID:          job.ID,
		DisplayID:   job.DisplayID,
		JobType:     job.JobType,
		Status:      job.Status.String(),
		Progress:    job.Progress,
		Error:       job.Error,
		RetryCount:  job.RetryCount,
		Priority:    job.Priority,
		ScopeID:     job.ScopeID,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
		UpdatedAt:   job.UpdatedAt,
	}
}

// jobToStatusResponse maps a domain job to the lightweight polling view.
func jobToStatusResponse(job *domain.Job) JobStatusResponse {
	return JobStatusResponse{
		ID:        job.ID,
		DisplayID: job.DisplayID,
		Status:    job.Status.String(),
		Progress:  job.Progress,
		Error:     job.Error,
		HasResult: len(job.Result) > 0,
		UpdatedAt: job.UpdatedAt,
	}
}

// jobTypeToResponse maps a registered job type definition to its wire
// representation.
func jobTypeToResponse(def task.Definition) JobTypeResponse {
	return JobTypeResponse{
		Type:                     def.Type,
		PayloadSchema:            def.PayloadSchema,
		ExecutionTimeoutSeconds:  int(def.ExecutionTimeout.Seconds()),
		MaxRetries:               def.MaxRetries,
		Priority:                 def.Priority,
		EstimatedDurationSeconds: int(def.EstimatedDuration.Seconds()),
	}
}
