package domain

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

// Possible job status values
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusQueued     JobStatus = "queued"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
	JobStatusTimedOut   JobStatus = "timed_out"
)

// AllJobStatuses lists every valid status, in lifecycle order.
var AllJobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusQueued,
	JobStatusInProgress,
	JobStatusCompleted,
	JobStatusFailed,
	JobStatusCancelled,
	JobStatusTimedOut,
}

func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status is final. Terminal jobs never
// change status again; completedAt is set on the first transition into
// any of these states.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusTimedOut:
		return true
	default:
		return false
	}
}

// IsClaimable reports whether a worker may claim a job in this status.
func (s JobStatus) IsClaimable() bool {
	return s == JobStatusPending || s == JobStatusQueued
}

// Transition is a single permitted edge in the job state machine.
type Transition struct {
	From JobStatus
	To   JobStatus
}

// ValidTransitions enumerates the permitted status changes. in_progress
// back to pending is the retry requeue path; everything out of a
// terminal status is forbidden.
var ValidTransitions = []Transition{
	{From: JobStatusPending, To: JobStatusQueued},
	{From: JobStatusPending, To: JobStatusInProgress},
	{From: JobStatusPending, To: JobStatusCancelled},
	{From: JobStatusQueued, To: JobStatusInProgress},
	{From: JobStatusQueued, To: JobStatusCancelled},
	{From: JobStatusInProgress, To: JobStatusCompleted},
	{From: JobStatusInProgress, To: JobStatusFailed},
	{From: JobStatusInProgress, To: JobStatusTimedOut},
	{From: JobStatusInProgress, To: JobStatusPending},
}

// IsValidTransition reports whether a status change is permitted by the
// job state machine.
func IsValidTransition(from, to JobStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// Job error codes recorded on failed and timed_out jobs. Retryability of
// each code is decided by the retry policy, not here.
const (
	ErrorCodeTimeout          = "TIMEOUT"
	ErrorCodeNetwork          = "NETWORK"
	ErrorCodeRateLimited      = "RATE_LIMITED"
	ErrorCodeElementNotFound  = "ELEMENT_NOT_FOUND"
	ErrorCodeAuthFailed       = "AUTH_FAILED"
	ErrorCodeInvalidInput     = "INVALID_INPUT"
	ErrorCodeTargetNotFound   = "TARGET_NOT_FOUND"
	ErrorCodePermissionDenied = "PERMISSION_DENIED"
	ErrorCodeUnknown          = "UNKNOWN"
)

// JobError is the stable, client-safe failure record attached to a job
// once it reaches failed or timed_out.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Progress is the lightweight execution progress snapshot written by the
// owning worker and served verbatim to status polls.
type Progress struct {
	Percent     int    `json:"percent"`
	Message     string `json:"message,omitempty"`
	CurrentStep int    `json:"current_step,omitempty"`
	TotalSteps  int    `json:"total_steps,omitempty"`
}

// Validate checks that the progress snapshot is internally consistent.
func (p Progress) Validate() error {
	if p.Percent < 0 || p.Percent > 100 {
		return ErrProgressPercentRange
	}
	if p.CurrentStep < 0 || p.TotalSteps < 0 {
		return ErrProgressStepNegative
	}
	if p.TotalSteps > 0 && p.CurrentStep > p.TotalSteps {
		return ErrProgressStepOverflow
	}
	return nil
}

// Job-specific validation errors
var (
	// ErrJobIDEmpty is returned when a job ID is empty or nil.
	ErrJobIDEmpty = errors.New("job ID cannot be empty")

	// ErrJobDisplayIDEmpty is returned when a job's display ID is empty.
	ErrJobDisplayIDEmpty = errors.New("job display ID cannot be empty")

	// ErrJobTypeEmpty is returned when a job's type is empty.
	ErrJobTypeEmpty = errors.New("job type cannot be empty")

	// ErrJobPayloadInvalid is returned when a job's payload is absent or
	// not valid JSON.
	ErrJobPayloadInvalid = errors.New("job payload must be valid JSON")

	// ErrJobStatusInvalid is returned when a job status is not one of the
	// known values.
	ErrJobStatusInvalid = errors.New("invalid job status")

	// ErrJobMaxRetriesNegative is returned when maxRetries is below zero.
	ErrJobMaxRetriesNegative = errors.New("job max retries cannot be negative")

	// ErrJobRetryCountRange is returned when retryCount is negative or
	// exceeds maxRetries.
	ErrJobRetryCountRange = errors.New("job retry count out of range")

	// ErrJobRetryDelayInvalid is returned when the retry base delay is
	// zero or negative.
	ErrJobRetryDelayInvalid = errors.New("job retry base delay must be positive")

	// ErrJobOwnerMismatch is returned when ownerWorkerId is inconsistent
	// with the job status. A job has an owner exactly while in_progress.
	ErrJobOwnerMismatch = errors.New("job owner must be set exactly while in progress")

	// ErrJobResultConflict is returned when result and error are both set,
	// or set under a status that does not allow them.
	ErrJobResultConflict = errors.New("job result and error are mutually exclusive")

	// Progress validation errors
	ErrProgressPercentRange = errors.New("progress percent must be between 0 and 100")
	ErrProgressStepNegative = errors.New("progress steps cannot be negative")
	ErrProgressStepOverflow = errors.New("progress current step cannot exceed total steps")
)

// Job represents one asynchronous unit of work: a durable record that
// outlives the submitting request and carries all queueing, execution,
// retry, and outcome state. The store row, not worker memory, is the
// source of truth for everything here.
type Job struct {
	ID             uuid.UUID       `json:"id"`
	DisplayID      string          `json:"display_id"`
	JobType        string          `json:"job_type"`
	Status         JobStatus       `json:"status"`
	Payload        json.RawMessage `json:"payload"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *JobError       `json:"error,omitempty"`
	Progress       Progress        `json:"progress"`
	RetryCount     int             `json:"retry_count"`
	MaxRetries     int             `json:"max_retries"`
	RetryBaseDelay time.Duration   `json:"retry_base_delay"`
	NextRetryAt    *time.Time      `json:"next_retry_at,omitempty"`
	Priority       int             `json:"priority"`
	OwnerWorkerID  *string         `json:"owner_worker_id,omitempty"`
	ScopeID        string          `json:"scope_id,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
	TimeoutAt      *time.Time      `json:"timeout_at,omitempty"`
	HeartbeatAt    *time.Time      `json:"heartbeat_at,omitempty"`
}

// JobOptions carries the caller-tunable submission parameters. Zero
// values mean "use the job type's defaults"; the service resolves them
// before construction.
type JobOptions struct {
	Priority       int
	ScopeID        string
	Metadata       json.RawMessage
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// NewJob creates a pending Job for the given type and payload. It
// generates the job ID and display ID and stamps creation time. The
// payload must already have passed the job type's schema validation.
// Returns an error if validation fails.
func NewJob(jobType string, payload json.RawMessage, opts JobOptions) (*Job, error) {
	now := time.Now().UTC()

	job := &Job{
		ID:             uuid.New(),
		DisplayID:      newDisplayID(now),
		JobType:        jobType,
		Status:         JobStatusPending,
		Payload:        payload,
		Progress:       Progress{},
		RetryCount:     0,
		MaxRetries:     opts.MaxRetries,
		RetryBaseDelay: opts.RetryBaseDelay,
		Priority:       opts.Priority,
		ScopeID:        opts.ScopeID,
		Metadata:       opts.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks structural validity and the cross-field invariants of
// the Job. Returns an error if any check fails.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return ErrJobIDEmpty
	}

	if j.DisplayID == "" {
		return ErrJobDisplayIDEmpty
	}

	if j.JobType == "" {
		return ErrJobTypeEmpty
	}

	if len(j.Payload) == 0 || !json.Valid(j.Payload) {
		return ErrJobPayloadInvalid
	}

	if !isValidJobStatus(j.Status) {
		return ErrJobStatusInvalid
	}

	if j.MaxRetries < 0 {
		return ErrJobMaxRetriesNegative
	}

	if j.RetryCount < 0 || j.RetryCount > j.MaxRetries {
		return ErrJobRetryCountRange
	}

	if j.RetryBaseDelay <= 0 {
		return ErrJobRetryDelayInvalid
	}

	if err := j.Progress.Validate(); err != nil {
		return err
	}

	hasOwner := j.OwnerWorkerID != nil && *j.OwnerWorkerID != ""
	if hasOwner != (j.Status == JobStatusInProgress) {
		return ErrJobOwnerMismatch
	}

	if j.Result != nil && j.Error != nil {
		return ErrJobResultConflict
	}
	if j.Result != nil && j.Status != JobStatusCompleted {
		return ErrJobResultConflict
	}
	if j.Error != nil && j.Status != JobStatusFailed && j.Status != JobStatusTimedOut {
		return ErrJobResultConflict
	}

	return nil
}

// IsTerminal reports whether the job has reached a final status.
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// CanCancel reports whether the job may still be cancelled. Only jobs
// that no worker has claimed yet are cancellable.
func (j *Job) CanCancel() bool {
	return j.Status.IsClaimable()
}

// isValidJobStatus checks if the given status is a valid JobStatus.
func isValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusPending, JobStatusQueued, JobStatusInProgress,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusTimedOut:
		return true
	default:
		return false
	}
}

// newDisplayID builds the human-readable job identifier, a UTC timestamp
// plus a short random suffix, e.g. "job_20250825T153012_9f3a1c".
func newDisplayID(now time.Time) string {
	suffix := make([]byte, 3)
	if _, err := rand.Read(suffix); err != nil {
		// crypto/rand is assumed available; fall back to the nanosecond
		// clock rather than failing job creation.
		return "job_" + now.Format("20060102T150405") + "_" + hex.EncodeToString([]byte{
			byte(now.Nanosecond() >> 16), byte(now.Nanosecond() >> 8), byte(now.Nanosecond()),
		})
	}
	return "job_" + now.Format("20060102T150405") + "_" + hex.EncodeToString(suffix)
}
