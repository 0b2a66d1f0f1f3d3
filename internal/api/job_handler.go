// Package api provides HTTP handlers for the API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/golem-api/internal/api/shared"
	"github.com/phrazzld/golem-api/internal/domain"
	"github.com/phrazzld/golem-api/internal/platform/logger"
	"github.com/phrazzld/golem-api/internal/redact"
	"github.com/phrazzld/golem-api/internal/service"
	"github.com/phrazzld/golem-api/internal/store"
)

// SubmitJobRequest represents the request body for submitting a job.
// Payload is validated against the job type's schema by the service, so
// it carries no validation tags here.
type SubmitJobRequest struct {
	JobType    string          `json:"job_type"    validate:"required,max=128"`
	Payload    json.RawMessage `json:"payload"`
	Priority   *int            `json:"priority"`
	ScopeID    string          `json:"scope_id"    validate:"omitempty,max=255"`
	Metadata   json.RawMessage `json:"metadata"`
	MaxRetries *int            `json:"max_retries" validate:"omitempty,gte=0"`
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	jobService service.JobService
	logger     *slog.Logger
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(jobService service.JobService, logger *slog.Logger) *JobHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for JobHandler")
	}

	return &JobHandler{
		jobService: jobService,
		logger:     logger.With(slog.String("component", "job_handler")),
	}
}

// SubmitJob handles POST /jobs requests.
// It validates the submission synchronously, records the job durably, and
// returns 202 Accepted before any execution happens.
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	// Get logger from context or use default
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	// Parse request body
	var req SubmitJobRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		log.Warn("invalid request format", slog.String("error", redact.Error(err)))
		if errors.Is(err, shared.ErrBodyTooLarge) {
			shared.RespondWithError(w, r, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	// Validate request
	if err := shared.ValidateRequest(req); err != nil {
		log.Warn("validation error",
			slog.String("error", redact.Error(err)),
			slog.String("job_type", req.JobType))
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	// Submit job to service. Payload schema validation happens there,
	// before any row is created.
	result, err := h.jobService.SubmitJob(r.Context(), service.SubmitJobParams{
		JobType:    req.JobType,
		Payload:    req.Payload,
		Priority:   req.Priority,
		ScopeID:    req.ScopeID,
		Metadata:   req.Metadata,
		MaxRetries: req.MaxRetries,
	})
	if err != nil {
		statusCode := MapErrorToStatusCode(err)
		safeMessage := GetSafeErrorMessage(err)

		// Log the full error details but only send sanitized message to client
		shared.RespondWithErrorAndLog(w, r, statusCode, safeMessage, err)
		return
	}

	job := result.Job
	response := JobSubmissionResponse{
		ID:                       job.ID,
		DisplayID:                job.DisplayID,
		Status:                   job.Status.String(),
		CreatedAt:                job.CreatedAt,
		EstimatedDurationSeconds: int(result.EstimatedDuration.Seconds()),
		Links: JobLinks{
			Status: fmt.Sprintf("/api/jobs/%s/status", job.ID),
			Detail: fmt.Sprintf("/api/jobs/%s", job.ID),
			Cancel: fmt.Sprintf("/api/jobs/%s/cancel", job.ID),
		},
	}

	// The job is durably recorded but not yet executed, so 202, not 201.
	log.Debug("job submission accepted",
		slog.String("job_id", job.ID.String()),
		slog.String("job_type", job.JobType))
	shared.RespondWithJSON(w, r, http.StatusAccepted, response)
}

// GetJobStatus handles GET /jobs/{id}/status requests.
// It serves the lightweight polling view: status, progress, and whether a
// result is ready, but never the result itself.
func (h *JobHandler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	// Get logger from context or use default
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	jobID, err := getPathUUID(r, "id")
	if err != nil {
		log.Warn("invalid job ID in path", slog.String("error", err.Error()))
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	job, err := h.jobService.GetJob(r.Context(), jobID)
	if err != nil {
		statusCode := MapErrorToStatusCode(err)
		safeMessage := GetSafeErrorMessage(err)
		shared.RespondWithErrorAndLog(w, r, statusCode, safeMessage, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, jobToStatusResponse(job))
}

// GetJob handles GET /jobs/{id} requests.
// It serves the full job record, including payload, result, and timing.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	// Get logger from context or use default
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	jobID, err := getPathUUID(r, "id")
	if err != nil {
		log.Warn("invalid job ID in path", slog.String("error", err.Error()))
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	job, err := h.jobService.GetJob(r.Context(), jobID)
	if err != nil {
		statusCode := MapErrorToStatusCode(err)
		safeMessage := GetSafeErrorMessage(err)
		shared.RespondWithErrorAndLog(w, r, statusCode, safeMessage, err)
		return
	}

	log.Debug("retrieved job", slog.String("job_id", job.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

// ListJobs handles GET /jobs requests.
// Results are filtered by the query parameters, ordered newest first, and
// paginated. Each entry is a summary; payloads and results stay on the
// detail endpoint.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	// Get logger from context or use default
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	filter, page, err := parseListJobsQuery(r)
	if err != nil {
		log.Warn("invalid list query", slog.String("error", err.Error()))
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, GetSafeErrorMessage(err), err)
		return
	}

	jobs, total, err := h.jobService.ListJobs(r.Context(), filter, page)
	if err != nil {
		statusCode := MapErrorToStatusCode(err)
		safeMessage := GetSafeErrorMessage(err)
		shared.RespondWithErrorAndLog(w, r, statusCode, safeMessage, err)
		return
	}

	summaries := make([]JobSummary, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, jobToSummary(job))
	}

	pageNumber := page.Number
	if pageNumber < 1 {
		pageNumber = 1
	}

	shared.RespondWithJSON(w, r, http.StatusOK, JobListResponse{
		Jobs:       summaries,
		Page:       pageNumber,
		PageSize:   page.Limit(),
		TotalCount: total,
	})
}

// CancelJob handles POST /jobs/{id}/cancel requests.
// Only jobs no worker has claimed yet can be cancelled; anything already
// running or finished gets 409 with the job's current status in the
// message.
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	// Get logger from context or use default
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	jobID, err := getPathUUID(r, "id")
	if err != nil {
		log.Warn("invalid job ID in path", slog.String("error", err.Error()))
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	job, err := h.jobService.CancelJob(r.Context(), jobID)
	if err != nil {
		statusCode := MapErrorToStatusCode(err)
		safeMessage := GetSafeErrorMessage(err)
		shared.RespondWithErrorAndLog(w, r, statusCode, safeMessage, err)
		return
	}

	log.Debug("job cancelled", slog.String("job_id", job.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

// ListJobTypes handles GET /jobs/types requests.
// It returns every registered job type with its payload schema and
// execution defaults so clients can discover what they may submit.
func (h *JobHandler) ListJobTypes(w http.ResponseWriter, r *http.Request) {
	definitions := h.jobService.JobTypes()

	responses := make([]JobTypeResponse, 0, len(definitions))
	for _, def := range definitions {
		responses = append(responses, jobTypeToResponse(def))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// GetQueueStats handles GET /jobs/stats requests.
func (h *JobHandler) GetQueueStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.jobService.CountByStatus(r.Context())
	if err != nil {
		statusCode := MapErrorToStatusCode(err)
		safeMessage := GetSafeErrorMessage(err)
		shared.RespondWithErrorAndLog(w, r, statusCode, safeMessage, err)
		return
	}

	statuses := make(map[string]int, len(counts))
	total := 0
	for status, count := range counts {
		statuses[status.String()] = count
		total += count
	}

	shared.RespondWithJSON(w, r, http.StatusOK, QueueStatsResponse{
		Statuses: statuses,
		Total:    total,
	})
}

// parseListJobsQuery builds the store filter and page from the list
// endpoint's query string. Status values may repeat or arrive
// comma-separated; times are RFC 3339. Out-of-range page values are left
// for the store to clamp.
func parseListJobsQuery(r *http.Request) (store.JobFilter, store.Page, error) {
	var filter store.JobFilter
	var page store.Page

	query := r.URL.Query()

	for _, raw := range query["status"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			status := domain.JobStatus(part)
			if !validStatusFilter(status) {
				return filter, page, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidFormat, part)
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	filter.JobType = query.Get("job_type")
	filter.ScopeID = query.Get("scope_id")

	if v := query.Get("created_after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, page, fmt.Errorf("%w: created_after must be RFC 3339", domain.ErrInvalidFormat)
		}
		filter.CreatedAfter = &t
	}
	if v := query.Get("created_before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, page, fmt.Errorf("%w: created_before must be RFC 3339", domain.ErrInvalidFormat)
		}
		filter.CreatedBefore = &t
	}

	if v := query.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, page, fmt.Errorf("%w: page must be an integer", domain.ErrInvalidFormat)
		}
		page.Number = n
	}
	if v := query.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, page, fmt.Errorf("%w: page_size must be an integer", domain.ErrInvalidFormat)
		}
		page.Size = n
	}

	return filter, page, nil
}

// validStatusFilter reports whether the value names a known job status.
func validStatusFilter(status domain.JobStatus) bool {
	for _, s := range domain.AllJobStatuses {
		if s == status {
			return true
		}
	}
	return false
}
