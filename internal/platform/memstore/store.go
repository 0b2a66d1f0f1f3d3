// Package memstore provides a fully in-memory implementation of
// store.JobStore. Safe for concurrent access. Intended for unit testing and
// single-process development runs; it honors the same conditional-update
// semantics as the SQL store, including store.ErrUpdateConflict on lost
// guards, so code exercised against it behaves identically in production.
package memstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/golem-api/internal/domain"
	"github.com/phrazzld/golem-api/internal/store"
)

// Store is an in-memory job store keyed by job ID.
type Store struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*domain.Job
}

// Ensure Store implements store.JobStore at compile time.
var _ store.JobStore = (*Store)(nil)

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs: make(map[uuid.UUID]*domain.Job),
	}
}

// Create saves a new pending job.
func (m *Store) Create(_ context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", store.ErrDuplicate, job.ID)
	}
	for _, existing := range m.jobs {
		if existing.DisplayID == job.DisplayID {
			return fmt.Errorf("%w: %s", store.ErrDisplayIDExists, job.DisplayID)
		}
	}

	m.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetByID retrieves a job by its unique ID.
func (m *Store) GetByID(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return cloneJob(job), nil
}

// List retrieves jobs matching the filter, newest first, with the total
// match count.
func (m *Store) List(
	_ context.Context,
	filter store.JobFilter,
	page store.Page,
) ([]*domain.Job, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]*domain.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if !matchesFilter(job, filter) {
			continue
		}
		matches = append(matches, job)
	}

	sort.Slice(matches, func(i, k int) bool {
		return matches[i].CreatedAt.After(matches[k].CreatedAt)
	})

	total := len(matches)
	offset := page.Offset()
	if offset > total {
		offset = total
	}
	end := offset + page.Limit()
	if end > total {
		end = total
	}

	result := make([]*domain.Job, 0, end-offset)
	for _, job := range matches[offset:end] {
		result = append(result, cloneJob(job))
	}
	return result, total, nil
}

// NextClaimable returns the best claim candidate: unowned, claimable, retry
// delay elapsed; priority DESC then createdAt ASC.
func (m *Store) NextClaimable(_ context.Context) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now().UTC()

	var candidates []*domain.Job
	for _, job := range m.jobs {
		if !job.Status.IsClaimable() || job.OwnerWorkerID != nil {
			continue
		}
		if job.NextRetryAt != nil && job.NextRetryAt.After(now) {
			continue
		}
		candidates = append(candidates, job)
	}
	if len(candidates) == 0 {
		return nil, store.ErrJobNotFound
	}

	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].Priority != candidates[k].Priority {
			return candidates[i].Priority > candidates[k].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[k].CreatedAt)
	})

	return cloneJob(candidates[0]), nil
}

// Claim atomically takes ownership of the job for workerID.
func (m *Store) Claim(
	_ context.Context,
	id uuid.UUID,
	workerID string,
	timeout time.Duration,
) error {
	if workerID == "" {
		return fmt.Errorf("%w: worker ID cannot be empty", store.ErrInvalidEntity)
	}
	if timeout <= 0 {
		return fmt.Errorf("%w: claim timeout must be positive", store.ErrInvalidEntity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok || !job.Status.IsClaimable() || job.OwnerWorkerID != nil {
		return store.ErrUpdateConflict
	}

	now := time.Now().UTC()
	timeoutAt := now.Add(timeout)
	started := now
	heartbeat := now

	job.Status = domain.JobStatusInProgress
	job.OwnerWorkerID = &workerID
	job.StartedAt = &started
	job.TimeoutAt = &timeoutAt
	job.HeartbeatAt = &heartbeat
	job.NextRetryAt = nil
	job.UpdatedAt = now
	return nil
}

// UpdateProgress writes a progress snapshot, owner-guarded. Progress writes
// double as heartbeats.
func (m *Store) UpdateProgress(
	_ context.Context,
	id uuid.UUID,
	workerID string,
	progress domain.Progress,
) error {
	if err := progress.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.owned(id, workerID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	job.Progress = progress
	job.HeartbeatAt = &now
	job.UpdatedAt = now
	return nil
}

// Heartbeat refreshes the liveness stamp for an owned in_progress job.
func (m *Store) Heartbeat(_ context.Context, id uuid.UUID, workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.owned(id, workerID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	job.HeartbeatAt = &now
	job.UpdatedAt = now
	return nil
}

// Complete records the job's result and moves it to completed.
func (m *Store) Complete(
	_ context.Context,
	id uuid.UUID,
	workerID string,
	result json.RawMessage,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.owned(id, workerID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	job.Status = domain.JobStatusCompleted
	job.Result = cloneRaw(result)
	job.OwnerWorkerID = nil
	job.TimeoutAt = nil
	job.HeartbeatAt = nil
	job.CompletedAt = &now
	job.UpdatedAt = now
	return nil
}

// Fail moves an owned job to a terminal failure status.
func (m *Store) Fail(
	_ context.Context,
	id uuid.UUID,
	workerID string,
	status domain.JobStatus,
	jobErr domain.JobError,
) error {
	if status != domain.JobStatusFailed && status != domain.JobStatusTimedOut {
		return fmt.Errorf("%w: %s is not a failure status", domain.ErrJobStatusInvalid, status)
	}
	if jobErr.Code == "" {
		return fmt.Errorf("%w: job error code is required", store.ErrInvalidEntity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.owned(id, workerID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	job.Status = status
	job.Error = &domain.JobError{Code: jobErr.Code, Message: jobErr.Message}
	job.OwnerWorkerID = nil
	job.TimeoutAt = nil
	job.HeartbeatAt = nil
	job.CompletedAt = &now
	job.UpdatedAt = now
	return nil
}

// Reschedule requeues an owned job for retry.
func (m *Store) Reschedule(
	_ context.Context,
	id uuid.UUID,
	workerID string,
	nextRetryAt time.Time,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.owned(id, workerID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	next := nextRetryAt.UTC()
	job.Status = domain.JobStatusPending
	job.RetryCount++
	job.NextRetryAt = &next
	job.OwnerWorkerID = nil
	job.TimeoutAt = nil
	job.HeartbeatAt = nil
	job.Progress = domain.Progress{}
	job.UpdatedAt = now
	return nil
}

// Cancel moves a still-unclaimed job to cancelled.
func (m *Store) Cancel(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	if !job.Status.IsClaimable() || job.OwnerWorkerID != nil {
		return nil, fmt.Errorf("%w: job is %s", domain.ErrJobNotCancellable, job.Status)
	}

	now := time.Now().UTC()
	job.Status = domain.JobStatusCancelled
	job.CancelledAt = &now
	job.CompletedAt = &now
	job.UpdatedAt = now
	return cloneJob(job), nil
}

// StalledJobs returns in_progress jobs whose deadline has passed.
func (m *Store) StalledJobs(_ context.Context, limit int) ([]*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now().UTC()

	result := []*domain.Job{}
	for _, job := range m.jobs {
		if job.Status != domain.JobStatusInProgress {
			continue
		}
		if job.TimeoutAt == nil || job.TimeoutAt.After(now) {
			continue
		}
		result = append(result, cloneJob(job))
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].TimeoutAt.Before(*result[k].TimeoutAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// OrphanedJobs returns in_progress jobs whose heartbeat is older than the
// cutoff.
func (m *Store) OrphanedJobs(
	_ context.Context,
	heartbeatCutoff time.Time,
	limit int,
) ([]*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := heartbeatCutoff.UTC()

	result := []*domain.Job{}
	for _, job := range m.jobs {
		if job.Status != domain.JobStatusInProgress {
			continue
		}
		if job.HeartbeatAt != nil && job.HeartbeatAt.After(cutoff) {
			continue
		}
		if job.StartedAt == nil || job.StartedAt.After(cutoff) {
			continue
		}
		result = append(result, cloneJob(job))
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].StartedAt.Before(*result[k].StartedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// DeleteExpired removes terminal jobs that completed before the cutoff.
func (m *Store) DeleteExpired(_ context.Context, completedBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := completedBefore.UTC()

	var deleted int64
	for id, job := range m.jobs {
		if job.CompletedAt == nil || job.CompletedAt.After(cutoff) {
			continue
		}
		delete(m.jobs, id)
		deleted++
	}
	return deleted, nil
}

// CountByStatus returns the number of jobs per status, including zero
// entries for statuses with no jobs.
func (m *Store) CountByStatus(_ context.Context) (map[domain.JobStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[domain.JobStatus]int, len(domain.AllJobStatuses))
	for _, status := range domain.AllJobStatuses {
		counts[status] = 0
	}
	for _, job := range m.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

// WithTx returns the store itself: the in-memory store has no transactions,
// and each operation is already atomic under the mutex.
func (m *Store) WithTx(_ *sql.Tx) store.JobStore {
	return m
}

// owned returns the mutable job record if workerID currently owns it.
// Callers must hold the write lock.
func (m *Store) owned(id uuid.UUID, workerID string) (*domain.Job, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrUpdateConflict
	}
	if job.Status != domain.JobStatusInProgress {
		return nil, store.ErrUpdateConflict
	}
	if job.OwnerWorkerID == nil || *job.OwnerWorkerID != workerID {
		return nil, store.ErrUpdateConflict
	}
	return job, nil
}

// matchesFilter reports whether the job passes every set filter field.
func matchesFilter(job *domain.Job, filter store.JobFilter) bool {
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if job.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.JobType != "" && job.JobType != filter.JobType {
		return false
	}
	if filter.ScopeID != "" && job.ScopeID != filter.ScopeID {
		return false
	}
	if filter.CreatedAfter != nil && job.CreatedAt.Before(*filter.CreatedAfter) {
		return false
	}
	if filter.CreatedBefore != nil && !job.CreatedAt.Before(*filter.CreatedBefore) {
		return false
	}
	return true
}

// cloneJob deep-copies a job so callers can mutate the returned value
// without racing with, or corrupting, the store's own record.
func cloneJob(job *domain.Job) *domain.Job {
	cp := *job
	cp.Payload = cloneRaw(job.Payload)
	cp.Result = cloneRaw(job.Result)
	cp.Metadata = cloneRaw(job.Metadata)
	if job.Error != nil {
		errCopy := *job.Error
		cp.Error = &errCopy
	}
	if job.OwnerWorkerID != nil {
		owner := *job.OwnerWorkerID
		cp.OwnerWorkerID = &owner
	}
	cp.NextRetryAt = cloneTime(job.NextRetryAt)
	cp.StartedAt = cloneTime(job.StartedAt)
	cp.CompletedAt = cloneTime(job.CompletedAt)
	cp.CancelledAt = cloneTime(job.CancelledAt)
	cp.TimeoutAt = cloneTime(job.TimeoutAt)
	cp.HeartbeatAt = cloneTime(job.HeartbeatAt)
	return &cp
}

func cloneRaw(doc json.RawMessage) json.RawMessage {
	if doc == nil {
		return nil
	}
	cp := make(json.RawMessage, len(doc))
	copy(cp, doc)
	return cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
