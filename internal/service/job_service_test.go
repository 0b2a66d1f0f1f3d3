package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/golem-api/internal/domain"
	"github.com/phrazzld/golem-api/internal/events"
	"github.com/phrazzld/golem-api/internal/platform/memstore"
	"github.com/phrazzld/golem-api/internal/store"
	"github.com/phrazzld/golem-api/internal/task"
)

// MockJobRepository is a mock implementation of the JobRepository
type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) Create(ctx context.Context, job *domain.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *MockJobRepository) List(
	ctx context.Context,
	filter store.JobFilter,
	page store.Page,
) ([]*domain.Job, int, error) {
	args := m.Called(ctx, filter, page)
	jobs, _ := args.Get(0).([]*domain.Job)
	return jobs, args.Int(1), args.Error(2)
}

func (m *MockJobRepository) Cancel(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *MockJobRepository) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	args := m.Called(ctx)
	counts, _ := args.Get(0).(map[domain.JobStatus]int)
	return counts, args.Error(1)
}

// captureEmitter records emitted events and optionally fails.
type captureEmitter struct {
	mu     sync.Mutex
	events []*events.JobEvent
	err    error
}

func (c *captureEmitter) EmitEvent(_ context.Context, event *events.JobEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

func (c *captureEmitter) emitted() []*events.JobEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*events.JobEvent, len(c.events))
	copy(out, c.events)
	return out
}

func serviceTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const syncListingType = "portal.sync_listing"

// newTestRegistry returns a registry with one fully specified job type,
// so every definition default is observable in submitted jobs.
func newTestRegistry(t *testing.T) *task.Registry {
	t.Helper()

	registry := task.NewRegistry()
	require.NoError(t, registry.Register(task.Definition{
		Type: syncListingType,
		Handler: func(_ context.Context, _ *task.Execution) (json.RawMessage, error) {
			return nil, nil
		},
		PayloadSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"listing_id": {"type": "string", "minLength": 1}
			},
			"required": ["listing_id"],
			"additionalProperties": false
		}`),
		ExecutionTimeout:  5 * time.Minute,
		MaxRetries:        2,
		RetryBaseDelay:    2 * time.Second,
		Priority:          3,
		EstimatedDuration: 90 * time.Second,
	}))
	return registry
}

// serviceEnv bundles a service wired to an in-memory store, a real
// registry, and a capturing event emitter.
type serviceEnv struct {
	store    *memstore.Store
	registry *task.Registry
	emitter  *captureEmitter
	service  JobService
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()

	st := memstore.New()
	registry := newTestRegistry(t)
	emitter := &captureEmitter{}

	svc, err := NewJobService(st, registry, emitter, serviceTestLogger())
	require.NoError(t, err)

	return &serviceEnv{store: st, registry: registry, emitter: emitter, service: svc}
}

func TestNewJobService(t *testing.T) {
	st := memstore.New()
	registry := newTestRegistry(t)
	emitter := &captureEmitter{}

	t.Run("creates service with valid dependencies", func(t *testing.T) {
		svc, err := NewJobService(st, registry, emitter, serviceTestLogger())
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("nil logger falls back to default", func(t *testing.T) {
		svc, err := NewJobService(st, registry, emitter, nil)
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("rejects nil dependencies", func(t *testing.T) {
		_, err := NewJobService(nil, registry, emitter, serviceTestLogger())
		assert.Error(t, err)

		_, err = NewJobService(st, nil, emitter, serviceTestLogger())
		assert.Error(t, err)

		_, err = NewJobService(st, registry, nil, serviceTestLogger())
		assert.Error(t, err)
	})
}

func TestSubmitJob(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending job with type defaults", func(t *testing.T) {
		env := newServiceEnv(t)

		result, err := env.service.SubmitJob(ctx, SubmitJobParams{
			JobType: syncListingType,
			Payload: json.RawMessage(`{"listing_id": "lst_42"}`),
			ScopeID: "tenant-7",
		})
		require.NoError(t, err)
		require.NotNil(t, result.Job)
		assert.Equal(t, 90*time.Second, result.EstimatedDuration)

		saved, err := env.store.GetByID(ctx, result.Job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusPending, saved.Status)
		assert.Equal(t, syncListingType, saved.JobType)
		assert.Equal(t, 3, saved.Priority)
		assert.Equal(t, 2, saved.MaxRetries)
		assert.Equal(t, 2*time.Second, saved.RetryBaseDelay)
		assert.Equal(t, "tenant-7", saved.ScopeID)
		assert.NotEmpty(t, saved.DisplayID)
		assert.Nil(t, saved.OwnerWorkerID)
	})

	t.Run("explicit options override type defaults", func(t *testing.T) {
		env := newServiceEnv(t)

		priority := 9
		noRetries := 0
		result, err := env.service.SubmitJob(ctx, SubmitJobParams{
			JobType:    syncListingType,
			Payload:    json.RawMessage(`{"listing_id": "lst_43"}`),
			Priority:   &priority,
			MaxRetries: &noRetries,
			Metadata:   json.RawMessage(`{"source": "bulk-import"}`),
		})
		require.NoError(t, err)

		saved, err := env.store.GetByID(ctx, result.Job.ID)
		require.NoError(t, err)
		assert.Equal(t, 9, saved.Priority)
		assert.Equal(t, 0, saved.MaxRetries)
		assert.JSONEq(t, `{"source": "bulk-import"}`, string(saved.Metadata))
	})

	t.Run("emits submission event", func(t *testing.T) {
		env := newServiceEnv(t)

		result, err := env.service.SubmitJob(ctx, SubmitJobParams{
			JobType: syncListingType,
			Payload: json.RawMessage(`{"listing_id": "lst_44"}`),
		})
		require.NoError(t, err)

		emitted := env.emitter.emitted()
		require.Len(t, emitted, 1)
		assert.Equal(t, events.KindJobSubmitted, emitted[0].Kind)
		assert.Equal(t, result.Job.ID, emitted[0].JobID)
		assert.Equal(t, syncListingType, emitted[0].JobType)
	})

	t.Run("emit failure does not fail the submission", func(t *testing.T) {
		st := memstore.New()
		emitter := &captureEmitter{err: errors.New("bus is down")}
		svc, err := NewJobService(st, newTestRegistry(t), emitter, serviceTestLogger())
		require.NoError(t, err)

		result, err := svc.SubmitJob(ctx, SubmitJobParams{
			JobType: syncListingType,
			Payload: json.RawMessage(`{"listing_id": "lst_45"}`),
		})
		require.NoError(t, err)

		// The row is durable even though the nudge was lost.
		_, err = st.GetByID(ctx, result.Job.ID)
		require.NoError(t, err)
	})

	t.Run("unknown job type creates no row", func(t *testing.T) {
		env := newServiceEnv(t)

		_, err := env.service.SubmitJob(ctx, SubmitJobParams{
			JobType: "portal.not_a_thing",
			Payload: json.RawMessage(`{}`),
		})
		assert.ErrorIs(t, err, task.ErrUnknownJobType)

		counts, err := env.store.CountByStatus(ctx)
		require.NoError(t, err)
		assert.Zero(t, counts[domain.JobStatusPending])
		assert.Empty(t, env.emitter.emitted())
	})

	t.Run("schema violation creates no row", func(t *testing.T) {
		env := newServiceEnv(t)

		_, err := env.service.SubmitJob(ctx, SubmitJobParams{
			JobType: syncListingType,
			Payload: json.RawMessage(`{"listing_id": 42}`),
		})
		assert.ErrorIs(t, err, task.ErrPayloadRejected)

		counts, err := env.store.CountByStatus(ctx)
		require.NoError(t, err)
		assert.Zero(t, counts[domain.JobStatusPending])
	})

	t.Run("malformed payload rejected", func(t *testing.T) {
		env := newServiceEnv(t)

		_, err := env.service.SubmitJob(ctx, SubmitJobParams{
			JobType: syncListingType,
			Payload: json.RawMessage(`{"listing_id": `),
		})
		assert.ErrorIs(t, err, domain.ErrJobPayloadInvalid)
	})

	t.Run("negative retry budget rejected", func(t *testing.T) {
		env := newServiceEnv(t)

		negative := -1
		_, err := env.service.SubmitJob(ctx, SubmitJobParams{
			JobType:    syncListingType,
			Payload:    json.RawMessage(`{"listing_id": "lst_46"}`),
			MaxRetries: &negative,
		})
		assert.ErrorIs(t, err, domain.ErrJobMaxRetriesNegative)
	})

	t.Run("store failure is wrapped", func(t *testing.T) {
		repo := new(MockJobRepository)
		repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection reset"))

		svc, err := NewJobService(repo, newTestRegistry(t), &captureEmitter{}, serviceTestLogger())
		require.NoError(t, err)

		_, err = svc.SubmitJob(ctx, SubmitJobParams{
			JobType: syncListingType,
			Payload: json.RawMessage(`{"listing_id": "lst_47"}`),
		})
		require.Error(t, err)

		var svcErr *JobServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, "submit_job", svcErr.Operation)
		repo.AssertExpectations(t)
	})
}

func TestGetJob(t *testing.T) {
	ctx := context.Background()

	t.Run("returns stored job", func(t *testing.T) {
		env := newServiceEnv(t)

		result, err := env.service.SubmitJob(ctx, SubmitJobParams{
			JobType: syncListingType,
			Payload: json.RawMessage(`{"listing_id": "lst_50"}`),
		})
		require.NoError(t, err)

		job, err := env.service.GetJob(ctx, result.Job.ID)
		require.NoError(t, err)
		assert.Equal(t, result.Job.ID, job.ID)
		assert.Equal(t, result.Job.DisplayID, job.DisplayID)
	})

	t.Run("missing job maps to service sentinel", func(t *testing.T) {
		env := newServiceEnv(t)

		_, err := env.service.GetJob(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("store failure is wrapped", func(t *testing.T) {
		repo := new(MockJobRepository)
		repo.On("GetByID", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

		svc, err := NewJobService(repo, newTestRegistry(t), &captureEmitter{}, serviceTestLogger())
		require.NoError(t, err)

		_, err = svc.GetJob(ctx, uuid.New())
		var svcErr *JobServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, "get_job", svcErr.Operation)
	})
}

func TestListJobs(t *testing.T) {
	ctx := context.Background()

	t.Run("passes filter through and reports total", func(t *testing.T) {
		env := newServiceEnv(t)

		for _, listing := range []string{"lst_1", "lst_2", "lst_3"} {
			_, err := env.service.SubmitJob(ctx, SubmitJobParams{
				JobType: syncListingType,
				Payload: json.RawMessage(`{"listing_id": "` + listing + `"}`),
			})
			require.NoError(t, err)
		}

		jobs, total, err := env.service.ListJobs(ctx, store.JobFilter{
			Statuses: []domain.JobStatus{domain.JobStatusPending},
		}, store.Page{Number: 1, Size: 2})
		require.NoError(t, err)
		assert.Len(t, jobs, 2)
		assert.Equal(t, 3, total)

		// Newest first.
		assert.True(t, !jobs[0].CreatedAt.Before(jobs[1].CreatedAt))
	})

	t.Run("store failure is wrapped", func(t *testing.T) {
		repo := new(MockJobRepository)
		repo.On("List", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, 0, errors.New("connection reset"))

		svc, err := NewJobService(repo, newTestRegistry(t), &captureEmitter{}, serviceTestLogger())
		require.NoError(t, err)

		_, _, err = svc.ListJobs(ctx, store.JobFilter{}, store.Page{})
		var svcErr *JobServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, "list_jobs", svcErr.Operation)
	})
}

func TestCancelJob(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels pending job and emits event", func(t *testing.T) {
		env := newServiceEnv(t)

		result, err := env.service.SubmitJob(ctx, SubmitJobParams{
			JobType: syncListingType,
			Payload: json.RawMessage(`{"listing_id": "lst_60"}`),
		})
		require.NoError(t, err)

		cancelled, err := env.service.CancelJob(ctx, result.Job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCancelled, cancelled.Status)
		assert.NotNil(t, cancelled.CancelledAt)
		assert.NotNil(t, cancelled.CompletedAt)

		emitted := env.emitter.emitted()
		require.Len(t, emitted, 2)
		assert.Equal(t, events.KindJobCancelled, emitted[1].Kind)
		assert.Equal(t, result.Job.ID, emitted[1].JobID)
	})

	t.Run("claimed job is not cancellable", func(t *testing.T) {
		env := newServiceEnv(t)

		result, err := env.service.SubmitJob(ctx, SubmitJobParams{
			JobType: syncListingType,
			Payload: json.RawMessage(`{"listing_id": "lst_61"}`),
		})
		require.NoError(t, err)
		require.NoError(t, env.store.Claim(ctx, result.Job.ID, "worker-1", time.Minute))

		_, err = env.service.CancelJob(ctx, result.Job.ID)
		assert.ErrorIs(t, err, domain.ErrJobNotCancellable)
		assert.Contains(t, err.Error(), "in_progress")

		// No mutation: the worker still owns the running job.
		current, err := env.store.GetByID(ctx, result.Job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusInProgress, current.Status)
		require.NotNil(t, current.OwnerWorkerID)
		assert.Equal(t, "worker-1", *current.OwnerWorkerID)

		// Only the submission event fired.
		assert.Len(t, env.emitter.emitted(), 1)
	})

	t.Run("terminal job is not cancellable", func(t *testing.T) {
		env := newServiceEnv(t)

		result, err := env.service.SubmitJob(ctx, SubmitJobParams{
			JobType: syncListingType,
			Payload: json.RawMessage(`{"listing_id": "lst_62"}`),
		})
		require.NoError(t, err)
		require.NoError(t, env.store.Claim(ctx, result.Job.ID, "worker-1", time.Minute))
		require.NoError(t, env.store.Complete(ctx, result.Job.ID, "worker-1", json.RawMessage(`{}`)))

		_, err = env.service.CancelJob(ctx, result.Job.ID)
		assert.ErrorIs(t, err, domain.ErrJobNotCancellable)
		assert.Contains(t, err.Error(), "completed")
	})

	t.Run("missing job maps to service sentinel", func(t *testing.T) {
		env := newServiceEnv(t)

		_, err := env.service.CancelJob(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrJobNotFound)
	})
}

func TestJobTypes(t *testing.T) {
	env := newServiceEnv(t)
	env.registry.MustRegister(task.EchoDefinition())

	definitions := env.service.JobTypes()
	require.Len(t, definitions, 2)

	// Sorted by type name.
	assert.Equal(t, task.EchoJobType, definitions[0].Type)
	assert.Equal(t, syncListingType, definitions[1].Type)
	assert.Equal(t, 90*time.Second, definitions[1].EstimatedDuration)
}

func TestCountByStatus(t *testing.T) {
	ctx := context.Background()
	env := newServiceEnv(t)

	for _, listing := range []string{"lst_70", "lst_71"} {
		_, err := env.service.SubmitJob(ctx, SubmitJobParams{
			JobType: syncListingType,
			Payload: json.RawMessage(`{"listing_id": "` + listing + `"}`),
		})
		require.NoError(t, err)
	}

	counts, err := env.service.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[domain.JobStatusPending])
	assert.Zero(t, counts[domain.JobStatusCompleted])
}

