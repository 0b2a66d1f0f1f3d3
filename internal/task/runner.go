package task

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/golem-api/internal/domain"
	"github.com/phrazzld/golem-api/internal/store"
)

// RunnerConfig holds configuration for the job runner.
type RunnerConfig struct {
	// WorkerID identifies this process in job ownership records. Must be
	// unique per running instance; left empty, NewRunner generates one.
	WorkerID string

	// Concurrency determines how many jobs may execute at once. Each
	// running job holds significant external resources, so this stays
	// small.
	Concurrency int

	// PollInterval is how long an idle worker waits before asking the
	// store for claimable work again. Submissions nudge workers awake
	// sooner.
	PollInterval time.Duration

	// HeartbeatInterval is how often liveness stamps are refreshed for
	// running jobs. Keep it well under the reaper's orphan cutoff.
	HeartbeatInterval time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Concurrency:       4,
		PollInterval:      2 * time.Second,
		HeartbeatInterval: 15 * time.Second,
	}
}

// Runner claims pending jobs from the store and executes them. Any
// number of runners may point at the same database; the store's
// conditional claim guarantees each job runs under exactly one owner at
// a time, so runners never coordinate with each other directly. A
// Runner is started once and cannot be reused after Stop.
type Runner struct {
	store    store.JobStore
	registry *Registry
	executor *Executor
	config   RunnerConfig
	logger   *slog.Logger

	nudge       chan struct{}
	stopCh      chan struct{}
	workersDone chan struct{}
	workerWg    sync.WaitGroup
	wg          sync.WaitGroup

	mu      sync.Mutex
	running bool

	activeMu sync.Mutex
	active   map[uuid.UUID]context.CancelFunc
}

// NewRunner creates a job runner. The registry supplies per-type
// execution timeouts at claim time; the executor runs the claimed jobs.
func NewRunner(
	jobStore store.JobStore,
	registry *Registry,
	executor *Executor,
	config RunnerConfig,
	logger *slog.Logger,
) *Runner {
	if jobStore == nil {
		panic("job store cannot be nil")
	}
	if registry == nil {
		panic("registry cannot be nil")
	}
	if executor == nil {
		panic("executor cannot be nil")
	}

	defaults := DefaultRunnerConfig()
	if config.WorkerID == "" {
		config.WorkerID = newWorkerID()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaults.HeartbeatInterval
	}

	return &Runner{
		store:    jobStore,
		registry: registry,
		executor: executor,
		config:   config,
		logger: logger.With(
			slog.String("component", "runner"),
			slog.String("worker_id", config.WorkerID),
		),
		nudge:       make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		workersDone: make(chan struct{}),
		active:      make(map[uuid.UUID]context.CancelFunc),
	}
}

// WorkerID returns the identity this runner stamps on claimed jobs.
func (r *Runner) WorkerID() string {
	return r.config.WorkerID
}

// Start launches the worker and heartbeat goroutines and returns
// immediately. Call Stop to shut down.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	r.running = true

	r.logger.Info("runner starting",
		slog.Int("concurrency", r.config.Concurrency),
		slog.Duration("poll_interval", r.config.PollInterval),
		slog.Duration("heartbeat_interval", r.config.HeartbeatInterval))

	for i := 0; i < r.config.Concurrency; i++ {
		r.workerWg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.workerWg.Wait()
		close(r.workersDone)
	}()

	r.wg.Add(1)
	go r.heartbeatLoop()

	return nil
}

// Stop shuts the runner down: workers stop claiming new jobs, and Stop
// waits for running jobs to finish. When ctx expires first, the
// still-running executions are cancelled and their jobs left
// in_progress for the reaper to recover.
func (r *Runner) Stop(ctx context.Context) {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.logger.Info("runner stopping")
	close(r.stopCh)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("runner stopped")
	case <-ctx.Done():
		r.logger.Warn("shutdown grace elapsed, cancelling running jobs")
		r.cancelActive()
		<-done
		r.logger.Info("runner stopped after cancelling jobs")
	}
}

// Nudge wakes an idle worker so a fresh submission gets claimed without
// waiting out the poll interval. Safe to call from any goroutine; the
// nudge is dropped when one is already pending.
func (r *Runner) Nudge() {
	select {
	case r.nudge <- struct{}{}:
	default:
	}
}

// worker claims and executes jobs until the runner stops. After
// finishing a job it immediately looks for another; when the store runs
// dry it sleeps until the next poll tick or nudge.
func (r *Runner) worker(id int) {
	defer r.workerWg.Done()

	logger := r.logger.With(slog.Int("worker", id))
	logger.Debug("starting worker")

	for {
		select {
		case <-r.stopCh:
			logger.Debug("stopping worker")
			return
		default:
		}

		job, err := r.claimNext()
		if err != nil {
			if !store.IsNotFoundError(err) {
				logger.Error("claim pass failed", slog.String("error", err.Error()))
			}
			r.sleep()
			continue
		}
		if job == nil {
			// Lost the claim race; another candidate may be waiting.
			continue
		}

		r.execute(job, logger)
	}
}

// claimNext picks the best claimable candidate and tries to take
// ownership of it. A nil job with a nil error means another worker won
// the race and an immediate retry is worthwhile. ErrJobNotFound means
// the queue is empty.
func (r *Runner) claimNext() (*domain.Job, error) {
	ctx := context.Background()

	candidate, err := r.store.NextClaimable(ctx)
	if err != nil {
		return nil, err
	}

	timeout := DefaultExecutionTimeout
	if def, defErr := r.registry.Get(candidate.JobType); defErr == nil {
		timeout = def.ExecutionTimeout
	}

	if err := r.store.Claim(ctx, candidate.ID, r.config.WorkerID, timeout); err != nil {
		if store.IsConflictError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim job %s: %w", candidate.ID, err)
	}

	// Re-read for the ownership fields the claim just stamped.
	job, err := r.store.GetByID(ctx, candidate.ID)
	if err != nil {
		return nil, fmt.Errorf("load claimed job %s: %w", candidate.ID, err)
	}
	return job, nil
}

// execute runs one claimed job, tracking it for heartbeats and for
// shutdown cancellation. The execution context is deliberately detached
// from the runner's lifecycle so a graceful stop lets jobs finish.
func (r *Runner) execute(job *domain.Job, logger *slog.Logger) {
	execCtx, cancel := context.WithCancel(context.Background())
	r.trackJob(job.ID, cancel)
	defer func() {
		r.untrackJob(job.ID)
		cancel()
	}()

	logger.Info("executing job",
		slog.String("job_id", job.ID.String()),
		slog.String("job_type", job.JobType),
		slog.Int("attempt", job.RetryCount+1))

	if err := r.executor.Execute(execCtx, job, r.config.WorkerID); err != nil {
		logger.Error("job outcome not settled",
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()))
	}
}

// heartbeatLoop refreshes liveness stamps for every running job so the
// reaper can tell a slow job from a dead worker. It runs until the last
// worker exits, which keeps jobs draining through a graceful shutdown
// alive in the store.
func (r *Runner) heartbeatLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.workersDone:
			return
		case <-ticker.C:
			r.sendHeartbeats()
		}
	}
}

func (r *Runner) sendHeartbeats() {
	r.activeMu.Lock()
	ids := make([]uuid.UUID, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	r.activeMu.Unlock()

	ctx := context.Background()
	for _, id := range ids {
		err := r.store.Heartbeat(ctx, id, r.config.WorkerID)
		if err == nil {
			continue
		}
		if store.IsConflictError(err) {
			// Ownership moved; the executor finds out on its next write.
			continue
		}
		r.logger.Warn("heartbeat failed",
			slog.String("job_id", id.String()),
			slog.String("error", err.Error()))
	}
}

// sleep waits out the poll interval, returning early on a nudge or stop.
func (r *Runner) sleep() {
	select {
	case <-time.After(r.config.PollInterval):
	case <-r.nudge:
	case <-r.stopCh:
	}
}

func (r *Runner) trackJob(id uuid.UUID, cancel context.CancelFunc) {
	r.activeMu.Lock()
	r.active[id] = cancel
	r.activeMu.Unlock()
}

func (r *Runner) untrackJob(id uuid.UUID) {
	r.activeMu.Lock()
	delete(r.active, id)
	r.activeMu.Unlock()
}

func (r *Runner) cancelActive() {
	r.activeMu.Lock()
	defer r.activeMu.Unlock()
	for id, cancel := range r.active {
		r.logger.Warn("cancelling running job", slog.String("job_id", id.String()))
		cancel()
	}
}

// newWorkerID builds a process-unique worker identity for ownership
// records, e.g. "host-312-9f3a1c4e".
func newWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}
