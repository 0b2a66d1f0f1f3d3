package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/phrazzld/golem-api/internal/domain"
	"github.com/phrazzld/golem-api/internal/store"
)

// scheduleParser accepts standard 5-field cron expressions and
// descriptors like "@every 30s" or "@hourly".
var scheduleParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ReaperConfig holds configuration for the background sweep.
type ReaperConfig struct {
	// SweepSchedule is a cron expression controlling when sweeps run.
	// Descriptors are accepted, so "@every 30s" works alongside
	// "*/5 * * * *". Note that "@every" rounds sub-second durations up
	// to one second.
	SweepSchedule string

	// HeartbeatGrace is how long an in_progress job may go without a
	// heartbeat before its worker is presumed dead. Must comfortably
	// exceed the runner's heartbeat interval.
	HeartbeatGrace time.Duration

	// Retention is how long terminal jobs are kept before deletion.
	Retention time.Duration

	// BatchSize bounds how many jobs each sweep pass reclaims.
	BatchSize int

	// MaxRetryDelay caps the backoff applied when a reclaimed job is
	// requeued for retry.
	MaxRetryDelay time.Duration
}

// DefaultReaperConfig returns a ReaperConfig with reasonable defaults.
func DefaultReaperConfig() ReaperConfig {
	return ReaperConfig{
		SweepSchedule:  "@every 30s",
		HeartbeatGrace: 90 * time.Second,
		Retention:      7 * 24 * time.Hour,
		BatchSize:      100,
		MaxRetryDelay:  DefaultMaxRetryDelay,
	}
}

// SweepStats reports what one sweep changed.
type SweepStats struct {
	StalledRequeued  int
	StalledFailed    int
	OrphanedRequeued int
	OrphanedFailed   int
	Deleted          int64
}

// Total returns the number of jobs the sweep touched.
func (s SweepStats) Total() int64 {
	return int64(s.StalledRequeued+s.StalledFailed+s.OrphanedRequeued+s.OrphanedFailed) + s.Deleted
}

// Reaper periodically reclaims jobs that stopped making progress and
// deletes expired terminal ones. It is the sole recovery path for jobs
// owned by crashed workers: a stalled job (execution deadline passed)
// or an orphaned job (heartbeat gone quiet) is treated as a TIMEOUT
// failure and routed through the retry policy, back to pending when
// retry budget remains and to failed otherwise. Every write is
// conditional on the ownership the sweep observed, so a worker that is
// merely slow and settles its own job first wins the race cleanly.
type Reaper struct {
	store    store.JobStore
	config   ReaperConfig
	schedule cronlib.Schedule
	logger   *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewReaper creates a reaper. Zero-valued config fields are filled from
// DefaultReaperConfig. Returns an error if the sweep schedule does not
// parse.
func NewReaper(jobStore store.JobStore, config ReaperConfig, logger *slog.Logger) (*Reaper, error) {
	if jobStore == nil {
		panic("job store cannot be nil")
	}

	defaults := DefaultReaperConfig()
	if config.SweepSchedule == "" {
		config.SweepSchedule = defaults.SweepSchedule
	}
	if config.HeartbeatGrace <= 0 {
		config.HeartbeatGrace = defaults.HeartbeatGrace
	}
	if config.Retention <= 0 {
		config.Retention = defaults.Retention
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxRetryDelay <= 0 {
		config.MaxRetryDelay = defaults.MaxRetryDelay
	}

	schedule, err := scheduleParser.Parse(config.SweepSchedule)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", config.SweepSchedule, err)
	}

	return &Reaper{
		store:    jobStore,
		config:   config,
		schedule: schedule,
		logger:   logger.With(slog.String("component", "reaper")),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start launches the sweep goroutine and returns immediately.
func (rp *Reaper) Start() error {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.running {
		return nil
	}
	rp.running = true

	rp.logger.Info("reaper starting",
		slog.String("sweep_schedule", rp.config.SweepSchedule),
		slog.Duration("heartbeat_grace", rp.config.HeartbeatGrace),
		slog.Duration("retention", rp.config.Retention))

	rp.wg.Add(1)
	go rp.loop()

	return nil
}

// Stop halts the sweep goroutine and waits for an in-flight sweep to end.
func (rp *Reaper) Stop() {
	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = false
	rp.mu.Unlock()

	close(rp.stopCh)
	rp.wg.Wait()
	rp.logger.Info("reaper stopped")
}

func (rp *Reaper) loop() {
	defer rp.wg.Done()

	for {
		now := time.Now()
		timer := time.NewTimer(rp.schedule.Next(now).Sub(now))

		select {
		case <-rp.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			stats, err := rp.Sweep(context.Background())
			if err != nil {
				rp.logger.Error("sweep failed", slog.String("error", err.Error()))
			}
			if stats.Total() > 0 {
				rp.logger.Info("sweep reclaimed jobs",
					slog.Int("stalled_requeued", stats.StalledRequeued),
					slog.Int("stalled_failed", stats.StalledFailed),
					slog.Int("orphaned_requeued", stats.OrphanedRequeued),
					slog.Int("orphaned_failed", stats.OrphanedFailed),
					slog.Int64("deleted", stats.Deleted))
			}
		}
	}
}

// Sweep runs the three passes once: stalled jobs, orphaned jobs, and
// retention deletes. The passes are independent and run concurrently;
// a job showing up as both stalled and orphaned is settled by whichever
// pass reaches it first, and the other loses the conditional update and
// skips it. Returns the first pass-level error after all passes finish.
func (rp *Reaper) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	now := time.Now().UTC()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		stalled, err := rp.store.StalledJobs(ctx, rp.config.BatchSize)
		if err != nil {
			rp.logger.Error("listing stalled jobs failed", slog.String("error", err.Error()))
			return err
		}
		for _, job := range stalled {
			switch rp.reclaim(ctx, job, "execution deadline exceeded") {
			case reclaimRequeued:
				stats.StalledRequeued++
			case reclaimFailed:
				stats.StalledFailed++
			}
		}
		return nil
	})

	g.Go(func() error {
		heartbeatCutoff := now.Add(-rp.config.HeartbeatGrace)
		orphaned, err := rp.store.OrphanedJobs(ctx, heartbeatCutoff, rp.config.BatchSize)
		if err != nil {
			rp.logger.Error("listing orphaned jobs failed", slog.String("error", err.Error()))
			return err
		}
		for _, job := range orphaned {
			switch rp.reclaim(ctx, job, "worker stopped heartbeating and is presumed dead") {
			case reclaimRequeued:
				stats.OrphanedRequeued++
			case reclaimFailed:
				stats.OrphanedFailed++
			}
		}
		return nil
	})

	g.Go(func() error {
		deleted, err := rp.store.DeleteExpired(ctx, now.Add(-rp.config.Retention))
		if err != nil {
			rp.logger.Error("deleting expired jobs failed", slog.String("error", err.Error()))
			return err
		}
		stats.Deleted = deleted
		return nil
	})

	err := g.Wait()
	return stats, err
}

type reclaimOutcome int

const (
	reclaimSkipped reclaimOutcome = iota
	reclaimRequeued
	reclaimFailed
)

// reclaim takes one stuck in_progress job away from its presumed-dead
// owner, treating the stall as a TIMEOUT failure: requeue with backoff
// while retry budget remains, terminal failed otherwise. The write is
// keyed on the owner observed in the listing, so losing the update to
// the real worker, or to the other sweep pass, just means skipping.
func (rp *Reaper) reclaim(ctx context.Context, job *domain.Job, cause string) reclaimOutcome {
	logger := rp.logger.With(
		slog.String("job_id", job.ID.String()),
		slog.String("job_type", job.JobType),
		slog.Int("retry_count", job.RetryCount))

	if job.OwnerWorkerID == nil || *job.OwnerWorkerID == "" {
		logger.Error("in_progress job has no owner, skipping")
		return reclaimSkipped
	}
	owner := *job.OwnerWorkerID

	if job.RetryCount < job.MaxRetries {
		retry := job.RetryCount + 1
		delay := RetryDelay(job.RetryBaseDelay, retry, rp.config.MaxRetryDelay)
		nextRetryAt := time.Now().UTC().Add(delay)

		err := rp.store.Reschedule(ctx, job.ID, owner, nextRetryAt)
		if err == nil {
			logger.Info("requeued stuck job",
				slog.String("cause", cause),
				slog.String("owner", owner),
				slog.Duration("retry_delay", delay))
			return reclaimRequeued
		}
		if store.IsConflictError(err) {
			logger.Debug("stuck job settled by its owner first")
			return reclaimSkipped
		}
		logger.Error("failed to requeue stuck job", slog.String("error", err.Error()))
		return reclaimSkipped
	}

	jobErr := domain.JobError{Code: domain.ErrorCodeTimeout, Message: cause}
	err := rp.store.Fail(ctx, job.ID, owner, domain.JobStatusFailed, jobErr)
	if err == nil {
		logger.Error("failed stuck job with no retry budget left",
			slog.String("cause", cause),
			slog.String("owner", owner))
		return reclaimFailed
	}
	if store.IsConflictError(err) {
		logger.Debug("stuck job settled by its owner first")
		return reclaimSkipped
	}
	logger.Error("failed to mark stuck job failed", slog.String("error", err.Error()))
	return reclaimSkipped
}
