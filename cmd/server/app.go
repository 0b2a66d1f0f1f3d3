package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/golem-api/internal/config"
	"github.com/phrazzld/golem-api/internal/events"
	"github.com/phrazzld/golem-api/internal/platform/sqlstore"
	"github.com/phrazzld/golem-api/internal/service"
	"github.com/phrazzld/golem-api/internal/store"
	"github.com/phrazzld/golem-api/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	// Configuration
	config *config.Config

	// Core services
	logger *slog.Logger
	db     *sql.DB

	// Job system
	jobStore store.JobStore
	registry *task.Registry

	// Service interfaces
	jobService service.JobService

	// Event system
	eventEmitter events.EventEmitter

	// Background processing. Either may be nil when disabled by
	// configuration (an API-only node runs neither).
	runner *task.Runner
	reaper *task.Reaper
}

// newApplication creates a new application instance with all dependencies initialized.
// It accepts core dependencies like configuration, logger, and database connection that
// must be established before application initialization.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *sql.DB,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	// Initialize the job store
	app.jobStore = sqlstore.NewSQLJobStore(db, logger)

	// Register job types. Every type must be known before the service
	// accepts submissions or the runner claims work.
	app.registry = task.NewRegistry()
	if err := registerJobTypes(app.registry, cfg, logger); err != nil {
		return nil, err
	}

	// Initialize event emitter
	app.eventEmitter = events.NewInMemoryEventEmitter(logger)

	// Initialize job service
	var err error
	app.jobService, err = service.NewJobService(app.jobStore, app.registry, app.eventEmitter, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create job service: %w", err)
	}

	// Initialize background processing
	if cfg.Worker.Enabled {
		if err := setupRunner(app); err != nil {
			return nil, err
		}
	} else {
		logger.Info("Job runner disabled, this node only accepts and serves jobs")
	}

	if cfg.Reaper.Enabled {
		if err := setupReaper(app); err != nil {
			return nil, err
		}
	} else {
		logger.Info("Reaper disabled, stuck jobs will not be recovered by this node")
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

// registerJobTypes installs every job type this server executes. Types
// that do not declare their own retry tuning inherit the process-wide
// defaults from configuration.
func registerJobTypes(registry *task.Registry, cfg *config.Config, logger *slog.Logger) error {
	definitions := []task.Definition{
		task.EchoDefinition(),
	}

	for _, def := range definitions {
		if def.MaxRetries == 0 {
			def.MaxRetries = cfg.Retry.MaxRetries
		}
		if def.RetryBaseDelay <= 0 {
			def.RetryBaseDelay = cfg.Retry.BaseDelay
		}
		if err := registry.Register(def); err != nil {
			return fmt.Errorf("failed to register job type %q: %w", def.Type, err)
		}
	}

	logger.Info("Job types registered", "types", registry.Types())
	return nil
}

// setupRunner initializes and starts the background job runner, and
// registers the submission event handler that wakes it early when new
// work arrives.
func setupRunner(app *application) error {
	executor := task.NewExecutor(app.registry, app.jobStore, app.config.Retry.MaxDelay, app.logger)

	app.runner = task.NewRunner(app.jobStore, app.registry, executor, task.RunnerConfig{
		WorkerID:          app.config.Worker.ID,
		Concurrency:       app.config.Worker.Concurrency,
		PollInterval:      app.config.Worker.PollInterval,
		HeartbeatInterval: app.config.Worker.HeartbeatInterval,
	}, app.logger)

	// Submissions nudge the claim loop so queued jobs start within
	// milliseconds instead of waiting out a poll interval.
	if emitter, ok := app.eventEmitter.(*events.InMemoryEventEmitter); ok {
		emitter.RegisterHandler(task.NewSubmissionEventHandler(app.runner, app.logger))
	} else {
		return fmt.Errorf("unexpected event emitter type %T, cannot register submission handler", app.eventEmitter)
	}

	if err := app.runner.Start(); err != nil {
		return fmt.Errorf("failed to start job runner: %w", err)
	}

	app.logger.Info("Job runner started",
		"worker_id", app.runner.WorkerID(),
		"concurrency", app.config.Worker.Concurrency)
	return nil
}

// setupReaper initializes and starts the background cleanup sweeps.
func setupReaper(app *application) error {
	reaper, err := task.NewReaper(app.jobStore, task.ReaperConfig{
		SweepSchedule:  fmt.Sprintf("@every %s", app.config.Reaper.Interval),
		HeartbeatGrace: app.config.Reaper.HeartbeatGrace,
		Retention:      app.config.Reaper.Retention,
		BatchSize:      app.config.Reaper.SweepLimit,
		MaxRetryDelay:  app.config.Retry.MaxDelay,
	}, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create reaper: %w", err)
	}

	if err := reaper.Start(); err != nil {
		return fmt.Errorf("failed to start reaper: %w", err)
	}

	app.reaper = reaper
	app.logger.Info("Reaper started",
		"interval", app.config.Reaper.Interval,
		"heartbeat_grace", app.config.Reaper.HeartbeatGrace,
		"retention", app.config.Reaper.Retention)
	return nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup handles graceful shutdown of application resources. The order
// matters: the runner finishes or abandons in-flight jobs first, then
// the reaper stops, then the database closes under nothing's feet.
func (app *application) cleanup(ctx context.Context) {
	if app.runner != nil {
		app.runner.Stop(ctx)
	}

	if app.reaper != nil {
		app.reaper.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
