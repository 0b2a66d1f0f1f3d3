// Package main implements the entry point for the golem API server,
// which accepts browser-automation jobs over HTTP, queues them durably,
// and executes them in the background with progress reporting and
// automatic retries.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/phrazzld/golem-api/internal/config"
	"github.com/phrazzld/golem-api/internal/platform/logger"
)

func main() {
	migrateCmd := flag.String("migrate", "", "run a migration command (up, down, status, version) and exit")
	flag.Parse()

	if err := run(*migrateCmd); err != nil {
		log.Fatalf("golem-api: %v", err)
	}
}

// run loads configuration, wires the application, and either applies
// migrations or serves until a shutdown signal arrives.
func run(migrateCmd string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Set up structured logging using the configured log level. Setup
	// installs the logger as the slog default as well.
	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	slog.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"database", maskDatabaseURL(cfg.Database.URL),
		"worker_enabled", cfg.Worker.Enabled,
		"reaper_enabled", cfg.Reaper.Enabled)

	if migrateCmd != "" {
		return runMigrations(cfg, appLogger, migrateCmd)
	}

	db, err := setupAppDatabase(cfg, appLogger)
	if err != nil {
		return err
	}

	// Schema migrations apply automatically on startup so a fresh
	// deployment is usable without a separate migration step.
	if err := migrateUp(db, cfg, appLogger); err != nil {
		closeDatabase(db, appLogger)
		return err
	}

	ctx := context.Background()
	app, err := newApplication(ctx, cfg, appLogger, db)
	if err != nil {
		closeDatabase(db, appLogger)
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return app.Run(ctx)
}

// closeDatabase closes the pool, logging rather than failing on error.
// Used on early-exit paths before the application owns the connection.
func closeDatabase(db interface{ Close() error }, logger *slog.Logger) {
	if err := db.Close(); err != nil {
		logger.Error("Error closing database connection", "error", err)
	}
}

// Ensure log flags don't decorate fatal output; slog handles formatting.
func init() {
	log.SetFlags(0)
	log.SetOutput(os.Stderr)
}
