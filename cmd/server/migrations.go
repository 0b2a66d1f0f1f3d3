package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/phrazzld/golem-api/db"
	"github.com/phrazzld/golem-api/internal/config"
)

// migrationTableName keeps goose's bookkeeping table clearly namespaced.
const migrationTableName = "golem_schema_migrations"

// slogGooseLogger adapts the goose logger interface to use slog
type slogGooseLogger struct{}

// Printf implements the goose.Logger Printf method by forwarding messages to slog.Info
func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	slog.Info(fmt.Sprintf(format, v...))
}

// Fatalf implements the goose.Logger Fatalf method by forwarding error messages to slog.Error
// Note: Unlike the standard Fatalf behavior, this does NOT call os.Exit
// to allow main to handle application exit consistently
func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	slog.Error(fmt.Sprintf(format, v...))
}

// configureGoose points goose at the embedded migration scripts and the
// dialect matching the configured database backend.
func configureGoose(dialect string) error {
	goose.SetLogger(&slogGooseLogger{})
	goose.SetBaseFS(db.Migrations)
	goose.SetTableName(migrationTableName)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set migration dialect %q: %w", dialect, err)
	}
	return nil
}

// migrateUp applies all pending migrations. Called on every startup so a
// fresh database is schema-complete before the first request.
func migrateUp(sqlDB *sql.DB, cfg *config.Config, logger *slog.Logger) error {
	target, err := resolveDatabaseURL(cfg.Database.URL)
	if err != nil {
		return err
	}
	if err := configureGoose(target.dialect); err != nil {
		return err
	}

	start := time.Now()
	if err := goose.Up(sqlDB, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, err := goose.GetDBVersion(sqlDB)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	logger.Info("Database migrations applied",
		"version", version,
		"duration", time.Since(start))
	return nil
}

// runMigrations executes one explicit migration command against the
// configured database and returns. Used by the -migrate flag.
func runMigrations(cfg *config.Config, logger *slog.Logger, command string) error {
	target, err := resolveDatabaseURL(cfg.Database.URL)
	if err != nil {
		return err
	}
	if err := configureGoose(target.dialect); err != nil {
		return err
	}

	sqlDB, err := sql.Open(target.driver, target.dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer closeDatabase(sqlDB, logger)

	logger.Info("Executing migration command",
		"command", command,
		"database", maskDatabaseURL(cfg.Database.URL))

	switch command {
	case "up":
		err = goose.Up(sqlDB, "migrations")
	case "down":
		err = goose.Down(sqlDB, "migrations")
	case "status":
		err = goose.Status(sqlDB, "migrations")
	case "version":
		err = goose.Version(sqlDB, "migrations")
	default:
		return fmt.Errorf("unknown migration command %q (want up, down, status, or version)", command)
	}
	if err != nil {
		return fmt.Errorf("migration command %q failed: %w", command, err)
	}
	return nil
}
