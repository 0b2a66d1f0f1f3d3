package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/phrazzld/golem-api/internal/config"
)

// databaseTarget describes how to reach the configured database: which
// database/sql driver to use, the DSN that driver expects, and the goose
// dialect for migrations.
type databaseTarget struct {
	driver  string
	dsn     string
	dialect string
}

// resolveDatabaseURL picks the backend from the URL scheme. postgres://
// and postgresql:// run against PostgreSQL through pgx; file: and
// sqlite: URLs run against the embedded SQLite backend.
func resolveDatabaseURL(rawURL string) (databaseTarget, error) {
	switch {
	case strings.HasPrefix(rawURL, "postgres://"), strings.HasPrefix(rawURL, "postgresql://"):
		return databaseTarget{driver: "pgx", dsn: rawURL, dialect: "postgres"}, nil
	case strings.HasPrefix(rawURL, "file:"):
		return databaseTarget{driver: "sqlite", dsn: rawURL, dialect: "sqlite3"}, nil
	case strings.HasPrefix(rawURL, "sqlite:"):
		return databaseTarget{driver: "sqlite", dsn: strings.TrimPrefix(rawURL, "sqlite:"), dialect: "sqlite3"}, nil
	default:
		return databaseTarget{}, fmt.Errorf("unsupported database URL scheme in %q", maskDatabaseURL(rawURL))
	}
}

// setupAppDatabase establishes a connection to the database and configures connection pools.
// Returns the database connection if successful, or an error if the connection fails.
func setupAppDatabase(cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	target, err := resolveDatabaseURL(cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(target.driver, target.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if target.driver == "sqlite" {
		// SQLite serializes writers; a single connection avoids
		// SQLITE_BUSY errors under claim contention.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established", "driver", target.driver)
	return db, nil
}

// maskDatabaseURL hides credentials in a database URL so it can be
// logged safely.
func maskDatabaseURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<unparseable database URL>"
	}
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
	}
	return u.String()
}
