package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker" validate:"required"`
	Reaper   ReaperConfig   `mapstructure:"reaper" validate:"required"`
	Retry    RetryConfig    `mapstructure:"retry" validate:"required"`
}

// ServerConfig contains all HTTP server related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
// The URL scheme selects the driver: postgres:// runs against PostgreSQL,
// file: or sqlite: against the embedded SQLite backend.
type DatabaseConfig struct {
	URL          string `mapstructure:"url" validate:"required"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`
}

// WorkerConfig tunes the in-process job runner.
type WorkerConfig struct {
	// ID identifies this worker in job ownership records. Left empty, a
	// unique ID is generated at startup.
	ID string `mapstructure:"id"`

	// Enabled turns the runner on. An API-only node sets this to false
	// and leaves execution to dedicated worker processes.
	Enabled bool `mapstructure:"enabled"`

	// Concurrency bounds how many jobs this process executes at once.
	// Jobs drive real browser sessions, so this stays small.
	Concurrency int `mapstructure:"concurrency" validate:"required,gt=0,lte=64"`

	// PollInterval is how long the claim loop sleeps when no job is
	// claimable. Submissions nudge the loop awake early.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"required,gt=0"`

	// HeartbeatInterval is how often the runner refreshes liveness stamps
	// for the jobs it is executing.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" validate:"required,gt=0"`
}

// ReaperConfig tunes the background cleanup sweeps.
type ReaperConfig struct {
	// Enabled turns the reaper on.
	Enabled bool `mapstructure:"enabled"`

	// Interval is the period between sweeps.
	Interval time.Duration `mapstructure:"interval" validate:"required,gt=0"`

	// HeartbeatGrace is how stale an in_progress job's heartbeat may be
	// before the job counts as orphaned. It must comfortably exceed the
	// worker heartbeat interval.
	HeartbeatGrace time.Duration `mapstructure:"heartbeat_grace" validate:"required,gt=0"`

	// Retention is how long terminal jobs are kept before deletion.
	Retention time.Duration `mapstructure:"retention" validate:"required,gt=0"`

	// SweepLimit caps how many jobs one sweep recovers, bounding sweep
	// transaction size after an outage.
	SweepLimit int `mapstructure:"sweep_limit" validate:"required,gt=0"`
}

// RetryConfig sets the process-wide retry defaults. Job types may
// override the retry budget per registration; the base delay is shared.
type RetryConfig struct {
	// BaseDelay seeds the exponential backoff: the nth retry waits
	// BaseDelay * 2^(n-1).
	BaseDelay time.Duration `mapstructure:"base_delay" validate:"required,gt=0"`

	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration `mapstructure:"max_delay" validate:"required,gtefield=BaseDelay"`

	// MaxRetries is the default retry budget for job types that do not
	// declare their own.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0"`
}
