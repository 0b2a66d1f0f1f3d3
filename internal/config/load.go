package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// envPrefix namespaces all environment variables read by Load, e.g.
// GOLEM_SERVER_PORT for the server.port key.
const envPrefix = "GOLEM"

// envKeys lists every config key so nested keys resolve from environment
// variables even when no config file mentions them. Viper only discovers
// nested env-backed keys that are explicitly bound.
var envKeys = []string{
	"server.port",
	"server.log_level",
	"database.url",
	"database.max_open_conns",
	"database.max_idle_conns",
	"worker.id",
	"worker.enabled",
	"worker.concurrency",
	"worker.poll_interval",
	"worker.heartbeat_interval",
	"reaper.enabled",
	"reaper.interval",
	"reaper.heartbeat_grace",
	"reaper.retention",
	"reaper.sweep_limit",
	"retry.base_delay",
	"retry.max_delay",
	"retry.max_retries",
}

// setDefaults seeds every tunable with its out-of-the-box value. Only
// database.url has no default; it must come from the environment or a
// config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("worker.id", "")
	v.SetDefault("worker.enabled", true)
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.poll_interval", "2s")
	v.SetDefault("worker.heartbeat_interval", "15s")

	v.SetDefault("reaper.enabled", true)
	v.SetDefault("reaper.interval", "30s")
	v.SetDefault("reaper.heartbeat_grace", "90s")
	v.SetDefault("reaper.retention", "168h")
	v.SetDefault("reaper.sweep_limit", 100)

	v.SetDefault("retry.base_delay", "5s")
	v.SetDefault("retry.max_delay", "1h")
	v.SetDefault("retry.max_retries", 3)
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// An optional config.yaml in the working directory; absence is fine.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
