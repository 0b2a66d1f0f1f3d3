// Package logger_test contains tests for the logger package
package logger_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/phrazzld/golem-api/internal/config"
	"github.com/phrazzld/golem-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// restoreDefault snapshots the process default logger and restores it
// when the test finishes, since Setup replaces it.
func restoreDefault(t *testing.T) {
	t.Helper()
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })
}

func TestSetupReturnsConfiguredLogger(t *testing.T) {
	restoreDefault(t)

	log, err := logger.Setup(config.ServerConfig{LogLevel: "debug"})
	require.NoError(t, err)
	require.NotNil(t, log)

	ctx := context.Background()
	assert.True(t, log.Enabled(ctx, slog.LevelDebug))
	assert.True(t, log.Enabled(ctx, slog.LevelError))
}

func TestSetupSetsProcessDefault(t *testing.T) {
	restoreDefault(t)

	log, err := logger.Setup(config.ServerConfig{LogLevel: "warn"})
	require.NoError(t, err)

	assert.Equal(t, log, slog.Default())
}

func TestSetupLevels(t *testing.T) {
	tests := []struct {
		name         string
		logLevel     string
		debugEnabled bool
		infoEnabled  bool
		warnEnabled  bool
	}{
		{
			name:         "debug level",
			logLevel:     "debug",
			debugEnabled: true,
			infoEnabled:  true,
			warnEnabled:  true,
		},
		{
			name:         "info level",
			logLevel:     "info",
			debugEnabled: false,
			infoEnabled:  true,
			warnEnabled:  true,
		},
		{
			name:         "warn level",
			logLevel:     "warn",
			debugEnabled: false,
			infoEnabled:  false,
			warnEnabled:  true,
		},
		{
			name:         "error level",
			logLevel:     "error",
			debugEnabled: false,
			infoEnabled:  false,
			warnEnabled:  false,
		},
		{
			name:         "uppercase accepted",
			logLevel:     "DEBUG",
			debugEnabled: true,
			infoEnabled:  true,
			warnEnabled:  true,
		},
		{
			name:         "invalid level falls back to info",
			logLevel:     "verbose",
			debugEnabled: false,
			infoEnabled:  true,
			warnEnabled:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restoreDefault(t)

			log, err := logger.Setup(config.ServerConfig{LogLevel: tt.logLevel})
			require.NoError(t, err)

			ctx := context.Background()
			assert.Equal(t, tt.debugEnabled, log.Enabled(ctx, slog.LevelDebug), "debug")
			assert.Equal(t, tt.infoEnabled, log.Enabled(ctx, slog.LevelInfo), "info")
			assert.Equal(t, tt.warnEnabled, log.Enabled(ctx, slog.LevelWarn), "warn")
		})
	}
}
