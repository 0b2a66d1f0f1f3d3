package logger_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/phrazzld/golem-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithLoggerAndFromContext(t *testing.T) {
	attached, buf := logger.GetTestLogger(t)

	ctx := logger.WithLogger(context.Background(), attached)
	got := logger.FromContext(ctx)
	require.Equal(t, attached, got)

	got.Info("carried through context")
	assert.Contains(t, buf.String(), "carried through context")
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Equal(t, slog.Default(), logger.FromContext(context.Background()))

	// A nil context must not panic.
	//nolint:staticcheck // deliberately exercising the nil-context path
	assert.Equal(t, slog.Default(), logger.FromContext(nil))
}

func TestFromContextOrDefault(t *testing.T) {
	fallback, _ := logger.GetTestLogger(t)

	// Empty context uses the provided fallback.
	got := logger.FromContextOrDefault(context.Background(), fallback)
	assert.Equal(t, fallback, got)

	// Attached logger wins over the fallback.
	attached, _ := logger.GetTestLogger(t)
	ctx := logger.WithLogger(context.Background(), attached)
	assert.Equal(t, attached, logger.FromContextOrDefault(ctx, fallback))

	// Nil fallback degrades to the process default.
	assert.Equal(t, slog.Default(), logger.FromContextOrDefault(context.Background(), nil))
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := logger.WithRequestID(context.Background(), "req-42")
	assert.Equal(t, "req-42", logger.RequestIDFromContext(ctx))

	assert.Equal(t, "", logger.RequestIDFromContext(context.Background()))
}

func TestLogCaptureContext(t *testing.T) {
	capture := logger.NewLogCaptureContext(t)

	logger.FromContext(capture.Context).Info("hello from capture",
		slog.String("component", "context_test"))

	logger.AssertLogContains(t, capture.Buffer, "hello from capture")
	logger.AssertLogField(t, capture.Buffer, "component", "context_test")
}
