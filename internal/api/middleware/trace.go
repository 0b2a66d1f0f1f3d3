// Package middleware holds HTTP middleware applied to the API router.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/golem-api/internal/api/shared"
	"github.com/phrazzld/golem-api/internal/platform/logger"
)

// TraceHeader carries the request trace ID in both directions: callers
// may supply one, and the response always echoes the assigned ID.
const TraceHeader = "X-Trace-ID"

// maxInboundTraceID caps accepted caller-supplied trace IDs. Longer or
// malformed values are discarded and replaced with a generated ID.
const maxInboundTraceID = 64

// Trace assigns every request a trace ID, honoring a well-formed one
// supplied in the X-Trace-ID header. The ID is echoed in the response
// header and stitched into a request-scoped logger, so every log line
// below this middleware carries the same trace_id field.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if !validTraceID(traceID) {
			traceID = shared.NewTraceID()
		}

		ctx := shared.WithTraceID(r.Context(), traceID)
		ctx = logger.WithRequestID(ctx, traceID)
		ctx = logger.WithLogger(ctx,
			logger.FromContext(ctx).With(slog.String("trace_id", traceID)))

		w.Header().Set(TraceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validTraceID reports whether a caller-supplied trace ID is safe to
// propagate into logs: non-empty, bounded, and limited to hex, alphanumerics,
// and dashes.
func validTraceID(id string) bool {
	if id == "" || len(id) > maxInboundTraceID {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-':
		default:
			return false
		}
	}
	return true
}
