package shared

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"os"
	"sync/atomic"
	"time"
)

// contextKey is a private type for context keys defined in this package,
// preventing collisions with keys from other packages.
type contextKey int

const traceIDKey contextKey = iota

// traceIDBytes is the number of random bytes in a generated trace ID,
// encoded as 32 hex characters.
const traceIDBytes = 16

// WithTraceID returns a new context carrying the given trace ID. An
// empty ID leaves the context unchanged.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// fallbackSeq disambiguates fallback trace IDs generated within the
// same nanosecond.
var fallbackSeq atomic.Uint32

// NewTraceID returns a fresh 32-character hex trace ID. If the system
// entropy source fails, it falls back to a timestamp-based ID; the
// result is never empty and never a repeated static value.
func NewTraceID() string {
	b := make([]byte, traceIDBytes)
	if _, err := rand.Read(b); err != nil {
		binary.BigEndian.PutUint64(b[:8], uint64(time.Now().UnixNano()))
		binary.BigEndian.PutUint32(b[8:12], uint32(os.Getpid()))
		binary.BigEndian.PutUint32(b[12:], fallbackSeq.Add(1))
	}
	return hex.EncodeToString(b)
}
