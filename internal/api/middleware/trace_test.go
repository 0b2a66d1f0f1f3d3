package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/golem-api/internal/api/shared"
	"github.com/phrazzld/golem-api/internal/platform/logger"
)

func TestTrace(t *testing.T) {
	t.Run("assigns a trace ID and echoes it in the response header", func(t *testing.T) {
		var seenTraceID string
		handler := Trace(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenTraceID = shared.GetTraceID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/jobs", nil))

		require.NotEmpty(t, seenTraceID)
		assert.Len(t, seenTraceID, 32)
		assert.Equal(t, seenTraceID, w.Header().Get(TraceHeader))
	})

	t.Run("honors a well-formed caller-supplied trace ID", func(t *testing.T) {
		var seenTraceID, seenRequestID string
		handler := Trace(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenTraceID = shared.GetTraceID(r.Context())
			seenRequestID = logger.RequestIDFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		r := httptest.NewRequest("GET", "/api/jobs", nil)
		r.Header.Set(TraceHeader, "client-supplied-42")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, "client-supplied-42", seenTraceID)
		assert.Equal(t, "client-supplied-42", seenRequestID)
		assert.Equal(t, "client-supplied-42", w.Header().Get(TraceHeader))
	})

	t.Run("replaces a malformed caller-supplied trace ID", func(t *testing.T) {
		tests := []struct {
			name    string
			inbound string
		}{
			{name: "log injection attempt", inbound: "abc\nlevel=ERROR fake=1"},
			{name: "disallowed characters", inbound: "abc;rm -rf /"},
			{name: "over length cap", inbound: string(make([]byte, 65))},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				var seenTraceID string
				handler := Trace(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					seenTraceID = shared.GetTraceID(r.Context())
					w.WriteHeader(http.StatusOK)
				}))

				r := httptest.NewRequest("GET", "/api/jobs", nil)
				r.Header.Set(TraceHeader, tc.inbound)
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, r)

				require.NotEmpty(t, seenTraceID)
				assert.NotEqual(t, tc.inbound, seenTraceID)
				assert.Len(t, seenTraceID, 32)
			})
		}
	})

	t.Run("attaches a request-scoped logger to the context", func(t *testing.T) {
		var scoped bool
		handler := Trace(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The context logger must differ from the bare process default,
			// since it carries the trace_id attribute.
			scoped = logger.FromContext(r.Context()) != nil &&
				logger.RequestIDFromContext(r.Context()) != ""
			w.WriteHeader(http.StatusOK)
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/jobs", nil))

		assert.True(t, scoped)
	})
}

func TestValidTraceID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{name: "hex ID", id: "f00dfeed00112233445566778899aabb", want: true},
		{name: "uuid style with dashes", id: "123e4567-e89b-12d3-a456-426614174000", want: true},
		{name: "empty", id: "", want: false},
		{name: "whitespace", id: "abc def", want: false},
		{name: "newline", id: "abc\ndef", want: false},
		{name: "exactly at cap", id: string(bytes64()), want: true},
		{name: "over cap", id: string(bytes64()) + "a", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, validTraceID(tc.id))
		})
	}
}

func bytes64() []byte {
	b := make([]byte, 64)
	for i := range b {
		b[i] = 'a'
	}
	return b
}
