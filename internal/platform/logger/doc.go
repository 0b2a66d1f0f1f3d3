// Package logger configures structured JSON logging for the job system
// on top of the standard library's log/slog. It also carries
// request-scoped loggers through context, so the API, store, and worker
// layers all log with the same correlation fields.
package logger
