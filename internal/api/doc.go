// Package api exposes the job queue over HTTP: submission, inspection,
// listing, and cancellation endpoints plus the job type catalog and
// queue statistics. It adapts external clients to the internal
// services, translating HTTP concerns to business operations while
// keeping internal error detail out of responses.
package api
