// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the application's core logic. For jobs the store is more than a
// persistence detail: its conditional single-row updates are the
// concurrency primitive the claim protocol is built on.
package store
