// Package events provides lightweight in-process notifications about
// job lifecycle changes.
//
// Services emit an event after a durable write (for example, a job
// submission) without knowing which components react to it; the runner
// subscribes to wake its claim loop early. Events are advisory only:
// the job row is the source of truth, and a lost event never loses work
// because workers also poll the store.
//
// The primary components are:
// - JobEvent: a notification that a job was submitted or cancelled
// - EventHandler: interface for components that react to events
// - EventEmitter: interface for components that publish events
package events
