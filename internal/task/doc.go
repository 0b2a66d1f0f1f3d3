// Package task coordinates asynchronous job execution. It holds the job
// type registry, the runner that claims pending jobs from the store and
// executes them under a hard wall-clock deadline, the retry policy that
// separates transient faults from permanent ones, and the reaper that
// recovers jobs abandoned by stalled or crashed workers. Ownership of a
// job is decided entirely by the store's conditional updates; nothing in
// this package holds state that must survive a restart.
package task
