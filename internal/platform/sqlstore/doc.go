// Package sqlstore implements the store interfaces on a SQL database.
//
// The implementation speaks a portable dialect that runs unchanged on
// PostgreSQL (via the pgx stdlib driver) and SQLite (via modernc.org/sqlite):
// positional $N placeholders, TEXT-encoded JSON and UUID columns, and
// timestamps that are always written in UTC by the caller instead of relying
// on database-side clock functions. Placeholders appear in ascending order in
// every statement so both drivers bind arguments identically.
//
// State transitions never read-modify-write. Each one is a single conditional
// UPDATE whose WHERE clause restates the expected current state (status and
// owning worker); zero affected rows means another worker or the reaper got
// there first and is surfaced as store.ErrUpdateConflict. This is the only
// concurrency control the job system needs, and it works identically on both
// backends.
package sqlstore
