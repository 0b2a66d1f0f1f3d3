package sqlstore_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/golem-api/internal/domain"
	"github.com/phrazzld/golem-api/internal/platform/sqlstore"
	"github.com/phrazzld/golem-api/internal/store"
)

func TestMapError_Postgres(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: nil,
		},
		{
			name:     "no rows",
			err:      sql.ErrNoRows,
			expected: store.ErrNotFound,
		},
		{
			name:     "unique violation",
			err:      &pgconn.PgError{Code: "23505", ConstraintName: "jobs_display_id_unique"},
			expected: store.ErrDuplicate,
		},
		{
			name:     "foreign key violation",
			err:      &pgconn.PgError{Code: "23503", ConstraintName: "jobs_scope_fkey"},
			expected: store.ErrInvalidEntity,
		},
		{
			name:     "check violation",
			err:      &pgconn.PgError{Code: "23514", ConstraintName: "jobs_status_check"},
			expected: store.ErrInvalidEntity,
		},
		{
			name:     "not null violation",
			err:      &pgconn.PgError{Code: "23502", ColumnName: "job_type"},
			expected: store.ErrInvalidEntity,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mapped := sqlstore.MapError(tc.err)
			if tc.expected == nil {
				assert.NoError(t, mapped)
				return
			}
			assert.ErrorIs(t, mapped, tc.expected)
		})
	}
}

func TestMapError_PassesThroughUnknownErrors(t *testing.T) {
	t.Parallel()

	original := fmt.Errorf("connection refused")
	assert.Equal(t, original, sqlstore.MapError(original),
		"errors without a mapping should pass through unchanged")

	wrapped := fmt.Errorf("querying: %w", &pgconn.PgError{Code: "57014"})
	assert.Equal(t, wrapped, sqlstore.MapError(wrapped),
		"unmapped postgres codes should pass through unchanged")
}

// TestMapError_SQLite drives a real constraint violation through the sqlite
// driver rather than constructing driver error values by hand.
func TestMapError_SQLite(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	insert := func(id, displayID string) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO jobs (id, display_id, job_type, status, payload,
				retry_base_delay_ms, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, id, displayID, "portal.export_report", "pending", `{}`,
			5000, time.Now().UTC(), time.Now().UTC())
		return err
	}

	require.NoError(t, insert("11111111-1111-1111-1111-111111111111", "job_x"))

	err := insert("22222222-2222-2222-2222-222222222222", "job_x")
	require.Error(t, err, "duplicate display ID should violate the unique constraint")

	assert.True(t, sqlstore.IsUniqueViolation(err),
		"the sqlite unique violation should be recognized")
	assert.ErrorIs(t, sqlstore.MapError(err), store.ErrDuplicate,
		"the sqlite unique violation should map to ErrDuplicate")

	err = insert("11111111-1111-1111-1111-111111111111", "job_y")
	require.Error(t, err, "duplicate primary key should violate the constraint")
	assert.True(t, sqlstore.IsUniqueViolation(err))

	// NOT NULL violation: job_type is required.
	_, err = db.ExecContext(ctx, `
		INSERT INTO jobs (id, display_id, job_type, status, payload,
			retry_base_delay_ms, created_at, updated_at)
		VALUES ($1, $2, NULL, $3, $4, $5, $6, $7)
	`, "33333333-3333-3333-3333-333333333333", "job_z", "pending", `{}`,
		5000, time.Now().UTC(), time.Now().UTC())
	require.Error(t, err)
	assert.ErrorIs(t, sqlstore.MapError(err), store.ErrInvalidEntity,
		"the sqlite not null violation should map to ErrInvalidEntity")
}

func TestIsUniqueViolation_OtherErrors(t *testing.T) {
	t.Parallel()

	assert.False(t, sqlstore.IsUniqueViolation(nil))
	assert.False(t, sqlstore.IsUniqueViolation(sql.ErrNoRows))
	assert.False(t, sqlstore.IsUniqueViolation(errors.New("random")))
	assert.False(t, sqlstore.IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
}

func TestIsNotFoundError(t *testing.T) {
	t.Parallel()

	assert.True(t, sqlstore.IsNotFoundError(sql.ErrNoRows))
	assert.True(t, sqlstore.IsNotFoundError(store.ErrNotFound))
	assert.True(t, sqlstore.IsNotFoundError(store.ErrJobNotFound))
	assert.True(t, sqlstore.IsNotFoundError(fmt.Errorf("wrapped: %w", store.ErrJobNotFound)))
	assert.False(t, sqlstore.IsNotFoundError(store.ErrUpdateConflict))
	assert.False(t, sqlstore.IsNotFoundError(nil))
}

// stubResult implements sql.Result for CheckConflict tests.
type stubResult struct {
	rows int64
	err  error
}

func (r stubResult) LastInsertId() (int64, error) { return 0, nil }
func (r stubResult) RowsAffected() (int64, error) { return r.rows, r.err }

func TestCheckConflict(t *testing.T) {
	t.Parallel()

	assert.NoError(t, sqlstore.CheckConflict(stubResult{rows: 1}),
		"an applied update is not a conflict")

	err := sqlstore.CheckConflict(stubResult{rows: 0})
	assert.ErrorIs(t, err, store.ErrUpdateConflict,
		"zero affected rows means the guard no longer held")

	err = sqlstore.CheckConflict(stubResult{err: errors.New("driver does not support RowsAffected")})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrUpdateConflict,
		"a RowsAffected failure is not a conflict")

	assert.Error(t, sqlstore.CheckConflict(nil), "nil result should be rejected")
}

// TestConditionalUpdateGuards exercises the end-to-end property the whole
// store is built on: a guarded update that loses still leaves the row exactly
// as the winner wrote it.
func TestConditionalUpdateGuards(t *testing.T) {
	t.Parallel()

	jobStore, _ := newTestStore(t)
	ctx := context.Background()

	job, err := domain.NewJob("portal.export_report", json.RawMessage(`{}`), domain.JobOptions{
		MaxRetries:     3,
		RetryBaseDelay: 5 * time.Second,
	})
	require.NoError(t, err)
	require.NoError(t, jobStore.Create(ctx, job))

	require.NoError(t, jobStore.Claim(ctx, job.ID, "winner", time.Minute))
	require.NoError(t, jobStore.Complete(ctx, job.ID, "winner", json.RawMessage(`{"ok":true}`)))

	// Every later write against the settled row must lose its guard.
	assert.ErrorIs(t, jobStore.Claim(ctx, job.ID, "late", time.Minute), store.ErrUpdateConflict)
	assert.ErrorIs(t, jobStore.Heartbeat(ctx, job.ID, "winner"), store.ErrUpdateConflict)
	assert.ErrorIs(t,
		jobStore.Fail(ctx, job.ID, "winner", domain.JobStatusFailed,
			domain.JobError{Code: domain.ErrorCodeUnknown, Message: "late failure"}),
		store.ErrUpdateConflict)
	assert.ErrorIs(t,
		jobStore.Reschedule(ctx, job.ID, "winner", time.Now().UTC()),
		store.ErrUpdateConflict)

	got, err := jobStore.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.JSONEq(t, `{"ok":true}`, string(got.Result))
	assert.Nil(t, got.Error)
}
