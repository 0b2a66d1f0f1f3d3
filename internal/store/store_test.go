package store_test

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/phrazzld/golem-api/internal/store"
	"github.com/stretchr/testify/assert"
)

// Compile-time check that both connection handles satisfy DBTX, so store
// code can run against a pool or inside a transaction interchangeably.
var (
	_ store.DBTX = (*sql.DB)(nil)
	_ store.DBTX = (*sql.Tx)(nil)
)

// TestErrorDefinitions ensures that the error definitions in the store
// package are defined as expected and can be used with errors.Is.
func TestErrorDefinitions(t *testing.T) {
	t.Parallel()

	// Create functions that return the standard errors
	// This simulates how store implementations might return these errors
	jobNotFoundFn := func() error {
		return store.ErrJobNotFound
	}

	displayIDExistsFn := func() error {
		return store.ErrDisplayIDExists
	}

	t.Run("ErrJobNotFound", func(t *testing.T) {
		t.Parallel()

		err := jobNotFoundFn()

		// Detectable both as the specific sentinel and the general family
		assert.True(t, errors.Is(err, store.ErrJobNotFound))
		assert.True(t, errors.Is(err, store.ErrNotFound))
		assert.False(t, errors.Is(err, store.ErrDisplayIDExists))

		assert.Equal(t, "entity not found: job", err.Error())
	})

	t.Run("ErrDisplayIDExists", func(t *testing.T) {
		t.Parallel()

		err := displayIDExistsFn()

		assert.True(t, errors.Is(err, store.ErrDisplayIDExists))
		assert.True(t, errors.Is(err, store.ErrDuplicate))
		assert.False(t, errors.Is(err, store.ErrJobNotFound))

		assert.Equal(t, "entity already exists: display ID", err.Error())
	})

	t.Run("conflict does not match other families", func(t *testing.T) {
		t.Parallel()

		err := store.ErrUpdateConflict

		assert.True(t, errors.Is(err, store.ErrUpdateConflict))
		assert.False(t, errors.Is(err, store.ErrNotFound))
		assert.False(t, errors.Is(err, store.ErrDuplicate))
	})
}
