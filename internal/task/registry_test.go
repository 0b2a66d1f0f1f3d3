package task_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/golem-api/internal/domain"
	"github.com/phrazzld/golem-api/internal/task"
)

func noopHandler(_ context.Context, _ *task.Execution) (json.RawMessage, error) {
	return nil, nil
}

func TestRegistryRegister(t *testing.T) {
	t.Run("applies defaults to unset limits", func(t *testing.T) {
		registry := task.NewRegistry()
		require.NoError(t, registry.Register(task.Definition{
			Type:    "portal.update_listing",
			Handler: noopHandler,
		}))

		def, err := registry.Get("portal.update_listing")
		require.NoError(t, err)
		assert.Equal(t, task.DefaultExecutionTimeout, def.ExecutionTimeout)
		assert.Equal(t, task.DefaultMaxRetries, def.MaxRetries)
		assert.Equal(t, task.DefaultRetryBaseDelay, def.RetryBaseDelay)
	})

	t.Run("preserves explicit limits", func(t *testing.T) {
		registry := task.NewRegistry()
		require.NoError(t, registry.Register(task.Definition{
			Type:             "portal.bulk_import",
			Handler:          noopHandler,
			ExecutionTimeout: 30 * time.Minute,
			MaxRetries:       1,
			RetryBaseDelay:   10 * time.Second,
			Priority:         5,
		}))

		def, err := registry.Get("portal.bulk_import")
		require.NoError(t, err)
		assert.Equal(t, 30*time.Minute, def.ExecutionTimeout)
		assert.Equal(t, 1, def.MaxRetries)
		assert.Equal(t, 10*time.Second, def.RetryBaseDelay)
		assert.Equal(t, 5, def.Priority)
	})

	t.Run("rejects incomplete definitions", func(t *testing.T) {
		registry := task.NewRegistry()

		err := registry.Register(task.Definition{Handler: noopHandler})
		assert.ErrorIs(t, err, domain.ErrJobTypeEmpty)

		err = registry.Register(task.Definition{Type: "no.handler"})
		assert.ErrorIs(t, err, task.ErrHandlerMissing)

		err = registry.Register(task.Definition{
			Type:       "bad.retries",
			Handler:    noopHandler,
			MaxRetries: -1,
		})
		assert.ErrorIs(t, err, domain.ErrJobMaxRetriesNegative)
	})

	t.Run("rejects duplicate type names", func(t *testing.T) {
		registry := task.NewRegistry()
		require.NoError(t, registry.Register(task.Definition{Type: "dup", Handler: noopHandler}))

		err := registry.Register(task.Definition{Type: "dup", Handler: noopHandler})
		assert.ErrorIs(t, err, task.ErrDuplicateJobType)
	})

	t.Run("rejects a schema that does not compile", func(t *testing.T) {
		registry := task.NewRegistry()

		err := registry.Register(task.Definition{
			Type:          "bad.schema",
			Handler:       noopHandler,
			PayloadSchema: json.RawMessage(`{"type": "not-a-real-type"}`),
		})
		assert.Error(t, err)
	})

	t.Run("must register panics on error", func(t *testing.T) {
		registry := task.NewRegistry()
		registry.MustRegister(task.Definition{Type: "ok", Handler: noopHandler})

		assert.Panics(t, func() {
			registry.MustRegister(task.Definition{Type: "ok", Handler: noopHandler})
		})
	})
}

func TestRegistryGet(t *testing.T) {
	registry := task.NewRegistry()
	require.NoError(t, registry.Register(task.Definition{Type: "known", Handler: noopHandler}))

	_, err := registry.Get("unknown")
	assert.ErrorIs(t, err, task.ErrUnknownJobType)
}

func TestRegistryValidatePayload(t *testing.T) {
	registry := task.NewRegistry()
	require.NoError(t, registry.Register(task.Definition{
		Type:    "portal.update_listing",
		Handler: noopHandler,
		PayloadSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"listing_id": {"type": "string"},
				"fields": {"type": "object"}
			},
			"required": ["listing_id"],
			"additionalProperties": false
		}`),
	}))
	require.NoError(t, registry.Register(task.Definition{
		Type:    "schemaless",
		Handler: noopHandler,
	}))

	t.Run("accepts a conforming payload", func(t *testing.T) {
		err := registry.ValidatePayload("portal.update_listing",
			json.RawMessage(`{"listing_id": "L-100", "fields": {"price": 25}}`))
		assert.NoError(t, err)
	})

	t.Run("rejects a payload missing required fields", func(t *testing.T) {
		err := registry.ValidatePayload("portal.update_listing",
			json.RawMessage(`{"fields": {}}`))
		assert.ErrorIs(t, err, task.ErrPayloadRejected)
	})

	t.Run("rejects unexpected fields", func(t *testing.T) {
		err := registry.ValidatePayload("portal.update_listing",
			json.RawMessage(`{"listing_id": "L-100", "surprise": true}`))
		assert.ErrorIs(t, err, task.ErrPayloadRejected)
	})

	t.Run("rejects malformed JSON regardless of schema", func(t *testing.T) {
		err := registry.ValidatePayload("portal.update_listing", json.RawMessage(`{"oops`))
		assert.ErrorIs(t, err, domain.ErrJobPayloadInvalid)

		err = registry.ValidatePayload("schemaless", json.RawMessage(``))
		assert.ErrorIs(t, err, domain.ErrJobPayloadInvalid)
	})

	t.Run("schemaless types accept any valid JSON", func(t *testing.T) {
		err := registry.ValidatePayload("schemaless", json.RawMessage(`{"anything": [1, 2, 3]}`))
		assert.NoError(t, err)
	})

	t.Run("unknown type is rejected", func(t *testing.T) {
		err := registry.ValidatePayload("ghost", json.RawMessage(`{}`))
		assert.ErrorIs(t, err, task.ErrUnknownJobType)
	})
}

func TestRegistryListing(t *testing.T) {
	registry := task.NewRegistry()
	require.NoError(t, registry.Register(task.Definition{Type: "zeta", Handler: noopHandler}))
	require.NoError(t, registry.Register(task.Definition{Type: "alpha", Handler: noopHandler}))
	require.NoError(t, registry.Register(task.Definition{Type: "mid", Handler: noopHandler}))

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, registry.Types())

	defs := registry.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "alpha", defs[0].Type)
	assert.Equal(t, "mid", defs[1].Type)
	assert.Equal(t, "zeta", defs[2].Type)
}
