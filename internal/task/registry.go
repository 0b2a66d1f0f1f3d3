package task

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/phrazzld/golem-api/internal/domain"
)

// Registry errors.
var (
	// ErrUnknownJobType is returned when no definition matches the
	// requested job type.
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrDuplicateJobType is returned when a job type is registered twice.
	ErrDuplicateJobType = errors.New("job type already registered")

	// ErrHandlerMissing is returned when a definition has no handler.
	ErrHandlerMissing = errors.New("job type handler is required")

	// ErrPayloadRejected is returned when a submission payload fails the
	// job type's schema validation.
	ErrPayloadRejected = errors.New("payload rejected by schema")
)

// Registry maps job type names to their definitions. Types register
// once at startup; lookups are concurrent-safe and cheap. Payload
// schemas compile at registration so submission validation never parses
// a schema document twice.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*registration
}

type registration struct {
	def    Definition
	schema *jsonschema.Schema // nil when the type declares no schema
}

// NewRegistry creates an empty job type registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*registration)}
}

// Register adds a job type definition. Zero-valued execution limits are
// filled from the package defaults and the payload schema, when
// present, is compiled. Returns an error if the definition is
// incomplete, the schema does not compile, or the type name is taken.
func (r *Registry) Register(def Definition) error {
	if def.Type == "" {
		return fmt.Errorf("register job type: %w", domain.ErrJobTypeEmpty)
	}
	if def.Handler == nil {
		return fmt.Errorf("register %q: %w", def.Type, ErrHandlerMissing)
	}
	if def.MaxRetries < 0 {
		return fmt.Errorf("register %q: %w", def.Type, domain.ErrJobMaxRetriesNegative)
	}

	if def.ExecutionTimeout <= 0 {
		def.ExecutionTimeout = DefaultExecutionTimeout
	}
	if def.MaxRetries == 0 {
		def.MaxRetries = DefaultMaxRetries
	}
	if def.RetryBaseDelay <= 0 {
		def.RetryBaseDelay = DefaultRetryBaseDelay
	}

	var schema *jsonschema.Schema
	if len(def.PayloadSchema) > 0 {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("schema.json", bytes.NewReader(def.PayloadSchema)); err != nil {
			return fmt.Errorf("register %q: invalid payload schema: %w", def.Type, err)
		}
		compiled, err := compiler.Compile("schema.json")
		if err != nil {
			return fmt.Errorf("register %q: compile payload schema: %w", def.Type, err)
		}
		schema = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[def.Type]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJobType, def.Type)
	}
	r.types[def.Type] = &registration{def: def, schema: schema}
	return nil
}

// MustRegister is Register for startup wiring; it panics on error.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Get returns the definition for a job type, or ErrUnknownJobType.
func (r *Registry) Get(jobType string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.types[jobType]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownJobType, jobType)
	}
	return reg.def, nil
}

// ValidatePayload checks a submission payload against the job type's
// compiled schema. Payloads must be valid JSON even for types without a
// schema. Schema violations come back wrapped in ErrPayloadRejected
// with the validator's detail preserved in the message.
func (r *Registry) ValidatePayload(jobType string, payload json.RawMessage) error {
	r.mu.RLock()
	reg, ok := r.types[jobType]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJobType, jobType)
	}

	if len(payload) == 0 || !json.Valid(payload) {
		return domain.ErrJobPayloadInvalid
	}
	if reg.schema == nil {
		return nil
	}

	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return domain.ErrJobPayloadInvalid
	}
	if err := reg.schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrPayloadRejected, err)
	}
	return nil
}

// Types returns the registered job type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns every registered definition sorted by type name,
// for the job type discovery endpoint.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.types))
	for _, reg := range r.types {
		defs = append(defs, reg.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Type < defs[j].Type })
	return defs
}
