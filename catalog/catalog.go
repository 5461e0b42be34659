// Package catalog is the allow-list of identity event types Prism
// understands. Unrecognized types are normalized to TypeUnknown and stored
// anyway: the inbox is forward-compatible with event kinds the projector
// does not yet handle, which simply pass through as acknowledged no-ops.
package catalog

import (
	"encoding/json"
	"fmt"
	"sync"
)

// TypeUnknown is the sentinel every unrecognized event type normalizes to.
const TypeUnknown = "unknown"

// Identity event types recognized by default.
const (
	TypeUserCreated = "user.created"
	TypeUserUpdated = "user.updated"
	TypeUserDeleted = "user.deleted"
	TypeOrgCreated  = "organization.created"
	TypeOrgUpdated  = "organization.updated"
	TypeOrgDeleted  = "organization.deleted"
)

// Definition describes one recognized event type.
type Definition struct {
	// Name is the dot-separated event type (e.g. "user.created").
	Name string `json:"name"`

	// Description is human-readable documentation for inspection APIs.
	Description string `json:"description,omitempty"`

	// Schema is an optional JSON Schema the event payload must satisfy.
	// Nil disables validation for this type.
	Schema json.RawMessage `json:"schema,omitempty"`
}

// Registry holds the recognized event types and their compiled schemas.
// Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	types     map[string]Definition
	validator *validator
}

// NewRegistry returns a registry seeded with the default identity event
// types, none of which carry a schema.
func NewRegistry() *Registry {
	r := &Registry{
		types:     make(map[string]Definition),
		validator: newValidator(),
	}

	for _, name := range []string{
		TypeUserCreated, TypeUserUpdated, TypeUserDeleted,
		TypeOrgCreated, TypeOrgUpdated, TypeOrgDeleted,
	} {
		r.types[name] = Definition{Name: name}
	}

	return r
}

// Register adds or replaces an event type definition.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("catalog: register: name is required")
	}

	if len(def.Schema) > 0 {
		if _, err := r.validator.compile(def.Schema); err != nil {
			return fmt.Errorf("catalog: register %q: %w", def.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[def.Name] = def

	return nil
}

// Known reports whether the event type is in the allow-list.
func (r *Registry) Known(eventType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[eventType]
	return ok
}

// Normalize maps an inbound type string onto the allow-list: recognized
// types pass through, everything else (including empty) becomes TypeUnknown.
func (r *Registry) Normalize(eventType string) string {
	if r.Known(eventType) {
		return eventType
	}
	return TypeUnknown
}

// Validate checks a payload against the type's JSON Schema, if one is
// registered. Types without a schema (and unknown types) always pass.
func (r *Registry) Validate(eventType string, raw []byte) error {
	r.mu.RLock()
	def, ok := r.types[eventType]
	r.mu.RUnlock()

	if !ok || len(def.Schema) == 0 {
		return nil
	}

	if err := r.validator.validate(def.Schema, raw); err != nil {
		return fmt.Errorf("catalog: %s payload invalid: %w", eventType, err)
	}

	return nil
}

// Types returns the registered definitions, for inspection APIs.
func (r *Registry) Types() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Definition, 0, len(r.types))
	for _, def := range r.types {
		out = append(out, def)
	}
	return out
}
