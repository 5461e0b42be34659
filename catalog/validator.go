package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// validator compiles and caches JSON Schemas keyed by schema content.
type validator struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

func newValidator() *validator {
	return &validator{
		cache: make(map[string]*jsonschema.Schema),
	}
}

// validate checks raw payload bytes against the given schema document.
func (v *validator) validate(schema json.RawMessage, raw []byte) error {
	compiled, err := v.compile(schema)
	if err != nil {
		return fmt.Errorf("schema compilation error: %w", err)
	}

	var data any
	if unmarshalErr := json.Unmarshal(raw, &data); unmarshalErr != nil {
		return fmt.Errorf("decode payload: %w", unmarshalErr)
	}

	return compiled.Validate(data)
}

// compile returns a compiled schema, using the cache for previously-seen
// schema documents.
func (v *validator) compile(schema json.RawMessage) (*jsonschema.Schema, error) {
	sum := sha256.Sum256(schema)
	key := hex.EncodeToString(sum[:])

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	var doc any
	if err := json.Unmarshal(schema, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	url := "prism://schema/" + key

	c := jsonschema.NewCompiler()
	if addErr := c.AddResource(url, doc); addErr != nil {
		return nil, fmt.Errorf("add schema resource: %w", addErr)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.mu.Lock()
	v.cache[key] = compiled
	v.mu.Unlock()

	return compiled, nil
}
