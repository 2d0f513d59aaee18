// SPDX-License-Identifier: Apache-2.0

package schemareg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/opral/lix-sub005/pkg/lixerrors"
)

// Registry is the process-wide cache of compiled JSON schemas, keyed by
// (schema_key, schema_version), shared behind a read/write lock and
// compiled on miss (spec §4.2, §5 "Schema validators").
type Registry struct {
	mu       sync.RWMutex
	decoded  map[Key]StoredSchema
	compiled map[Key]*jsonschema.Schema
	latest   map[string]string // schema_key -> most recently registered schema_version
}

func NewRegistry() *Registry {
	return &Registry{
		decoded:  make(map[Key]StoredSchema),
		compiled: make(map[Key]*jsonschema.Schema),
		latest:   make(map[string]string),
	}
}

// Register decodes and caches a schema document. It is called both for
// already-committed schemas loaded at boot and for schemas arriving in
// the current mutation batch (spec §4.2 step 1: schema + first instance
// may arrive together).
func (r *Registry) Register(raw json.RawMessage) (StoredSchema, error) {
	var s StoredSchema
	if err := json.Unmarshal(raw, &s); err != nil {
		return StoredSchema{}, lixerrors.ValidationError{Reason: fmt.Sprintf("invalid schema definition: %s", err)}
	}
	if s.Key == "" || s.Version == "" {
		return StoredSchema{}, lixerrors.ValidationError{Reason: "schema definition missing x-lix-key or x-lix-version"}
	}
	s.Raw = raw

	if err := validatePointerGroups(s); err != nil {
		return StoredSchema{}, err
	}

	key := Key{SchemaKey: s.Key, SchemaVersion: s.Version}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoded[key] = s
	r.latest[s.Key] = s.Version
	delete(r.compiled, key) // force recompile on next validation
	return s, nil
}

// Lookup returns a previously-registered schema.
func (r *Registry) Lookup(key Key) (StoredSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.decoded[key]
	return s, ok
}

// SchemaKeys returns every registered schema_key, used by the boot
// sequence to enumerate the materialized tables lix_internal_state_vtable
// must union together (spec §4.5 Lower).
func (r *Registry) SchemaKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.latest))
	for k := range r.latest {
		keys = append(keys, k)
	}
	return keys
}

// PropertyNames returns the sorted top-level JSON-Schema property names
// declared by the latest registered version of schemaKey, or false if
// schemaKey is not registered. The read pipeline uses this to expand a
// per-schema entity view reference into a projection that flattens
// snapshot_content's fields into named columns (spec §4.5 Canonicalize,
// "per-schema entity views").
func (r *Registry) PropertyNames(schemaKey string) ([]string, bool) {
	r.mu.RLock()
	version, ok := r.latest[schemaKey]
	if !ok {
		r.mu.RUnlock()
		return nil, false
	}
	s, ok := r.decoded[Key{SchemaKey: schemaKey, SchemaVersion: version}]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	var doc struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(s.Raw, &doc); err != nil {
		return nil, false
	}
	names := make([]string, 0, len(doc.Properties))
	for name := range doc.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, true
}

// LatestVersion returns the schema_version most recently registered for
// schemaKey, used by the write pipeline to resolve a per-schema entity
// view write to a concrete (schema_key, schema_version) pair.
func (r *Registry) LatestVersion(schemaKey string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.latest[schemaKey]
	return v, ok
}

// compiledSchema returns the cached compiled jsonschema.Schema for
// `key`, compiling on miss.
func (r *Registry) compiledSchema(key Key) (*jsonschema.Schema, error) {
	r.mu.RLock()
	cs, ok := r.compiled[key]
	decoded, hasDecoded := r.decoded[key]
	r.mu.RUnlock()

	if ok {
		return cs, nil
	}
	if !hasDecoded {
		return nil, lixerrors.ValidationError{SchemaKey: key.SchemaKey, Reason: "schema not registered"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cs, ok := r.compiled[key]; ok {
		return cs, nil
	}

	url := fmt.Sprintf("mem://%s/%s", key.SchemaKey, key.SchemaVersion)
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(decoded.Raw))
	if err != nil {
		return nil, lixerrors.ValidationError{SchemaKey: key.SchemaKey, Reason: fmt.Sprintf("invalid schema definition: %s", err)}
	}
	if err := c.AddResource(url, doc); err != nil {
		return nil, lixerrors.ValidationError{SchemaKey: key.SchemaKey, Reason: fmt.Sprintf("invalid schema definition: %s", err)}
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, lixerrors.ValidationError{SchemaKey: key.SchemaKey, Reason: fmt.Sprintf("invalid schema definition: %s", err)}
	}

	r.compiled[key] = compiled
	return compiled, nil
}

// validatePointerGroups checks that every property listed in
// x-lix-primary-key and each x-lix-unique group resolves to an actual
// property path (spec §4.2 step 3).
func validatePointerGroups(s StoredSchema) error {
	var props map[string]json.RawMessage
	var doc struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(s.Raw, &doc); err == nil {
		props = doc.Properties
	}

	check := func(pointer string) error {
		name := trimPointer(pointer)
		if props != nil {
			if _, ok := props[name]; !ok {
				return lixerrors.ValidationError{
					SchemaKey: s.Key,
					Reason:    fmt.Sprintf("primary/unique key pointer %q does not resolve to a property", pointer),
				}
			}
		}
		return nil
	}

	for _, p := range s.PrimaryKey {
		if err := check(p); err != nil {
			return err
		}
	}
	for _, group := range s.Unique {
		for _, p := range group {
			if err := check(p); err != nil {
				return err
			}
		}
	}
	return nil
}

// trimPointer strips a leading "/" from a JSON pointer. Only top-level
// property pointers are supported for primary/unique keys.
func trimPointer(pointer string) string {
	if len(pointer) > 0 && pointer[0] == '/' {
		return pointer[1:]
	}
	return pointer
}
