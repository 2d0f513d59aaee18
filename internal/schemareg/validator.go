// SPDX-License-Identifier: Apache-2.0

package schemareg

import (
	"context"
	"fmt"

	"github.com/opral/lix-sub005/pkg/lixerrors"
)

// DefaultEvaluator evaluates a CEL `x-lix-default` expression against
// the partially-built entity (spec §4.2 step 5, §4.3).
type DefaultEvaluator interface {
	Eval(expr string, entity map[string]any) (any, error)
}

// LiveStateLookup resolves whether a live row with the given property
// values exists in the current version's visible state, used for
// foreign-key validation (spec §4.2 step 4). The state package provides
// the concrete implementation; schemareg only depends on this interface
// to avoid a cycle.
type LiveStateLookup interface {
	// Exists reports whether a live row of `schemaKey` has the given
	// pointer->value assignments in `versionID`'s visible state.
	Exists(ctx context.Context, versionID, schemaKey string, values map[string]any) (bool, error)
}

// Validator runs the full §4.2 validation/default pipeline for a single
// mutation.
type Validator struct {
	registry *Registry
	defaults DefaultEvaluator
	state    LiveStateLookup
}

func NewValidator(registry *Registry, defaults DefaultEvaluator, state LiveStateLookup) *Validator {
	return &Validator{registry: registry, defaults: defaults, state: state}
}

// ValidateInsert applies defaulting then structural+referential
// validation to a snapshot being inserted into `versionID`.
func (v *Validator) ValidateInsert(ctx context.Context, versionID string, key Key, snapshot map[string]any) (map[string]any, error) {
	s, ok := v.registry.Lookup(key)
	if !ok {
		return nil, lixerrors.ValidationError{SchemaKey: key.SchemaKey, Reason: "schema not registered"}
	}

	out, err := v.applyDefaults(s, snapshot)
	if err != nil {
		return nil, err
	}

	if err := v.validateStructure(key, out); err != nil {
		return nil, err
	}

	if err := v.validateForeignKeys(ctx, versionID, s, out); err != nil {
		return nil, err
	}

	return out, nil
}

// ValidateUpdate validates a snapshot already merged with its previous
// content (no defaulting: defaults only apply on INSERT per spec §4.2
// step 5).
func (v *Validator) ValidateUpdate(ctx context.Context, versionID string, key Key, snapshot map[string]any) error {
	s, ok := v.registry.Lookup(key)
	if !ok {
		return lixerrors.ValidationError{SchemaKey: key.SchemaKey, Reason: "schema not registered"}
	}
	if err := v.validateStructure(key, snapshot); err != nil {
		return err
	}
	return v.validateForeignKeys(ctx, versionID, s, snapshot)
}

func (v *Validator) applyDefaults(s StoredSchema, snapshot map[string]any) (map[string]any, error) {
	if len(s.Defaults) == 0 {
		return snapshot, nil
	}

	out := make(map[string]any, len(snapshot)+len(s.Defaults))
	for k, val := range snapshot {
		out[k] = val
	}

	for prop, expr := range s.Defaults {
		if _, present := out[prop]; present {
			continue
		}
		val, err := v.defaults.Eval(expr, out)
		if err != nil {
			return nil, err
		}
		out[prop] = val
	}

	return out, nil
}

func (v *Validator) validateStructure(key Key, snapshot map[string]any) error {
	schema, err := v.registry.compiledSchema(key)
	if err != nil {
		return err
	}
	if err := schema.Validate(snapshot); err != nil {
		return lixerrors.ValidationError{SchemaKey: key.SchemaKey, Reason: err.Error()}
	}
	return nil
}

func (v *Validator) validateForeignKeys(ctx context.Context, versionID string, s StoredSchema, snapshot map[string]any) error {
	for _, fk := range s.ForeignKeys {
		values := make(map[string]any, len(fk.References.Properties))
		for i, localPointer := range fk.Properties {
			if i >= len(fk.References.Properties) {
				break
			}
			val, ok := snapshot[trimPointer(localPointer)]
			if !ok {
				return lixerrors.ValidationError{
					SchemaKey: s.Key,
					Reason:    fmt.Sprintf("foreign key references missing local property %q", localPointer),
				}
			}
			values[trimPointer(fk.References.Properties[i])] = val
		}

		exists, err := v.state.Exists(ctx, versionID, fk.References.SchemaKey, values)
		if err != nil {
			return err
		}
		if !exists {
			return lixerrors.ValidationError{
				SchemaKey: s.Key,
				Reason:    fmt.Sprintf("foreign key target not found in schema %q", fk.References.SchemaKey),
			}
		}
	}
	return nil
}
