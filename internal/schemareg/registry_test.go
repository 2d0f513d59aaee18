// SPDX-License-Identifier: Apache-2.0

package schemareg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
	"x-lix-key": "lix_key_value",
	"x-lix-version": "1.0",
	"x-lix-primary-key": ["/key"],
	"type": "object",
	"properties": {
		"key": {"type": "string"},
		"value": {"type": "string"}
	},
	"required": ["key"],
	"additionalProperties": false
}`

func TestRegisterAndValidateStructure(t *testing.T) {
	r := NewRegistry()
	s, err := r.Register([]byte(testSchema))
	require.NoError(t, err)
	assert.Equal(t, "lix_key_value", s.Key)

	key := Key{SchemaKey: "lix_key_value", SchemaVersion: "1.0"}
	v := NewValidator(r, noopEvaluator{}, alwaysExists{})

	_, err = v.ValidateInsert(context.Background(), "global", key, map[string]any{"key": "k", "value": "v"})
	assert.NoError(t, err)

	_, err = v.ValidateInsert(context.Background(), "global", key, map[string]any{"value": "v"})
	assert.Error(t, err)
}

func TestRegisterRejectsUnresolvedPrimaryKeyPointer(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register([]byte(`{
		"x-lix-key": "bad",
		"x-lix-version": "1.0",
		"x-lix-primary-key": ["/missing"],
		"type": "object",
		"properties": {"key": {"type": "string"}}
	}`))
	assert.Error(t, err)
}

type noopEvaluator struct{}

func (noopEvaluator) Eval(expr string, entity map[string]any) (any, error) { return nil, nil }

type alwaysExists struct{}

func (alwaysExists) Exists(ctx context.Context, versionID, schemaKey string, values map[string]any) (bool, error) {
	return true, nil
}
