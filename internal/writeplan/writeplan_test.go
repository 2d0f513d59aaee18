// SPDX-License-Identifier: Apache-2.0

package writeplan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opral/lix-sub005/internal/schemareg"
	"github.com/opral/lix-sub005/internal/sqlast"
)

const kvSchema = `{
	"x-lix-key": "lix_key_value",
	"x-lix-version": "1.0",
	"x-lix-primary-key": ["/key"],
	"type": "object",
	"properties": {"key": {"type": "string"}, "value": {"type": "string"}},
	"required": ["key"],
	"additionalProperties": false
}`

type noopEvaluator struct{}

func (noopEvaluator) Eval(expr string, entity map[string]any) (any, error) { return nil, nil }

type alwaysExists struct{}

func (alwaysExists) Exists(ctx context.Context, versionID, schemaKey string, values map[string]any) (bool, error) {
	return true, nil
}

func parseOne(t *testing.T, sql string) *sqlast.Statement {
	t.Helper()
	tree, err := sqlast.Parse(sql)
	require.NoError(t, err)
	stmts := tree.Statements()
	require.Len(t, stmts, 1)
	return stmts[0]
}

func newTestContext(t *testing.T) Context {
	t.Helper()
	reg := schemareg.NewRegistry()
	_, err := reg.Register([]byte(kvSchema))
	require.NoError(t, err)
	return Context{
		VersionID: "global",
		WriterKey: "test",
		Registry:  reg,
		Validator: schemareg.NewValidator(reg, noopEvaluator{}, alwaysExists{}),
	}
}

func TestBuildEntityInsert(t *testing.T) {
	s := parseOne(t, `INSERT INTO lix_key_value (key, value) VALUES ('k', 'v')`)
	plan, err := Build(context.Background(), s, newTestContext(t))
	require.NoError(t, err)
	require.Len(t, plan.Mutations, 1)
	assert.Equal(t, MutationInsert, plan.Mutations[0].Kind)
	assert.Equal(t, "lix_key_value", plan.Mutations[0].SchemaKey)
	assert.Equal(t, "k", plan.Mutations[0].EntityID)
}

func TestBuildEntityUpdateProducesPostProcessPlan(t *testing.T) {
	s := parseOne(t, `UPDATE lix_key_value SET value = 'v2' WHERE key = 'k'`)
	plan, err := Build(context.Background(), s, newTestContext(t))
	require.NoError(t, err)
	require.NotNil(t, plan.PostProcess)
	assert.Equal(t, PostProcessVtableUpdate, plan.PostProcess.Kind)
	assert.Contains(t, plan.PostProcess.SelectionSQL, "lix_key_value")
}

func TestBuildRejectsHistoryWrite(t *testing.T) {
	s := parseOne(t, `INSERT INTO lix_key_value_history (key, value) VALUES ('k', 'v')`)
	_, err := Build(context.Background(), s, newTestContext(t))
	assert.Error(t, err)
}

func TestBuildReadDelegatesWithNilPlan(t *testing.T) {
	s := parseOne(t, `SELECT * FROM lix_key_value`)
	plan, err := Build(context.Background(), s, newTestContext(t))
	require.NoError(t, err)
	assert.Nil(t, plan)
}
