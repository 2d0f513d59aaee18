// SPDX-License-Identifier: Apache-2.0

package readplan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opral/lix-sub005/internal/sqlast"
)

type fakeCatalog struct {
	tables  []string
	schemas map[string][]string
}

func (c fakeCatalog) MaterializedTableNames() []string { return c.tables }

func (c fakeCatalog) SchemaProperties(schemaKey string) ([]string, bool) {
	props, ok := c.schemas[schemaKey]
	return props, ok
}

func parseOne(t *testing.T, sql string) *sqlast.Statement {
	t.Helper()
	tree, err := sqlast.Parse(sql)
	require.NoError(t, err)
	stmts := tree.Statements()
	require.Len(t, stmts, 1)
	return stmts[0]
}

func TestRunCanonicalizesLixState(t *testing.T) {
	stmt := parseOne(t, `SELECT * FROM lix_state WHERE schema_key = 'lix_key_value'`)
	catalog := fakeCatalog{tables: []string{"lix_internal_state_materialized_v1_lix_key_value"}}

	plan, err := Run(stmt, catalog)
	require.NoError(t, err)

	out, err := sqlast.Deparse([]*sqlast.Statement{plan.Statement})
	require.NoError(t, err)

	assert.NotContains(t, out, "lix_state ")
	assert.Contains(t, out, "lix_internal_state_materialized_v1_lix_key_value")
}

func TestRunCanonicalizesActiveVersion(t *testing.T) {
	stmt := parseOne(t, `SELECT version_id FROM lix_active_version`)
	catalog := fakeCatalog{}

	plan, err := Run(stmt, catalog)
	require.NoError(t, err)

	out, err := sqlast.Deparse([]*sqlast.Statement{plan.Statement})
	require.NoError(t, err)
	assert.Contains(t, out, "lix_internal_state_untracked")
}

func TestRunPassesUnknownTableThroughUnchanged(t *testing.T) {
	stmt := parseOne(t, `SELECT * FROM not_a_real_table`)
	catalog := fakeCatalog{}

	plan, err := Run(stmt, catalog)
	require.NoError(t, err)

	var names []string
	for _, r := range plan.Relations {
		names = append(names, r.Name)
	}
	assert.Contains(t, names, "not_a_real_table")
}

func TestRunCanonicalizesPerSchemaEntityView(t *testing.T) {
	stmt := parseOne(t, `SELECT value FROM lix_key_value WHERE key = 'k'`)
	catalog := fakeCatalog{
		tables:  []string{"lix_internal_state_materialized_v1_lix_key_value"},
		schemas: map[string][]string{"lix_key_value": {"key", "value"}},
	}

	plan, err := Run(stmt, catalog)
	require.NoError(t, err)

	out, err := sqlast.Deparse([]*sqlast.Statement{plan.Statement})
	require.NoError(t, err)

	assert.NotContains(t, out, "FROM lix_key_value")
	assert.Contains(t, out, "lix_internal_state_materialized_v1_lix_key_value")
	assert.Contains(t, out, "'k'")
}

func TestRunPushesEqualityPredicateIntoSubquery(t *testing.T) {
	stmt := parseOne(t, `SELECT * FROM lix_state_by_version s WHERE s.version_id = 'v1'`)
	catalog := fakeCatalog{tables: []string{"lix_internal_state_materialized_v1_lix_key_value"}}

	plan, err := Run(stmt, catalog)
	require.NoError(t, err)

	out, err := sqlast.Deparse([]*sqlast.Statement{plan.Statement})
	require.NoError(t, err)
	assert.Contains(t, out, "'v1'")
	assert.Equal(t, 2, strings.Count(out, "'v1'"), "predicate stays outside and is pushed once into the derived table")
}
