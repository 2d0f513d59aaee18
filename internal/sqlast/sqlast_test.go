// SPDX-License-Identifier: Apache-2.0

package sqlast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndClassify(t *testing.T) {
	tree, err := Parse(`SELECT * FROM lix_state WHERE schema_key = 'lix_key_value'`)
	require.NoError(t, err)
	stmts := tree.Statements()
	require.Len(t, stmts, 1)
	assert.Equal(t, KindQueryRead, Classify(stmts[0]))
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse(`not even close to sql (((`)
	assert.Error(t, err)
}

func TestClassifyInsertUpdateDelete(t *testing.T) {
	cases := map[string]Kind{
		`INSERT INTO lix_state (schema_key) VALUES ('x')`: KindInsert,
		`UPDATE lix_state SET schema_key = 'x'`:            KindUpdate,
		`DELETE FROM lix_state WHERE schema_key = 'x'`:      KindDelete,
		`BEGIN`:                                             KindTransactionControl,
		`CREATE TABLE foo (id text)`:                        KindPassthroughDDL,
		`EXPLAIN SELECT 1`:                                  KindExplainRead,
	}
	for sql, want := range cases {
		tree, err := Parse(sql)
		require.NoError(t, err, sql)
		stmts := tree.Statements()
		require.Len(t, stmts, 1, sql)
		assert.Equal(t, want, Classify(stmts[0]), sql)
	}
}

func TestCollectRelationsFindsJoinAndCTE(t *testing.T) {
	tree, err := Parse(`
		WITH recent AS (SELECT * FROM lix_change WHERE commit_id = 'c1')
		SELECT * FROM lix_state s JOIN recent r ON s.entity_id = r.entity_id
	`)
	require.NoError(t, err)
	stmts := tree.Statements()
	require.Len(t, stmts, 1)

	rels := CollectRelations(stmts[0].Node())
	var names []string
	for _, r := range rels {
		names = append(names, r.Name)
	}
	assert.Contains(t, names, "lix_change")
	assert.Contains(t, names, "lix_state")
}

func TestValidateWalkersAgree(t *testing.T) {
	tree, err := Parse(`
		SELECT * FROM lix_state s
		WHERE s.entity_id IN (SELECT entity_id FROM lix_change WHERE commit_id = 'c1')
	`)
	require.NoError(t, err)
	stmts := tree.Statements()
	require.Len(t, stmts, 1)

	rels, err := ValidateWalkersAgree(stmts[0])
	require.NoError(t, err)

	var names []string
	for _, r := range rels {
		names = append(names, r.Name)
	}
	assert.Contains(t, names, "lix_state")
	assert.Contains(t, names, "lix_change")
}

func TestDeparseRoundTrips(t *testing.T) {
	sql := `SELECT id FROM lix_state WHERE schema_key = 'lix_key_value'`
	tree, err := Parse(sql)
	require.NoError(t, err)
	out, err := Deparse(tree.Statements())
	require.NoError(t, err)
	assert.Contains(t, out, "lix_state")
}
