// SPDX-License-Identifier: Apache-2.0

package materialize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opral/lix-sub005/internal/backend"
	"github.com/opral/lix-sub005/internal/state"
)

func TestSelectWinnersPrefersSmallestDepth(t *testing.T) {
	writes := selectWinners([]stateRow{
		{SchemaKey: "lix_key_value", EntityID: "k", FileID: "", VersionID: "global", Depth: 1, UpdatedAt: "2026-01-02", SnapshotContent: `{"v":"deep"}`},
		{SchemaKey: "lix_key_value", EntityID: "k", FileID: "", VersionID: "dev", Depth: 0, UpdatedAt: "2026-01-01", SnapshotContent: `{"v":"shallow"}`},
	}, "dev")

	require.Len(t, writes, 1)
	assert.Equal(t, WriteUpsert, writes[0].Kind)
	assert.Equal(t, `{"v":"shallow"}`, writes[0].SnapshotContent)
	assert.Empty(t, writes[0].InheritedFromVersionID, "the depth-0 winner is local, not inherited")
}

func TestSelectWinnersTagsInheritedFromVersion(t *testing.T) {
	writes := selectWinners([]stateRow{
		{SchemaKey: "lix_key_value", EntityID: "k", VersionID: "global", Depth: 1, UpdatedAt: "2026-01-01", SnapshotContent: `{"v":"from-global"}`},
	}, "dev")

	require.Len(t, writes, 1)
	assert.Equal(t, "global", writes[0].InheritedFromVersionID)
	assert.Equal(t, "dev", writes[0].VersionID, "the materialized row is still keyed at the target version")
}

func TestSelectWinnersTombstoneShadowsDeeperRow(t *testing.T) {
	writes := selectWinners([]stateRow{
		{SchemaKey: "lix_key_value", EntityID: "k", VersionID: "dev", Depth: 0, UpdatedAt: "2026-01-02", IsTombstone: true},
		{SchemaKey: "lix_key_value", EntityID: "k", VersionID: "global", Depth: 1, UpdatedAt: "2026-01-01", SnapshotContent: `{"v":"inherited"}`},
	}, "dev")

	require.Len(t, writes, 1)
	assert.Equal(t, WriteTombstone, writes[0].Kind)
	assert.Empty(t, writes[0].SnapshotContent)
}

func TestSelectWinnersTiesBreakByUpdatedThenCreatedThenChangeID(t *testing.T) {
	writes := selectWinners([]stateRow{
		{SchemaKey: "s", EntityID: "e", VersionID: "v", Depth: 0, UpdatedAt: "2026-01-01", ChangeID: "c1", SnapshotContent: `{"n":1}`},
		{SchemaKey: "s", EntityID: "e", VersionID: "v", Depth: 0, UpdatedAt: "2026-01-01", ChangeID: "c2", SnapshotContent: `{"n":2}`},
	}, "v")

	require.Len(t, writes, 1)
	assert.Equal(t, `{"n":2}`, writes[0].SnapshotContent)
}

func TestSelectWinnersHandlesMultipleIndependentTuples(t *testing.T) {
	writes := selectWinners([]stateRow{
		{SchemaKey: "a", EntityID: "1", VersionID: "v", Depth: 0, SnapshotContent: `{}`},
		{SchemaKey: "b", EntityID: "1", VersionID: "v", Depth: 0, SnapshotContent: `{}`},
		{SchemaKey: "a", EntityID: "2", VersionID: "v", Depth: 0, SnapshotContent: `{}`},
	}, "v")
	assert.Len(t, writes, 3)
}

func TestMaterializedTableName(t *testing.T) {
	assert.Equal(t, "lix_internal_state_materialized_v1_lix_key_value", MaterializedTableName("lix_key_value"))
}

func TestApplyIssuesDeleteThenInsertPerWrite(t *testing.T) {
	fb := backend.NewFakeBackend(backend.Sqlite)
	tx, err := fb.BeginTransaction(context.Background())
	require.NoError(t, err)

	plan := &Plan{Writes: []MaterializedWrite{
		{Kind: WriteUpsert, SchemaKey: "lix_key_value", EntityID: "k", VersionID: "global", SnapshotContent: `{"value":"v"}`},
		{Kind: WriteTombstone, SchemaKey: "lix_key_value", EntityID: "k2", VersionID: "global"},
	}}

	report, err := Apply(context.Background(), tx, backend.Sqlite, plan)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RowsWritten)
	assert.Equal(t, 1, report.RowsDeleted)
	assert.Equal(t, []string{"lix_internal_state_materialized_v1_lix_key_value"}, report.TablesTouched)

	log := fb.ExecLog()
	require.Len(t, log, 4, "one DELETE + one INSERT per write")
	assert.Contains(t, log[0], "DELETE FROM lix_internal_state_materialized_v1_lix_key_value")
	assert.Contains(t, log[1], "INSERT INTO lix_internal_state_materialized_v1_lix_key_value")
}

func TestApplyIsIdempotent(t *testing.T) {
	fb := backend.NewFakeBackend(backend.Sqlite)
	tx, err := fb.BeginTransaction(context.Background())
	require.NoError(t, err)

	plan := &Plan{Writes: []MaterializedWrite{
		{Kind: WriteUpsert, SchemaKey: "lix_key_value", EntityID: "k", VersionID: "global", SnapshotContent: `{"value":"v"}`},
	}}

	first, err := Apply(context.Background(), tx, backend.Sqlite, plan)
	require.NoError(t, err)
	second, err := Apply(context.Background(), tx, backend.Sqlite, plan)
	require.NoError(t, err)

	assert.Equal(t, first.RowsWritten, second.RowsWritten)
	assert.Equal(t, first.TablesTouched, second.TablesTouched)
}

func TestPlannerPlanWithExplicitScopeDoesNotError(t *testing.T) {
	fb := backend.NewFakeBackend(backend.Sqlite)
	chain := state.NewChainResolver(fb)
	planner := NewPlanner(fb, chain)

	plan, err := planner.Plan(context.Background(), Request{
		Scope: Scope{VersionIDs: []string{"global"}},
		Debug: DebugFull,
	})
	require.NoError(t, err)
	assert.NotNil(t, plan.Trace, "DebugFull requests must carry a trace")
}

func TestPlannerPlanRejectsEmptyExplicitScope(t *testing.T) {
	fb := backend.NewFakeBackend(backend.Sqlite)
	chain := state.NewChainResolver(fb)
	planner := NewPlanner(fb, chain)

	_, err := planner.Plan(context.Background(), Request{Scope: Scope{}})
	assert.Error(t, err)
}
