// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opral/lix-sub005/internal/backend"
)

func TestChainResolverCachesByVersionID(t *testing.T) {
	// FakeBackend logs statements rather than interpreting them, so this
	// exercises the no-parent-found path and the session cache; full
	// inheritance-walk coverage lives in the engine package's tests
	// against a real SQLite file.
	fb := backend.NewFakeBackend(backend.Sqlite)
	resolver := NewChainResolver(fb)

	chain, err := resolver.Resolve(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, chain)

	logCountBefore := len(fb.ExecLog())
	_, err = resolver.Resolve(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, logCountBefore, len(fb.ExecLog()), "second resolve for the same version should hit the session cache")
}

func TestSelectWinnerPrefersSmallestDepth(t *testing.T) {
	winner, ok := SelectWinner([]Candidate{
		{Depth: 1, UpdatedAt: "2026-01-02", Snapshot: map[string]any{"v": "deep"}},
		{Depth: 0, UpdatedAt: "2026-01-01", Snapshot: map[string]any{"v": "shallow"}},
	})
	require.True(t, ok)
	assert.Equal(t, "shallow", winner.Snapshot["v"])
}

func TestSelectWinnerTiesBreakByUpdatedAtThenChangeID(t *testing.T) {
	winner, ok := SelectWinner([]Candidate{
		{Depth: 0, UpdatedAt: "2026-01-01", ChangeID: "c1", Snapshot: map[string]any{"v": "first"}},
		{Depth: 0, UpdatedAt: "2026-01-01", ChangeID: "c2", Snapshot: map[string]any{"v": "second"}},
	})
	require.True(t, ok)
	assert.Equal(t, "second", winner.Snapshot["v"])
}

func TestSelectWinnerTombstoneShadowsDeeperRow(t *testing.T) {
	winner, ok := SelectWinner([]Candidate{
		{Depth: 0, UpdatedAt: "2026-01-02", IsTombstone: true},
		{Depth: 1, UpdatedAt: "2026-01-01", Snapshot: map[string]any{"v": "inherited"}},
	})
	require.True(t, ok)
	assert.True(t, winner.IsTombstone)
}
