// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"encoding/json"

	"github.com/opral/lix-sub005/internal/backend"
)

// LiveState implements schemareg.LiveStateLookup by walking a version's
// inheritance chain in Go and applying the same winner-selection rule
// the SQL read pipeline uses, so foreign-key validation (spec §4.2 step
// 4) sees exactly the rows a subsequent read against lix_state would.
type LiveState struct {
	q     backend.Queryer
	chain *ChainResolver
}

func NewLiveState(q backend.Queryer, chain *ChainResolver) *LiveState {
	return &LiveState{q: q, chain: chain}
}

// Exists reports whether a live (non-tombstone) row of schemaKey exists
// in versionID's visible state whose snapshot fields match `values` at
// every key.
func (l *LiveState) Exists(ctx context.Context, versionID, schemaKey string, values map[string]any) (bool, error) {
	chain, err := l.chain.Resolve(ctx, versionID)
	if err != nil {
		return false, err
	}
	depthOf := make(map[string]int, len(chain))
	for i, v := range chain {
		depthOf[v] = i
	}

	rows, err := l.q.Execute(ctx,
		`SELECT version_id, updated_at, created_at, change_id, is_tombstone, snapshot_content
		 FROM lix_internal_state_vtable
		 WHERE schema_key = ?1`,
		[]backend.Value{backend.Text(schemaKey)})
	if err != nil {
		return false, err
	}

	grouped := make(map[string][]Candidate)
	for _, row := range rows.Rows {
		rowVersion := row[0].Text
		depth, inChain := depthOf[rowVersion]
		if !inChain {
			continue
		}
		var snapshot map[string]any
		if !row[5].IsNull() {
			if err := json.Unmarshal([]byte(row[5].Text), &snapshot); err != nil {
				continue
			}
		}
		entityKey := entityMatchKey(snapshot)
		grouped[entityKey] = append(grouped[entityKey], Candidate{
			Depth:       depth,
			UpdatedAt:   row[1].Text,
			CreatedAt:   row[2].Text,
			ChangeID:    row[3].Text,
			IsTombstone: row[4].Boolean,
			Snapshot:    snapshot,
		})
	}

	for _, candidates := range grouped {
		winner, ok := SelectWinner(candidates)
		if !ok || winner.IsTombstone {
			continue
		}
		if matchesAll(winner.Snapshot, values) {
			return true, nil
		}
	}
	return false, nil
}

// entityMatchKey groups candidates that represent the same logical
// entity before winner selection; falling back to the whole snapshot's
// JSON keeps rows with no common identifier from colliding.
func entityMatchKey(snapshot map[string]any) string {
	if id, ok := snapshot["id"].(string); ok {
		return id
	}
	if key, ok := snapshot["key"].(string); ok {
		return key
	}
	encoded, _ := json.Marshal(snapshot)
	return string(encoded)
}

func matchesAll(snapshot, wanted map[string]any) bool {
	for k, v := range wanted {
		got, ok := snapshot[k]
		if !ok {
			return false
		}
		if !valuesEqual(got, v) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aj) == string(bj)
}
