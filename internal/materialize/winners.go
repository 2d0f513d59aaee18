// SPDX-License-Identifier: Apache-2.0

package materialize

import "sort"

// stateRow is one candidate row fetched from lix_internal_state_vtable
// at a known depth within a target version's inheritance chain.
type stateRow struct {
	SchemaKey       string
	EntityID        string
	FileID          string
	VersionID       string
	SchemaVersion   string
	PluginKey       string
	SnapshotContent string
	ChangeID        string
	Metadata        string
	WriterKey       string
	CreatedAt       string
	UpdatedAt       string
	IsTombstone     bool
	Depth           int
}

type tupleKey struct {
	SchemaKey string
	EntityID  string
	FileID    string
}

// selectWinners groups rows by (schema_key, entity_id, file_id) and picks
// the winner for each tuple using the same tie-break rule as
// state.SelectWinner: smallest depth; within depth, latest
// (updated_at, created_at, change_id) (spec §4.7 "Winner selection").
//
// The result is one MaterializedWrite per tuple, addressed at
// targetVersion regardless of which chain member actually won — that is
// the materialized table's "flattened" view of inheritance.
func selectWinners(rows []stateRow, targetVersion string) []MaterializedWrite {
	groups := make(map[tupleKey][]stateRow)
	var order []tupleKey
	for _, r := range rows {
		k := tupleKey{SchemaKey: r.SchemaKey, EntityID: r.EntityID, FileID: r.FileID}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	writes := make([]MaterializedWrite, 0, len(order))
	for _, k := range order {
		winner := groups[k][0]
		for _, candidate := range groups[k][1:] {
			if rowWins(winner, candidate) {
				winner = candidate
			}
		}

		kind := WriteUpsert
		if winner.IsTombstone {
			kind = WriteTombstone
		}
		inheritedFrom := ""
		if winner.VersionID != targetVersion {
			inheritedFrom = winner.VersionID
		}

		writes = append(writes, MaterializedWrite{
			Kind:                   kind,
			SchemaKey:              k.SchemaKey,
			EntityID:               k.EntityID,
			FileID:                 k.FileID,
			VersionID:              targetVersion,
			SchemaVersion:          winner.SchemaVersion,
			PluginKey:              winner.PluginKey,
			SnapshotContent:        winner.SnapshotContent,
			InheritedFromVersionID: inheritedFrom,
			ChangeID:               winner.ChangeID,
			Metadata:               winner.Metadata,
			WriterKey:              winner.WriterKey,
			CreatedAt:              winner.CreatedAt,
			UpdatedAt:              winner.UpdatedAt,
		})
	}

	sort.Slice(writes, func(i, j int) bool {
		if writes[i].SchemaKey != writes[j].SchemaKey {
			return writes[i].SchemaKey < writes[j].SchemaKey
		}
		if writes[i].EntityID != writes[j].EntityID {
			return writes[i].EntityID < writes[j].EntityID
		}
		return writes[i].FileID < writes[j].FileID
	})
	return writes
}

// rowWins reports whether `candidate` beats `current` under the §4.7
// tie-break rule: smaller depth wins; within a depth, latest
// (updated_at, created_at, change_id) wins. A tombstone is eligible to
// win the rank like any other row — it is rendered as a WriteTombstone
// rather than being excluded, since the materialized table must record
// that the tuple is shadowed at this version.
func rowWins(current, candidate stateRow) bool {
	if candidate.Depth != current.Depth {
		return candidate.Depth < current.Depth
	}
	if candidate.UpdatedAt != current.UpdatedAt {
		return candidate.UpdatedAt > current.UpdatedAt
	}
	if candidate.CreatedAt != current.CreatedAt {
		return candidate.CreatedAt > current.CreatedAt
	}
	return candidate.ChangeID > current.ChangeID
}
