// SPDX-License-Identifier: Apache-2.0

package state

// Candidate is one row eligible to win for a given
// (entity_id, schema_key, file_id) tuple at some depth in a version's
// inheritance chain (spec §4.7 "Winner selection").
type Candidate struct {
	Depth       int
	UpdatedAt   string
	CreatedAt   string
	ChangeID    string
	IsTombstone bool
	Snapshot    map[string]any
}

// SelectWinner applies the tie-break rule from spec §4.5/§4.7: smallest
// depth wins; within a depth, the latest (updated_at, created_at,
// change_id) wins. It returns the winning candidate, and false only when
// candidates is empty. The winner may be a tombstone (IsTombstone), which
// means no live row is visible for this tuple, even though a value exists
// at some deeper depth.
func SelectWinner(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if candidateLess(best, c) {
			best = c
		}
	}
	return best, true
}

// candidateLess reports whether `a` should be replaced by `b` as the
// current best (i.e. b wins the tie-break over a).
func candidateLess(a, b Candidate) bool {
	if b.Depth != a.Depth {
		return b.Depth < a.Depth
	}
	if b.UpdatedAt != a.UpdatedAt {
		return b.UpdatedAt > a.UpdatedAt
	}
	if b.CreatedAt != a.CreatedAt {
		return b.CreatedAt > a.CreatedAt
	}
	return b.ChangeID > a.ChangeID
}
