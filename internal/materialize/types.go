// SPDX-License-Identifier: Apache-2.0

package materialize

// DebugMode controls how much of the materialization trace a Plan call
// retains (spec §4.7).
type DebugMode int

const (
	DebugNone DebugMode = iota
	DebugSummary
	DebugFull
)

// Scope selects which versions a materialization request covers: either
// every version known to the engine (Full) or an explicit set.
type Scope struct {
	Full       bool
	VersionIDs []string
}

// Request is the input to Planner.Plan.
type Request struct {
	Scope Scope
	Debug DebugMode
}

// WriteKind distinguishes a live-row upsert from a tombstone write to a
// materialized table.
type WriteKind int

const (
	WriteUpsert WriteKind = iota
	WriteTombstone
)

func (k WriteKind) String() string {
	if k == WriteTombstone {
		return "tombstone"
	}
	return "upsert"
}

// MaterializedWrite is one row to write into
// lix_internal_state_materialized_v1_<schema_key> for a target version
// (spec §6 persisted state layout).
type MaterializedWrite struct {
	Kind WriteKind

	SchemaKey     string
	EntityID      string
	FileID        string
	VersionID     string
	SchemaVersion string
	PluginKey     string

	// SnapshotContent is empty for a WriteTombstone row.
	SnapshotContent string

	// InheritedFromVersionID is empty when the winning row is local to
	// VersionID (depth 0); otherwise it names the ancestor version the
	// content was copied from (copy-on-write inheritance, spec §3
	// invariant 5).
	InheritedFromVersionID string

	ChangeID  string
	Metadata  string
	WriterKey string

	CreatedAt string
	UpdatedAt string
}

// Trace records the debug-only traversal detail spec §4.7 describes for
// DebugSummary/DebugFull requests.
type Trace struct {
	TipsPerVersion map[string]string

	// TraversedCommits and TraversedEdges are only populated in DebugFull.
	TraversedCommits []string
	TraversedEdges   [][2]string

	AncestryRows         int
	LatestVisibleWinners int
	InheritanceWinners   int
}

// Plan is the output of Planner.Plan: a list of writes plus an optional
// trace.
type Plan struct {
	Writes []MaterializedWrite
	Trace  *Trace
}

// ApplyReport summarizes the effect of applying a Plan (spec §4.7
// "Apply").
type ApplyReport struct {
	RowsWritten   int
	RowsDeleted   int
	TablesTouched []string
}
