// SPDX-License-Identifier: Apache-2.0

// Package writeplan implements the write-side statement pipeline (spec
// §4.6): classifying each statement into a rule, rewriting logical-view
// writes into lix_internal_state_vtable mutations, and producing the
// preparatory statements, mutation row descriptions, and at-most-one
// post-process plan the execution runtime needs to derive Change/Commit
// rows (spec §4.8).
package writeplan

// MutationKind is the logical effect a rewritten write has on state.
type MutationKind int

const (
	MutationInsert MutationKind = iota
	MutationUpdate
	MutationDelete
)

func (k MutationKind) String() string {
	switch k {
	case MutationInsert:
		return "insert"
	case MutationUpdate:
		return "update"
	case MutationDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// MutationRow describes one intended logical effect (spec §4.6 item 2).
type MutationRow struct {
	Kind       MutationKind
	SchemaKey  string
	EntityID   string
	FileID     string
	VersionID  string
	Snapshot   map[string]any
	WriterKey  string
}

// PostProcessKind distinguishes the two supported post-process shapes
// (spec §4.6 item 3).
type PostProcessKind int

const (
	PostProcessVtableUpdate PostProcessKind = iota
	PostProcessVtableDelete
)

// PostProcessPlan retains enough information for the runtime to, after
// the statement has executed, read back the rows it touched and build
// the follow-up Change/Commit/ChangeSetElement statements.
type PostProcessPlan struct {
	Kind         PostProcessKind
	SchemaKey    string
	SelectionSQL string
}

// UpdateValidationPlan retains an UPDATE's WHERE clause plus either a
// full replacement snapshot or a partial patch (spec §4.6 item 4).
type UpdateValidationPlan struct {
	WhereSQL string
	Patch    map[string]any
	Full     bool
}

// FileWriteInfo carries the raw bytes written to `lix_file.data` for an
// INSERT, alongside the lix_file_descriptor mutation the same statement
// already produced. The execution runtime uses it to drive the
// file-plugin side-effect engine (spec §4.9 "On file writes") once the
// descriptor row itself has been built.
type FileWriteInfo struct {
	FileID string
	Path   string
	Data   []byte
}

// Plan is the full output of rewriting one write statement.
type Plan struct {
	Preparatory       []string
	Mutations         []MutationRow
	PostProcess       *PostProcessPlan
	UpdateValidations []UpdateValidationPlan
	FileWrite         *FileWriteInfo
}
