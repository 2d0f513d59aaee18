// SPDX-License-Identifier: Apache-2.0

package sqlast

import pgq "github.com/pganalyze/pg_query_go/v6"

// Kind is the coarse statement category the write pipeline's rule list
// dispatches on (spec §4.6).
type Kind int

const (
	KindQueryRead Kind = iota
	KindExplainRead
	KindInsert
	KindUpdate
	KindDelete
	KindTransactionControl
	KindPassthroughDDL
	KindUnknown
)

// Classify inspects a statement's top-level node and returns its Kind.
func Classify(s *Statement) Kind {
	switch n := s.node.GetNode().(type) {
	case *pgq.Node_SelectStmt:
		return KindQueryRead
	case *pgq.Node_ExplainStmt:
		return KindExplainRead
	case *pgq.Node_InsertStmt:
		return KindInsert
	case *pgq.Node_UpdateStmt:
		return KindUpdate
	case *pgq.Node_DeleteStmt:
		return KindDelete
	case *pgq.Node_TransactionStmt:
		return KindTransactionControl
	case *pgq.Node_CreateStmt, *pgq.Node_AlterTableStmt, *pgq.Node_RenameStmt,
		*pgq.Node_CreateSchemaStmt, *pgq.Node_DropStmt, *pgq.Node_IndexStmt,
		*pgq.Node_ViewStmt:
		return KindPassthroughDDL
	default:
		_ = n
		return KindUnknown
	}
}

// SelectStmt returns the underlying SelectStmt node, or nil if `s` is
// not a SELECT.
func (s *Statement) SelectStmt() *pgq.SelectStmt {
	if n, ok := s.node.GetNode().(*pgq.Node_SelectStmt); ok {
		return n.SelectStmt
	}
	return nil
}

func (s *Statement) InsertStmt() *pgq.InsertStmt {
	if n, ok := s.node.GetNode().(*pgq.Node_InsertStmt); ok {
		return n.InsertStmt
	}
	return nil
}

func (s *Statement) UpdateStmt() *pgq.UpdateStmt {
	if n, ok := s.node.GetNode().(*pgq.Node_UpdateStmt); ok {
		return n.UpdateStmt
	}
	return nil
}

func (s *Statement) DeleteStmt() *pgq.DeleteStmt {
	if n, ok := s.node.GetNode().(*pgq.Node_DeleteStmt); ok {
		return n.DeleteStmt
	}
	return nil
}
