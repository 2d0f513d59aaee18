// SPDX-License-Identifier: Apache-2.0

package writeplan

import (
	"strings"

	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/opral/lix-sub005/internal/sqlast"
)

// Route is the statement rule list's dispatch target (spec §4.6).
type Route int

const (
	RouteRead Route = iota
	RouteExplain
	RouteFilesystemWrite
	RouteEntityWrite
	RouteHistoryWriteRejected
	RouteInternalVtableWrite
	RouteTransactionControl
	RoutePassthrough
	RouteUnknown
)

var filesystemViews = map[string]bool{
	"lix_file":      true,
	"lix_directory": true,
}

// historyViewSuffix marks any relation ending in _history as read-only
// (spec §4.6 "history view write"; covers both lix_state_history and
// the generated `<schema_key>_history` views such as
// lix_key_value_history).
const historyViewSuffix = "_history"

var internalVtableNames = map[string]bool{
	"lix_internal_state_vtable": true,
}

// Classify determines which rule in the statement rule list a
// write-shaped statement falls under, given the single relation it
// targets (the INSERT/UPDATE/DELETE's Relation).
func Classify(s *sqlast.Statement, relation string) Route {
	switch sqlast.Classify(s) {
	case sqlast.KindQueryRead:
		return RouteRead
	case sqlast.KindExplainRead:
		return RouteExplain
	case sqlast.KindTransactionControl:
		return RouteTransactionControl
	case sqlast.KindPassthroughDDL:
		return RoutePassthrough
	case sqlast.KindInsert, sqlast.KindUpdate, sqlast.KindDelete:
		switch {
		case strings.HasSuffix(relation, historyViewSuffix):
			return RouteHistoryWriteRejected
		case filesystemViews[relation]:
			return RouteFilesystemWrite
		case internalVtableNames[relation]:
			return RouteInternalVtableWrite
		default:
			return RouteEntityWrite
		}
	default:
		return RouteUnknown
	}
}

// TargetRelation returns the single relation name an INSERT/UPDATE/
// DELETE statement mutates.
func TargetRelation(s *sqlast.Statement) string {
	if ins := s.InsertStmt(); ins != nil {
		return ins.GetRelation().GetRelname()
	}
	if upd := s.UpdateStmt(); upd != nil {
		return upd.GetRelation().GetRelname()
	}
	if del := s.DeleteStmt(); del != nil {
		return del.GetRelation().GetRelname()
	}
	return ""
}

// relationNode returns the *pgq.RangeVar a write statement targets.
func relationNode(s *sqlast.Statement) *pgq.RangeVar {
	if ins := s.InsertStmt(); ins != nil {
		return ins.GetRelation()
	}
	if upd := s.UpdateStmt(); upd != nil {
		return upd.GetRelation()
	}
	if del := s.DeleteStmt(); del != nil {
		return del.GetRelation()
	}
	return nil
}
