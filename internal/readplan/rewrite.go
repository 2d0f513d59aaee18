// SPDX-License-Identifier: Apache-2.0

package readplan

import (
	"fmt"

	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/opral/lix-sub005/pkg/lixerrors"
)

// parseViewSelect parses a canonical view's defining SQL text (always a
// single parenthesized SELECT) and returns its SelectStmt node.
func parseViewSelect(sql string) (*pgq.Node, error) {
	tree, err := pgq.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("internal canonical view definition failed to parse: %w", err)
	}
	stmts := tree.GetStmts()
	if len(stmts) != 1 {
		return nil, lixerrors.PlanInvariantError{Reason: "canonical view definition must be a single statement"}
	}
	return stmts[0].GetStmt(), nil
}

func rangeVarAlias(rv *pgq.RangeVar) *pgq.Alias {
	if a := rv.GetAlias(); a != nil {
		return a
	}
	// A subquery in FROM must carry an alias in standard SQL; reuse the
	// original relation name so qualified references in the rest of the
	// statement keep resolving.
	return &pgq.Alias{Aliasname: rv.GetRelname()}
}

// canonicalizeSelect rewrites every logical-view and per-schema entity
// view reference reachable from `s` (FROM-clause entries, JOIN arms,
// CTEs, set-operation arms) into its defining subquery. It returns
// whether anything changed so the pipeline's fixed-point loop can
// detect convergence.
func canonicalizeSelect(s *pgq.SelectStmt, catalog SchemaCatalog) (bool, error) {
	if s == nil {
		return false, nil
	}
	changed := false

	if wc := s.GetWithClause(); wc != nil {
		for _, cte := range wc.GetCtes() {
			cteNode, ok := cte.GetNode().(*pgq.Node_CommonTableExpr)
			if !ok {
				continue
			}
			q := cteNode.CommonTableExpr.GetCtequery()
			if q == nil {
				continue
			}
			if qSel, ok := q.GetNode().(*pgq.Node_SelectStmt); ok {
				ch, err := canonicalizeSelect(qSel.SelectStmt, catalog)
				if err != nil {
					return false, err
				}
				changed = changed || ch
			}
		}
	}

	for i, f := range s.GetFromClause() {
		newNode, ch, err := canonicalizeFromEntry(f, catalog)
		if err != nil {
			return false, err
		}
		if ch {
			s.FromClause[i] = newNode
			changed = true
		}
	}

	if l := s.GetLarg(); l != nil {
		ch, err := canonicalizeSelect(l, catalog)
		if err != nil {
			return false, err
		}
		changed = changed || ch
	}
	if r := s.GetRarg(); r != nil {
		ch, err := canonicalizeSelect(r, catalog)
		if err != nil {
			return false, err
		}
		changed = changed || ch
	}

	return changed, nil
}

// canonicalizeFromEntry rewrites a single FROM-clause position (a bare
// relation, a derived table, or a join tree) and reports whether a
// logical view or per-schema entity view reference was found and
// replaced anywhere within it.
func canonicalizeFromEntry(n *pgq.Node, catalog SchemaCatalog) (*pgq.Node, bool, error) {
	if n == nil {
		return n, false, nil
	}
	switch v := n.GetNode().(type) {
	case *pgq.Node_RangeVar:
		relname := v.RangeVar.GetRelname()
		def, ok := viewDefinition(relname)
		if !ok {
			// Not one of the fixed logical views; any relation name that
			// matches a registered schema_key is a per-schema entity view
			// (spec §1, §4.5 "per-schema entity views"), the read-side
			// mirror of RouteEntityWrite's default-case handling.
			if catalog == nil {
				return n, false, nil
			}
			properties, isSchema := catalog.SchemaProperties(relname)
			if !isSchema {
				return n, false, nil
			}
			def = entityViewSQL(relname, properties)
		}
		sub, err := parseViewSelect(def)
		if err != nil {
			return nil, false, err
		}
		replacement := &pgq.Node{Node: &pgq.Node_RangeSubselect{RangeSubselect: &pgq.RangeSubselect{
			Subquery: sub,
			Alias:    rangeVarAlias(v.RangeVar),
		}}}
		return replacement, true, nil

	case *pgq.Node_RangeSubselect:
		sub := v.RangeSubselect.GetSubquery()
		if sub == nil {
			return n, false, nil
		}
		if selNode, ok := sub.GetNode().(*pgq.Node_SelectStmt); ok {
			ch, err := canonicalizeSelect(selNode.SelectStmt, catalog)
			if err != nil {
				return nil, false, err
			}
			return n, ch, nil
		}
		return n, false, nil

	case *pgq.Node_JoinExpr:
		j := v.JoinExpr
		changed := false

		newL, chL, err := canonicalizeFromEntry(j.GetLarg(), catalog)
		if err != nil {
			return nil, false, err
		}
		if chL {
			j.Larg = newL
			changed = true
		}

		newR, chR, err := canonicalizeFromEntry(j.GetRarg(), catalog)
		if err != nil {
			return nil, false, err
		}
		if chR {
			j.Rarg = newR
			changed = true
		}

		return n, changed, nil

	default:
		return n, false, nil
	}
}

// containsLogicalView reports whether `n` still references a
// not-yet-rewritten logical view name anywhere in its FROM tree; used
// by the no-logical-leakage validator after the Lower phase.
func containsLogicalView(n *pgq.Node) bool {
	if n == nil {
		return false
	}
	switch v := n.GetNode().(type) {
	case *pgq.Node_SelectStmt:
		s := v.SelectStmt
		if wc := s.GetWithClause(); wc != nil {
			for _, cte := range wc.GetCtes() {
				if cteNode, ok := cte.GetNode().(*pgq.Node_CommonTableExpr); ok {
					if containsLogicalView(cteNode.CommonTableExpr.GetCtequery()) {
						return true
					}
				}
			}
		}
		for _, f := range s.GetFromClause() {
			if containsLogicalView(f) {
				return true
			}
		}
		if s.GetLarg() != nil && containsLogicalView(&pgq.Node{Node: &pgq.Node_SelectStmt{SelectStmt: s.GetLarg()}}) {
			return true
		}
		if s.GetRarg() != nil && containsLogicalView(&pgq.Node{Node: &pgq.Node_SelectStmt{SelectStmt: s.GetRarg()}}) {
			return true
		}
		return false
	case *pgq.Node_RangeVar:
		return LogicalViews[v.RangeVar.GetRelname()]
	case *pgq.Node_RangeSubselect:
		return containsLogicalView(v.RangeSubselect.GetSubquery())
	case *pgq.Node_JoinExpr:
		return containsLogicalView(v.JoinExpr.GetLarg()) || containsLogicalView(v.JoinExpr.GetRarg())
	default:
		return false
	}
}
