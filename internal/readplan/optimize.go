// SPDX-License-Identifier: Apache-2.0

package readplan

import pgq "github.com/pganalyze/pg_query_go/v6"

// pushableColumns are the columns spec §4.5 names for predicate
// pushdown into the winner-selection source: "push column-equality
// predicates on entity_id, schema_key, file_id, version_id, plugin_key
// down to the winner-selection source".
var pushableColumns = map[string]bool{
	"entity_id":  true,
	"schema_key": true,
	"file_id":    true,
	"version_id": true,
	"plugin_key": true,
}

type equalityPredicate struct {
	alias  string
	column string
	value  *pgq.Node
}

// optimizeSelect pushes eligible equality predicates from `s`'s WHERE
// clause down into any derived table in its FROM list, and recurses
// into CTEs and set-operation arms. It reports whether anything
// changed, for the pipeline's fixed-point loop.
func optimizeSelect(s *pgq.SelectStmt) (bool, error) {
	if s == nil {
		return false, nil
	}
	changed := false

	if where := s.GetWhereClause(); where != nil {
		preds := extractTopLevelEqualities(where)
		for _, f := range s.GetFromClause() {
			if pushEqualitiesInto(f, preds) {
				changed = true
			}
		}
	}

	if wc := s.GetWithClause(); wc != nil {
		for _, cte := range wc.GetCtes() {
			cteNode, ok := cte.GetNode().(*pgq.Node_CommonTableExpr)
			if !ok {
				continue
			}
			q := cteNode.CommonTableExpr.GetCtequery()
			if qSel, ok := q.GetNode().(*pgq.Node_SelectStmt); ok {
				ch, err := optimizeSelect(qSel.SelectStmt)
				if err != nil {
					return false, err
				}
				changed = changed || ch
			}
		}
	}

	if l := s.GetLarg(); l != nil {
		ch, err := optimizeSelect(l)
		if err != nil {
			return false, err
		}
		changed = changed || ch
	}
	if r := s.GetRarg(); r != nil {
		ch, err := optimizeSelect(r)
		if err != nil {
			return false, err
		}
		changed = changed || ch
	}

	return changed, nil
}

// extractTopLevelEqualities walks a top-level AND-chain (no OR, no
// negation — anything else is left alone, which is always safe since
// pushdown is an optimization, not a correctness requirement) and
// collects `alias.column = <const-or-param>` comparisons.
func extractTopLevelEqualities(n *pgq.Node) []equalityPredicate {
	if n == nil {
		return nil
	}
	switch v := n.GetNode().(type) {
	case *pgq.Node_BoolExpr:
		if v.BoolExpr.GetBoolop() != pgq.BoolExprType_AND_EXPR {
			return nil
		}
		var out []equalityPredicate
		for _, arg := range v.BoolExpr.GetArgs() {
			out = append(out, extractTopLevelEqualities(arg)...)
		}
		return out
	case *pgq.Node_AExpr:
		if v.AExpr.GetKind() != pgq.A_Expr_Kind_AEXPR_OP {
			return nil
		}
		if !isOperatorName(v.AExpr.GetName(), "=") {
			return nil
		}
		alias, col, ok := qualifiedColumn(v.AExpr.GetLexpr())
		if !ok || !pushableColumns[col] {
			return nil
		}
		return []equalityPredicate{{alias: alias, column: col, value: v.AExpr.GetRexpr()}}
	default:
		return nil
	}
}

func isOperatorName(names []*pgq.Node, want string) bool {
	if len(names) != 1 {
		return false
	}
	s, ok := names[0].GetNode().(*pgq.Node_String_)
	return ok && s.String_.GetSval() == want
}

func qualifiedColumn(n *pgq.Node) (alias, column string, ok bool) {
	if n == nil {
		return "", "", false
	}
	ref, isRef := n.GetNode().(*pgq.Node_ColumnRef)
	if !isRef {
		return "", "", false
	}
	fields := ref.ColumnRef.GetFields()
	if len(fields) != 2 {
		return "", "", false
	}
	a, aok := fields[0].GetNode().(*pgq.Node_String_)
	c, cok := fields[1].GetNode().(*pgq.Node_String_)
	if !aok || !cok {
		return "", "", false
	}
	return a.String_.GetSval(), c.String_.GetSval(), true
}

// pushEqualitiesInto ANDs each predicate addressed to `f`'s alias into
// that derived table's own WHERE clause, rewriting the column reference
// to be unqualified (the subquery has its own single-relation scope).
func pushEqualitiesInto(f *pgq.Node, preds []equalityPredicate) bool {
	if f == nil || len(preds) == 0 {
		return false
	}
	switch v := f.GetNode().(type) {
	case *pgq.Node_RangeSubselect:
		alias := v.RangeSubselect.GetAlias().GetAliasname()
		sub := v.RangeSubselect.GetSubquery()
		selNode, ok := sub.GetNode().(*pgq.Node_SelectStmt)
		if !ok {
			return false
		}
		// alreadyPushed reports whether an earlier pass already ANDed this
		// exact predicate value into the subquery, so the phase converges.
		var alreadyPushed func(n, value *pgq.Node) bool
		alreadyPushed = func(n, value *pgq.Node) bool {
			if b := n.GetBoolExpr(); b != nil && b.GetBoolop() == pgq.BoolExprType_AND_EXPR {
				for _, arg := range b.GetArgs() {
					if alreadyPushed(arg, value) {
						return true
					}
				}
			}
			return n.GetAExpr().GetRexpr() == value
		}
		changed := false
		for _, p := range preds {
			if p.alias != alias || alreadyPushed(selNode.SelectStmt.GetWhereClause(), p.value) {
				continue
			}
			cond := &pgq.Node{Node: &pgq.Node_AExpr{AExpr: &pgq.A_Expr{
				Kind:  pgq.A_Expr_Kind_AEXPR_OP,
				Name:  []*pgq.Node{{Node: &pgq.Node_String_{String_: &pgq.String{Sval: "="}}}},
				Lexpr: &pgq.Node{Node: &pgq.Node_ColumnRef{ColumnRef: &pgq.ColumnRef{Fields: []*pgq.Node{{Node: &pgq.Node_String_{String_: &pgq.String{Sval: p.column}}}}}}},
				Rexpr: p.value,
			}}}
			selNode.SelectStmt.WhereClause = andNodes(selNode.SelectStmt.GetWhereClause(), cond)
			changed = true
		}
		return changed
	case *pgq.Node_JoinExpr:
		changed := pushEqualitiesInto(v.JoinExpr.GetLarg(), preds)
		if pushEqualitiesInto(v.JoinExpr.GetRarg(), preds) {
			changed = true
		}
		return changed
	default:
		return false
	}
}

func andNodes(existing, add *pgq.Node) *pgq.Node {
	if existing == nil {
		return add
	}
	return &pgq.Node{Node: &pgq.Node_BoolExpr{BoolExpr: &pgq.BoolExpr{
		Boolop: pgq.BoolExprType_AND_EXPR,
		Args:   []*pgq.Node{existing, add},
	}}}
}
