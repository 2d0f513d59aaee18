// SPDX-License-Identifier: Apache-2.0

package sqlast

import (
	"sort"

	pgq "github.com/pganalyze/pg_query_go/v6"
)

// RelationRef is a single relation reference discovered while walking a
// query (spec §4.5 Analyze phase).
type RelationRef struct {
	Name  string
	Alias string
}

// CollectRelations walks `n` (a SELECT, or the FROM/USING clause of an
// INSERT/UPDATE/DELETE) and returns every base relation name reachable
// through CTEs, derived tables, and expression subqueries, using a
// direct recursive descent over the known statement/node shapes
// ("select-visitor").
func CollectRelations(n *pgq.Node) []RelationRef {
	var out []RelationRef
	visitSelectVisitor(n, &out)
	return dedupeRelations(out)
}

// CollectRelationsWalker performs the same discovery using an
// independent, stack-based traversal strategy. The Analyze phase
// compares its result against CollectRelations as an invariant check on
// every read-pipeline run (spec §4.5 "Validator"): the two must agree.
func CollectRelationsWalker(n *pgq.Node) []RelationRef {
	var out []RelationRef
	stack := []*pgq.Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == nil {
			continue
		}
		children := walkerVisit(cur, &out)
		stack = append(stack, children...)
	}
	return dedupeRelations(out)
}

func dedupeRelations(in []RelationRef) []RelationRef {
	seen := make(map[string]bool, len(in))
	var out []RelationRef
	for _, r := range in {
		k := r.Name + "\x00" + r.Alias
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Alias < out[j].Alias
	})
	return out
}

func visitSelectVisitor(n *pgq.Node, out *[]RelationRef) {
	if n == nil {
		return
	}
	switch v := n.GetNode().(type) {
	case *pgq.Node_SelectStmt:
		s := v.SelectStmt
		if s.GetWithClause() != nil {
			for _, cte := range s.GetWithClause().GetCtes() {
				visitSelectVisitor(cte, out)
			}
		}
		for _, f := range s.GetFromClause() {
			visitSelectVisitor(f, out)
		}
		visitExprForSubLinks(s.GetWhereClause(), out)
		if s.GetLarg() != nil {
			visitSelectVisitor(&pgq.Node{Node: &pgq.Node_SelectStmt{SelectStmt: s.GetLarg()}}, out)
		}
		if s.GetRarg() != nil {
			visitSelectVisitor(&pgq.Node{Node: &pgq.Node_SelectStmt{SelectStmt: s.GetRarg()}}, out)
		}
	case *pgq.Node_CommonTableExpr:
		visitSelectVisitor(v.CommonTableExpr.GetCtequery(), out)
	case *pgq.Node_RangeVar:
		*out = append(*out, RelationRef{Name: v.RangeVar.GetRelname(), Alias: aliasName(v.RangeVar.GetAlias())})
	case *pgq.Node_RangeSubselect:
		visitSelectVisitor(v.RangeSubselect.GetSubquery(), out)
	case *pgq.Node_JoinExpr:
		visitSelectVisitor(v.JoinExpr.GetLarg(), out)
		visitSelectVisitor(v.JoinExpr.GetRarg(), out)
		visitExprForSubLinks(v.JoinExpr.GetQuals(), out)
	}
}

// visitExprForSubLinks descends into an arbitrary expression looking
// only for SubLink nodes (expression subqueries), without attempting a
// fully generic expression walk — sufficient for the constrained
// grammar this engine accepts.
func visitExprForSubLinks(n *pgq.Node, out *[]RelationRef) {
	if n == nil {
		return
	}
	switch v := n.GetNode().(type) {
	case *pgq.Node_SubLink:
		visitSelectVisitor(v.SubLink.GetSubselect(), out)
	case *pgq.Node_BoolExpr:
		for _, arg := range v.BoolExpr.GetArgs() {
			visitExprForSubLinks(arg, out)
		}
	case *pgq.Node_AExpr:
		visitExprForSubLinks(v.AExpr.GetLexpr(), out)
		visitExprForSubLinks(v.AExpr.GetRexpr(), out)
	}
}

// walkerVisit implements the second, independent traversal: rather than
// recursing directly, it returns the child nodes still to be visited so
// the caller can drive an explicit stack. This deliberately shares no
// code with visitSelectVisitor/visitExprForSubLinks.
func walkerVisit(n *pgq.Node, out *[]RelationRef) []*pgq.Node {
	switch v := n.GetNode().(type) {
	case *pgq.Node_SelectStmt:
		s := v.SelectStmt
		var children []*pgq.Node
		if s.GetWithClause() != nil {
			children = append(children, s.GetWithClause().GetCtes()...)
		}
		children = append(children, s.GetFromClause()...)
		if s.GetWhereClause() != nil {
			children = append(children, s.GetWhereClause())
		}
		if s.GetLarg() != nil {
			children = append(children, &pgq.Node{Node: &pgq.Node_SelectStmt{SelectStmt: s.GetLarg()}})
		}
		if s.GetRarg() != nil {
			children = append(children, &pgq.Node{Node: &pgq.Node_SelectStmt{SelectStmt: s.GetRarg()}})
		}
		return children
	case *pgq.Node_CommonTableExpr:
		if q := v.CommonTableExpr.GetCtequery(); q != nil {
			return []*pgq.Node{q}
		}
		return nil
	case *pgq.Node_RangeVar:
		*out = append(*out, RelationRef{Name: v.RangeVar.GetRelname(), Alias: aliasName(v.RangeVar.GetAlias())})
		return nil
	case *pgq.Node_RangeSubselect:
		if q := v.RangeSubselect.GetSubquery(); q != nil {
			return []*pgq.Node{q}
		}
		return nil
	case *pgq.Node_JoinExpr:
		var children []*pgq.Node
		if l := v.JoinExpr.GetLarg(); l != nil {
			children = append(children, l)
		}
		if r := v.JoinExpr.GetRarg(); r != nil {
			children = append(children, r)
		}
		if q := v.JoinExpr.GetQuals(); q != nil {
			children = append(children, q)
		}
		return children
	case *pgq.Node_SubLink:
		if s := v.SubLink.GetSubselect(); s != nil {
			return []*pgq.Node{s}
		}
		return nil
	case *pgq.Node_BoolExpr:
		return v.BoolExpr.GetArgs()
	case *pgq.Node_AExpr:
		var children []*pgq.Node
		if l := v.AExpr.GetLexpr(); l != nil {
			children = append(children, l)
		}
		if r := v.AExpr.GetRexpr(); r != nil {
			children = append(children, r)
		}
		return children
	default:
		return nil
	}
}

func aliasName(a *pgq.Alias) string {
	if a == nil {
		return ""
	}
	return a.GetAliasname()
}

// TopLevelRelation returns the single relation targeted by an
// INSERT/UPDATE/DELETE statement.
func TopLevelRelation(rv *pgq.RangeVar) RelationRef {
	return RelationRef{Name: rv.GetRelname(), Alias: aliasName(rv.GetAlias())}
}
