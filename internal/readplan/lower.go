// SPDX-License-Identifier: Apache-2.0

package readplan

import (
	"fmt"
	"strings"

	pgq "github.com/pganalyze/pg_query_go/v6"
)

// SchemaCatalog tells the Lower phase which per-schema materialized
// tables currently exist, so it can expand lix_internal_state_vtable
// into a concrete UNION ALL (spec §4.5 Lower). Canonicalize also
// consults it to recognize and flatten per-schema entity view
// references (e.g. lix_key_value) that are not among the fixed
// LogicalViews names.
type SchemaCatalog interface {
	MaterializedTableNames() []string

	// SchemaProperties returns the sorted top-level property names for a
	// registered schema_key, and false if schemaKey names no registered
	// schema (in which case the relation is left untouched and falls
	// through to the passthrough path).
	SchemaProperties(schemaKey string) ([]string, bool)
}

const internalStateVtableName = "lix_internal_state_vtable"

// BuildStateVtableUnionSQL exposes the Lower phase's UNION ALL
// expansion so the boot sequence can (re)materialize
// lix_internal_state_vtable as a physical SQL VIEW with the identical
// shape the rewrite pipeline assumes, keeping the low-level state and
// materialize packages' direct queries against that name valid.
func BuildStateVtableUnionSQL(catalog SchemaCatalog) string {
	return loweredStateVtableSQL(catalog)
}

func loweredStateVtableSQL(catalog SchemaCatalog) string {
	tables := catalog.MaterializedTableNames()
	parts := make([]string, 0, len(tables)+1)
	for _, t := range tables {
		parts = append(parts, fmt.Sprintf(`SELECT m.entity_id, m.schema_key, m.schema_version, m.file_id,
			m.version_id, m.plugin_key, m.snapshot_content, m.inherited_from_version_id,
			m.change_id, m.metadata, m.writer_key, m.is_tombstone, m.created_at, m.updated_at
			FROM %s m`, t))
	}
	parts = append(parts, `SELECT u.entity_id, u.schema_key, u.schema_version, u.file_id,
		u.version_id, NULL AS plugin_key, u.snapshot_content, NULL AS inherited_from_version_id,
		NULL AS change_id, u.metadata, NULL AS writer_key, 0 AS is_tombstone, u.created_at, u.updated_at
		FROM lix_internal_state_untracked u`)

	return fmt.Sprintf("(\n%s\n)", strings.Join(parts, "\n\t\tUNION ALL\n\t\t"))
}

// lowerSelect replaces every reference to lix_internal_state_vtable
// with its concrete UNION ALL definition. It shares the same FROM-tree
// traversal shape as canonicalizeSelect but operates on a single fixed
// target name rather than the logical-view table.
func lowerSelect(s *pgq.SelectStmt, catalog SchemaCatalog) (bool, error) {
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
			if qSel, ok := q.GetNode().(*pgq.Node_SelectStmt); ok {
				ch, err := lowerSelect(qSel.SelectStmt, catalog)
				if err != nil {
					return false, err
				}
				changed = changed || ch
			}
		}
	}

	for i, f := range s.GetFromClause() {
		newNode, ch, err := lowerFromEntry(f, catalog)
		if err != nil {
			return false, err
		}
		if ch {
			s.FromClause[i] = newNode
			changed = true
		}
	}

	if l := s.GetLarg(); l != nil {
		ch, err := lowerSelect(l, catalog)
		if err != nil {
			return false, err
		}
		changed = changed || ch
	}
	if r := s.GetRarg(); r != nil {
		ch, err := lowerSelect(r, catalog)
		if err != nil {
			return false, err
		}
		changed = changed || ch
	}

	return changed, nil
}

func lowerFromEntry(n *pgq.Node, catalog SchemaCatalog) (*pgq.Node, bool, error) {
	if n == nil {
		return n, false, nil
	}
	switch v := n.GetNode().(type) {
	case *pgq.Node_RangeVar:
		if v.RangeVar.GetRelname() != internalStateVtableName {
			return n, false, nil
		}
		sub, err := parseViewSelect(loweredStateVtableSQL(catalog))
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
		if selNode, ok := sub.GetNode().(*pgq.Node_SelectStmt); ok {
			ch, err := lowerSelect(selNode.SelectStmt, catalog)
			if err != nil {
				return nil, false, err
			}
			return n, ch, nil
		}
		return n, false, nil

	case *pgq.Node_JoinExpr:
		j := v.JoinExpr
		changed := false
		newL, chL, err := lowerFromEntry(j.GetLarg(), catalog)
		if err != nil {
			return nil, false, err
		}
		if chL {
			j.Larg = newL
			changed = true
		}
		newR, chR, err := lowerFromEntry(j.GetRarg(), catalog)
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
