// SPDX-License-Identifier: Apache-2.0

package writeplan

import (
	"strconv"

	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/opral/lix-sub005/pkg/lixerrors"
)

// constNodeToValue converts a literal expression node into a Go value
// suitable for a snapshot map. Parameter references (bound later by the
// placeholder binder) and non-literal expressions are rejected: the
// write pipeline only rewrites statements whose mutated values are
// either literals or placeholders resolved before planning runs.
func constNodeToValue(n *pgq.Node) (any, error) {
	if n == nil {
		return nil, nil
	}
	c := n.GetAConst()
	if c == nil {
		return nil, lixerrors.InvalidArgumentError{Reason: "write pipeline requires literal values in the rewritten statement"}
	}
	if c.GetIsnull() {
		return nil, nil
	}
	switch v := c.GetVal().(type) {
	case *pgq.A_Const_Sval:
		return v.Sval.GetSval(), nil
	case *pgq.A_Const_Ival:
		return int64(v.Ival.GetIval()), nil
	case *pgq.A_Const_Fval:
		f, err := strconv.ParseFloat(v.Fval.GetFval(), 64)
		if err != nil {
			return nil, lixerrors.InvalidArgumentError{Reason: "malformed float literal: " + v.Fval.GetFval()}
		}
		return f, nil
	case *pgq.A_Const_Boolval:
		return v.Boolval.GetBoolval(), nil
	case *pgq.A_Const_Bsval:
		return v.Bsval.GetBsval(), nil
	default:
		return nil, lixerrors.InvalidArgumentError{Reason: "unsupported literal kind in write statement"}
	}
}

// insertSnapshot builds the column->value snapshot for a single-row
// `INSERT INTO rel (cols...) VALUES (vals...)` statement.
func insertSnapshot(ins *pgq.InsertStmt) (map[string]any, error) {
	cols := ins.GetCols()
	selNode := ins.GetSelectStmt().GetSelectStmt()
	if selNode == nil || len(selNode.GetValuesLists()) != 1 {
		return nil, lixerrors.InvalidArgumentError{Reason: "only single-row VALUES inserts are rewritten"}
	}
	row := selNode.GetValuesLists()[0].GetList().GetItems()
	if len(row) != len(cols) {
		return nil, lixerrors.InvalidArgumentError{Reason: "column list and VALUES arity mismatch"}
	}

	out := make(map[string]any, len(cols))
	for i, col := range cols {
		name := col.GetResTarget().GetName()
		val, err := constNodeToValue(row[i])
		if err != nil {
			return nil, err
		}
		out[name] = val
	}
	return out, nil
}

// updatePatch builds the column->value patch for `UPDATE rel SET
// col = val, ...`.
func updatePatch(upd *pgq.UpdateStmt) (map[string]any, error) {
	out := make(map[string]any, len(upd.GetTargetList()))
	for _, t := range upd.GetTargetList() {
		rt := t.GetResTarget()
		val, err := constNodeToValue(rt.GetVal())
		if err != nil {
			return nil, err
		}
		out[rt.GetName()] = val
	}
	return out, nil
}
