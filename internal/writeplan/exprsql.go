// SPDX-License-Identifier: Apache-2.0

package writeplan

import (
	"strings"

	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/opral/lix-sub005/internal/sqlast"
	"github.com/opral/lix-sub005/pkg/lixerrors"
)

func whereClauseOf(s *sqlast.Statement) *pgq.Node {
	if upd := s.UpdateStmt(); upd != nil {
		return upd.GetWhereClause()
	}
	if del := s.DeleteStmt(); del != nil {
		return del.GetWhereClause()
	}
	return nil
}

// deparseExpr renders a standalone WHERE expression back to SQL text.
// pg_query_go only deparses whole statements, so the expression is
// wrapped in a throwaway `SELECT 1 WHERE <expr>` and the clause is
// sliced back out.
func deparseExpr(n *pgq.Node) (string, error) {
	if n == nil {
		return "", lixerrors.InvalidArgumentError{Reason: "write statement is missing a WHERE clause"}
	}
	wrapper := &pgq.SelectStmt{
		TargetList: []*pgq.Node{{Node: &pgq.Node_ResTarget{ResTarget: &pgq.ResTarget{
			Val: &pgq.Node{Node: &pgq.Node_AConst{AConst: &pgq.A_Const{Val: &pgq.A_Const_Ival{Ival: &pgq.Integer{Ival: 1}}}}},
		}}}},
		WhereClause: n,
	}
	out, err := sqlast.Deparse([]*sqlast.Statement{sqlast.WrapSelect(wrapper)})
	if err != nil {
		return "", err
	}
	idx := strings.Index(strings.ToUpper(out), " WHERE ")
	if idx < 0 {
		return "", lixerrors.PlanInvariantError{Reason: "failed to extract WHERE clause text"}
	}
	return strings.TrimSpace(out[idx+len(" WHERE "):]), nil
}
