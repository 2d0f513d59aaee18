// SPDX-License-Identifier: Apache-2.0

// Package sqlast provides the shared SQL AST utilities used by both
// rewrite pipelines (spec §4.5 "SQL AST utilities"): parsing via
// pg_query_go, relation discovery, and re-serialization (deparse).
//
// The engine only rewrites a constrained grammar (spec §1 Non-goals),
// so the utilities here cover the node kinds a logical-view query or a
// vtable write can contain: SELECT/INSERT/UPDATE/DELETE, CTEs, derived
// tables (subselects in FROM), and expression subqueries (SubLink).
// Other statements classify as passthrough DDL, transaction control, or
// KindUnknown.
package sqlast

import (
	"fmt"

	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/opral/lix-sub005/pkg/lixerrors"
)

// ParseTree wraps a parsed pg_query_go result for a single input SQL
// text, which may contain multiple semicolon-separated statements
// (spec §5 "Multi-statement scripts").
type ParseTree struct {
	raw *pgq.ParseResult
}

// Parse parses `sql` into a ParseTree.
func Parse(sql string) (*ParseTree, error) {
	tree, err := pgq.Parse(sql)
	if err != nil {
		return nil, lixerrors.InvalidArgumentError{Reason: fmt.Sprintf("parse error: %s", err)}
	}
	return &ParseTree{raw: tree}, nil
}

// Statements returns the individual top-level statements.
func (t *ParseTree) Statements() []*Statement {
	stmts := t.raw.GetStmts()
	out := make([]*Statement, len(stmts))
	for i, s := range stmts {
		out[i] = &Statement{node: s.GetStmt()}
	}
	return out
}

// Statement wraps a single parsed statement node.
type Statement struct {
	node *pgq.Node
}

// Node exposes the underlying pg_query_go node for callers (rewrite
// rules) that need to inspect dialect-specific shapes directly.
func (s *Statement) Node() *pgq.Node { return s.node }

// WrapSelect builds a Statement around a freshly constructed SelectStmt
// node, for callers that synthesize a throwaway statement (e.g. to
// deparse a standalone expression) rather than parsing one.
func WrapSelect(sel *pgq.SelectStmt) *Statement {
	return &Statement{node: &pgq.Node{Node: &pgq.Node_SelectStmt{SelectStmt: sel}}}
}

// Deparse re-serializes a single statement back into SQL text. Used by
// the Lower phase to emit the final physical statement once logical
// views have been rewritten away.
func Deparse(stmts []*Statement) (string, error) {
	raw := make([]*pgq.RawStmt, len(stmts))
	for i, s := range stmts {
		raw[i] = &pgq.RawStmt{Stmt: s.node}
	}
	out, err := pgq.Deparse(&pgq.ParseResult{Stmts: raw})
	if err != nil {
		return "", lixerrors.InvalidArgumentError{Reason: fmt.Sprintf("deparse error: %s", err)}
	}
	return out, nil
}
