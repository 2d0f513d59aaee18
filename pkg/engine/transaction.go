// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/opral/lix-sub005/internal/backend"
	"github.com/opral/lix-sub005/internal/eventbus"
	"github.com/opral/lix-sub005/internal/sqlast"
	"github.com/opral/lix-sub005/pkg/lixerrors"
)

// TransactionOptions carries the version_id/writer_key statements inside
// the callback fall back to when their own ExecuteOptions leaves them
// empty (spec §6 `transaction(options, f)`).
type TransactionOptions struct {
	VersionID string
	WriterKey string
}

// Transaction is the scoped multi-statement handle spec §6's
// `transaction(options, f)` passes to its callback. Every statement run
// through it shares the one backend transaction Engine.Transaction
// opened; nothing is committed until the callback returns without
// error.
type Transaction struct {
	engine    *Engine
	tx        backend.Transaction
	versionID string
	writerKey string
	mutations []eventbus.CommitMutation
}

// Execute runs exactly one statement against the scoped transaction,
// applying the same read/write/passthrough routing as Engine.Execute
// but against t's still-open backend.Transaction instead of a fresh
// one. Nested transaction control (BEGIN/COMMIT inside the callback) is
// rejected, since the enclosing Engine.Transaction already owns the
// transaction boundary.
func (t *Transaction) Execute(ctx context.Context, sqlText string, params []backend.Value, opts ExecuteOptions) (*QueryResult, error) {
	if sqlText == "" {
		return nil, lixerrors.InvalidArgumentError{Reason: "empty SQL statement"}
	}
	tree, err := sqlast.Parse(sqlText)
	if err != nil {
		return nil, err
	}
	stmts := tree.Statements()
	if len(stmts) != 1 {
		return nil, lixerrors.InvalidArgumentError{Reason: "execute accepts exactly one statement; issue additional execute calls inside the transaction callback"}
	}
	stmt := stmts[0]

	versionID := opts.VersionID
	if versionID == "" {
		versionID = t.versionID
	}
	writerKey := opts.WriterKey
	if writerKey == "" {
		writerKey = t.writerKey
	}

	switch sqlast.Classify(stmt) {
	case sqlast.KindQueryRead, sqlast.KindExplainRead:
		return t.engine.executeRead(ctx, t.tx, stmt, params, opts.AllowInternalAccess)
	case sqlast.KindTransactionControl:
		return nil, lixerrors.InvalidArgumentError{Reason: "nested transaction control is not supported inside Engine.Transaction"}
	case sqlast.KindPassthroughDDL:
		rows, err := t.tx.Execute(ctx, sqlText, params)
		if err != nil {
			return nil, err
		}
		return rowsToResult(rows), nil
	default:
		mutations, result, err := t.engine.executeWriteInTx(ctx, t.tx, stmt, params, versionID, writerKey)
		if err != nil {
			return nil, err
		}
		t.mutations = append(t.mutations, mutations...)
		return result, nil
	}
}

// Transaction opens one backend transaction, runs fn against a scoped
// handle over it, and commits once fn returns nil; any error from fn
// rolls the whole transaction back and the error propagates to the
// caller unchanged (spec §6 `transaction(options, f)`). Post-commit
// fan-out runs once, over every mutation accumulated across the
// callback's Execute calls, after the single commit succeeds.
func (e *Engine) Transaction(ctx context.Context, opts TransactionOptions, fn func(*Transaction) error) error {
	versionID := opts.VersionID
	if versionID == "" {
		versionID = e.ActiveVersion()
	}

	tx, err := e.backend.BeginTransaction(ctx)
	if err != nil {
		return err
	}

	handle := &Transaction{engine: e, tx: tx, versionID: versionID, writerKey: opts.WriterKey}

	e.logger.LogExecuteStart("<transaction>")
	if err := fn(handle); err != nil {
		_ = tx.Rollback(ctx)
		e.logger.LogExecuteRollback("<transaction>", err)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		e.logger.LogExecuteRollback("<transaction>", err)
		return err
	}
	e.logger.LogExecuteComplete("<transaction>")

	e.postCommitFanout(ctx, handle.mutations)
	return nil
}
