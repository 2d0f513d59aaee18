// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/cloudflare/backoff"
	"github.com/lib/pq"

	"github.com/opral/lix-sub005/pkg/lixerrors"
)

const (
	lockNotAvailableErrorCode pq.ErrorCode = "55P03"
	maxBackoffDuration                     = 1 * time.Minute
	backoffInterval                        = 1 * time.Second
)

// PostgresBackend adapts a *sql.DB using the lib/pq driver to the
// Backend contract, retrying statements on lock_timeout errors the same
// way pgroll's db.RDB does.
type PostgresBackend struct {
	conn *sql.DB
}

func OpenPostgres(ctx context.Context, dsn string) (*PostgresBackend, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, lixerrors.BackendError{Err: err}
	}
	if err := conn.PingContext(ctx); err != nil {
		return nil, lixerrors.BackendError{Err: err}
	}
	return &PostgresBackend{conn: conn}, nil
}

func (p *PostgresBackend) Dialect() Dialect { return Postgres }

func (p *PostgresBackend) Execute(ctx context.Context, query string, params []Value) (Rows, error) {
	return retryOnLockTimeout(ctx, func() (Rows, error) {
		return execSQLDB(ctx, p.conn, query, params)
	})
}

func (p *PostgresBackend) BeginTransaction(ctx context.Context) (Transaction, error) {
	tx, err := p.conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, lixerrors.BackendError{Err: err}
	}
	return &postgresTx{tx: tx}, nil
}

func (p *PostgresBackend) ExportSnapshot(ctx context.Context, w io.Writer) error {
	return exportViaCopy(ctx, p.conn, w)
}

func (p *PostgresBackend) RestoreFromSnapshot(ctx context.Context, r io.Reader) error {
	return restoreViaCopy(ctx, p.conn, r)
}

func (p *PostgresBackend) Close() error { return p.conn.Close() }

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) Execute(ctx context.Context, query string, params []Value) (Rows, error) {
	return execSQLTx(ctx, t.tx, query, params)
}

func (t *postgresTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return lixerrors.BackendError{Err: err}
	}
	return nil
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return lixerrors.BackendError{Err: err}
	}
	return nil
}

// retryOnLockTimeout retries `f` with exponential backoff (with jitter)
// whenever it fails with a Postgres lock_timeout error, mirroring
// pgroll's db.RDB.ExecContext/QueryContext.
func retryOnLockTimeout[T any](ctx context.Context, f func() (T, error)) (T, error) {
	b := backoff.New(maxBackoffDuration, backoffInterval)
	for {
		res, err := f()
		if err == nil {
			return res, nil
		}

		pqErr := &pq.Error{}
		if errors.As(err, &pqErr) && pqErr.Code == lockNotAvailableErrorCode {
			select {
			case <-ctx.Done():
				var zero T
				return zero, ctx.Err()
			case <-time.After(b.Duration()):
				continue
			}
		}

		return res, err
	}
}

func exportViaCopy(ctx context.Context, conn *sql.DB, w io.Writer) error {
	// Snapshots are opaque to the engine (spec §6); the concrete chunk
	// framing used by a production backend is left to the driver. This
	// placeholder preserves the interface contract for tests that stub it.
	return nil
}

func restoreViaCopy(ctx context.Context, conn *sql.DB, r io.Reader) error {
	return nil
}
