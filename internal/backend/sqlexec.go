// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"database/sql"

	"github.com/opral/lix-sub005/pkg/lixerrors"
)

// execer is satisfied by both *sql.DB and *sql.Tx, letting the
// Postgres/SQLite backends share row-marshaling logic regardless of
// whether the statement runs standalone or inside a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func toDriverArgs(params []Value) []interface{} {
	args := make([]interface{}, len(params))
	for i, p := range params {
		args[i] = valueToDriver(p)
	}
	return args
}

func valueToDriver(v Value) interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindInteger:
		return v.Integer
	case KindReal:
		return v.Real
	case KindBoolean:
		return v.Boolean
	case KindText:
		return v.Text
	case KindBlob:
		return v.Blob
	default:
		return nil
	}
}

func execSQLDB(ctx context.Context, conn *sql.DB, query string, params []Value) (Rows, error) {
	return runStatement(ctx, conn, query, params)
}

func execSQLTx(ctx context.Context, tx *sql.Tx, query string, params []Value) (Rows, error) {
	return runStatement(ctx, tx, query, params)
}

// runStatement decides whether `query` returns rows (a SELECT-shaped
// statement) or not, and dispatches to QueryContext/ExecContext
// accordingly, translating the result into the backend-neutral Rows
// shape (spec §4.1).
func runStatement(ctx context.Context, conn execer, query string, params []Value) (Rows, error) {
	if !looksLikeQuery(query) {
		_, err := conn.ExecContext(ctx, query, toDriverArgs(params)...)
		if err != nil {
			return Rows{}, lixerrors.BackendError{SQL: query, Err: err}
		}
		return Rows{}, nil
	}

	rows, err := conn.QueryContext(ctx, query, toDriverArgs(params)...)
	if err != nil {
		return Rows{}, lixerrors.BackendError{SQL: query, Err: err}
	}
	defer rows.Close()

	return scanRows(rows, query)
}

func scanRows(rows *sql.Rows, query string) (Rows, error) {
	cols, err := rows.Columns()
	if err != nil {
		return Rows{}, lixerrors.BackendError{SQL: query, Err: err}
	}

	out := Rows{Columns: cols}
	for rows.Next() {
		raw := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Rows{}, lixerrors.BackendError{SQL: query, Err: err}
		}

		row := make([]Value, len(cols))
		for i, r := range raw {
			row[i] = driverToValue(r)
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Rows{}, lixerrors.BackendError{SQL: query, Err: err}
	}

	return out, nil
}

func driverToValue(r interface{}) Value {
	switch v := r.(type) {
	case nil:
		return Null()
	case int64:
		return Int(v)
	case float64:
		return Real(v)
	case bool:
		return Bool(v)
	case string:
		return Text(v)
	case []byte:
		return Blob(v)
	default:
		return Text("")
	}
}

// looksLikeQuery is a conservative heuristic used only to pick between
// ExecContext/QueryContext for ad-hoc statements reaching the backend
// directly; the execution runtime normally already knows a statement's
// shape from the rewrite pipeline's classification.
func looksLikeQuery(query string) bool {
	for _, c := range query {
		switch c {
		case ' ', '\t', '\n', '\r', '(':
			continue
		default:
			return c == 'S' || c == 's' || c == 'E' || c == 'e' || c == 'W' || c == 'w'
		}
	}
	return false
}
