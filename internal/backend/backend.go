// SPDX-License-Identifier: Apache-2.0

// Package backend provides the minimal query/transaction interface the
// engine requires from its storage driver (spec §4.1), along with
// concrete implementations for SQLite and Postgres.
package backend

import (
	"context"
	"io"
)

// Dialect identifies the SQL dialect a Backend speaks. The AST lowerer
// consults this to pick dialect-specific JSON and encoding functions
// (spec §4.5 Lower phase).
type Dialect int

const (
	Sqlite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	switch d {
	case Sqlite:
		return "sqlite"
	case Postgres:
		return "postgres"
	default:
		return "unknown"
	}
}

// Kind tags a Value's underlying type. Backend drivers translate native
// driver results into this uniform shape so the rest of the engine never
// depends on database/sql or a driver-specific row type directly.
type Kind int

const (
	KindNull Kind = iota
	KindInteger
	KindReal
	KindBoolean
	KindText
	KindBlob
)

// Value is a single column value in the backend-neutral row shape
// described in spec §4.1.
type Value struct {
	Kind    Kind
	Integer int64
	Real    float64
	Boolean bool
	Text    string
	Blob    []byte
}

func Null() Value                { return Value{Kind: KindNull} }
func Int(v int64) Value          { return Value{Kind: KindInteger, Integer: v} }
func Real(v float64) Value       { return Value{Kind: KindReal, Real: v} }
func Bool(v bool) Value          { return Value{Kind: KindBoolean, Boolean: v} }
func Text(v string) Value        { return Value{Kind: KindText, Text: v} }
func Blob(v []byte) Value        { return Value{Kind: KindBlob, Blob: v} }

// IsNull reports whether the value is SQL NULL.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Rows is the backend-neutral result of a single statement execution.
type Rows struct {
	Columns []string
	Rows    [][]Value
}

// Queryer is the read/write contract shared by a Backend and a
// Transaction (spec §4.1): `execute(sql, params) -> rows`.
type Queryer interface {
	Execute(ctx context.Context, sql string, params []Value) (Rows, error)
}

// Transaction extends Queryer with commit/rollback. The engine requires
// serializable semantics within a single transaction: reads must see
// writes made earlier in the same transaction.
type Transaction interface {
	Queryer
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Backend is the top-level driver contract consumed by the engine.
type Backend interface {
	Queryer
	BeginTransaction(ctx context.Context) (Transaction, error)
	Dialect() Dialect

	// ExportSnapshot and RestoreFromSnapshot treat the on-disk state as an
	// opaque byte stream with chunk framing (spec §6); the engine never
	// interprets snapshot contents itself.
	ExportSnapshot(ctx context.Context, w io.Writer) error
	RestoreFromSnapshot(ctx context.Context, r io.Reader) error

	Close() error
}
