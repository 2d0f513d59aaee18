// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"io"
	"sort"
	"sync"
)

// FakeBackend is an in-memory Backend used by tests throughout the
// engine, in the spirit of pgroll's db.FakeDB: Execute records each
// statement in an exec log and returns no rows, and a separate simple
// table store is seeded with PutRow and read back with TableRows.
type FakeBackend struct {
	mu      sync.Mutex
	dialect Dialect
	tables  map[string][]fakeRow
	execLog []string
}

type fakeRow map[string]Value

func NewFakeBackend(dialect Dialect) *FakeBackend {
	return &FakeBackend{dialect: dialect, tables: make(map[string][]fakeRow)}
}

func (f *FakeBackend) Dialect() Dialect { return f.dialect }

func (f *FakeBackend) Execute(ctx context.Context, sql string, params []Value) (Rows, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execLog = append(f.execLog, sql)
	return Rows{}, nil
}

func (f *FakeBackend) ExecLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.execLog))
	copy(out, f.execLog)
	return out
}

// PutRow inserts or replaces a row keyed by `key` within `table`, used
// directly by unit tests that want to seed materialized state without
// going through the full rewrite pipeline.
func (f *FakeBackend) PutRow(table string, key string, row map[string]Value) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := fakeRow{"__key": Text(key)}
	for k, v := range row {
		r[k] = v
	}
	rows := f.tables[table]
	for i, existing := range rows {
		if existing["__key"].Text == key {
			rows[i] = r
			f.tables[table] = rows
			return
		}
	}
	f.tables[table] = append(rows, r)
}

// TableRows returns a deterministic snapshot of a fake table's contents,
// ordered by key, for use in assertions.
func (f *FakeBackend) TableRows(table string) []map[string]Value {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := append([]fakeRow(nil), f.tables[table]...)
	sort.Slice(rows, func(i, j int) bool { return rows[i]["__key"].Text < rows[j]["__key"].Text })
	out := make([]map[string]Value, len(rows))
	for i, r := range rows {
		m := make(map[string]Value, len(r))
		for k, v := range r {
			m[k] = v
		}
		out[i] = m
	}
	return out
}

func (f *FakeBackend) BeginTransaction(ctx context.Context) (Transaction, error) {
	return &fakeTx{backend: f}, nil
}

func (f *FakeBackend) ExportSnapshot(ctx context.Context, w io.Writer) error {
	return nil
}

func (f *FakeBackend) RestoreFromSnapshot(ctx context.Context, r io.Reader) error {
	return nil
}

func (f *FakeBackend) Close() error { return nil }

type fakeTx struct {
	backend *FakeBackend
}

func (t *fakeTx) Execute(ctx context.Context, sql string, params []Value) (Rows, error) {
	return t.backend.Execute(ctx, sql, params)
}

func (t *fakeTx) Commit(ctx context.Context) error   { return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { return nil }
