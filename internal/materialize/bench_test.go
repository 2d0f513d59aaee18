// SPDX-License-Identifier: Apache-2.0

package materialize

import (
	"context"
	"fmt"
	"testing"

	"github.com/opral/lix-sub005/internal/backend"
)

// BenchmarkApplyIdempotence applies the same plan repeatedly, the way a
// materialization request replayed after a crash would, and reports the
// steady-state cost once the materialized tables already hold the
// target rows.
func BenchmarkApplyIdempotence(b *testing.B) {
	writes := make([]MaterializedWrite, 0, 200)
	for i := 0; i < 200; i++ {
		writes = append(writes, MaterializedWrite{
			Kind:            WriteUpsert,
			SchemaKey:       "lix_key_value",
			EntityID:        fmt.Sprintf("k%d", i),
			VersionID:       "global",
			SnapshotContent: `{"value":"v"}`,
		})
	}
	plan := &Plan{Writes: writes}
	fb := backend.NewFakeBackend(backend.Sqlite)
	tx, err := fb.BeginTransaction(context.Background())
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Apply(context.Background(), tx, backend.Sqlite, plan); err != nil {
			b.Fatal(err)
		}
	}
}
