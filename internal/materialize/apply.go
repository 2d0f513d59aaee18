// SPDX-License-Identifier: Apache-2.0

package materialize

import (
	"context"
	"fmt"
	"sort"

	"github.com/opral/lix-sub005/internal/backend"
)

// Apply writes a Plan's rows to the per-schema materialized tables
// inside tx. Writes run strictly in submission order within the
// transaction (spec §5 ordering guarantees) — unlike Plan's read
// fan-out, Apply never parallelizes against a single Transaction
// handle.
//
// Each write is a delete-then-insert against the tuple's primary key
// (entity_id, file_id, version_id), which makes Apply idempotent:
// applying the same Plan twice leaves the materialized tables in the
// same state as applying it once (spec §4.7 "Apply").
func Apply(ctx context.Context, tx backend.Transaction, dialect backend.Dialect, plan *Plan) (*ApplyReport, error) {
	binder := backend.NewBinder(dialect)
	touched := make(map[string]bool)
	report := &ApplyReport{}

	for _, w := range plan.Writes {
		table := MaterializedTableName(w.SchemaKey)
		touched[table] = true

		del, err := binder.Bind(
			fmt.Sprintf(`DELETE FROM %s WHERE entity_id = ?1 AND file_id = ?2 AND version_id = ?3`, table),
			[]backend.Value{backend.Text(w.EntityID), backend.Text(w.FileID), backend.Text(w.VersionID)},
		)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Execute(ctx, del.SQL, del.Params); err != nil {
			return nil, err
		}

		snapshotVal := backend.Null()
		if w.Kind == WriteUpsert {
			snapshotVal = backend.Text(w.SnapshotContent)
		}
		inheritedVal := backend.Null()
		if w.InheritedFromVersionID != "" {
			inheritedVal = backend.Text(w.InheritedFromVersionID)
		}

		ins, err := binder.Bind(
			fmt.Sprintf(`INSERT INTO %s
				(entity_id, schema_key, schema_version, file_id, version_id, plugin_key,
				 snapshot_content, inherited_from_version_id, change_id, metadata, writer_key,
				 is_tombstone, created_at, updated_at)
				VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?12, ?13, ?14)`, table),
			[]backend.Value{
				backend.Text(w.EntityID), backend.Text(w.SchemaKey), backend.Text(w.SchemaVersion),
				backend.Text(w.FileID), backend.Text(w.VersionID), backend.Text(w.PluginKey),
				snapshotVal, inheritedVal, backend.Text(w.ChangeID), backend.Text(w.Metadata),
				backend.Text(w.WriterKey), backend.Bool(w.Kind == WriteTombstone),
				backend.Text(w.CreatedAt), backend.Text(w.UpdatedAt),
			},
		)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Execute(ctx, ins.SQL, ins.Params); err != nil {
			return nil, err
		}

		if w.Kind == WriteTombstone {
			report.RowsDeleted++
		} else {
			report.RowsWritten++
		}
	}

	for t := range touched {
		report.TablesTouched = append(report.TablesTouched, t)
	}
	sort.Strings(report.TablesTouched)
	return report, nil
}

// MaterializedTableName returns the per-schema materialized table name
// for schemaKey (spec §6 persisted state layout).
func MaterializedTableName(schemaKey string) string {
	return "lix_internal_state_materialized_v1_" + schemaKey
}
