// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"

	"github.com/opral/lix-sub005/internal/backend"
	"github.com/opral/lix-sub005/internal/materialize"
	"github.com/opral/lix-sub005/internal/readplan"
)

// globalVersionID is the default version created during Init and the
// fixed storage version lix_active_version/lix_active_account reads are
// pinned to (spec §4.5 Canonicalize: "filtered untracked = 1 reads at
// the fixed storage version"). There is exactly one version at boot, so
// it is also the only sensible choice for that fixed version.
const globalVersionID = "global"

// builtinSchemas are registered during Init (spec SPEC_FULL.md "Boot
// sequence", grounded on original_source/packages/engine/src/boot.rs
// and init/mod.rs).
var builtinSchemas = []string{
	storedSchemaSchema,
	keyValueSchema,
	versionDescriptorSchema,
	versionPointerSchema,
	fileDescriptorSchema,
	directoryDescriptorSchema,
}

const storedSchemaSchema = `{
	"x-lix-key": "lix_stored_schema",
	"x-lix-version": "1.0",
	"x-lix-primary-key": ["/key", "/version"],
	"type": "object",
	"properties": {
		"key": {"type": "string"},
		"version": {"type": "string"},
		"value": {"type": "object"}
	},
	"required": ["key", "version", "value"],
	"additionalProperties": false
}`

const keyValueSchema = `{
	"x-lix-key": "lix_key_value",
	"x-lix-version": "1.0",
	"x-lix-primary-key": ["/key"],
	"type": "object",
	"properties": {
		"key": {"type": "string"},
		"value": {"type": "string"}
	},
	"required": ["key"],
	"additionalProperties": false
}`

const versionDescriptorSchema = `{
	"x-lix-key": "lix_version_descriptor",
	"x-lix-version": "1.0",
	"x-lix-primary-key": ["/id"],
	"type": "object",
	"properties": {
		"id": {"type": "string"},
		"name": {"type": "string"},
		"inherits_from_version_id": {"type": ["string", "null"]},
		"hidden": {"type": "boolean"}
	},
	"required": ["id"],
	"additionalProperties": false
}`

const versionPointerSchema = `{
	"x-lix-key": "lix_version_pointer",
	"x-lix-version": "1.0",
	"x-lix-primary-key": ["/id"],
	"type": "object",
	"properties": {
		"id": {"type": "string"},
		"commit_id": {"type": "string"},
		"working_commit_id": {"type": "string"}
	},
	"required": ["id", "commit_id"],
	"additionalProperties": false
}`

const fileDescriptorSchema = `{
	"x-lix-key": "lix_file_descriptor",
	"x-lix-version": "1.0",
	"x-lix-primary-key": ["/id"],
	"type": "object",
	"properties": {
		"id": {"type": "string"},
		"path": {"type": "string"},
		"directory_id": {"type": ["string", "null"]},
		"name": {"type": "string"},
		"extension": {"type": ["string", "null"]}
	},
	"required": ["id", "path", "name"],
	"additionalProperties": false
}`

const directoryDescriptorSchema = `{
	"x-lix-key": "lix_directory_descriptor",
	"x-lix-version": "1.0",
	"x-lix-primary-key": ["/id"],
	"type": "object",
	"properties": {
		"id": {"type": "string"},
		"parent_id": {"type": ["string", "null"]},
		"name": {"type": "string"}
	},
	"required": ["id", "name"],
	"additionalProperties": false
}`

// fixedTableDDL is portable across both dialects Init supports; the
// sole per-dialect difference, blob columns, is substituted in.
func fixedTableDDL(dialect backend.Dialect) []string {
	blobType := "BLOB"
	if dialect == backend.Postgres {
		blobType = "BYTEA"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS lix_internal_snapshot (
			id TEXT PRIMARY KEY, content TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS lix_internal_change (
			id TEXT PRIMARY KEY, entity_id TEXT, schema_key TEXT, schema_version TEXT,
			file_id TEXT, plugin_key TEXT, snapshot_id TEXT, metadata TEXT, created_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS lix_internal_commit (
			id TEXT PRIMARY KEY, change_set_id TEXT, change_ids TEXT, author_account_ids TEXT,
			parent_commit_ids TEXT, meta_change_ids TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS lix_internal_state_untracked (
			entity_id TEXT, schema_key TEXT, file_id TEXT, version_id TEXT, plugin_key TEXT,
			snapshot_content TEXT, metadata TEXT, schema_version TEXT, created_at TEXT, updated_at TEXT,
			PRIMARY KEY (entity_id, schema_key, file_id, version_id)
		)`,
		`CREATE TABLE IF NOT EXISTS lix_internal_file_data_cache (
			file_id TEXT, version_id TEXT, data ` + blobType + `,
			PRIMARY KEY (file_id, version_id)
		)`,
		`CREATE TABLE IF NOT EXISTS lix_internal_file_history_data_cache (
			file_id TEXT, root_commit_id TEXT, depth INTEGER, data ` + blobType + `
		)`,
		`CREATE TABLE IF NOT EXISTS lix_internal_binary_blob_store (
			blob_hash TEXT PRIMARY KEY, data ` + blobType + `, size_bytes INTEGER, created_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS lix_internal_binary_file_version_ref (
			file_id TEXT, version_id TEXT, blob_hash TEXT, size_bytes INTEGER, updated_at TEXT,
			PRIMARY KEY (file_id, version_id)
		)`,
		`CREATE TABLE IF NOT EXISTS lix_internal_file_path_cache (
			file_id TEXT, version_id TEXT, directory_id TEXT, name TEXT, extension TEXT, path TEXT,
			PRIMARY KEY (file_id, version_id)
		)`,
		`CREATE TABLE IF NOT EXISTS lix_internal_file_lixcol_cache (
			file_id TEXT, version_id TEXT, latest_change_id TEXT, latest_commit_id TEXT,
			created_at TEXT, updated_at TEXT, writer_key TEXT,
			PRIMARY KEY (file_id, version_id)
		)`,
		`CREATE TABLE IF NOT EXISTS lix_internal_plugin (
			key TEXT PRIMARY KEY, runtime TEXT, api_version TEXT, match_path_glob TEXT,
			entry TEXT, manifest_json TEXT, wasm ` + blobType + `, created_at TEXT, updated_at TEXT
		)`,
	}
}

// Init creates the internal tables, registers the built-in schemas, and
// creates the default global version plus its active pointer (spec §6
// "Persisted state layout"; SPEC_FULL.md "Boot sequence").
func (e *Engine) Init(ctx context.Context) error {
	for _, ddl := range fixedTableDDL(e.backend.Dialect()) {
		if _, err := e.backend.Execute(ctx, ddl, nil); err != nil {
			return err
		}
	}

	for _, raw := range builtinSchemas {
		if err := e.registerSchema(ctx, []byte(raw)); err != nil {
			return err
		}
	}

	ts, err := e.detfn.Timestamp()
	if err != nil {
		return err
	}

	if err := e.seedBuiltinRow(ctx, "lix_version_descriptor", globalVersionID, map[string]any{
		"id": globalVersionID, "name": "global", "inherits_from_version_id": nil, "hidden": false,
	}, ts); err != nil {
		return err
	}
	if err := e.seedBuiltinRow(ctx, "lix_version_pointer", globalVersionID, map[string]any{
		"id": globalVersionID, "commit_id": "", "working_commit_id": "",
	}, ts); err != nil {
		return err
	}
	if err := e.seedUntrackedRow(ctx, "lix_active_version", "active_version", map[string]any{
		"version_id": globalVersionID,
	}, ts); err != nil {
		return err
	}

	return nil
}

// registerSchema validates and registers a schema, then creates its
// materialized table and refreshes the lix_internal_state_vtable view
// so the new schema_key's rows are immediately visible to reads.
func (e *Engine) registerSchema(ctx context.Context, raw []byte) error {
	s, err := e.registry.Register(raw)
	if err != nil {
		return err
	}
	if err := e.createMaterializedTable(ctx, s.Key); err != nil {
		return err
	}
	return e.refreshStateVtableView(ctx)
}

func (e *Engine) createMaterializedTable(ctx context.Context, schemaKey string) error {
	table := materialize.MaterializedTableName(schemaKey)
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		entity_id TEXT, schema_key TEXT, schema_version TEXT, file_id TEXT, version_id TEXT,
		plugin_key TEXT, snapshot_content TEXT, inherited_from_version_id TEXT, change_id TEXT,
		metadata TEXT, writer_key TEXT, is_tombstone BOOLEAN, created_at TEXT, updated_at TEXT,
		PRIMARY KEY (entity_id, file_id, version_id)
	)`, table)
	_, err := e.backend.Execute(ctx, ddl, nil)
	return err
}

// refreshStateVtableView (re)creates lix_internal_state_vtable as a SQL
// VIEW mirroring the Lower phase's UNION ALL expansion (spec §4.5), so
// direct queries issued by internal/state and internal/materialize
// against that name see every registered schema's materialized table.
func (e *Engine) refreshStateVtableView(ctx context.Context) error {
	if _, err := e.backend.Execute(ctx, `DROP VIEW IF EXISTS lix_internal_state_vtable`, nil); err != nil {
		return err
	}
	union := readplan.BuildStateVtableUnionSQL(e.catalog)
	_, err := e.backend.Execute(ctx, fmt.Sprintf(`CREATE VIEW lix_internal_state_vtable AS %s`, union), nil)
	return err
}

func (e *Engine) seedBuiltinRow(ctx context.Context, schemaKey, entityID string, snapshot map[string]any, ts string) error {
	encoded, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	table := materialize.MaterializedTableName(schemaKey)
	changeID, err := e.detfn.UUIDv7()
	if err != nil {
		return err
	}
	binder := backend.NewBinder(e.backend.Dialect())
	bound, err := binder.Bind(fmt.Sprintf(`
		INSERT INTO %s (entity_id, schema_key, schema_version, file_id, version_id, plugin_key,
			snapshot_content, inherited_from_version_id, change_id, metadata, writer_key,
			is_tombstone, created_at, updated_at)
		SELECT ?1, ?2, '1.0', '', ?3, '', ?4, NULL, ?5, '{}', 'boot', false, ?6, ?6
		WHERE NOT EXISTS (SELECT 1 FROM %s WHERE entity_id = ?1 AND file_id = '' AND version_id = ?3)`,
		table, table),
		[]backend.Value{
			backend.Text(entityID), backend.Text(schemaKey), backend.Text(globalVersionID),
			backend.Text(encoded), backend.Text(changeID), backend.Text(ts),
		})
	if err != nil {
		return err
	}
	_, err = e.backend.Execute(ctx, bound.SQL, bound.Params)
	return err
}

func (e *Engine) seedUntrackedRow(ctx context.Context, schemaKey, entityID string, snapshot map[string]any, ts string) error {
	encoded, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	binder := backend.NewBinder(e.backend.Dialect())
	bound, err := binder.Bind(`
		INSERT INTO lix_internal_state_untracked (entity_id, schema_key, file_id, version_id, plugin_key,
			snapshot_content, metadata, schema_version, created_at, updated_at)
		SELECT ?1, ?2, '', ?3, '', ?4, '{}', '1.0', ?5, ?5
		WHERE NOT EXISTS (
			SELECT 1 FROM lix_internal_state_untracked WHERE entity_id = ?1 AND schema_key = ?2 AND file_id = '' AND version_id = ?3
		)`,
		[]backend.Value{
			backend.Text(entityID), backend.Text(schemaKey), backend.Text(globalVersionID),
			backend.Text(encoded), backend.Text(ts),
		})
	if err != nil {
		return err
	}
	_, err = e.backend.Execute(ctx, bound.SQL, bound.Params)
	return err
}
