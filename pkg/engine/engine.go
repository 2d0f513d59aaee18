// SPDX-License-Identifier: Apache-2.0

// Package engine composes the backend, rewrite pipelines, schema
// registry, state resolution, materialization, plugin side effects, and
// event bus into the client-facing surface described in spec §6:
// execute, transaction, create_version/switch_version/create_checkpoint,
// install_plugin, state_commit_events, and materialization_plan/
// apply_materialization_plan.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/opral/lix-sub005/internal/backend"
	"github.com/opral/lix-sub005/internal/celeval"
	"github.com/opral/lix-sub005/internal/detfn"
	"github.com/opral/lix-sub005/internal/eventbus"
	"github.com/opral/lix-sub005/internal/materialize"
	"github.com/opral/lix-sub005/internal/plugin"
	"github.com/opral/lix-sub005/internal/readplan"
	"github.com/opral/lix-sub005/internal/schemareg"
	"github.com/opral/lix-sub005/internal/sqlast"
	"github.com/opral/lix-sub005/internal/state"
	"github.com/opral/lix-sub005/internal/writeplan"
	"github.com/opral/lix-sub005/pkg/lixerrors"
)

// Engine is the top-level handle returned to a client after Init. It
// owns every piece of shared process state (spec §5 "Shared resources"):
// the compiled-schema cache, the deterministic-function counters, the
// plugin registry, and the event bus.
type Engine struct {
	backend   backend.Backend
	registry  *schemareg.Registry
	validator *schemareg.Validator
	celEval   *celeval.Evaluator
	detfn     *detfn.Provider
	chain     *state.ChainResolver
	live      *state.LiveState
	planner   *materialize.Planner
	plugins   *plugin.Registry
	binaries  *plugin.BinaryStore
	bus       *eventbus.Bus
	logger    Logger
	catalog   *schemaCatalog

	mu            sync.Mutex
	activeVersion string
}

// schemaCatalog adapts the schema registry to readplan.SchemaCatalog.
type schemaCatalog struct {
	registry *schemareg.Registry
}

func (c *schemaCatalog) MaterializedTableNames() []string {
	keys := c.registry.SchemaKeys()
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = materialize.MaterializedTableName(k)
	}
	return names
}

func (c *schemaCatalog) SchemaProperties(schemaKey string) ([]string, bool) {
	return c.registry.PropertyNames(schemaKey)
}

// New wires every package's concrete implementation together behind the
// Engine facade. Callers must still call Init before issuing statements.
func New(b backend.Backend, logger Logger) (*Engine, error) {
	if logger == nil {
		logger = NewNoopLogger()
	}
	registry := schemareg.NewRegistry()
	det := detfn.NewProvider()
	celEval, err := celeval.New(det)
	if err != nil {
		return nil, fmt.Errorf("constructing CEL evaluator: %w", err)
	}
	chain := state.NewChainResolver(b)
	live := state.NewLiveState(b, chain)
	validator := schemareg.NewValidator(registry, celEval, live)

	e := &Engine{
		backend:       b,
		registry:      registry,
		validator:     validator,
		celEval:       celEval,
		detfn:         det,
		chain:         chain,
		live:          live,
		planner:       materialize.NewPlanner(b, chain),
		plugins:       plugin.NewRegistry(),
		binaries:      plugin.NewBinaryStore(b),
		bus:           eventbus.NewBus(),
		logger:        logger,
		activeVersion: globalVersionID,
	}
	e.catalog = &schemaCatalog{registry: registry}
	return e, nil
}

// EnableDeterministicMode switches uuid_v7()/timestamp() to the
// persisted-counter sequence used by reproducible test fixtures (spec
// §4.4, §8 "Determinism in deterministic mode").
func (e *Engine) EnableDeterministicMode(startCounter uint64) {
	e.detfn.EnableDeterministic(startCounter)
}

// ExecuteOptions carries the per-call inputs spec §6's `execute` accepts
// beyond the statement text itself.
type ExecuteOptions struct {
	WriterKey           string
	VersionID           string // empty uses the engine's current active version
	AllowInternalAccess bool   // required to read lix_internal_* relations directly (spec §8 "Internal-table guard")
}

const internalTablePrefix = "lix_internal_"

// QueryResult is the client-facing shape of spec §6 `execute`'s return
// value.
type QueryResult struct {
	Columns []string
	Rows    [][]backend.Value
}

func rowsToResult(r backend.Rows) *QueryResult {
	return &QueryResult{Columns: r.Columns, Rows: r.Rows}
}

// Execute runs exactly one parsed statement through the read or write
// pipeline and, for writes, an implicit single-statement transaction
// (spec §4.8, §6 "execute(sql, params, options?)").
func (e *Engine) Execute(ctx context.Context, sqlText string, params []backend.Value, opts ExecuteOptions) (*QueryResult, error) {
	if sqlText == "" {
		return nil, lixerrors.InvalidArgumentError{Reason: "empty SQL statement"}
	}
	tree, err := sqlast.Parse(sqlText)
	if err != nil {
		return nil, err
	}
	stmts := tree.Statements()
	if len(stmts) != 1 {
		return nil, lixerrors.InvalidArgumentError{Reason: "execute accepts exactly one statement; use transaction for multi-statement batches"}
	}
	stmt := stmts[0]

	versionID := opts.VersionID
	if versionID == "" {
		versionID = e.ActiveVersion()
	}

	switch sqlast.Classify(stmt) {
	case sqlast.KindQueryRead, sqlast.KindExplainRead:
		return e.executeRead(ctx, e.backend, stmt, params, opts.AllowInternalAccess)
	case sqlast.KindTransactionControl:
		return nil, lixerrors.InvalidArgumentError{Reason: "use Engine.Transaction for explicit transaction control"}
	case sqlast.KindPassthroughDDL:
		e.logger.LogExecuteStart(sqlText)
		rows, err := e.backend.Execute(ctx, sqlText, params)
		if err != nil {
			e.logger.LogExecuteRollback(sqlText, err)
			return nil, err
		}
		e.logger.LogExecuteComplete(sqlText)
		return rowsToResult(rows), nil
	default:
		return e.executeWrite(ctx, stmt, params, versionID, opts.WriterKey)
	}
}

// executeRead runs the read pipeline against q, which is either the
// engine's backend (Execute's implicit single-statement path) or an
// open Transaction's backend.Transaction (the scoped-transaction path),
// so reads issued inside a transaction see that transaction's own
// uncommitted writes.
func (e *Engine) executeRead(ctx context.Context, q backend.Queryer, stmt *sqlast.Statement, params []backend.Value, allowInternal bool) (*QueryResult, error) {
	plan, err := readplan.Run(stmt, e.catalog)
	if err != nil {
		return nil, err
	}
	if !allowInternal {
		for _, rel := range plan.Relations {
			if strings.HasPrefix(rel.Name, internalTablePrefix) {
				return nil, lixerrors.InternalTableAccessDeniedError{Relation: rel.Name}
			}
		}
	}
	sql, err := sqlast.Deparse([]*sqlast.Statement{plan.Statement})
	if err != nil {
		return nil, err
	}
	rows, err := q.Execute(ctx, sql, params)
	if err != nil {
		return nil, err
	}
	return rowsToResult(rows), nil
}

// executeWrite rewrites stmt via writeplan, runs it inside an implicit,
// single-statement backend transaction, materializes the resulting
// rows, and performs the post-commit fan-out described in spec §4.8
// step 7 (binary GC, event broadcast).
func (e *Engine) executeWrite(ctx context.Context, stmt *sqlast.Statement, params []backend.Value, versionID, writerKey string) (*QueryResult, error) {
	e.logger.LogExecuteStart("<rewritten write>")

	tx, err := e.backend.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}

	mutations, result, err := e.executeWriteInTx(ctx, tx, stmt, params, versionID, writerKey)
	if err != nil {
		_ = tx.Rollback(ctx)
		e.logger.LogExecuteRollback("<rewritten write>", err)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		e.logger.LogExecuteRollback("<rewritten write>", err)
		return nil, err
	}
	e.logger.LogExecuteComplete("<rewritten write>")

	e.postCommitFanout(ctx, mutations)

	return result, nil
}

// executeWriteInTx rewrites stmt via writeplan and applies it against
// an already-open tx, without committing. It is shared by the
// implicit single-statement path (executeWrite) and by Transaction's
// scoped multi-statement path, which accumulates mutations across
// several calls before a single commit (spec §6 `transaction(options,
// f)`).
func (e *Engine) executeWriteInTx(ctx context.Context, tx backend.Transaction, stmt *sqlast.Statement, params []backend.Value, versionID, writerKey string) ([]eventbus.CommitMutation, *QueryResult, error) {
	wp, err := writeplan.Build(ctx, stmt, writeplan.Context{
		VersionID: versionID,
		WriterKey: writerKey,
		Registry:  e.registry,
		Validator: e.validator,
	})
	if err != nil {
		return nil, nil, err
	}
	if wp == nil {
		// Statements of KindUnknown reach here through Execute's default
		// branch (RouteUnknown); like the other non-write routes they are
		// treated as a no-op statement.
		return nil, &QueryResult{}, nil
	}

	mutations, err := e.applyWritePlan(ctx, tx, wp, versionID)
	if err != nil {
		return nil, nil, err
	}
	return mutations, &QueryResult{}, nil
}

// applyWritePlan turns a writeplan.Plan into MaterializedWrites, records
// the Change/Commit rows, and applies them inside tx. It returns the
// eventbus mutations the commit produced.
func (e *Engine) applyWritePlan(ctx context.Context, tx backend.Transaction, wp *writeplan.Plan, versionID string) ([]eventbus.CommitMutation, error) {
	for _, prep := range wp.Preparatory {
		if _, err := tx.Execute(ctx, prep, nil); err != nil {
			return nil, err
		}
	}

	var writes []materialize.MaterializedWrite

	for _, m := range wp.Mutations {
		w, err := e.buildWrite(ctx, tx, m.Kind, m.SchemaKey, m.EntityID, m.FileID, m.VersionID, m.Snapshot, m.WriterKey, "")
		if err != nil {
			return nil, err
		}
		writes = append(writes, w)
	}

	if wp.FileWrite != nil {
		fileWrites, err := e.runFilePlugin(ctx, tx, wp.FileWrite, versionID)
		if err != nil {
			return nil, err
		}
		writes = append(writes, fileWrites...)
	}

	if wp.PostProcess != nil {
		rows, err := tx.Execute(ctx, wp.PostProcess.SelectionSQL, nil)
		if err != nil {
			return nil, err
		}
		for _, row := range rows.Rows {
			selected, err := decodeSelectedRow(rows.Columns, row)
			if err != nil {
				return nil, err
			}
			schemaKey := selected.schemaKey
			if schemaKey == "" {
				schemaKey = wp.PostProcess.SchemaKey
			}
			switch wp.PostProcess.Kind {
			case writeplan.PostProcessVtableUpdate:
				snapshot := selected.snapshot
				for _, uv := range wp.UpdateValidations {
					if uv.Full {
						snapshot = uv.Patch
					} else {
						for k, v := range uv.Patch {
							snapshot[k] = v
						}
					}
				}
				w, err := e.buildWrite(ctx, tx, writeplan.MutationUpdate, schemaKey, selected.entityID, selected.fileID, selected.versionID, snapshot, "", "")
				if err != nil {
					return nil, err
				}
				writes = append(writes, w)
			case writeplan.PostProcessVtableDelete:
				w, err := e.buildWrite(ctx, tx, writeplan.MutationDelete, schemaKey, selected.entityID, selected.fileID, selected.versionID, nil, "", "")
				if err != nil {
					return nil, err
				}
				writes = append(writes, w)
			}
		}
	}

	if len(writes) == 0 {
		return nil, lixerrors.PlanInvariantError{Reason: "write statement produced zero materialized rows"}
	}

	report, err := materialize.Apply(ctx, tx, e.backend.Dialect(), &materialize.Plan{Writes: writes})
	if err != nil {
		return nil, err
	}
	e.logger.Info("applied materialized writes", "written", report.RowsWritten, "deleted", report.RowsDeleted, "tables", report.TablesTouched)

	commitID, err := e.detfn.UUIDv7()
	if err != nil {
		return nil, err
	}
	changeIDs := make([]string, len(writes))
	mutations := make([]eventbus.CommitMutation, len(writes))
	for i, w := range writes {
		changeIDs[i] = w.ChangeID
		mutations[i] = eventbus.CommitMutation{
			SchemaKey:   w.SchemaKey,
			EntityID:    w.EntityID,
			FileID:      w.FileID,
			VersionID:   w.VersionID,
			ChangeID:    w.ChangeID,
			WriterKey:   w.WriterKey,
			IsTombstone: w.Kind == materialize.WriteTombstone,
			Snapshot:    w.SnapshotContent,
		}
	}
	if err := e.recordCommit(ctx, tx, commitID, changeIDs); err != nil {
		return nil, err
	}

	return mutations, nil
}

// buildWrite assigns a change_id/timestamp and encodes a snapshot into a
// MaterializedWrite, recording the backing Change and Snapshot rows.
// pluginKey tags the Change row with the plugin that derived it (empty
// for ordinary entity writes; set for rows a file plugin's
// detect_changes produced, spec §4.9).
func (e *Engine) buildWrite(ctx context.Context, tx backend.Transaction, kind writeplan.MutationKind, schemaKey, entityID, fileID, versionID string, snapshot map[string]any, writerKey, pluginKey string) (materialize.MaterializedWrite, error) {
	ts, err := e.detfn.Timestamp()
	if err != nil {
		return materialize.MaterializedWrite{}, err
	}
	changeID, err := e.detfn.UUIDv7()
	if err != nil {
		return materialize.MaterializedWrite{}, err
	}

	writeKind := materialize.WriteUpsert
	encoded := ""
	if kind == writeplan.MutationDelete {
		writeKind = materialize.WriteTombstone
	} else {
		b, err := json.Marshal(snapshot)
		if err != nil {
			return materialize.MaterializedWrite{}, lixerrors.InvalidArgumentError{Reason: fmt.Sprintf("encoding snapshot: %s", err)}
		}
		encoded = string(b)
	}

	schemaVersion, _ := e.registry.LatestVersion(schemaKey)

	binder := backend.NewBinder(e.backend.Dialect())
	changeStmt, err := binder.Bind(
		`INSERT INTO lix_internal_change (id, entity_id, schema_key, schema_version, file_id, plugin_key, snapshot_id, metadata, created_at) VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?1, '{}', ?7)`,
		[]backend.Value{backend.Text(changeID), backend.Text(entityID), backend.Text(schemaKey), backend.Text(schemaVersion), backend.Text(fileID), backend.Text(pluginKey), backend.Text(ts)},
	)
	if err != nil {
		return materialize.MaterializedWrite{}, err
	}
	if _, err := tx.Execute(ctx, changeStmt.SQL, changeStmt.Params); err != nil {
		return materialize.MaterializedWrite{}, err
	}
	if encoded != "" {
		snapStmt, err := binder.Bind(
			`INSERT INTO lix_internal_snapshot (id, content) VALUES (?1, ?2)`,
			[]backend.Value{backend.Text(changeID), backend.Text(encoded)},
		)
		if err != nil {
			return materialize.MaterializedWrite{}, err
		}
		if _, err := tx.Execute(ctx, snapStmt.SQL, snapStmt.Params); err != nil {
			return materialize.MaterializedWrite{}, err
		}
	}

	return materialize.MaterializedWrite{
		Kind:            writeKind,
		SchemaKey:       schemaKey,
		EntityID:        entityID,
		FileID:          fileID,
		VersionID:       versionID,
		SchemaVersion:   schemaVersion,
		PluginKey:       pluginKey,
		SnapshotContent: encoded,
		ChangeID:        changeID,
		Metadata:        "{}",
		WriterKey:       writerKey,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}, nil
}

// runFilePlugin drives the file-plugin side-effect engine for one
// lix_file INSERT (spec §4.9 "On file writes"): select the best plugin
// for the path, call detect_changes against the new bytes, persist the
// resulting entity changes as additional materialized writes tagged
// with the plugin's key, then call apply_changes to reconstruct the
// bytes and refresh the file-data/path caches the lix_file view reads
// (spec §4.9 "On file reads").
func (e *Engine) runFilePlugin(ctx context.Context, tx backend.Transaction, fw *writeplan.FileWriteInfo, versionID string) ([]materialize.MaterializedWrite, error) {
	manifest, err := e.plugins.RequireForPath(fw.Path)
	if err != nil {
		return nil, err
	}
	p, ok := e.plugins.PluginFor(manifest.Key)
	if !ok {
		return nil, lixerrors.PluginError{PluginKey: manifest.Key, Reason: "no plugin implementation bound for installed manifest"}
	}

	changes, err := p.DetectChanges(ctx, nil, plugin.File{ID: fw.FileID, Path: fw.Path, Data: fw.Data}, map[string]any{})
	if err != nil {
		return nil, lixerrors.PluginError{PluginKey: manifest.Key, Reason: "detect_changes failed", Err: err}
	}

	writes := make([]materialize.MaterializedWrite, 0, len(changes))
	for _, c := range changes {
		kind := writeplan.MutationInsert
		var snapshot map[string]any
		if c.SnapshotContent == nil {
			kind = writeplan.MutationDelete
		} else {
			if err := json.Unmarshal([]byte(*c.SnapshotContent), &snapshot); err != nil {
				return nil, lixerrors.InvalidArgumentError{Reason: fmt.Sprintf("decoding plugin-detected snapshot: %s", err)}
			}
		}
		w, err := e.buildWrite(ctx, tx, kind, c.SchemaKey, c.EntityID, fw.FileID, versionID, snapshot, "", manifest.Key)
		if err != nil {
			return nil, err
		}
		writes = append(writes, w)
	}

	reconstructed, err := p.ApplyChanges(ctx, plugin.File{ID: fw.FileID, Path: fw.Path}, changes)
	if err != nil {
		return nil, lixerrors.PluginError{PluginKey: manifest.Key, Reason: "apply_changes failed", Err: err}
	}

	binder := backend.NewBinder(e.backend.Dialect())

	deleteData, err := binder.Bind(
		`DELETE FROM lix_internal_file_data_cache WHERE file_id = ?1 AND version_id = ?2`,
		[]backend.Value{backend.Text(fw.FileID), backend.Text(versionID)},
	)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Execute(ctx, deleteData.SQL, deleteData.Params); err != nil {
		return nil, err
	}
	dataStmt, err := binder.Bind(
		`INSERT INTO lix_internal_file_data_cache (file_id, version_id, data) VALUES (?1, ?2, ?3)`,
		[]backend.Value{backend.Text(fw.FileID), backend.Text(versionID), backend.Blob(reconstructed)},
	)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Execute(ctx, dataStmt.SQL, dataStmt.Params); err != nil {
		return nil, err
	}

	deletePath, err := binder.Bind(
		`DELETE FROM lix_internal_file_path_cache WHERE file_id = ?1 AND version_id = ?2`,
		[]backend.Value{backend.Text(fw.FileID), backend.Text(versionID)},
	)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Execute(ctx, deletePath.SQL, deletePath.Params); err != nil {
		return nil, err
	}
	dir, name, ext := splitPath(fw.Path)
	pathStmt, err := binder.Bind(
		`INSERT INTO lix_internal_file_path_cache (file_id, version_id, directory_id, name, extension, path) VALUES (?1, ?2, ?3, ?4, ?5, ?6)`,
		[]backend.Value{backend.Text(fw.FileID), backend.Text(versionID), backend.Text(dir), backend.Text(name), backend.Text(ext), backend.Text(fw.Path)},
	)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Execute(ctx, pathStmt.SQL, pathStmt.Params); err != nil {
		return nil, err
	}

	ts, err := e.detfn.Timestamp()
	if err != nil {
		return nil, err
	}
	if _, err := e.binaries.Put(ctx, fw.FileID, versionID, reconstructed, ts); err != nil {
		return nil, err
	}

	return writes, nil
}

// splitPath derives the directory_id/name/extension triple the file
// path cache stores from a `/`-joined path. directory_id here is the
// parent path itself rather than a directory entity id, since a plain
// lix_file INSERT carries no directory_descriptor reference.
func splitPath(path string) (directoryID, name, extension string) {
	trimmed := strings.TrimPrefix(path, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		name = trimmed
	} else {
		directoryID = "/" + trimmed[:idx]
		name = trimmed[idx+1:]
	}
	if dot := strings.LastIndex(name, "."); dot > 0 {
		extension = name[dot+1:]
	}
	return directoryID, name, extension
}

func (e *Engine) recordCommit(ctx context.Context, tx backend.Transaction, commitID string, changeIDs []string) error {
	encoded, err := json.Marshal(changeIDs)
	if err != nil {
		return err
	}
	bound, err := backend.NewBinder(e.backend.Dialect()).Bind(
		`INSERT INTO lix_internal_commit (id, change_set_id, change_ids, author_account_ids, parent_commit_ids, meta_change_ids) VALUES (?1, ?1, ?2, '[]', '[]', '[]')`,
		[]backend.Value{backend.Text(commitID), backend.Text(string(encoded))},
	)
	if err != nil {
		return err
	}
	_, err = tx.Execute(ctx, bound.SQL, bound.Params)
	return err
}

// postCommitFanout runs the post-commit effects spec §4.8 step 7 lists
// in order: binary GC for file-domain mutations, then the event
// broadcast. Failures here are logged and do not undo the commit (spec
// §7 "Post-commit effects that fail do not retroactively undo the
// commit").
func (e *Engine) postCommitFanout(ctx context.Context, mutations []eventbus.CommitMutation) {
	versionIDs := make([]string, 0, len(mutations))
	seen := make(map[string]bool)
	touchesFiles := false
	for _, m := range mutations {
		if !seen[m.VersionID] {
			seen[m.VersionID] = true
			versionIDs = append(versionIDs, m.VersionID)
		}
		if m.SchemaKey == "lix_file_descriptor" {
			touchesFiles = true
		}
	}

	e.logger.LogCommitFanoutStart(versionIDs)

	if touchesFiles {
		if _, err := e.binaries.GC(ctx); err != nil {
			e.logger.Info("binary GC failed", "error", err)
		}
	}

	if err := e.bus.Publish(ctx, mutations); err != nil {
		e.logger.Info("event broadcast failed", "error", err)
	}

	e.logger.LogCommitFanoutComplete(versionIDs)
}

// selectedRow is one row read back from lix_internal_state_vtable by a
// post-process SELECT, decomposed into the vtable columns the runtime
// needs to build the follow-up MaterializedWrite.
type selectedRow struct {
	entityID  string
	fileID    string
	versionID string
	schemaKey string
	snapshot  map[string]any
}

func decodeSelectedRow(columns []string, row []backend.Value) (selectedRow, error) {
	var out selectedRow
	out.snapshot = map[string]any{}
	for i, col := range columns {
		switch col {
		case "entity_id":
			out.entityID = row[i].Text
		case "file_id":
			out.fileID = row[i].Text
		case "version_id":
			out.versionID = row[i].Text
		case "schema_key":
			out.schemaKey = row[i].Text
		case "snapshot_content":
			if row[i].IsNull() {
				continue
			}
			if err := json.Unmarshal([]byte(row[i].Text), &out.snapshot); err != nil {
				return selectedRow{}, lixerrors.InvalidArgumentError{Reason: fmt.Sprintf("decoding selected snapshot: %s", err)}
			}
		}
	}
	return out, nil
}

func encodeSnapshot(snapshot map[string]any) (string, error) {
	b, err := json.Marshal(snapshot)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ActiveVersion returns the version_id Execute targets when
// ExecuteOptions.VersionID is empty.
func (e *Engine) ActiveVersion() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeVersion
}

// CreateVersionOptions names the new version and, when empty, inherits
// from the engine's current active version (spec §6 `create_version`).
type CreateVersionOptions struct {
	Name           string
	InheritsFromID string
}

// CreateVersion inserts a new version_descriptor/version_pointer pair
// and returns its id (spec §6 `create_version(options?)`).
func (e *Engine) CreateVersion(ctx context.Context, opts CreateVersionOptions) (string, error) {
	inheritsFrom := opts.InheritsFromID
	if inheritsFrom == "" {
		inheritsFrom = e.ActiveVersion()
	}
	id, err := e.detfn.UUIDv7()
	if err != nil {
		return "", err
	}
	name := opts.Name
	if name == "" {
		name = id
	}

	tx, err := e.backend.BeginTransaction(ctx)
	if err != nil {
		return "", err
	}

	descriptor, err := e.buildWrite(ctx, tx, writeplan.MutationInsert, "lix_version_descriptor", id, "", globalVersionID, map[string]any{
		"id": id, "name": name, "inherits_from_version_id": inheritsFrom, "hidden": false,
	}, "engine", "")
	if err != nil {
		_ = tx.Rollback(ctx)
		return "", err
	}
	pointer, err := e.buildWrite(ctx, tx, writeplan.MutationInsert, "lix_version_pointer", id, "", globalVersionID, map[string]any{
		"id": id, "commit_id": "", "working_commit_id": "",
	}, "engine", "")
	if err != nil {
		_ = tx.Rollback(ctx)
		return "", err
	}
	if _, err := materialize.Apply(ctx, tx, e.backend.Dialect(), &materialize.Plan{
		Writes: []materialize.MaterializedWrite{descriptor, pointer},
	}); err != nil {
		_ = tx.Rollback(ctx)
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}

// SwitchVersion changes the session's active version (spec §6
// `switch_version(id)`), after confirming the version exists.
func (e *Engine) SwitchVersion(ctx context.Context, versionID string) error {
	table := materialize.MaterializedTableName("lix_version_descriptor")
	bound, err := backend.NewBinder(e.backend.Dialect()).Bind(
		fmt.Sprintf(`SELECT 1 FROM %s WHERE entity_id = ?1 AND is_tombstone = false`, table),
		[]backend.Value{backend.Text(versionID)},
	)
	if err != nil {
		return err
	}
	rows, err := e.backend.Execute(ctx, bound.SQL, bound.Params)
	if err != nil {
		return err
	}
	if len(rows.Rows) == 0 {
		return lixerrors.InvalidArgumentError{Reason: fmt.Sprintf("unknown version_id %q", versionID)}
	}
	e.mu.Lock()
	e.activeVersion = versionID
	e.mu.Unlock()
	return nil
}

// InstallPlugin registers a plugin manifest and, for wasm-component
// plugins, compiles the module bytes through the shared wazero runtime
// cache before it can be selected for a file mutation (spec §6
// `install_plugin`, §4.9).
func (e *Engine) InstallPlugin(ctx context.Context, manifestJSON []byte, wasmBytes []byte, loader plugin.ModuleLoader) error {
	m, err := plugin.ParseManifest(manifestJSON)
	if err != nil {
		return err
	}
	if len(wasmBytes) > 0 && loader != nil {
		mod, err := loader.Load(ctx, wasmBytes)
		if err != nil {
			return lixerrors.PluginError{PluginKey: m.Key, Reason: "module failed to instantiate", Err: err}
		}
		e.plugins.CacheModule(m.Key, mod)
	}
	e.plugins.Install(m)
	e.logger.LogPluginInstall(m.Key)
	return nil
}

// InstallNativePlugin registers a manifest bound directly to p, for
// plugins implemented in Go rather than as a wasm component and for
// in-process test fixtures (spec §4.9, plugin.NativePlugin).
func (e *Engine) InstallNativePlugin(m plugin.Manifest, p plugin.Plugin) {
	e.plugins.InstallNative(m, p)
	e.logger.LogPluginInstall(m.Key)
}

// StateCommitEvents returns a pull-based subscription over committed
// mutations (spec §6 `state_commit_events(filter)`).
func (e *Engine) StateCommitEvents(filter eventbus.Filter) *eventbus.Subscription {
	return e.bus.Subscribe(filter)
}

// MaterializationPlan computes a materialization Plan for req (spec §6
// `materialization_plan(request)`).
func (e *Engine) MaterializationPlan(ctx context.Context, req materialize.Request) (*materialize.Plan, error) {
	return e.planner.Plan(ctx, req)
}

// ApplyMaterializationPlan writes plan's rows inside a fresh transaction
// (spec §6 `apply_materialization_plan(plan)`).
func (e *Engine) ApplyMaterializationPlan(ctx context.Context, plan *materialize.Plan) (*materialize.ApplyReport, error) {
	tx, err := e.backend.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}
	report, err := materialize.Apply(ctx, tx, e.backend.Dialect(), plan)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return report, nil
}

// CreateCheckpoint materializes every version's winning rows and applies
// the result, collapsing the working set into durable materialized
// tables (spec §6 `create_checkpoint()`).
func (e *Engine) CreateCheckpoint(ctx context.Context) (*materialize.ApplyReport, error) {
	plan, err := e.MaterializationPlan(ctx, materialize.Request{Scope: materialize.Scope{Full: true}})
	if err != nil {
		return nil, err
	}
	return e.ApplyMaterializationPlan(ctx, plan)
}

// Close releases the backend driver's resources.
func (e *Engine) Close() error {
	return e.backend.Close()
}
