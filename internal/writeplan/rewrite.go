// SPDX-License-Identifier: Apache-2.0

package writeplan

import (
	"context"
	"fmt"

	"github.com/opral/lix-sub005/internal/schemareg"
	"github.com/opral/lix-sub005/internal/sqlast"
	"github.com/opral/lix-sub005/pkg/lixerrors"
)

// Context carries the per-statement inputs the write pipeline needs but
// cannot derive from the statement text alone: which version a bare
// write targets, the caller's writer_key tag (spec §4.10's event
// filter), and the schema registry used to resolve defaults and the
// current schema_version for a schema_key.
type Context struct {
	VersionID string
	WriterKey string
	Registry  *schemareg.Registry
	Validator *schemareg.Validator
}

// Build classifies `s` and, for a write route, produces its rewritten
// Plan. Read/Explain/Passthrough/TransactionControl routes return
// (nil, nil) — the caller delegates those elsewhere.
func Build(ctx context.Context, s *sqlast.Statement, wc Context) (*Plan, error) {
	relation := TargetRelation(s)
	route := Classify(s, relation)

	switch route {
	case RouteHistoryWriteRejected:
		return nil, lixerrors.ReadOnlyViewWriteDeniedError{View: relation}

	case RouteFilesystemWrite:
		return buildFilesystemWrite(ctx, s, relation, wc)

	case RouteEntityWrite:
		return buildEntityWrite(ctx, s, relation, wc)

	case RouteInternalVtableWrite:
		return buildInternalVtableWrite(s, wc)

	case RouteRead, RouteExplain, RoutePassthrough, RouteTransactionControl, RouteUnknown:
		return nil, nil

	default:
		return nil, lixerrors.PlanInvariantError{Reason: fmt.Sprintf("unhandled write route %d", route)}
	}
}

// buildEntityWrite rewrites a per-schema entity view write (e.g.
// `INSERT INTO lix_key_value ...`) into a lix_internal_state_vtable
// mutation, evaluating defaults and validating the snapshot along the
// way (spec §4.6 "entity view write").
func buildEntityWrite(ctx context.Context, s *sqlast.Statement, schemaKey string, wc Context) (*Plan, error) {
	version, ok := wc.Registry.LatestVersion(schemaKey)
	if !ok {
		return nil, lixerrors.TableNotFoundError{Relation: schemaKey}
	}
	key := schemareg.Key{SchemaKey: schemaKey, SchemaVersion: version}

	switch {
	case s.InsertStmt() != nil:
		raw, err := insertSnapshot(s.InsertStmt())
		if err != nil {
			return nil, err
		}
		snapshot, err := wc.Validator.ValidateInsert(ctx, wc.VersionID, key, raw)
		if err != nil {
			return nil, err
		}
		entityID, _ := primaryKeyEntityID(snapshot)
		return &Plan{
			Mutations: []MutationRow{{
				Kind:      MutationInsert,
				SchemaKey: schemaKey,
				EntityID:  entityID,
				VersionID: wc.VersionID,
				Snapshot:  snapshot,
				WriterKey: wc.WriterKey,
			}},
		}, nil

	case s.UpdateStmt() != nil:
		patch, err := updatePatch(s.UpdateStmt())
		if err != nil {
			return nil, err
		}
		if err := wc.Validator.ValidateUpdate(ctx, wc.VersionID, key, patch); err != nil {
			return nil, err
		}
		whereSQL, err := deparseExpr(s.UpdateStmt().GetWhereClause())
		if err != nil {
			return nil, err
		}
		return &Plan{
			PostProcess: &PostProcessPlan{
				Kind:         PostProcessVtableUpdate,
				SchemaKey:    schemaKey,
				SelectionSQL: selectionSQLForVtable(schemaKey, wc.VersionID, whereSQL),
			},
			UpdateValidations: []UpdateValidationPlan{{WhereSQL: whereSQL, Patch: patch, Full: false}},
		}, nil

	case s.DeleteStmt() != nil:
		whereSQL, err := deparseExpr(s.DeleteStmt().GetWhereClause())
		if err != nil {
			return nil, err
		}
		return &Plan{
			PostProcess: &PostProcessPlan{
				Kind:         PostProcessVtableDelete,
				SchemaKey:    schemaKey,
				SelectionSQL: selectionSQLForVtable(schemaKey, wc.VersionID, whereSQL),
			},
		}, nil

	default:
		return nil, lixerrors.PlanInvariantError{Reason: "entity write statement is not INSERT/UPDATE/DELETE"}
	}
}

// buildFilesystemWrite rewrites lix_file/lix_directory writes into a
// file_descriptor/directory_descriptor vtable mutation plus, for a
// lix_file INSERT that supplies `data`, a FileWriteInfo the execution
// runtime resolves once it has applied the descriptor mutation, driving
// the file-plugin side-effect engine with the file's actual bytes
// (spec §4.6, §4.9).
func buildFilesystemWrite(ctx context.Context, s *sqlast.Statement, relation string, wc Context) (*Plan, error) {
	schemaKey := "lix_file_descriptor"
	if relation == "lix_directory" {
		schemaKey = "lix_directory_descriptor"
	}

	if ins := s.InsertStmt(); ins != nil {
		raw, err := insertSnapshot(ins)
		if err != nil {
			return nil, err
		}

		var fileBytes []byte
		hasData := false
		if relation == "lix_file" {
			if v, ok := raw["data"]; ok {
				str, _ := v.(string)
				fileBytes = []byte(str)
				hasData = true
				delete(raw, "data")
			}
		}

		entityID, _ := primaryKeyEntityID(raw)

		var fileWrite *FileWriteInfo
		if hasData {
			path, _ := raw["path"].(string)
			fileWrite = &FileWriteInfo{FileID: entityID, Path: path, Data: fileBytes}
		}

		return &Plan{
			Mutations: []MutationRow{{
				Kind:      MutationInsert,
				SchemaKey: schemaKey,
				EntityID:  entityID,
				VersionID: wc.VersionID,
				Snapshot:  raw,
				WriterKey: wc.WriterKey,
			}},
			FileWrite: fileWrite,
		}, nil
	}

	if relation == "lix_file" {
		if upd := s.UpdateStmt(); upd != nil {
			for _, t := range upd.GetTargetList() {
				if t.GetResTarget().GetName() == "data" {
					return nil, lixerrors.InvalidArgumentError{Reason: "updating lix_file.data is not supported; re-insert the file to drive a new plugin detection pass"}
				}
			}
		}
	}

	// UPDATE/DELETE against the filesystem views route through the same
	// vtable post-process shape as an entity write.
	return buildEntityWrite(ctx, s, schemaKey, wc)
}

// buildInternalVtableWrite normalizes a direct write against
// lix_internal_state_vtable, requiring the mandatory schema_key
// predicate (spec §4.6 "internal-state vtable write").
func buildInternalVtableWrite(s *sqlast.Statement, wc Context) (*Plan, error) {
	whereNode := whereClauseOf(s)
	if whereNode == nil {
		return nil, lixerrors.InvalidArgumentError{Reason: "writes to lix_internal_state_vtable require a schema_key predicate"}
	}
	whereSQL, err := deparseExpr(whereNode)
	if err != nil {
		return nil, err
	}

	switch {
	case s.InsertStmt() != nil:
		raw, err := insertSnapshot(s.InsertStmt())
		if err != nil {
			return nil, err
		}
		schemaKey, _ := raw["schema_key"].(string)
		entityID, _ := raw["entity_id"].(string)
		return &Plan{Mutations: []MutationRow{{
			Kind: MutationInsert, SchemaKey: schemaKey, EntityID: entityID,
			VersionID: wc.VersionID, Snapshot: raw, WriterKey: wc.WriterKey,
		}}}, nil
	case s.UpdateStmt() != nil:
		patch, err := updatePatch(s.UpdateStmt())
		if err != nil {
			return nil, err
		}
		schemaKey, _ := patch["schema_key"].(string)
		return &Plan{PostProcess: &PostProcessPlan{Kind: PostProcessVtableUpdate, SchemaKey: schemaKey, SelectionSQL: whereSQL}}, nil
	case s.DeleteStmt() != nil:
		return &Plan{PostProcess: &PostProcessPlan{Kind: PostProcessVtableDelete, SelectionSQL: whereSQL}}, nil
	default:
		return nil, lixerrors.PlanInvariantError{Reason: "internal vtable write statement is not INSERT/UPDATE/DELETE"}
	}
}

func primaryKeyEntityID(snapshot map[string]any) (string, bool) {
	for _, candidate := range []string{"id", "key", "entity_id"} {
		if v, ok := snapshot[candidate]; ok {
			if s, ok := v.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

func selectionSQLForVtable(schemaKey, versionID, whereSQL string) string {
	return fmt.Sprintf(
		"SELECT * FROM lix_internal_state_vtable WHERE schema_key = '%s' AND version_id = '%s' AND (%s)",
		schemaKey, versionID, whereSQL,
	)
}
