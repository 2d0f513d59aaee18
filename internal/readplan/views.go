// SPDX-License-Identifier: Apache-2.0

package readplan

import (
	"fmt"
	"strings"
)

// LogicalViews lists every client-facing relation the Canonicalize phase
// rewrites away (spec §1, §4.5). After Lower, none of these names may
// survive in the statement (the "no logical leakage" invariant, §8).
var LogicalViews = map[string]bool{
	"lix_state":            true,
	"lix_state_by_version": true,
	"lix_state_history":    true,
	"lix_file":             true,
	"lix_directory":        true,
	"lix_version":          true,
	"lix_active_version":   true,
	"lix_active_account":   true,
}

// activeVersionScalarSQL resolves "the current active version" wherever
// a canonical view needs it without a caller-supplied version_id.
const activeVersionScalarSQL = `(SELECT version_id FROM lix_internal_state_untracked WHERE schema_key = 'lix_active_version' LIMIT 1)`

// winnerSelectionSQL returns the defining subquery for a winner-selected
// state projection (spec §4.5 Canonicalize, §4.7 winner selection).
//
// It builds an ancestor closure over lix_version_descriptor rows (every
// version paired with every ancestor reachable via
// inherits_from_version_id, bounded per spec §9's cycle guard), joins
// every candidate row against that closure, and ranks candidates within
// each (target version, entity_id, schema_key, file_id) group by
// ascending inheritance depth and then the tie-break order from §4.5
// ("most specific version wins; ties break by updated_at DESC,
// created_at DESC, change_id DESC"). A tombstone can still win the rank
// — it is only dropped from the final projection, so it correctly
// shadows deeper inherited rows without itself appearing.
//
// targetFilter, when non-empty, pins the projection to a single target
// version (used for lix_state, which has no caller-supplied version_id
// predicate); lix_state_by_version passes "" and exposes `version_id`
// for the caller's own WHERE clause, which the Optimize phase pushes
// down to this subquery.
func winnerSelectionSQL(targetFilter string) string {
	filter := ""
	if targetFilter != "" {
		filter = "AND version_id = " + targetFilter
	}
	return fmt.Sprintf(`(
		WITH RECURSIVE version_ancestor(version_id, ancestor_id, depth) AS (
			SELECT d.entity_id, d.entity_id, 0
			FROM lix_internal_state_vtable d
			WHERE d.schema_key = 'lix_version_descriptor' AND d.is_tombstone = 0

			UNION ALL

			SELECT va.version_id, d.snapshot_content ->> 'inherits_from_version_id', va.depth + 1
			FROM version_ancestor va
			JOIN lix_internal_state_vtable d
			  ON d.entity_id = va.ancestor_id AND d.schema_key = 'lix_version_descriptor' AND d.is_tombstone = 0
			WHERE va.ancestor_id IS NOT NULL AND va.depth < 1024
		),
		candidates AS (
			SELECT va.version_id, va.depth, r.entity_id, r.schema_key, r.schema_version,
			       r.file_id, r.plugin_key, r.snapshot_content, r.change_id, r.metadata,
			       r.writer_key, r.is_tombstone, r.created_at, r.updated_at,
			       r.version_id AS storage_version_id
			FROM lix_internal_state_vtable r
			JOIN version_ancestor va ON va.ancestor_id = r.version_id
			WHERE r.schema_key NOT IN ('lix_version_descriptor', 'lix_version_pointer')
		),
		ranked AS (
			SELECT c.*, ROW_NUMBER() OVER (
				PARTITION BY c.version_id, c.entity_id, c.schema_key, c.file_id
				ORDER BY c.depth ASC, c.updated_at DESC, c.created_at DESC, c.change_id DESC
			) AS rn
			FROM candidates c
		)
		SELECT entity_id, schema_key, schema_version, file_id, version_id,
		       CASE WHEN storage_version_id = version_id THEN NULL ELSE storage_version_id END AS inherited_from_version_id,
		       plugin_key, snapshot_content, change_id, metadata, writer_key, created_at, updated_at
		FROM ranked
		WHERE rn = 1 AND is_tombstone = 0
		%s
	)`, filter)
}

const activeVersionViewSQL = `(
	SELECT entity_id, schema_key, schema_version, file_id, version_id,
	       plugin_key, snapshot_content, change_id, metadata, writer_key,
	       created_at, updated_at
	FROM lix_internal_state_untracked
	WHERE schema_key = 'lix_active_version'
)`

const activeAccountViewSQL = `(
	SELECT entity_id, schema_key, schema_version, file_id, version_id,
	       plugin_key, snapshot_content, change_id, metadata, writer_key,
	       created_at, updated_at
	FROM lix_internal_state_untracked
	WHERE schema_key = 'lix_active_account'
)`

const versionViewSQL = `(
	SELECT d.entity_id AS version_id, d.snapshot_content ->> 'name' AS name,
	       d.snapshot_content ->> 'inherits_from_version_id' AS inherits_from_version_id,
	       d.snapshot_content ->> 'hidden' AS hidden,
	       p.snapshot_content ->> 'commit_id' AS commit_id,
	       p.snapshot_content ->> 'working_commit_id' AS working_commit_id
	FROM lix_internal_state_vtable d
	JOIN lix_internal_state_vtable p
	  ON p.entity_id = d.entity_id AND p.schema_key = 'lix_version_pointer'
	WHERE d.schema_key = 'lix_version_descriptor'
	  AND d.version_id = 'global' AND p.version_id = 'global'
	  AND d.is_tombstone = 0 AND p.is_tombstone = 0
)`

// stateHistoryViewSQL walks the commit DAG backwards from each requested
// root_commit_id (spec §4.5 Canonicalize, lix_state_history). Depth 0 is
// the tip commit; the walk is bounded per spec §9 ("Cycles").
const stateHistoryViewSQL = `(
	WITH RECURSIVE commit_walk(root_commit_id, commit_id, depth) AS (
		SELECT c.entity_id, c.entity_id, 0
		FROM lix_internal_state_vtable c
		WHERE c.schema_key = 'lix_commit' AND c.is_tombstone = 0

		UNION ALL

		SELECT w.root_commit_id, parent.value, w.depth + 1
		FROM commit_walk w
		JOIN lix_internal_state_vtable c
		  ON c.entity_id = w.commit_id AND c.schema_key = 'lix_commit' AND c.is_tombstone = 0
		, json_each(c.snapshot_content -> 'parent_commit_ids') AS parent
		WHERE w.depth < 1024
	)
	SELECT ch.snapshot_content ->> 'schema_key' AS schema_key,
	       ch.snapshot_content ->> 'entity_id' AS entity_id,
	       ch.snapshot_content ->> 'file_id' AS file_id,
	       w.root_commit_id, w.depth,
	       ch.snapshot_content AS snapshot_content
	FROM commit_walk w
	JOIN lix_internal_state_vtable commit_row
	  ON commit_row.entity_id = w.commit_id AND commit_row.schema_key = 'lix_commit'
	JOIN lix_internal_change ch
	  ON ch.id IN (SELECT value FROM json_each(commit_row.snapshot_content -> 'change_ids'))
)`

const fileViewSQL = `(
	SELECT f.entity_id AS id, pc.path, f.version_id,
	       fd.data, f.snapshot_content ->> 'directory_id' AS directory_id,
	       f.snapshot_content ->> 'name' AS name,
	       f.snapshot_content ->> 'extension' AS extension
	FROM lix_internal_state_vtable f
	LEFT JOIN lix_internal_file_data_cache fd
	  ON fd.file_id = f.entity_id AND fd.version_id = f.version_id
	LEFT JOIN lix_internal_file_path_cache pc
	  ON pc.file_id = f.entity_id AND pc.version_id = f.version_id
	WHERE f.schema_key = 'lix_file_descriptor' AND f.is_tombstone = 0
)`

const directoryViewSQL = `(
	WITH RECURSIVE dir_path(entity_id, version_id, path, depth) AS (
		SELECT d.entity_id, d.version_id, '/' || (d.snapshot_content ->> 'name'), 0
		FROM lix_internal_state_vtable d
		WHERE d.schema_key = 'lix_directory_descriptor'
		  AND (d.snapshot_content ->> 'directory_id') IS NULL
		  AND d.is_tombstone = 0

		UNION ALL

		SELECT d.entity_id, d.version_id, parent.path || '/' || (d.snapshot_content ->> 'name'), parent.depth + 1
		FROM lix_internal_state_vtable d
		JOIN dir_path parent
		  ON parent.entity_id = (d.snapshot_content ->> 'directory_id') AND parent.version_id = d.version_id
		WHERE d.schema_key = 'lix_directory_descriptor' AND d.is_tombstone = 0
		  AND parent.depth < 1024
	)
	SELECT entity_id AS id, version_id, path FROM dir_path
)`

// entityViewSQL builds the defining subquery for a per-schema entity
// view (spec §1, §4.5 Canonicalize "entity view read"): the winner-
// selected rows for schemaKey in the active version, with
// snapshot_content's declared properties flattened into named columns
// alongside the lixcol_-style bookkeeping columns the fixed views also
// expose. This is the read-side mirror of buildEntityWrite, which
// already treats any unrecognized relation name as a per-schema entity
// view write.
func entityViewSQL(schemaKey string, properties []string) string {
	cols := make([]string, 0, len(properties)+9)
	cols = append(cols,
		"entity_id", "file_id", "version_id", "schema_version",
		"inherited_from_version_id", "change_id", "metadata", "writer_key",
		"created_at", "updated_at",
	)
	for _, p := range properties {
		cols = append(cols, fmt.Sprintf(`snapshot_content ->> '%s' AS %s`, p, p))
	}
	return fmt.Sprintf(`(
		SELECT %s
		FROM %s AS w
		WHERE w.schema_key = '%s'
	)`, strings.Join(cols, ", "), winnerSelectionSQL(activeVersionScalarSQL), schemaKey)
}

// viewDefinition returns the canonical defining subquery SQL for a
// logical view name, if one exists.
func viewDefinition(name string) (string, bool) {
	switch name {
	case "lix_state":
		return winnerSelectionSQL(activeVersionScalarSQL), true
	case "lix_state_by_version":
		return winnerSelectionSQL(""), true
	case "lix_active_version":
		return activeVersionViewSQL, true
	case "lix_active_account":
		return activeAccountViewSQL, true
	case "lix_version":
		return versionViewSQL, true
	case "lix_state_history":
		return stateHistoryViewSQL, true
	case "lix_file":
		return fileViewSQL, true
	case "lix_directory":
		return directoryViewSQL, true
	default:
		return "", false
	}
}
