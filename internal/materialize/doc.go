// SPDX-License-Identifier: Apache-2.0

// Package materialize computes the per-version winner rows for every
// tracked schema and applies them to the per-schema materialized
// tables (spec §4.7 "State resolution and materialization").
//
// Two traversals feed a MaterializationPlan: a version-inheritance walk
// (via state.ChainResolver) that decides which row wins for a given
// (schema_key, entity_id, file_id) tuple at a target version, and an
// optional commit-DAG walk used only to populate the debug trace — the
// two are independent because entity visibility is defined by version
// inheritance (spec §3 invariant 5), while commit ancestry is a
// separate concept used for change history (spec §4.5 lix_state_history).
package materialize
