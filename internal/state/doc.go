// SPDX-License-Identifier: Apache-2.0

// Package state implements version/commit ancestry resolution and the
// winner-selection algorithm in Go (spec §4.7), used both as the
// schemareg.LiveStateLookup implementation for foreign-key validation
// and by the materialization planner for commit-DAG traversal.
package state
