// SPDX-License-Identifier: Apache-2.0

// Package eventbus implements the pull-based state-commit event stream
// (spec §4.10): one batch per committed transaction, filtered by a
// schema_key include list and a writer_key exclude list.
package eventbus
