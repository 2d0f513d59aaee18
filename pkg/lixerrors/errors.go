// SPDX-License-Identifier: Apache-2.0

// Package lixerrors defines the stable, machine-readable error codes and
// typed error values produced by the engine (spec §6, §7).
package lixerrors

import "fmt"

// Code is a stable machine-readable error identifier.
type Code string

const (
	CodeTableNotFound            Code = "LIX_ERROR_TABLE_NOT_FOUND"
	CodeInternalTableAccessDenied Code = "LIX_ERROR_INTERNAL_TABLE_ACCESS_DENIED"
	CodeReadOnlyViewWriteDenied  Code = "LIX_ERROR_READ_ONLY_VIEW_WRITE_DENIED"
	CodeUnknown                  Code = "LIX_ERROR_UNKNOWN"
)

// CodedError is implemented by every error value the engine returns to a
// caller across a public API boundary.
type CodedError interface {
	error
	Code() Code
}

// TableNotFoundError is raised when a write targets a relation that is
// neither a logical view, a registered schema's entity view, nor an
// internal table. Reads do not raise it: the read pipeline passes an
// unknown relation through unchanged to the backend, which reports its
// own error.
type TableNotFoundError struct {
	Relation string
}

func (e TableNotFoundError) Error() string {
	return fmt.Sprintf("table %q not found", e.Relation)
}

func (e TableNotFoundError) Code() Code { return CodeTableNotFound }

// InternalTableAccessDeniedError is raised when a query references an
// internal table without the internal-access flag set.
type InternalTableAccessDeniedError struct {
	Relation string
}

func (e InternalTableAccessDeniedError) Error() string {
	return fmt.Sprintf("access to internal table %q is denied", e.Relation)
}

func (e InternalTableAccessDeniedError) Code() Code { return CodeInternalTableAccessDenied }

// ReadOnlyViewWriteDeniedError is raised when a mutation targets a
// read-only logical view (e.g. `*_history`).
type ReadOnlyViewWriteDeniedError struct {
	View string
}

func (e ReadOnlyViewWriteDeniedError) Error() string {
	return fmt.Sprintf("view %q is read-only", e.View)
}

func (e ReadOnlyViewWriteDeniedError) Code() Code { return CodeReadOnlyViewWriteDenied }

// InvalidArgumentError covers malformed placeholders, UUIDs, timestamps,
// and invalid schema definitions (spec §7).
type InvalidArgumentError struct {
	Reason string
}

func (e InvalidArgumentError) Error() string { return e.Reason }

func (e InvalidArgumentError) Code() Code { return CodeUnknown }

// ValidationError wraps a schema/foreign-key/unique-constraint failure,
// carrying the offending schema key when available (spec §7).
type ValidationError struct {
	SchemaKey string
	Reason    string
}

func (e ValidationError) Error() string {
	if e.SchemaKey != "" {
		return fmt.Sprintf("validation failed for schema %q: %s", e.SchemaKey, e.Reason)
	}
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

func (e ValidationError) Code() Code { return CodeUnknown }

// PlanInvariantError covers rewrite invariant violations: zero statements
// produced, multiple post-process plans in one batch, or an unresolved
// logical view surviving the Lower phase (spec §4.5, §4.6, §8).
type PlanInvariantError struct {
	Reason string
}

func (e PlanInvariantError) Error() string {
	return fmt.Sprintf("plan invariant violated: %s", e.Reason)
}

func (e PlanInvariantError) Code() Code { return CodeUnknown }

// BackendError wraps a failure returned by the underlying driver.
type BackendError struct {
	SQL string
	Err error
}

func (e BackendError) Error() string {
	if e.SQL != "" {
		return fmt.Sprintf("backend error executing %q: %s", e.SQL, e.Err)
	}
	return fmt.Sprintf("backend error: %s", e.Err)
}

func (e BackendError) Unwrap() error { return e.Err }

func (e BackendError) Code() Code { return CodeUnknown }

// PluginError wraps a failure raised by a plugin's detect_changes or
// apply_changes callable, or an invalid shape returned from one.
type PluginError struct {
	PluginKey string
	Reason    string
	Err       error
}

func (e PluginError) Error() string {
	return fmt.Sprintf("plugin %q failed: %s", e.PluginKey, e.Reason)
}

func (e PluginError) Unwrap() error { return e.Err }

func (e PluginError) Code() Code { return CodeUnknown }
