// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"context"

	"github.com/opral/lix-sub005/pkg/lixerrors"
)

// File is the plugin-visible shape of a tracked file (spec §6 "Plugin
// contract").
type File struct {
	ID   string
	Path string
	Data []byte
}

// EntityChange is one entity mutation a plugin's detect_changes call
// infers from a file's bytes (spec §6). SnapshotContent is nil for a
// tombstone (the entity was removed from the file).
type EntityChange struct {
	EntityID        string
	SchemaKey       string
	SchemaVersion   string
	SnapshotContent *string
}

// Plugin is the suspend-as-awaitable contract the side-effect engine
// drives (spec §5 "plugin detect_changes/apply_changes may suspend").
// Go's native blocking call plus context cancellation models the same
// suspension point a WASM component's async export models in the
// source system.
type Plugin interface {
	// DetectChanges infers entity mutations implied by a file write.
	// `before` is nil when the file did not previously exist.
	DetectChanges(ctx context.Context, before *File, after File, stateContext map[string]any) ([]EntityChange, error)

	// ApplyChanges reconstructs a file's bytes from the latest live
	// state rows for its entities (spec §4.9 "On file reads").
	ApplyChanges(ctx context.Context, file File, changes []EntityChange) ([]byte, error)
}

// NativePlugin adapts two plain functions into the Plugin contract,
// used by in-process test fixtures and by any plugin implemented
// directly in Go rather than as a wasm component.
type NativePlugin struct {
	Key    string
	Detect func(ctx context.Context, before *File, after File, stateContext map[string]any) ([]EntityChange, error)
	Apply  func(ctx context.Context, file File, changes []EntityChange) ([]byte, error)
}

func (p NativePlugin) DetectChanges(ctx context.Context, before *File, after File, stateContext map[string]any) ([]EntityChange, error) {
	if p.Detect == nil {
		return nil, lixerrors.PluginError{PluginKey: p.Key, Reason: "plugin does not implement detect_changes"}
	}
	return p.Detect(ctx, before, after, stateContext)
}

func (p NativePlugin) ApplyChanges(ctx context.Context, file File, changes []EntityChange) ([]byte, error) {
	if p.Apply == nil {
		return nil, lixerrors.PluginError{PluginKey: p.Key, Reason: "plugin does not implement apply_changes"}
	}
	return p.Apply(ctx, file, changes)
}

// WasmPlugin documents the boundary between this engine and a real
// wasm-component-v1 module: bridging EntityChange/File across the
// component-model ABI is the host runtime's job (spec §1 "Out of
// scope"). Every call returns a PluginError naming that boundary rather
// than attempting a partial ABI implementation.
type WasmPlugin struct {
	Key string
}

func (p WasmPlugin) DetectChanges(ctx context.Context, before *File, after File, stateContext map[string]any) ([]EntityChange, error) {
	return nil, lixerrors.PluginError{PluginKey: p.Key, Reason: "wasm component bridge is provided by the host runtime, not the engine core"}
}

func (p WasmPlugin) ApplyChanges(ctx context.Context, file File, changes []EntityChange) ([]byte, error) {
	return nil, lixerrors.PluginError{PluginKey: p.Key, Reason: "wasm component bridge is provided by the host runtime, not the engine core"}
}
