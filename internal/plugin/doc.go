// SPDX-License-Identifier: Apache-2.0

// Package plugin implements the file-format plugin manifest, glob-based
// matching, and the detect_changes/apply_changes contract the execution
// runtime invokes for file-domain side effects (spec §4.9).
//
// The WASM component runtime itself and individual plugin implementations
// (Markdown, JSON, text-lines, binary) are external collaborators (spec
// §1 "Out of scope"). This package owns the Go-side contract types, the
// manifest registry with its loaded-module cache, and glob-specificity
// plugin selection; actually bridging a wasm-component-v1 module's
// exported functions to the Go EntityChange shape belongs to the host
// runtime and is intentionally left to WasmPlugin's documented boundary.
package plugin
