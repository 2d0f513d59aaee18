// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"encoding/json"
	"fmt"
)

// Manifest describes one installed plugin (spec §6 "Plugin contract").
type Manifest struct {
	Key           string   `json:"key"`
	Runtime       string   `json:"runtime"`
	APIVersion    string   `json:"api_version"`
	MatchPathGlob string   `json:"match_path_glob"`
	Entry         string   `json:"entry"`
	Schemas       []string `json:"schemas"`
}

// wasmComponentRuntime is the only runtime string the engine currently
// recognizes (spec §6).
const wasmComponentRuntime = "wasm-component-v1"

// ParseManifest decodes and structurally validates a plugin manifest
// (spec §6).
func ParseManifest(raw []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("invalid plugin manifest: %w", err)
	}
	if m.Key == "" {
		return Manifest{}, fmt.Errorf("invalid plugin manifest: missing key")
	}
	if m.Runtime != wasmComponentRuntime {
		return Manifest{}, fmt.Errorf("invalid plugin manifest: unsupported runtime %q", m.Runtime)
	}
	if m.MatchPathGlob == "" {
		return Manifest{}, fmt.Errorf("invalid plugin manifest: missing match_path_glob")
	}
	if m.Entry == "" {
		return Manifest{}, fmt.Errorf("invalid plugin manifest: missing entry")
	}
	return m, nil
}
