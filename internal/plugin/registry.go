// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"sync"

	"github.com/opral/lix-sub005/pkg/lixerrors"
)

// Registry tracks installed plugin manifests, the loaded-module cache,
// and the concrete Plugin each manifest resolves to, invalidated on any
// mutation to `lix_internal_plugin` (spec §5 "Plugin cache").
type Registry struct {
	mu sync.RWMutex

	// order preserves install order for the candidate-order tie-break
	// (spec §4.9): when two manifests match a path with equal
	// specificity, the one installed first wins.
	order     []string
	manifests map[string]Manifest
	loaded    map[string]any
	plugins   map[string]Plugin
}

func NewRegistry() *Registry {
	return &Registry{
		manifests: make(map[string]Manifest),
		loaded:    make(map[string]any),
		plugins:   make(map[string]Plugin),
	}
}

// Install persists a manifest and invalidates any cached loaded module
// for the same key (spec "Plugin install/matching"). The manifest
// resolves to a WasmPlugin stub — bridging wasm-component-v1 bytes is
// the host runtime's job (spec §1 "Out of scope") — unless InstallNative
// already bound a concrete implementation for this key.
func (r *Registry) Install(m Manifest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.manifests[m.Key]; !exists {
		r.order = append(r.order, m.Key)
	}
	r.manifests[m.Key] = m
	delete(r.loaded, m.Key)
	if _, bound := r.plugins[m.Key]; !bound {
		r.plugins[m.Key] = WasmPlugin{Key: m.Key}
	}
}

// InstallNative persists a manifest bound directly to p, bypassing the
// wasm bridge entirely. This is how in-process test fixtures and
// plugins implemented natively in Go are installed (NativePlugin's
// doc comment).
func (r *Registry) InstallNative(m Manifest, p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.manifests[m.Key]; !exists {
		r.order = append(r.order, m.Key)
	}
	r.manifests[m.Key] = m
	delete(r.loaded, m.Key)
	r.plugins[m.Key] = p
}

// PluginFor returns the concrete Plugin bound to an installed manifest's
// key.
func (r *Registry) PluginFor(key string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[key]
	return p, ok
}

// Uninstall removes a manifest, its bound plugin, and its cached
// module.
func (r *Registry) Uninstall(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.manifests, key)
	delete(r.loaded, key)
	delete(r.plugins, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// CacheModule stores the loaded module handle for key (spec §5 "loaded
// wasm modules" cache). The stored value's concrete type is owned by
// whatever ModuleLoader produced it (e.g. api.Module from
// WazeroModuleLoader); the registry itself is loader-agnostic.
func (r *Registry) CacheModule(key string, module any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded[key] = module
}

// CachedModule returns the previously cached module for key, if any and
// still valid (a prior Install/Uninstall for key clears it).
func (r *Registry) CachedModule(key string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.loaded[key]
	return m, ok
}

// SelectForPath picks the best-matching installed plugin for a file path
// by glob specificity, breaking ties by install order (spec §4.9).
func (r *Registry) SelectForPath(path string) (Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best Manifest
	bestRank := 0
	found := false
	for _, key := range r.order {
		m := r.manifests[key]
		if !matches(m.MatchPathGlob, path) {
			continue
		}
		rank := specificity(m.MatchPathGlob)
		if !found || rank > bestRank {
			best, bestRank, found = m, rank, true
		}
	}
	if !found {
		return Manifest{}, false
	}
	return best, true
}

// Lookup returns the installed manifest for key.
func (r *Registry) Lookup(key string) (Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.manifests[key]
	return m, ok
}

// RequireForPath selects a plugin for path or returns a PluginError when
// none matches (used by the side-effect engine, which always needs a
// file-domain plugin to interpret a file write).
func (r *Registry) RequireForPath(path string) (Manifest, error) {
	m, ok := r.SelectForPath(path)
	if !ok {
		return Manifest{}, lixerrors.PluginError{Reason: "no plugin matches path " + path}
	}
	return m, nil
}
