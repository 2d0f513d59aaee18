// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/opral/lix-sub005/pkg/lixerrors"
)

// ModuleLoader instantiates a plugin's wasm bytes into a running module,
// the artifact the Registry's loaded-module cache stores. Bridging the
// instantiated module's exports to the Plugin contract is the host
// runtime's responsibility (spec §1 "Out of scope"); this loader only
// owns the instantiate/close lifecycle.
type ModuleLoader interface {
	Load(ctx context.Context, wasmBytes []byte) (api.Module, error)
	Close(ctx context.Context) error
}

// WazeroModuleLoader is the reference ModuleLoader, backed by
// wazero.Runtime exactly as spec §6's `runtime: "wasm-component-v1"`
// manifest field implies.
type WazeroModuleLoader struct {
	runtime wazero.Runtime
}

func NewWazeroModuleLoader(ctx context.Context) *WazeroModuleLoader {
	return &WazeroModuleLoader{runtime: wazero.NewRuntime(ctx)}
}

// Load instantiates wasmBytes as a new module. The caller is expected to
// cache the result via Registry.CacheModule, keyed by plugin key, and
// invalidate it on reinstall (spec §5 "Plugin cache").
func (l *WazeroModuleLoader) Load(ctx context.Context, wasmBytes []byte) (api.Module, error) {
	mod, err := l.runtime.Instantiate(ctx, wasmBytes)
	if err != nil {
		return nil, lixerrors.PluginError{Reason: "failed to instantiate wasm module", Err: err}
	}
	return mod, nil
}

func (l *WazeroModuleLoader) Close(ctx context.Context) error {
	return l.runtime.Close(ctx)
}
