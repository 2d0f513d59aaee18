// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifestRejectsUnknownRuntime(t *testing.T) {
	_, err := ParseManifest([]byte(`{"key":"md","runtime":"native","match_path_glob":"*.md","entry":"main"}`))
	assert.Error(t, err)
}

func TestParseManifestAccepted(t *testing.T) {
	m, err := ParseManifest([]byte(`{"key":"md","runtime":"wasm-component-v1","match_path_glob":"**/*.md","entry":"main","schemas":["md_block"]}`))
	require.NoError(t, err)
	assert.Equal(t, "md", m.Key)
	assert.Equal(t, []string{"md_block"}, m.Schemas)
}

func TestSpecificityRanksCatchAllsLowest(t *testing.T) {
	assert.Less(t, specificity("*"), specificity("docs/*.md"))
	assert.Less(t, specificity("**"), specificity("a.md"))
	assert.Less(t, specificity("**/*"), specificity("docs/**/*.md"))
}

func TestSpecificityPrefersMoreLiteralChars(t *testing.T) {
	assert.Greater(t, specificity("docs/readme.md"), specificity("*.md"))
}

func TestMatchesSupportsDoubleStarAndWildcard(t *testing.T) {
	assert.True(t, matches("**/*.md", "a/b/c.md"))
	assert.True(t, matches("*.md", "readme.md"))
	assert.False(t, matches("*.md", "a/readme.md"))
	assert.True(t, matches("docs/**/*.md", "docs/x/y/z.md"))
	assert.False(t, matches("docs/*.md", "docs/x/y.md"))
}

func TestRegistrySelectForPathPrefersMostSpecific(t *testing.T) {
	r := NewRegistry()
	r.Install(Manifest{Key: "catchall", Runtime: wasmComponentRuntime, MatchPathGlob: "**", Entry: "main"})
	r.Install(Manifest{Key: "md", Runtime: wasmComponentRuntime, MatchPathGlob: "**/*.md", Entry: "main"})

	m, ok := r.SelectForPath("notes/today.md")
	require.True(t, ok)
	assert.Equal(t, "md", m.Key)
}

func TestRegistrySelectForPathBreaksTiesByInstallOrder(t *testing.T) {
	r := NewRegistry()
	r.Install(Manifest{Key: "first", Runtime: wasmComponentRuntime, MatchPathGlob: "*.md", Entry: "main"})
	r.Install(Manifest{Key: "second", Runtime: wasmComponentRuntime, MatchPathGlob: "*.md", Entry: "main"})

	m, ok := r.SelectForPath("readme.md")
	require.True(t, ok)
	assert.Equal(t, "first", m.Key)
}

func TestRegistryReinstallInvalidatesLoadedModuleCache(t *testing.T) {
	r := NewRegistry()
	m := Manifest{Key: "md", Runtime: wasmComponentRuntime, MatchPathGlob: "*.md", Entry: "main"}
	r.Install(m)
	r.CacheModule("md", "fake-module-handle")

	_, ok := r.CachedModule("md")
	require.True(t, ok)

	r.Install(m)
	_, ok = r.CachedModule("md")
	assert.False(t, ok, "reinstalling a plugin must invalidate its cached module")
}

func TestRequireForPathErrorsWhenNoPluginMatches(t *testing.T) {
	r := NewRegistry()
	_, err := r.RequireForPath("readme.md")
	assert.Error(t, err)
}

func TestNativePluginDetectAndApply(t *testing.T) {
	content := `{"text":"hello"}`
	p := NativePlugin{
		Key: "kv-text",
		Detect: func(ctx context.Context, before *File, after File, stateContext map[string]any) ([]EntityChange, error) {
			return []EntityChange{{EntityID: "block-1", SchemaKey: "text_block", SnapshotContent: &content}}, nil
		},
		Apply: func(ctx context.Context, file File, changes []EntityChange) ([]byte, error) {
			return []byte(*changes[0].SnapshotContent), nil
		},
	}

	changes, err := p.DetectChanges(context.Background(), nil, File{ID: "f1", Path: "a.txt"}, nil)
	require.NoError(t, err)
	require.Len(t, changes, 1)

	out, err := p.ApplyChanges(context.Background(), File{ID: "f1"}, changes)
	require.NoError(t, err)
	assert.Equal(t, content, string(out))
}

func TestInstallNativeBindsConcretePluginOverWasmDefault(t *testing.T) {
	r := NewRegistry()
	native := NativePlugin{Key: "kv-text"}
	r.InstallNative(Manifest{Key: "kv-text", Runtime: "native-go-v1", MatchPathGlob: "*.kv", Entry: "main"}, native)

	p, ok := r.PluginFor("kv-text")
	require.True(t, ok)
	assert.Equal(t, native, p)
}

func TestInstallDefaultsToWasmPluginWhenNoneBound(t *testing.T) {
	r := NewRegistry()
	r.Install(Manifest{Key: "md", Runtime: wasmComponentRuntime, MatchPathGlob: "*.md", Entry: "main"})

	p, ok := r.PluginFor("md")
	require.True(t, ok)
	assert.Equal(t, WasmPlugin{Key: "md"}, p)
}

func TestUninstallRemovesBoundPlugin(t *testing.T) {
	r := NewRegistry()
	r.InstallNative(Manifest{Key: "kv-text", Runtime: "native-go-v1", MatchPathGlob: "*.kv", Entry: "main"}, NativePlugin{Key: "kv-text"})
	r.Uninstall("kv-text")

	_, ok := r.PluginFor("kv-text")
	assert.False(t, ok)
}

func TestWasmPluginDocumentsHostRuntimeBoundary(t *testing.T) {
	p := WasmPlugin{Key: "md"}
	_, err := p.DetectChanges(context.Background(), nil, File{}, nil)
	assert.Error(t, err)
}

func TestWazeroModuleLoaderInstantiateRejectsInvalidBytes(t *testing.T) {
	ctx := context.Background()
	loader := NewWazeroModuleLoader(ctx)
	defer loader.Close(ctx)

	_, err := loader.Load(ctx, []byte("not a wasm module"))
	assert.Error(t, err)
}
