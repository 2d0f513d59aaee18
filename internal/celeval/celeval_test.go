// SPDX-License-Identifier: Apache-2.0

package celeval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opral/lix-sub005/internal/detfn"
)

func TestEvalLixUUIDDefault(t *testing.T) {
	p := detfn.NewProvider()
	p.EnableDeterministic(0)

	ev, err := New(p)
	require.NoError(t, err)

	out, err := ev.Eval("lix_uuid_v7()", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "01920000-0000-7000-8000-000000000000", out)
}

func TestEvalReferencesEntityField(t *testing.T) {
	ev, err := New(detfn.NewProvider())
	require.NoError(t, err)

	out, err := ev.Eval(`entity["name"]`, map[string]any{"name": "alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice", out)
}

func TestEvalCompileErrorIsWrapped(t *testing.T) {
	ev, err := New(detfn.NewProvider())
	require.NoError(t, err)

	_, err = ev.Eval("entity[", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse CEL expression")
}

func TestCompileIsCached(t *testing.T) {
	ev, err := New(detfn.NewProvider())
	require.NoError(t, err)

	_, err = ev.compile("1 + 1")
	require.NoError(t, err)
	assert.Len(t, ev.cache, 1)

	_, err = ev.compile("1 + 1")
	require.NoError(t, err)
	assert.Len(t, ev.cache, 1)
}
