// SPDX-License-Identifier: Apache-2.0

package detfn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicUUIDSequence(t *testing.T) {
	p := NewProvider()
	p.EnableDeterministic(0)

	want := []string{
		"01920000-0000-7000-8000-000000000000",
		"01920000-0000-7000-8000-000000000001",
		"01920000-0000-7000-8000-000000000002",
	}
	for _, w := range want {
		got, err := p.UUIDv7()
		require.NoError(t, err)
		assert.Equal(t, w, got)
	}
}

func TestDeterministicTimestampSequence(t *testing.T) {
	p := NewProvider()
	p.EnableDeterministic(0)

	want := []string{
		"1970-01-01T00:00:00.000Z",
		"1970-01-01T00:00:00.001Z",
		"1970-01-01T00:00:00.002Z",
	}
	for _, w := range want {
		got, err := p.Timestamp()
		require.NoError(t, err)
		assert.Equal(t, w, got)
	}
}

func TestSystemModeProducesRealUUID(t *testing.T) {
	p := NewProvider()
	got, err := p.UUIDv7()
	require.NoError(t, err)
	assert.NotContains(t, got, "01920000-0000-7000-8000-")
}

func TestHighestConsumedResumesAcrossProcesses(t *testing.T) {
	p := NewProvider()
	p.EnableDeterministic(0)
	_, _ = p.UUIDv7()
	_, _ = p.UUIDv7()
	uc, tc := p.HighestConsumed()
	assert.Equal(t, uint64(1), uc)
	assert.Equal(t, uint64(0), tc)

	p2 := NewProvider()
	p2.EnableDeterministic(uc + 1)
	got, err := p2.UUIDv7()
	require.NoError(t, err)
	assert.Equal(t, "01920000-0000-7000-8000-000000000002", got)
}
