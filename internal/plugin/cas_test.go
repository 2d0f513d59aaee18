// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opral/lix-sub005/internal/backend"
)

func TestBlobHashIsDeterministic(t *testing.T) {
	a := BlobHash([]byte("hello"))
	b := BlobHash([]byte("hello"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, BlobHash([]byte("world")))
}

func TestBinaryStorePutIssuesExpectedStatements(t *testing.T) {
	fb := backend.NewFakeBackend(backend.Sqlite)
	store := NewBinaryStore(fb)

	hash, err := store.Put(context.Background(), "f1", "global", []byte("hello"), "2026-01-01T00:00:00.000Z")
	require.NoError(t, err)
	assert.Equal(t, BlobHash([]byte("hello")), hash)

	log := fb.ExecLog()
	require.Len(t, log, 3)
	assert.Contains(t, log[0], "INSERT INTO lix_internal_binary_blob_store")
	assert.Contains(t, log[1], "DELETE FROM lix_internal_binary_file_version_ref")
	assert.Contains(t, log[2], "INSERT INTO lix_internal_binary_file_version_ref")
}

func TestBinaryStoreGCIsNoopAgainstEmptyBackend(t *testing.T) {
	fb := backend.NewFakeBackend(backend.Sqlite)
	store := NewBinaryStore(fb)

	removed, err := store.GC(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, removed, "FakeBackend never returns rows from a SELECT, so nothing is found to remove")
}
