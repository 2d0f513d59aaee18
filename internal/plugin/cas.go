// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/opral/lix-sub005/internal/backend"
)

// BlobHash returns the content-addressable key for data, used as the
// primary key of lix_internal_binary_blob_store (spec §3 "File
// descriptor" / §6 persisted state layout).
func BlobHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// BinaryStore writes file bytes into the blob store and runs GC once
// bytes are no longer referenced by any live file version (spec §3
// "Lifecycle": "physical garbage collection happens for binary blobs no
// longer referenced by any live file version").
type BinaryStore struct {
	q backend.Queryer
}

func NewBinaryStore(q backend.Queryer) *BinaryStore {
	return &BinaryStore{q: q}
}

// Put stores data if its hash isn't already present and points
// (fileID, versionID) at it, returning the blob hash.
func (s *BinaryStore) Put(ctx context.Context, fileID, versionID string, data []byte, updatedAt string) (string, error) {
	hash := BlobHash(data)

	if _, err := s.q.Execute(ctx,
		`INSERT INTO lix_internal_binary_blob_store (blob_hash, data, size_bytes, created_at)
		 SELECT ?1, ?2, ?3, ?4 WHERE NOT EXISTS (
		   SELECT 1 FROM lix_internal_binary_blob_store WHERE blob_hash = ?1
		 )`,
		[]backend.Value{backend.Text(hash), backend.Blob(data), backend.Int(int64(len(data))), backend.Text(updatedAt)},
	); err != nil {
		return "", err
	}

	if _, err := s.q.Execute(ctx,
		`DELETE FROM lix_internal_binary_file_version_ref WHERE file_id = ?1 AND version_id = ?2`,
		[]backend.Value{backend.Text(fileID), backend.Text(versionID)},
	); err != nil {
		return "", err
	}

	if _, err := s.q.Execute(ctx,
		`INSERT INTO lix_internal_binary_file_version_ref (file_id, version_id, blob_hash, size_bytes, updated_at)
		 VALUES (?1, ?2, ?3, ?4, ?5)`,
		[]backend.Value{backend.Text(fileID), backend.Text(versionID), backend.Text(hash), backend.Int(int64(len(data))), backend.Text(updatedAt)},
	); err != nil {
		return "", err
	}

	return hash, nil
}

// GC deletes every blob in lix_internal_binary_blob_store that no
// lix_internal_binary_file_version_ref row references (spec §4.8 step
// 7 "run binary CAS garbage collection"). GC is idempotent: a blob with
// no references stays absent on a repeat run (spec §9 "Binary CAS GC
// triggers ... treat GC as idempotent").
func (s *BinaryStore) GC(ctx context.Context) (int, error) {
	rows, err := s.q.Execute(ctx,
		`SELECT blob_hash FROM lix_internal_binary_blob_store WHERE blob_hash NOT IN (
		   SELECT DISTINCT blob_hash FROM lix_internal_binary_file_version_ref
		 )`, nil)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, row := range rows.Rows {
		if _, err := s.q.Execute(ctx,
			`DELETE FROM lix_internal_binary_blob_store WHERE blob_hash = ?1`,
			[]backend.Value{row[0]},
		); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
