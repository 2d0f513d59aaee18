// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/opral/lix-sub005/internal/backend"
	"github.com/opral/lix-sub005/pkg/lixerrors"
)

// maxChainDepth bounds inheritance-chain and commit-DAG walks (spec §9
// "Cycles": "defensive bound is sufficient: depth <= 1024").
const maxChainDepth = 1024

// ChainResolver resolves a version's inheritance chain and caches the
// result by version_id within a request session (spec §4.7 "Version
// chain resolution"). A session is expected to own one ChainResolver
// and discard it when the request completes.
type ChainResolver struct {
	q     backend.Queryer
	mu    sync.Mutex
	cache map[string][]string
}

func NewChainResolver(q backend.Queryer) *ChainResolver {
	return &ChainResolver{q: q, cache: make(map[string][]string)}
}

// Resolve returns [V, parent(V), parent(parent(V)), ...] for target
// version V, walking lix_version_descriptor.inherits_from_version_id
// transitively.
func (c *ChainResolver) Resolve(ctx context.Context, versionID string) ([]string, error) {
	c.mu.Lock()
	if cached, ok := c.cache[versionID]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	chain := []string{versionID}
	visited := map[string]bool{versionID: true}
	current := versionID

	for depth := 0; depth < maxChainDepth; depth++ {
		parent, ok, err := c.parentOf(ctx, current)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if visited[parent] {
			return nil, lixerrors.PlanInvariantError{Reason: "version inheritance chain contains a cycle at " + parent}
		}
		visited[parent] = true
		chain = append(chain, parent)
		current = parent
	}

	c.mu.Lock()
	c.cache[versionID] = chain
	c.mu.Unlock()
	return chain, nil
}

func (c *ChainResolver) parentOf(ctx context.Context, versionID string) (string, bool, error) {
	rows, err := c.q.Execute(ctx,
		`SELECT snapshot_content FROM lix_internal_state_vtable
		 WHERE schema_key = 'lix_version_descriptor' AND entity_id = ?1 AND is_tombstone = 0
		 LIMIT 1`,
		[]backend.Value{backend.Text(versionID)})
	if err != nil {
		return "", false, err
	}
	if len(rows.Rows) == 0 {
		return "", false, nil
	}

	var snapshot struct {
		InheritsFromVersionID *string `json:"inherits_from_version_id"`
	}
	raw := rows.Rows[0][0]
	if raw.IsNull() {
		return "", false, nil
	}
	if err := json.Unmarshal([]byte(raw.Text), &snapshot); err != nil {
		return "", false, lixerrors.ValidationError{SchemaKey: "lix_version_descriptor", Reason: "malformed snapshot_content: " + err.Error()}
	}
	if snapshot.InheritsFromVersionID == nil {
		return "", false, nil
	}
	return *snapshot.InheritsFromVersionID, true, nil
}
