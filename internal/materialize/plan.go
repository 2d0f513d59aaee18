// SPDX-License-Identifier: Apache-2.0

package materialize

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/errgroup"

	"github.com/opral/lix-sub005/internal/backend"
	"github.com/opral/lix-sub005/internal/state"
	"github.com/opral/lix-sub005/pkg/lixerrors"
)

// commitWalkMaxDepth bounds the debug-only commit-DAG traversal (spec §9
// "Cycles": depth <= 1024 is a sufficient defensive bound).
const commitWalkMaxDepth = 1024

// planFanout bounds concurrent per-version read fan-out (spec §5 permits
// concurrent readers; each version's chain walk and row fetch is
// independent of every other version's).
const planFanout = 8

// Planner computes MaterializationPlans for a scope of versions (spec
// §4.7).
type Planner struct {
	q     backend.Queryer
	chain *state.ChainResolver
}

func NewPlanner(q backend.Queryer, chain *state.ChainResolver) *Planner {
	return &Planner{q: q, chain: chain}
}

// Plan computes the MaterializationPlan for req.Scope, grouping live
// state rows by (schema_key, entity_id, file_id) per target version and
// selecting the winner at each tuple.
func (p *Planner) Plan(ctx context.Context, req Request) (*Plan, error) {
	versions, err := p.resolveScope(ctx, req.Scope)
	if err != nil {
		return nil, err
	}

	results := make([]versionResult, len(versions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(planFanout)
	for i, v := range versions {
		i, v := i, v
		g.Go(func() error {
			r, err := p.planVersion(gctx, v, req.Debug)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var trace *Trace
	if req.Debug != DebugNone {
		trace = &Trace{TipsPerVersion: make(map[string]string, len(versions))}
	}

	var writes []MaterializedWrite
	for _, r := range results {
		writes = append(writes, r.writes...)
		if trace != nil {
			mergeTrace(trace, r.trace)
		}
	}

	return &Plan{Writes: writes, Trace: trace}, nil
}

// versionResult is one version's contribution to a Plan, computed
// independently so planVersion calls can run concurrently.
type versionResult struct {
	writes []MaterializedWrite
	trace  *Trace
}

func (p *Planner) planVersion(ctx context.Context, v string, debug DebugMode) (versionResult, error) {
	chainIDs, err := p.chain.Resolve(ctx, v)
	if err != nil {
		return versionResult{}, err
	}

	var rows []stateRow
	for depth, memberVersion := range chainIDs {
		memberRows, err := p.fetchStateRows(ctx, memberVersion, depth)
		if err != nil {
			return versionResult{}, err
		}
		rows = append(rows, memberRows...)
	}

	versionWrites := selectWinners(rows, v)
	result := versionResult{writes: versionWrites}

	if debug != DebugNone {
		vt := &Trace{TipsPerVersion: make(map[string]string, 1)}
		if err := p.traceVersion(ctx, v, versionWrites, vt, debug); err != nil {
			return versionResult{}, err
		}
		result.trace = vt
	}
	return result, nil
}

// mergeTrace folds a single version's trace into the accumulated Plan
// trace. Called only from the sequential merge loop in Plan, so no
// synchronization is needed here.
func mergeTrace(into, from *Trace) {
	for k, v := range from.TipsPerVersion {
		into.TipsPerVersion[k] = v
	}
	into.TraversedCommits = append(into.TraversedCommits, from.TraversedCommits...)
	into.TraversedEdges = append(into.TraversedEdges, from.TraversedEdges...)
	into.AncestryRows += from.AncestryRows
	into.LatestVisibleWinners += from.LatestVisibleWinners
	into.InheritanceWinners += from.InheritanceWinners
}

func (p *Planner) resolveScope(ctx context.Context, scope Scope) ([]string, error) {
	if !scope.Full {
		if len(scope.VersionIDs) == 0 {
			return nil, lixerrors.InvalidArgumentError{Reason: "materialization scope requires at least one version_id when not Full"}
		}
		return scope.VersionIDs, nil
	}

	rows, err := p.q.Execute(ctx,
		`SELECT entity_id FROM lix_internal_state_vtable WHERE schema_key = 'lix_version_descriptor' AND is_tombstone = 0`,
		nil)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows.Rows))
	for _, row := range rows.Rows {
		out = append(out, row[0].Text)
	}
	return out, nil
}

func (p *Planner) fetchStateRows(ctx context.Context, versionID string, depth int) ([]stateRow, error) {
	rows, err := p.q.Execute(ctx,
		`SELECT schema_key, entity_id, file_id, schema_version, plugin_key, snapshot_content,
		        change_id, metadata, writer_key, is_tombstone, created_at, updated_at
		 FROM lix_internal_state_vtable WHERE version_id = ?1`,
		[]backend.Value{backend.Text(versionID)})
	if err != nil {
		return nil, err
	}

	out := make([]stateRow, 0, len(rows.Rows))
	for _, row := range rows.Rows {
		snapshot := ""
		if !row[5].IsNull() {
			snapshot = row[5].Text
		}
		out = append(out, stateRow{
			SchemaKey:       row[0].Text,
			EntityID:        row[1].Text,
			FileID:          row[2].Text,
			VersionID:       versionID,
			SchemaVersion:   row[3].Text,
			PluginKey:       row[4].Text,
			SnapshotContent: snapshot,
			ChangeID:        row[6].Text,
			Metadata:        row[7].Text,
			WriterKey:       row[8].Text,
			IsTombstone:     row[9].Boolean,
			CreatedAt:       row[10].Text,
			UpdatedAt:       row[11].Text,
			Depth:           depth,
		})
	}
	return out, nil
}

// traceVersion fills in the per-version debug fields: tip commit id,
// winner counts split by inheritance depth, and (DebugFull only) the
// itemized commit-DAG traversal.
func (p *Planner) traceVersion(ctx context.Context, versionID string, writes []MaterializedWrite, trace *Trace, mode DebugMode) error {
	tip, ok, err := p.tipCommitOf(ctx, versionID)
	if err != nil {
		return err
	}
	if ok {
		trace.TipsPerVersion[versionID] = tip
	}

	for _, w := range writes {
		if w.InheritedFromVersionID == "" {
			trace.LatestVisibleWinners++
		} else {
			trace.InheritanceWinners++
		}
	}

	if mode != DebugFull || !ok {
		return nil
	}

	commits, edges, err := p.walkCommits(ctx, tip)
	if err != nil {
		return err
	}
	trace.TraversedCommits = append(trace.TraversedCommits, commits...)
	trace.TraversedEdges = append(trace.TraversedEdges, edges...)
	trace.AncestryRows += len(commits)
	return nil
}

// tipCommitOf reads the version pointer's commit_id (spec §3 "Version
// pointer").
func (p *Planner) tipCommitOf(ctx context.Context, versionID string) (string, bool, error) {
	rows, err := p.q.Execute(ctx,
		`SELECT snapshot_content FROM lix_internal_state_vtable
		 WHERE schema_key = 'lix_version_pointer' AND entity_id = ?1 AND is_tombstone = 0
		 LIMIT 1`,
		[]backend.Value{backend.Text(versionID)})
	if err != nil {
		return "", false, err
	}
	if len(rows.Rows) == 0 || rows.Rows[0][0].IsNull() {
		return "", false, nil
	}
	var pointer struct {
		CommitID string `json:"commit_id"`
	}
	if err := json.Unmarshal([]byte(rows.Rows[0][0].Text), &pointer); err != nil {
		return "", false, lixerrors.ValidationError{SchemaKey: "lix_version_pointer", Reason: "malformed snapshot_content: " + err.Error()}
	}
	return pointer.CommitID, pointer.CommitID != "", nil
}

// walkCommits walks the commit DAG backwards from tip via
// parent_commit_ids (spec §3 "Commit"; §4.5 lix_state_history walk uses
// the identical traversal).
func (p *Planner) walkCommits(ctx context.Context, tip string) ([]string, [][2]string, error) {
	var commits []string
	var edges [][2]string
	visited := map[string]bool{}
	frontier := []string{tip}

	for depth := 0; depth < commitWalkMaxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			if visited[id] {
				continue
			}
			visited[id] = true
			commits = append(commits, id)

			parents, err := p.parentCommitsOf(ctx, id)
			if err != nil {
				return nil, nil, err
			}
			for _, parent := range parents {
				edges = append(edges, [2]string{id, parent})
				if !visited[parent] {
					next = append(next, parent)
				}
			}
		}
		frontier = next
	}
	return commits, edges, nil
}

func (p *Planner) parentCommitsOf(ctx context.Context, commitID string) ([]string, error) {
	rows, err := p.q.Execute(ctx,
		`SELECT snapshot_content FROM lix_internal_state_vtable
		 WHERE schema_key = 'lix_commit' AND entity_id = ?1 AND is_tombstone = 0
		 LIMIT 1`,
		[]backend.Value{backend.Text(commitID)})
	if err != nil {
		return nil, err
	}
	if len(rows.Rows) == 0 || rows.Rows[0][0].IsNull() {
		return nil, nil
	}
	var commit struct {
		ParentCommitIDs []string `json:"parent_commit_ids"`
	}
	if err := json.Unmarshal([]byte(rows.Rows[0][0].Text), &commit); err != nil {
		return nil, lixerrors.ValidationError{SchemaKey: "lix_commit", Reason: "malformed snapshot_content: " + err.Error()}
	}
	return commit.ParentCommitIDs, nil
}
