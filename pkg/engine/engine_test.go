// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opral/lix-sub005/internal/backend"
	"github.com/opral/lix-sub005/internal/eventbus"
	"github.com/opral/lix-sub005/internal/materialize"
	"github.com/opral/lix-sub005/internal/plugin"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	b, err := backend.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	e, err := New(b, NewNoopLogger())
	require.NoError(t, err)
	e.EnableDeterministicMode(1)
	require.NoError(t, e.Init(context.Background()))
	return e
}

func TestInitCreatesGlobalVersionAndBuiltinSchemas(t *testing.T) {
	e := newTestEngine(t)
	assert.Equal(t, globalVersionID, e.ActiveVersion())

	res, err := e.Execute(context.Background(),
		"SELECT snapshot_content FROM lix_internal_state_vtable WHERE schema_key = 'lix_version_descriptor'",
		nil, ExecuteOptions{AllowInternalAccess: true})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(res.Rows), 1)
}

func TestInitIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Init(context.Background()))
}

func TestExecuteSelectConstant(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.Execute(context.Background(), "SELECT 1 + 1 AS total", nil, ExecuteOptions{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(2), res.Rows[0][0].Integer)
}

func TestExecuteRejectsMultipleStatements(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Execute(context.Background(), "SELECT 1; SELECT 2", nil, ExecuteOptions{})
	assert.Error(t, err)
}

func TestExecuteRejectsEmptyStatement(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Execute(context.Background(), "", nil, ExecuteOptions{})
	assert.Error(t, err)
}

func TestCreateVersionReturnsNewVersionID(t *testing.T) {
	e := newTestEngine(t)
	id, err := e.CreateVersion(context.Background(), CreateVersionOptions{Name: "feature"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NotEqual(t, globalVersionID, id)
}

func TestSwitchVersionRejectsUnknownVersion(t *testing.T) {
	e := newTestEngine(t)
	err := e.SwitchVersion(context.Background(), "does-not-exist")
	assert.Error(t, err)
}

func TestSwitchVersionToCreatedVersionSucceeds(t *testing.T) {
	e := newTestEngine(t)
	id, err := e.CreateVersion(context.Background(), CreateVersionOptions{Name: "feature"})
	require.NoError(t, err)
	require.NoError(t, e.SwitchVersion(context.Background(), id))
	assert.Equal(t, id, e.ActiveVersion())
}

func TestMaterializationPlanOverFullScopeDoesNotError(t *testing.T) {
	e := newTestEngine(t)
	plan, err := e.MaterializationPlan(context.Background(), materialize.Request{Scope: materialize.Scope{Full: true}})
	require.NoError(t, err)
	assert.NotNil(t, plan)
}

func TestCreateCheckpointAppliesWithoutError(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.CreateCheckpoint(context.Background())
	require.NoError(t, err)
}

func TestTransactionCommitsAllStatementsTogether(t *testing.T) {
	e := newTestEngine(t)

	err := e.Transaction(context.Background(), TransactionOptions{}, func(tx *Transaction) error {
		if _, err := tx.Execute(context.Background(), `INSERT INTO lix_key_value (key, value) VALUES ('a', '1')`, nil, ExecuteOptions{}); err != nil {
			return err
		}
		_, err := tx.Execute(context.Background(), `INSERT INTO lix_key_value (key, value) VALUES ('b', '2')`, nil, ExecuteOptions{})
		return err
	})
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), `SELECT key FROM lix_key_value`, nil, ExecuteOptions{})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
}

func TestTransactionRollsBackOnCallbackError(t *testing.T) {
	e := newTestEngine(t)
	sentinel := errors.New("callback failed")

	err := e.Transaction(context.Background(), TransactionOptions{}, func(tx *Transaction) error {
		if _, err := tx.Execute(context.Background(), `INSERT INTO lix_key_value (key, value) VALUES ('a', '1')`, nil, ExecuteOptions{}); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	res, err := e.Execute(context.Background(), `SELECT key FROM lix_key_value`, nil, ExecuteOptions{})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 0)
}

func TestFilePluginDetectAndApplyRoundTrip(t *testing.T) {
	e := newTestEngine(t)

	// The plugin's detected entity lands on lix_key_value, a schema
	// registered at boot (and so backed by a real materialized table) —
	// a plugin emitting a schema_key of its own would need that schema
	// registered first, which is outside this engine's client-facing
	// surface today.
	native := plugin.NativePlugin{
		Key: "kv-text",
		Detect: func(ctx context.Context, before *plugin.File, after plugin.File, stateContext map[string]any) ([]plugin.EntityChange, error) {
			content := fmt.Sprintf(`{"key":"from-plugin","value":%q}`, string(after.Data))
			return []plugin.EntityChange{{EntityID: "from-plugin", SchemaKey: "lix_key_value", SchemaVersion: "1", SnapshotContent: &content}}, nil
		},
		Apply: func(ctx context.Context, file plugin.File, changes []plugin.EntityChange) ([]byte, error) {
			var decoded struct {
				Value string `json:"value"`
			}
			require.Len(t, changes, 1)
			require.NoError(t, json.Unmarshal([]byte(*changes[0].SnapshotContent), &decoded))
			return []byte(decoded.Value), nil
		},
	}
	e.InstallNativePlugin(plugin.Manifest{Key: "kv-text", Runtime: "native-go-v1", MatchPathGlob: "*.kv", Entry: "main"}, native)

	_, err := e.Execute(context.Background(),
		`INSERT INTO lix_file (id, path, data) VALUES ('f1', 'notes.kv', 'hello world')`,
		nil, ExecuteOptions{})
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), `SELECT data FROM lix_file`, nil, ExecuteOptions{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []byte("hello world"), res.Rows[0][0].Blob)

	rows, err := e.Execute(context.Background(),
		`SELECT value FROM lix_key_value WHERE key = 'from-plugin'`,
		nil, ExecuteOptions{})
	require.NoError(t, err)
	require.Len(t, rows.Rows, 1)
	assert.Equal(t, "hello world", rows.Rows[0][0].Text)
}

func TestFilePluginErrorsWhenNoPluginMatchesPath(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Execute(context.Background(),
		`INSERT INTO lix_file (id, path, data) VALUES ('f1', 'notes.kv', 'hello world')`,
		nil, ExecuteOptions{})
	assert.Error(t, err)
}

func TestStateCommitEventsReceivesKeyValueWrite(t *testing.T) {
	e := newTestEngine(t)
	sub := e.StateCommitEvents(eventbus.Filter{SchemaKeys: []string{"lix_key_value"}})
	defer sub.Close()

	_, err := e.Execute(context.Background(),
		`INSERT INTO lix_key_value (key, value) VALUES ('theme', 'dark')`,
		nil, ExecuteOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	batch, ok, err := sub.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, batch.Mutations, 1)
}
