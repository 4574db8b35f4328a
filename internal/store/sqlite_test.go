package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	e, err := st.Get(context.Background(), "resolve", "acalypha hispida")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestSQLite_PutAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	err := st.Put(ctx, "resolve", "acalypha hispida", json.RawMessage(`{"matched_id":"wfo-0000982612"}`), true)
	require.NoError(t, err)

	e, err := st.Get(ctx, "resolve", "acalypha hispida")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.True(t, e.Success)
	assert.JSONEq(t, `{"matched_id":"wfo-0000982612"}`, string(e.Value))
	assert.False(t, e.UpdatedAt.IsZero())
}

func TestSQLite_PutOverwrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "nativity", "wfo-1", json.RawMessage(`{"countries":[]}`), false))
	require.NoError(t, st.Put(ctx, "nativity", "wfo-1", json.RawMessage(`{"countries":["Myanmar"]}`), true))

	e, err := st.Get(ctx, "nativity", "wfo-1")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.True(t, e.Success)
	assert.JSONEq(t, `{"countries":["Myanmar"]}`, string(e.Value))
}

func TestSQLite_PipelinesAreIsolated(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "resolve", "k", json.RawMessage(`1`), true))

	e, err := st.Get(ctx, "nativity", "k")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestSQLite_Stats(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "resolve", "a", json.RawMessage(`1`), true))
	require.NoError(t, st.Put(ctx, "resolve", "b", json.RawMessage(`2`), false))
	require.NoError(t, st.Put(ctx, "nativity", "c", json.RawMessage(`3`), true))

	all, err := st.Stats(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, Stats{Pipeline: "nativity", Total: 1, Succeeded: 1}, all[0])
	assert.Equal(t, Stats{Pipeline: "resolve", Total: 2, Succeeded: 1}, all[1])

	one, err := st.Stats(ctx, "resolve")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, 2, one[0].Total)
}

func TestSQLite_Flush(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Flush(context.Background()))
}

func TestSQLite_JSONHelpers(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	type payload struct {
		Countries []string `json:"countries"`
	}

	_, found, err := GetJSON[payload](ctx, st, "nativity", "wfo-9")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, PutJSON(ctx, st, "nativity", "wfo-9", payload{Countries: []string{"Thailand", "Vietnam"}}, true))

	got, found, err := GetJSON[payload](ctx, st, "nativity", "wfo-9")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"Thailand", "Vietnam"}, got.Countries)
}
