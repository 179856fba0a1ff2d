// ABOUTME: Tests for the SQLite metadata store
// ABOUTME: Covers round trips, option decoding at read time, and bad rows

package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	err := store.PutConnection(ctx, "echo-a2a", "Echo agent", "owner@example.com", map[string]string{
		"host":         "http://echo.internal:8080",
		"bearer_token": "secret-123",
	})
	require.NoError(t, err)

	conn, err := store.GetConnection(ctx, "echo-a2a")
	require.NoError(t, err)
	assert.Equal(t, "echo-a2a", conn.Name)
	assert.Equal(t, "Echo agent", conn.Description)
	assert.Equal(t, "owner@example.com", conn.Owner)
	assert.Equal(t, "http://echo.internal:8080", conn.Host)
	assert.Equal(t, ModeStaticBearer, conn.Auth.Mode)
	assert.Equal(t, "secret-123", conn.Auth.BearerToken)
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	store := newSQLiteStore(t)

	_, err := store.GetConnection(context.Background(), "nope-a2a")
	assert.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestSQLiteStore_PutReplaces(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutConnection(ctx, "echo-a2a", "v1", "a@example.com", map[string]string{
		"host": "http://old.internal",
	}))
	require.NoError(t, store.PutConnection(ctx, "echo-a2a", "v2", "b@example.com", map[string]string{
		"host": "http://new.internal",
	}))

	conn, err := store.GetConnection(ctx, "echo-a2a")
	require.NoError(t, err)
	assert.Equal(t, "v2", conn.Description)
	assert.Equal(t, "http://new.internal", conn.Host)
}

func TestSQLiteStore_ListOrdersAndSkipsBadRows(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutConnection(ctx, "echo-a2a", "", "", map[string]string{
		"host": "http://echo.internal",
	}))
	require.NoError(t, store.PutConnection(ctx, "calc-a2a", "", "", map[string]string{
		"host": "http://calc.internal",
	}))
	// Missing host makes this registration undecodable.
	require.NoError(t, store.PutConnection(ctx, "broken-a2a", "", "", map[string]string{
		"bearer_token": "x",
	}))

	conns, err := store.ListConnections(ctx)
	require.NoError(t, err)
	require.Len(t, conns, 2)
	assert.Equal(t, "calc-a2a", conns[0].Name)
	assert.Equal(t, "echo-a2a", conns[1].Name)
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutConnection(ctx, "echo-a2a", "", "", map[string]string{
		"host": "http://echo.internal",
	}))
	require.NoError(t, store.DeleteConnection(ctx, "echo-a2a"))

	_, err := store.GetConnection(ctx, "echo-a2a")
	assert.ErrorIs(t, err, ErrConnectionNotFound)

	assert.ErrorIs(t, store.DeleteConnection(ctx, "echo-a2a"), ErrConnectionNotFound)
}
