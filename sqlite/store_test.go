package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/asaidimu/go-repodb/core/remote"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "repodb.db"), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMigrateIsRepeatable(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Migrate(context.Background()))

	stmts := store.CreateTableSQL()
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], `CREATE TABLE IF NOT EXISTS "repodb_files"`)
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	path := "data/school/events.json"

	_, err := store.Fetch(ctx, path, "")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	created, err := store.Create(ctx, path, []byte("[]"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.Revision)

	_, err = store.Create(ctx, path, []byte("[]"))
	assert.ErrorIs(t, err, remote.ErrAlreadyExists)

	fetched, err := store.Fetch(ctx, path, "")
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), fetched.Content)
	assert.Equal(t, created.Revision, fetched.Revision)

	_, err = store.Fetch(ctx, path, fetched.ETag)
	assert.ErrorIs(t, err, remote.ErrNotModified)

	updated, err := store.Put(ctx, path, []byte(`[{"id":"1"}]`), fetched.Revision)
	require.NoError(t, err)
	assert.NotEqual(t, fetched.Revision, updated.Revision)
	assert.NotEqual(t, fetched.ETag, updated.ETag)

	_, err = store.Put(ctx, path, []byte(`[]`), fetched.Revision)
	require.True(t, remote.IsConflict(err))
	var conflict *remote.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, updated.Revision, conflict.CurrentRevision)

	_, err = store.Put(ctx, "data/missing.json", []byte(`[]`), "x")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	latest, err := store.Fetch(ctx, path, fetched.ETag)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"1"}]`, string(latest.Content))
}
