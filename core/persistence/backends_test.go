package persistence_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/asaidimu/go-repodb/core/persistence"
	"github.com/asaidimu/go-repodb/core/remote"
	"github.com/asaidimu/go-repodb/core/schema"
	"github.com/asaidimu/go-repodb/github"
	"github.com/asaidimu/go-repodb/internal/remotetest"
	"github.com/asaidimu/go-repodb/sqlite"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// exerciseBackend runs the same lifecycle against any remote.Store.
func exerciseBackend(t *testing.T, rs remote.Store) {
	t.Helper()
	ctx := context.Background()
	store, err := persistence.NewStore(rs, persistence.Options{
		PollInterval: time.Hour,
		RetryDelay:   time.Millisecond,
	})
	require.NoError(t, err)
	defer store.Close()

	school := store.Tenant(persistence.TenantSchool)
	records, err := school.Get(ctx, "blog_posts", false)
	require.NoError(t, err)
	assert.Empty(t, records)

	created, err := school.Insert(ctx, "blog_posts", schema.Document{
		"title": "Welcome", "content": "...", "platform": "school",
	})
	require.NoError(t, err)
	assert.Equal(t, "1", created["id"])

	updated, err := school.Update(ctx, "blog_posts", created["uid"].(string), schema.Document{"status": "published"})
	require.NoError(t, err)
	assert.Equal(t, "published", updated["status"])

	fresh, err := school.Get(ctx, "blog_posts", true)
	require.NoError(t, err)
	assert.Equal(t, []schema.Document{updated}, fresh)

	require.NoError(t, school.Delete(ctx, "blog_posts", "1"))
	fresh, err = school.Get(ctx, "blog_posts", true)
	require.NoError(t, err)
	assert.Empty(t, fresh)
}

func TestStoreOverContentsAPI(t *testing.T) {
	mem := remotetest.NewMemory()
	server := remotetest.NewContentsServer(mem, "token")
	defer server.Close()

	client, err := github.NewClient(github.Options{
		BaseURL: server.URL,
		Owner:   "acme",
		Repo:    "site-data",
		Branch:  "main",
		Token:   "token",
	})
	require.NoError(t, err)

	exerciseBackend(t, client)
	assert.Equal(t, []string{"data/school/blog_posts.json"}, mem.Paths())
}

func TestStoreOverSQLite(t *testing.T) {
	ctx := context.Background()
	files, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "repodb.sqlite"), zap.NewNop(), sqlite.DefaultOptions())
	require.NoError(t, err)
	defer files.Close()

	exerciseBackend(t, files)

	f, err := files.Fetch(ctx, "data/school/blog_posts.json", "")
	require.NoError(t, err)
	records, err := remote.DecodeRecords(f.Content)
	require.NoError(t, err)
	assert.Empty(t, records)
}
