package github

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/asaidimu/go-repodb/core/remote"
	"github.com/asaidimu/go-repodb/internal/remotetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token"

func newTestClient(t *testing.T) (*Client, *remotetest.ContentsServer) {
	t.Helper()
	server := remotetest.NewContentsServer(remotetest.NewMemory(), testToken)
	t.Cleanup(server.Close)

	client, err := NewClient(Options{
		BaseURL: server.URL,
		Owner:   "acme",
		Repo:    "content",
		Branch:  "main",
		Token:   testToken,
	})
	require.NoError(t, err)
	return client, server
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Options{Repo: "content", Token: "x"})
	assert.Error(t, err)

	_, err = NewClient(Options{Owner: "acme", Repo: "content"})
	assert.Error(t, err)

	client, err := NewClient(Options{Owner: "acme", Repo: "content", Token: "x"})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, client.baseURL)
	assert.Equal(t, DefaultTimeout, client.timeout)
}

func TestContentsURL(t *testing.T) {
	client, err := NewClient(Options{BaseURL: "http://api.local/", Owner: "acme", Repo: "content", Token: "x"})
	require.NoError(t, err)
	assert.Equal(t,
		"http://api.local/repos/acme/content/contents/data/school/blog%20posts.json",
		client.contentsURL("/data/school/blog posts.json"),
	)
}

func TestFetch(t *testing.T) {
	ctx := context.Background()
	client, server := newTestClient(t)

	t.Run("missing file", func(t *testing.T) {
		_, err := client.Fetch(ctx, "data/events.json", "")
		assert.ErrorIs(t, err, remote.ErrNotFound)
	})

	content := []byte(`[{"id":"1","uid":"a","title":"Open day"}]`)
	server.Store.SetContent("data/events.json", content)

	var etag string
	t.Run("decodes content and revision", func(t *testing.T) {
		file, err := client.Fetch(ctx, "data/events.json", "")
		require.NoError(t, err)
		assert.Equal(t, content, file.Content)
		assert.NotEmpty(t, file.Revision)
		assert.NotEmpty(t, file.ETag)
		etag = file.ETag
	})

	t.Run("conditional fetch", func(t *testing.T) {
		_, err := client.Fetch(ctx, "data/events.json", etag)
		assert.ErrorIs(t, err, remote.ErrNotModified)

		server.Store.SetContent("data/events.json", []byte(`[]`))
		file, err := client.Fetch(ctx, "data/events.json", etag)
		require.NoError(t, err)
		assert.NotEqual(t, etag, file.ETag)
	})
}

func TestCreateAndPut(t *testing.T) {
	ctx := context.Background()
	client, server := newTestClient(t)

	created, err := client.Create(ctx, "data/donations.json", []byte("[]"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.Revision)
	assert.True(t, server.Store.Exists("data/donations.json"))

	_, err = client.Create(ctx, "data/donations.json", []byte("[]"))
	assert.ErrorIs(t, err, remote.ErrAlreadyExists)

	updated, err := client.Put(ctx, "data/donations.json", []byte(`[{"id":"1"}]`), created.Revision)
	require.NoError(t, err)
	assert.NotEqual(t, created.Revision, updated.Revision)
	assert.Len(t, server.Store.Records("data/donations.json"), 1)

	_, err = client.Put(ctx, "data/donations.json", []byte(`[]`), created.Revision)
	assert.True(t, remote.IsConflict(err))

	_, err = client.Put(ctx, "data/missing.json", []byte(`[]`), "rev-1")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	_, err = client.Put(ctx, "data/donations.json", []byte(`[]`), "")
	assert.Error(t, err)
}

func TestTransportErrors(t *testing.T) {
	ctx := context.Background()
	_, server := newTestClient(t)

	client, err := NewClient(Options{BaseURL: server.URL, Owner: "acme", Repo: "content", Token: "wrong"})
	require.NoError(t, err)

	_, err = client.Fetch(ctx, "data/events.json", "")
	var te *remote.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusUnauthorized, te.StatusCode)
	assert.Contains(t, te.Message, "Bad credentials")
	assert.False(t, IsRateLimited(err))
}

func TestRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"API rate limit exceeded for user."}`))
	}))
	defer server.Close()

	client, err := NewClient(Options{BaseURL: server.URL, Owner: "acme", Repo: "content", Token: "x"})
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), "data/events.json", "")
	assert.True(t, IsRateLimited(err))
}
