package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/asaidimu/go-repodb/core/persistence"
	"github.com/asaidimu/go-repodb/internal/remotetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func newTestServer(t *testing.T) (*APIServer, *remotetest.Memory) {
	t.Helper()
	mem := remotetest.NewMemory()
	store, err := persistence.NewStore(mem, persistence.Options{
		PollInterval: time.Hour,
		RetryDelay:   time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewAPIServer(store, nil, time.Second), mem
}

func do(t *testing.T, s *APIServer, method, target string, body any) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func TestCrudOverHTTP(t *testing.T) {
	s, mem := newTestServer(t)

	code, env := do(t, s, http.MethodGet, "/api/school/events", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	assert.JSONEq(t, `[]`, string(env.Data))
	assert.True(t, mem.Exists("data/school/events.json"))

	code, env = do(t, s, http.MethodPost, "/api/school/events", map[string]any{"title": "Sports day", "date": "2024-06-01"})
	require.Equal(t, http.StatusCreated, code)
	var created map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "1", created["id"])

	code, env = do(t, s, http.MethodGet, "/api/school/events/1", nil)
	require.Equal(t, http.StatusOK, code)
	var item map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &item))
	assert.Equal(t, created, item)

	code, env = do(t, s, http.MethodPatch, "/api/school/events/"+created["uid"].(string), map[string]any{"title": "Field day"})
	require.Equal(t, http.StatusOK, code)
	var updated map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, "Field day", updated["title"])

	code, env = do(t, s, http.MethodGet, "/api/school/events/_audit", nil)
	require.Equal(t, http.StatusOK, code)
	var audit []persistence.AuditEntry
	require.NoError(t, json.Unmarshal(env.Data, &audit))
	require.Len(t, audit, 2)
	assert.Equal(t, persistence.AuditUpdate, audit[1].Action)

	code, _ = do(t, s, http.MethodDelete, "/api/school/events/1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, mem.Records("data/school/events.json"))

	code, env = do(t, s, http.MethodGet, "/api/school/events/1", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "RECORD_NOT_FOUND", env.Error.Code)

	code, env = do(t, s, http.MethodGet, "/api/collections", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"collections":["school/events"]}`, string(env.Data))
}

func TestQueryOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)
	for _, d := range []map[string]any{
		{"donor": "Amina", "amount": 50},
		{"donor": "Yusuf", "amount": 20},
		{"donor": "Khadija", "amount": 120},
	} {
		code, _ := do(t, s, http.MethodPost, "/api/charity/donations", d)
		require.Equal(t, http.StatusCreated, code)
	}

	code, env := do(t, s, http.MethodPost, "/api/charity/donations/_query", QueryRequest{
		Filters: []FilterRequest{{Field: "amount", Operator: "gte", Value: 50}},
		Sort:    &SortRequest{Field: "amount", Direction: "desc"},
		Fields:  []string{"donor"},
	})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[{"donor":"Khadija"},{"donor":"Amina"}]`, string(env.Data))

	code, env = do(t, s, http.MethodPost, "/api/charity/donations/_query", QueryRequest{
		Filters: []FilterRequest{{Field: "amount", Operator: "between"}},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_QUERY", env.Error.Code)
}

func TestErrorMapping(t *testing.T) {
	s, mem := newTestServer(t)

	code, env := do(t, s, http.MethodPost, "/api/travels/bookings", map[string]any{"package": "p1"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
	assert.Equal(t, "SCHEMA_VIOLATION", env.Error.Code)
	assert.Len(t, env.Error.Issues, 2)
	assert.False(t, mem.Exists("data/travels/bookings.json"))

	code, env = do(t, s, http.MethodGet, "/api/library/books", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "UNKNOWN_TENANT", env.Error.Code)

	code, env = do(t, s, http.MethodPatch, "/api/travels/packages/9", map[string]any{"price": 10})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "RECORD_NOT_FOUND", env.Error.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/travels/packages", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	mem.AlwaysConflict("data/travels/packages.json", true)
	code, env = do(t, s, http.MethodPost, "/api/travels/packages", map[string]any{"name": "Umrah", "price": 1200})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "WRITE_CONFLICT", env.Error.Code)
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/school/events", nil)
	rec := httptest.NewRecorder()
	s.CORSMiddleware(s).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
