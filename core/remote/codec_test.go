package remote

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/asaidimu/go-repodb/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentCodec(t *testing.T) {
	payload := []byte(strings.Repeat(`[{"id":"1","title":"Welcome"}]`, 5))

	wrapped := EncodeContentWrapped(payload)
	assert.Contains(t, wrapped, "\n")
	for _, line := range strings.Split(wrapped, "\n") {
		assert.LessOrEqual(t, len(line), lineWidth)
	}

	decoded, err := DecodeContent(wrapped)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)

	decoded, err = DecodeContent(EncodeContent(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)

	_, err = DecodeContent("!!not base64!!")
	assert.Error(t, err)
}

func TestDecodeRecords(t *testing.T) {
	t.Run("empty content is an empty collection", func(t *testing.T) {
		records, err := DecodeRecords([]byte("  \n"))
		require.NoError(t, err)
		assert.NotNil(t, records)
		assert.Empty(t, records)
	})

	t.Run("array", func(t *testing.T) {
		records, err := DecodeRecords([]byte(`[{"id":"1","uid":"u"},{"id":"2","uid":"v"}]`))
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "2", records[1]["id"])
	})

	t.Run("object root rejected", func(t *testing.T) {
		_, err := DecodeRecords([]byte(`{"id":"1"}`))
		assert.Error(t, err)
	})

	t.Run("round trip", func(t *testing.T) {
		data, err := EncodeRecords([]schema.Document{{"id": "1", "title": "Welcome"}})
		require.NoError(t, err)
		records, err := DecodeRecords(data)
		require.NoError(t, err)
		assert.Equal(t, "Welcome", records[0]["title"])

		data, err = EncodeRecords(nil)
		require.NoError(t, err)
		assert.Equal(t, "[]", string(data))
	})
}

func TestErrors(t *testing.T) {
	conflict := &ConflictError{Path: "data/events.json", ExpectedRevision: "a", CurrentRevision: "b"}
	wrapped := fmt.Errorf("write failed: %w", conflict)
	assert.True(t, IsConflict(wrapped))
	assert.True(t, errors.Is(wrapped, ErrWriteConflict))
	assert.Contains(t, conflict.Error(), "expected a")

	dial := errors.New("dial tcp: connection refused")
	transport := &TransportError{StatusCode: 500, Message: "boom", Err: dial}
	assert.False(t, IsConflict(transport))
	assert.ErrorIs(t, transport, dial)
	assert.Contains(t, transport.Error(), "500")
}
