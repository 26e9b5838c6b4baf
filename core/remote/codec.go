package remote

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/asaidimu/go-repodb/core/schema"
)

// lineWidth matches the provider's wrapping of base64 payloads.
const lineWidth = 60

// EncodeContent converts raw bytes into the base64 text the contents API
// expects.
func EncodeContent(content []byte) string {
	return base64.StdEncoding.EncodeToString(content)
}

// EncodeContentWrapped encodes content and wraps it at the provider's line
// width, the way file contents are returned on read.
func EncodeContentWrapped(content []byte) string {
	encoded := EncodeContent(content)
	var sb strings.Builder
	for len(encoded) > lineWidth {
		sb.WriteString(encoded[:lineWidth])
		sb.WriteByte('\n')
		encoded = encoded[lineWidth:]
	}
	sb.WriteString(encoded)
	return sb.String()
}

// DecodeContent reverses EncodeContent, ignoring embedded line breaks.
func DecodeContent(encoded string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, encoded)
	decoded, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 content: %w", err)
	}
	return decoded, nil
}

// DecodeRecords parses a collection file. Empty content is an empty
// collection; any root value other than an array is an error.
func DecodeRecords(content []byte) ([]schema.Document, error) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return []schema.Document{}, nil
	}
	if trimmed[0] != '[' {
		return nil, fmt.Errorf("collection file root must be a JSON array")
	}

	var records []schema.Document
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal collection records: %w", err)
	}
	if records == nil {
		records = []schema.Document{}
	}
	return records, nil
}

// EncodeRecords serializes a collection as an indented JSON array.
func EncodeRecords(records []schema.Document) ([]byte, error) {
	if records == nil {
		records = []schema.Document{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal collection records: %w", err)
	}
	return data, nil
}
