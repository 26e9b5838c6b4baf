package schema

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldType_Check(t *testing.T) {
	tests := []struct {
		name     string
		typ      FieldType
		value    any
		expected bool
	}{
		{"string", FieldTypeString, "hello", true},
		{"string rejects number", FieldTypeString, 12, false},
		{"number int", FieldTypeNumber, 12, true},
		{"number float", FieldTypeNumber, 12.5, true},
		{"number json", FieldTypeNumber, json.Number("3"), true},
		{"number rejects numeric string", FieldTypeNumber, "12", false},
		{"boolean", FieldTypeBoolean, false, true},
		{"boolean rejects string", FieldTypeBoolean, "true", false},
		{"object map", FieldTypeObject, map[string]any{"a": 1}, true},
		{"object document", FieldTypeObject, Document{"a": 1}, true},
		{"object rejects slice", FieldTypeObject, []any{}, false},
		{"array any", FieldTypeArray, []any{1, 2}, true},
		{"array strings", FieldTypeArray, []string{"a"}, true},
		{"array rejects nil", FieldTypeArray, nil, false},
		{"date rfc3339", FieldTypeDate, "2024-05-01T10:00:00Z", true},
		{"date day", FieldTypeDate, "2024-05-01", true},
		{"date time value", FieldTypeDate, time.Now(), true},
		{"date rejects garbage", FieldTypeDate, "next tuesday", false},
		{"uuid any string", FieldTypeUUID, "not-really-a-uuid", true},
		{"uuid rejects number", FieldTypeUUID, 7, false},
		{"unknown type", FieldType("blob"), "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.typ.Check(tt.value))
		})
	}
}

func TestParseFieldType(t *testing.T) {
	ft, err := ParseFieldType("date")
	require.NoError(t, err)
	assert.Equal(t, FieldTypeDate, ft)

	_, err = ParseFieldType("decimal")
	assert.Error(t, err)

	var s SchemaDefinition
	err = json.Unmarshal([]byte(`{"name":"x","types":{"a":"blob"}}`), &s)
	assert.Error(t, err)
}

func TestValidator_Validate(t *testing.T) {
	s := &SchemaDefinition{
		Name:     "bookings",
		Required: []string{"package", "customer", "status"},
		Types: map[string]FieldType{
			"package": FieldTypeString,
			"date":    FieldTypeDate,
		},
	}
	v := NewValidator(s)

	t.Run("valid with unknown fields", func(t *testing.T) {
		valid, issues := v.Validate(Document{"package": "p1", "customer": "c", "status": "new", "extra": 42})
		assert.True(t, valid)
		assert.Empty(t, issues)
	})

	t.Run("falsy values satisfy required", func(t *testing.T) {
		valid, _ := v.Validate(Document{"package": "", "customer": nil, "status": false})
		assert.True(t, valid)
	})

	t.Run("missing required fields", func(t *testing.T) {
		valid, issues := v.Validate(Document{"package": "p1"})
		assert.False(t, valid)
		require.Len(t, issues, 2)
		assert.Equal(t, "REQUIRED_FIELD_MISSING", issues[0].Code)
		assert.Equal(t, "customer", issues[0].Path)
		assert.Equal(t, "status", issues[1].Path)
	})

	t.Run("type mismatch", func(t *testing.T) {
		valid, issues := v.Validate(Document{"package": 1, "customer": "c", "status": "s", "date": "soon"})
		assert.False(t, valid)
		require.Len(t, issues, 2)
		assert.Equal(t, "TYPE_MISMATCH", issues[0].Code)
		assert.Equal(t, "date", issues[0].Path)
		assert.Equal(t, "package", issues[1].Path)
	})

	t.Run("nil schema accepts anything", func(t *testing.T) {
		valid, issues := NewValidator(nil).Validate(Document{"a": 1})
		assert.True(t, valid)
		assert.Empty(t, issues)
	})
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry(nil)

	t.Run("unregistered collection bypasses validation", func(t *testing.T) {
		assert.NoError(t, r.Validate("gallery", Document{}))
	})

	t.Run("schema violation", func(t *testing.T) {
		err := r.Validate("bookings", Document{"package": "p1"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSchemaViolation))

		var violation *SchemaViolation
		require.True(t, errors.As(err, &violation))
		assert.Equal(t, "bookings", violation.Collection)
		assert.Len(t, violation.Issues, 2)
		assert.Contains(t, err.Error(), "customer")
	})

	t.Run("namespaced names fall back to base schema", func(t *testing.T) {
		err := r.Validate("school/blog_posts", Document{"title": "t"})
		assert.ErrorIs(t, err, ErrSchemaViolation)

		s, ok := r.Lookup("masjid/blog_posts")
		require.True(t, ok)
		assert.Equal(t, "blog_posts", s.Name)
	})

	t.Run("tenant specific schema wins", func(t *testing.T) {
		require.NoError(t, r.Register(SchemaDefinition{Name: "charity/events", Required: []string{"cause"}}))
		assert.ErrorIs(t, r.Validate("charity/events", Document{"title": "t", "date": "2024-01-01"}), ErrSchemaViolation)
		assert.NoError(t, r.Validate("charity/events", Document{"cause": "water"}))
	})

	t.Run("register rejects unknown types", func(t *testing.T) {
		err := r.Register(SchemaDefinition{Name: "x", Types: map[string]FieldType{"a": "blob"}})
		assert.Error(t, err)
		assert.Error(t, r.Register(SchemaDefinition{}))
	})

	t.Run("defaults fill only missing keys", func(t *testing.T) {
		in := Document{"donor": "A", "amount": 5, "recurring": true}
		out := r.ApplyDefaults("donations", in)
		assert.Equal(t, true, out["recurring"])

		out = r.ApplyDefaults("school/blog_posts", Document{"title": "t"})
		assert.Equal(t, "draft", out["status"])
		assert.Equal(t, "t", out["title"])

		out = r.ApplyDefaults("gallery", nil)
		assert.NotNil(t, out)
	})
}

func TestRegisterCopiesDefinition(t *testing.T) {
	r := NewRegistry(nil)
	def := SchemaDefinition{
		Name:     "notes",
		Required: []string{"title"},
		Types:    map[string]FieldType{"title": FieldTypeString},
		Defaults: map[string]any{"status": "draft"},
	}
	require.NoError(t, r.Register(def))

	def.Required[0] = "body"
	def.Types["title"] = FieldTypeNumber
	def.Defaults["status"] = "archived"
	delete(def.Defaults, "status")

	s, ok := r.Lookup("notes")
	require.True(t, ok)
	assert.Equal(t, []string{"title"}, s.Required)
	assert.Equal(t, FieldTypeString, s.Types["title"])
	assert.Equal(t, "draft", s.Defaults["status"])

	assert.NoError(t, r.Validate("notes", Document{"title": "t"}))
	assert.ErrorIs(t, r.Validate("notes", Document{"body": "b"}), ErrSchemaViolation)
	assert.Equal(t, "draft", r.ApplyDefaults("notes", Document{"title": "t"})["status"])
}
