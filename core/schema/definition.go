// Package schema defines the per-collection rules that records must satisfy
// before they are written, and the Validator that enforces them.
package schema

import (
	"encoding/json"
	"fmt"
	"maps"
)

// FieldType is the closed set of primitive kinds a schema can require of a
// field value.
type FieldType string

const (
	FieldTypeString  FieldType = "string"  // Text data
	FieldTypeNumber  FieldType = "number"  // Any numeric value
	FieldTypeBoolean FieldType = "boolean" // True/false values
	FieldTypeObject  FieldType = "object"  // Key-value object, resolves to map[string]any
	FieldTypeArray   FieldType = "array"   // Ordered list of items
	FieldTypeDate    FieldType = "date"    // Parseable timestamp string
	FieldTypeUUID    FieldType = "uuid"    // Any string; uniqueness is not checked
)

// ParseFieldType converts a string tag into a FieldType, rejecting unknown tags.
func ParseFieldType(tag string) (FieldType, error) {
	t := FieldType(tag)
	if _, ok := predicates[t]; !ok {
		return "", fmt.Errorf("unknown field type %q", tag)
	}
	return t, nil
}

// UnmarshalJSON rejects unknown type tags when schemas are loaded from JSON.
func (t *FieldType) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	parsed, err := ParseFieldType(tag)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Document is a single record in a collection.
type Document map[string]any

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return maps.Clone(d)
}

// SchemaDefinition declares the constraints a collection places on its
// records. It is a whitelist of constraints, not a closed record shape:
// fields that appear in neither Required nor Types are passed through.
type SchemaDefinition struct {
	Name        string               `json:"name"`
	Description *string              `json:"description,omitempty"`
	Required    []string             `json:"required,omitempty"`
	Types       map[string]FieldType `json:"types,omitempty"`
	// Defaults are merged into inserted records for keys the caller omitted.
	Defaults map[string]any `json:"defaults,omitempty"`
}

// Issue represents a single validation problem.
type Issue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Path     string `json:"path,omitempty"`
	Severity string `json:"severity,omitempty"` // e.g., "error", "warning"
}

type ValidationResult struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues"`
}
