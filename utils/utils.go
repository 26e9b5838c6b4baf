// Package utils converts between typed Go records and the untyped documents
// stored in collections.
package utils

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/asaidimu/go-repodb/core/schema"
)

// StructToDocument converts a struct (or pointer to one) into a Document by
// round-tripping it through JSON, so `json` tags and `omitempty` apply.
// Nested structs become nested maps, which is the shape the schema validator
// expects for object fields.
//
// Example:
//
//	type Booking struct {
//		Package  string            `json:"package"`
//		Customer map[string]string `json:"customer"`
//		Status   string            `json:"status"`
//	}
//	doc, err := StructToDocument(Booking{Package: "umrah", Status: "pending"})
//	// doc == schema.Document{"package": "umrah", "customer": nil, "status": "pending"}
func StructToDocument[T any](record T) (schema.Document, error) {
	val := reflect.ValueOf(record)
	if !val.IsValid() {
		return nil, fmt.Errorf("input record cannot be nil")
	}
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil, fmt.Errorf("input record cannot be a nil pointer to a struct")
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil, fmt.Errorf("input record must be a struct or a pointer to a struct, got %s", val.Kind())
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("StructToDocument: failed to marshal input record to JSON: %w", err)
	}
	var doc schema.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("StructToDocument: failed to unmarshal JSON to document: %w", err)
	}
	return doc, nil
}

// DocumentToStruct is the inverse of StructToDocument. T must be a struct or
// a pointer to a struct.
func DocumentToStruct[T any](doc schema.Document) (T, error) {
	var zero T
	if doc == nil {
		return zero, fmt.Errorf("DocumentToStruct: input document cannot be nil")
	}

	typ := reflect.TypeOf(zero)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return zero, fmt.Errorf("DocumentToStruct: generic type T must be a struct type (or pointer to struct), got %s", typ.Kind())
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return zero, fmt.Errorf("DocumentToStruct: failed to marshal input document to JSON: %w", err)
	}
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return zero, fmt.Errorf("DocumentToStruct: failed to unmarshal JSON to target struct: %w", err)
	}
	return result, nil
}

// DocumentsToStructs converts every document of a collection snapshot,
// stopping at the first failure.
func DocumentsToStructs[T any](docs []schema.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for i, doc := range docs {
		v, err := DocumentToStruct[T](doc)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
