package schema

import (
	"encoding/json"
	"reflect"
	"time"
)

// Predicate reports whether a runtime value satisfies a field type.
type Predicate func(value any) bool

// dateLayouts are the timestamp formats accepted for FieldTypeDate.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123,
	time.RFC1123Z,
}

var predicates = map[FieldType]Predicate{
	FieldTypeString:  isString,
	FieldTypeNumber:  isNumeric,
	FieldTypeBoolean: isBoolean,
	FieldTypeObject:  isObject,
	FieldTypeArray:   isArray,
	FieldTypeDate:    isDate,
	FieldTypeUUID:    isString,
}

// Check reports whether value satisfies the field type. Unknown types never match.
func (t FieldType) Check(value any) bool {
	p, ok := predicates[t]
	if !ok {
		return false
	}
	return p(value)
}

func isString(value any) bool {
	_, ok := value.(string)
	return ok
}

func isBoolean(value any) bool {
	_, ok := value.(bool)
	return ok
}

func isNumeric(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return true
	}
	return false
}

func isObject(value any) bool {
	switch value.(type) {
	case map[string]any, Document:
		return true
	}
	return false
}

func isArray(value any) bool {
	if value == nil {
		return false
	}
	rv := reflect.ValueOf(value)
	return rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array
}

func isDate(value any) bool {
	switch v := value.(type) {
	case time.Time:
		return !v.IsZero()
	case string:
		for _, layout := range dateLayouts {
			if _, err := time.Parse(layout, v); err == nil {
				return true
			}
		}
	}
	return false
}
