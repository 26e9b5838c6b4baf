package schema

import (
	"fmt"
	"sort"
)

// Validator checks documents against a single schema definition. A Validator
// is not safe for concurrent use; the Registry creates one per call.
type Validator struct {
	schema *SchemaDefinition
	issues []Issue
}

// NewValidator creates a new Validator for the given schema.
func NewValidator(schema *SchemaDefinition) *Validator {
	return &Validator{
		schema: schema,
		issues: make([]Issue, 0),
	}
}

// Validate checks data against the validator's schema. It returns whether the
// data is valid along with every issue found.
func (v *Validator) Validate(data Document) (bool, []Issue) {
	v.issues = make([]Issue, 0)
	if v.schema == nil {
		return true, v.issues
	}

	v.validateRequired(data, "")
	v.validateTypes(data, "")

	return len(v.issues) == 0, v.issues
}

// validateRequired reports required fields that are absent. Falsy values are
// accepted; only a missing key is an issue.
func (v *Validator) validateRequired(data Document, path string) {
	for _, fieldName := range v.schema.Required {
		if _, exists := data[fieldName]; !exists {
			v.addIssue("REQUIRED_FIELD_MISSING", fmt.Sprintf("Required field '%s' is missing", fieldName), v.buildPath(path, fieldName))
		}
	}
}

// validateTypes checks every present, typed field against its predicate.
func (v *Validator) validateTypes(data Document, path string) {
	fields := make([]string, 0, len(v.schema.Types))
	for fieldName := range v.schema.Types {
		fields = append(fields, fieldName)
	}
	sort.Strings(fields)

	for _, fieldName := range fields {
		value, exists := data[fieldName]
		if !exists {
			continue
		}
		expected := v.schema.Types[fieldName]
		if !expected.Check(value) {
			v.addIssue("TYPE_MISMATCH", fmt.Sprintf("Expected %s, got %T", expected, value), v.buildPath(path, fieldName))
		}
	}
}

// buildPath constructs a dot-separated path string for error reporting.
func (v *Validator) buildPath(basePath, fieldName string) string {
	if basePath == "" {
		return fieldName
	}
	return basePath + "." + fieldName
}

func (v *Validator) addIssue(code, message, path string) {
	v.issues = append(v.issues, Issue{
		Code:     code,
		Message:  message,
		Path:     path,
		Severity: "error",
	})
}
