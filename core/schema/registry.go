package schema

import (
	"errors"
	"fmt"
	"maps"
	"path"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ErrSchemaViolation is matched by every *SchemaViolation via errors.Is.
var ErrSchemaViolation = errors.New("schema violation")

// SchemaViolation is returned when a document fails its collection's schema.
type SchemaViolation struct {
	Collection string
	Issues     []Issue
}

func (e *SchemaViolation) Error() string {
	messages := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		messages = append(messages, issue.Message)
	}
	return fmt.Sprintf("document does not conform to schema for '%s': %s", e.Collection, strings.Join(messages, "; "))
}

func (e *SchemaViolation) Is(target error) bool {
	return target == ErrSchemaViolation
}

// Registry maps collection names to schema definitions. Collections without a
// registered schema bypass validation.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*SchemaDefinition
	logger  *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		schemas: make(map[string]*SchemaDefinition),
		logger:  logger,
	}
}

// Register adds or replaces the schema for s.Name.
func (r *Registry) Register(s SchemaDefinition) error {
	if s.Name == "" {
		return fmt.Errorf("schema name is required")
	}
	for field, t := range s.Types {
		if _, ok := predicates[t]; !ok {
			return fmt.Errorf("schema '%s': field '%s' has unknown type %q", s.Name, field, t)
		}
	}

	stored := s
	stored.Required = slices.Clone(s.Required)
	stored.Types = maps.Clone(s.Types)
	stored.Defaults = maps.Clone(s.Defaults)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[s.Name] = &stored
	r.logger.Debug("Registered schema", zap.String("collection", s.Name))
	return nil
}

// Lookup returns the schema for a collection. A namespaced name such as
// "school/blog_posts" falls back to the schema registered for "blog_posts".
func (r *Registry) Lookup(collection string) (*SchemaDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.schemas[collection]; ok {
		return s, true
	}
	if base := path.Base(collection); base != collection {
		s, ok := r.schemas[base]
		return s, ok
	}
	return nil, false
}

// Validate checks doc against the collection's schema. It returns a
// *SchemaViolation when any issue is found.
func (r *Registry) Validate(collection string, doc Document) error {
	s, ok := r.Lookup(collection)
	if !ok {
		return nil
	}

	valid, issues := NewValidator(s).Validate(doc)
	if valid {
		return nil
	}
	r.logger.Debug("Schema validation failed",
		zap.String("collection", collection),
		zap.Int("issues", len(issues)),
	)
	return &SchemaViolation{Collection: collection, Issues: issues}
}

// ApplyDefaults returns a copy of doc with the schema's defaults filled in for
// keys doc does not carry.
func (r *Registry) ApplyDefaults(collection string, doc Document) Document {
	out := doc.Clone()
	if out == nil {
		out = Document{}
	}
	s, ok := r.Lookup(collection)
	if !ok {
		return out
	}
	for key, value := range s.Defaults {
		if _, exists := out[key]; !exists {
			out[key] = value
		}
	}
	return out
}
