package schema

import "go.uber.org/zap"

// DefaultSchemas are the collections shared by every tenant site.
func DefaultSchemas() []SchemaDefinition {
	return []SchemaDefinition{
		{
			Name:     "blog_posts",
			Required: []string{"title", "content", "platform"},
			Types: map[string]FieldType{
				"title":        FieldTypeString,
				"content":      FieldTypeString,
				"platform":     FieldTypeString,
				"tags":         FieldTypeArray,
				"published_at": FieldTypeDate,
			},
			Defaults: map[string]any{"status": "draft"},
		},
		{
			Name:     "bookings",
			Required: []string{"package", "customer", "status"},
			Types: map[string]FieldType{
				"package":  FieldTypeString,
				"customer": FieldTypeObject,
				"status":   FieldTypeString,
				"date":     FieldTypeDate,
			},
		},
		{
			Name:     "events",
			Required: []string{"title", "date"},
			Types: map[string]FieldType{
				"title": FieldTypeString,
				"date":  FieldTypeDate,
			},
		},
		{
			Name:     "donations",
			Required: []string{"donor", "amount"},
			Types: map[string]FieldType{
				"donor":     FieldTypeString,
				"amount":    FieldTypeNumber,
				"recurring": FieldTypeBoolean,
			},
			Defaults: map[string]any{"recurring": false},
		},
		{
			Name:     "packages",
			Required: []string{"name", "price"},
			Types: map[string]FieldType{
				"name":      FieldTypeString,
				"price":     FieldTypeNumber,
				"itinerary": FieldTypeArray,
			},
		},
	}
}

// DefaultRegistry returns a registry preloaded with DefaultSchemas.
func DefaultRegistry(logger *zap.Logger) *Registry {
	r := NewRegistry(logger)
	for _, s := range DefaultSchemas() {
		// The built-in schemas only use known types.
		_ = r.Register(s)
	}
	return r
}
