package schema

import (
	"fmt"

	"github.com/ignatij/goclassify/pkg/models"
)

// CheckDefinition verifies that a schema's field declarations are well formed.
func CheckDefinition(s models.Schema) error {
	seen := make(map[string]struct{}, len(s))
	for i, f := range s {
		if f.Name == "" {
			return fmt.Errorf("field %d: empty name", i)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("field %q: declared more than once", f.Name)
		}
		seen[f.Name] = struct{}{}
		if !f.Type.Valid() {
			return fmt.Errorf("field %q: invalid type %q", f.Name, f.Type)
		}
		numeric := f.Type == models.IntegerFieldType || f.Type == models.NumberFieldType
		if (f.Min != nil || f.Max != nil) && !numeric {
			return fmt.Errorf("field %q: min/max only apply to integer and number fields", f.Name)
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return fmt.Errorf("field %q: min %v is greater than max %v", f.Name, *f.Min, *f.Max)
		}
		if len(f.Enum) > 0 && !numeric && f.Type != models.StringFieldType {
			return fmt.Errorf("field %q: enum only applies to string, integer and number fields", f.Name)
		}
		if f.Items != "" {
			if f.Type != models.ArrayFieldType {
				return fmt.Errorf("field %q: items only applies to array fields", f.Name)
			}
			if !f.Items.Valid() || f.Items == models.ArrayFieldType {
				return fmt.Errorf("field %q: invalid item type %q", f.Name, f.Items)
			}
		}
	}
	return nil
}

// JSONSchema renders s as a JSON Schema object suitable for a JSON-mode response format.
func JSONSchema(s models.Schema) map[string]any {
	props := make(map[string]any, len(s))
	required := make([]string, 0, len(s))
	for _, f := range s {
		prop := map[string]any{"type": string(f.Type)}
		if f.Description != "" {
			prop["description"] = f.Description
		}
		if len(f.Enum) > 0 {
			prop["enum"] = f.Enum
		}
		if f.Min != nil {
			prop["minimum"] = *f.Min
		}
		if f.Max != nil {
			prop["maximum"] = *f.Max
		}
		if f.Type == models.ArrayFieldType && f.Items != "" {
			prop["items"] = map[string]any{"type": string(f.Items)}
		}
		props[f.Name] = prop
		if f.Required {
			required = append(required, f.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}
