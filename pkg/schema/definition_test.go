package schema_test

import (
	"testing"

	"github.com/ignatij/goclassify/pkg/models"
	"github.com/ignatij/goclassify/pkg/schema"
	"github.com/stretchr/testify/assert"
)

func TestCheckDefinition(t *testing.T) {
	tests := []struct {
		name    string
		schema  models.Schema
		wantErr string
	}{
		{name: "valid", schema: sentimentSchema},
		{name: "empty name", schema: models.Schema{{Type: models.StringFieldType}}, wantErr: "empty name"},
		{name: "duplicate", schema: models.Schema{{Name: "a", Type: "string"}, {Name: "a", Type: "integer"}}, wantErr: "more than once"},
		{name: "unknown type", schema: models.Schema{{Name: "a", Type: "float"}}, wantErr: "invalid type"},
		{name: "range on string", schema: models.Schema{{Name: "a", Type: "string", Min: ptr(1)}}, wantErr: "min/max"},
		{name: "inverted range", schema: models.Schema{{Name: "a", Type: "number", Min: ptr(2), Max: ptr(1)}}, wantErr: "greater than max"},
		{name: "enum on boolean", schema: models.Schema{{Name: "a", Type: "boolean", Enum: []any{true}}}, wantErr: "enum"},
		{name: "items on string", schema: models.Schema{{Name: "a", Type: "string", Items: "string"}}, wantErr: "items only"},
		{name: "nested arrays", schema: models.Schema{{Name: "a", Type: "array", Items: "array"}}, wantErr: "invalid item type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.CheckDefinition(tt.schema)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestJSONSchema(t *testing.T) {
	got := schema.JSONSchema(models.Schema{
		{Name: "reason", Type: models.StringFieldType, Required: true, Description: "why"},
		{Name: "sentiment", Type: models.IntegerFieldType, Required: true, Min: ptr(1), Max: ptr(5)},
		{Name: "tags", Type: models.ArrayFieldType, Items: models.StringFieldType},
	})

	assert.Equal(t, "object", got["type"])
	assert.Equal(t, []string{"reason", "sentiment"}, got["required"])
	props := got["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "string", "description": "why"}, props["reason"])
	assert.Equal(t, map[string]any{"type": "integer", "minimum": 1.0, "maximum": 5.0}, props["sentiment"])
	assert.Equal(t, map[string]any{"type": "array", "items": map[string]any{"type": "string"}}, props["tags"])
}
