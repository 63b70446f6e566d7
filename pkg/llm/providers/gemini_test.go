package providers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ignatij/goclassify/pkg/llm"
	"github.com/ignatij/goclassify/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestToGenAISchema(t *testing.T) {
	low, high := 1.0, 5.0
	s := models.Schema{
		{Name: "sentiment", Type: models.IntegerFieldType, Required: true, Min: &low, Max: &high, Description: "1 is negative"},
		{Name: "topic", Type: models.StringFieldType, Enum: []any{"billing", "support"}},
		{Name: "tags", Type: models.ArrayFieldType, Items: models.StringFieldType},
		{Name: "urgent", Type: models.BooleanFieldType, Required: true},
	}

	out := toGenAISchema(s)
	assert.Equal(t, genai.TypeObject, out.Type)
	assert.Equal(t, []string{"sentiment", "urgent"}, out.Required)
	assert.Equal(t, []string{"sentiment", "topic", "tags", "urgent"}, out.PropertyOrdering)

	sentiment := out.Properties["sentiment"]
	require.NotNil(t, sentiment)
	assert.Equal(t, genai.TypeInteger, sentiment.Type)
	assert.Equal(t, &low, sentiment.Minimum)
	assert.Equal(t, &high, sentiment.Maximum)
	assert.Equal(t, "1 is negative", sentiment.Description)

	assert.Equal(t, []string{"billing", "support"}, out.Properties["topic"].Enum)
	require.NotNil(t, out.Properties["tags"].Items)
	assert.Equal(t, genai.TypeString, out.Properties["tags"].Items.Type)
	assert.Equal(t, genai.TypeBoolean, out.Properties["urgent"].Type)
}

func TestClassifyGenAIError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		fatal     bool
	}{
		{name: "Resource exhausted", err: genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, transient: true},
		{name: "Unavailable", err: genai.APIError{Code: 503, Status: "UNAVAILABLE"}, transient: true},
		{name: "Wrapped permission denied", err: fmt.Errorf("call: %w", genai.APIError{Code: 403}), fatal: true},
		{name: "Invalid argument", err: genai.APIError{Code: 400, Status: "INVALID_ARGUMENT"}, fatal: true},
		{name: "Unknown error", err: errors.New("dial tcp: refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyGenAIError(tt.err)
			assert.Equal(t, tt.transient, llm.IsTransient(err))
			assert.Equal(t, tt.fatal, llm.IsFatal(err))
			assert.Contains(t, err.Error(), "gemini: ")
		})
	}
}
