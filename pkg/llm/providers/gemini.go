package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignatij/goclassify/pkg/llm"
	"github.com/ignatij/goclassify/pkg/models"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiCompleter calls the Gemini API in JSON mode with a response schema.
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

// NewGeminiCompleter creates a completer for the Gemini developer API.
func NewGeminiCompleter(ctx context.Context, apiKey, model string) (*GeminiCompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiCompleter{client: client, model: model}, nil
}

// Complete implements llm.Completer.
func (c *GeminiCompleter) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if len(req.ResponseSchema) > 0 {
		config.ResponseSchema = toGenAISchema(req.ResponseSchema)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), config)
	if err != nil {
		return llm.Completion{}, classifyGenAIError(err)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return llm.Completion{}, llm.NewFatalError(fmt.Errorf("gemini: prompt blocked: %s", resp.PromptFeedback.BlockReason))
	}
	if len(resp.Candidates) == 0 {
		return llm.Completion{}, llm.NewTransientError(errors.New("gemini: response contained no candidates"))
	}
	if reason := resp.Candidates[0].FinishReason; reason == genai.FinishReasonSafety || reason == genai.FinishReasonProhibitedContent {
		return llm.Completion{}, llm.NewFatalError(fmt.Errorf("gemini: response blocked: %s", reason))
	}

	model := resp.ModelVersion
	if model == "" {
		model = c.model
	}
	return llm.Completion{Text: resp.Text(), Model: model}, nil
}

// toGenAISchema converts a field schema into the Gemini response schema.
func toGenAISchema(s models.Schema) *genai.Schema {
	out := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(s)),
	}
	for _, f := range s {
		prop := &genai.Schema{
			Type:        genAIType(f.Type),
			Description: f.Description,
			Minimum:     f.Min,
			Maximum:     f.Max,
		}
		for _, v := range f.Enum {
			prop.Enum = append(prop.Enum, fmt.Sprint(v))
		}
		if f.Type == models.ArrayFieldType && f.Items != "" {
			prop.Items = &genai.Schema{Type: genAIType(f.Items)}
		}
		out.Properties[f.Name] = prop
		out.PropertyOrdering = append(out.PropertyOrdering, f.Name)
		if f.Required {
			out.Required = append(out.Required, f.Name)
		}
	}
	return out
}

func genAIType(t models.FieldType) genai.Type {
	switch t {
	case models.StringFieldType:
		return genai.TypeString
	case models.IntegerFieldType:
		return genai.TypeInteger
	case models.NumberFieldType:
		return genai.TypeNumber
	case models.BooleanFieldType:
		return genai.TypeBoolean
	case models.ArrayFieldType:
		return genai.TypeArray
	default:
		return genai.TypeObject
	}
}

func classifyGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llm.ClassifyHTTPStatus(apiErr.Code, fmt.Errorf("gemini: %w", err))
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return llm.ClassifyHTTPStatus(apiErrPtr.Code, fmt.Errorf("gemini: %w", err))
	}
	return fmt.Errorf("gemini: %w", err)
}
