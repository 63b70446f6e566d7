// Package providers contains the llm.Completer implementations for the remote
// services goclassify can talk to.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ignatij/goclassify/pkg/llm"
	"github.com/ignatij/goclassify/pkg/schema"
	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAICompleter calls an OpenAI-compatible chat completion endpoint in JSON mode.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter creates a completer. An empty baseURL uses the public OpenAI API.
func NewOpenAICompleter(apiKey, baseURL, model string) *OpenAICompleter {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAICompleter{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// Complete implements llm.Completer.
func (c *OpenAICompleter) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	messages := []openai.ChatCompletionMessage{}
	if len(req.ResponseSchema) > 0 {
		schemaJSON, err := json.Marshal(schema.JSONSchema(req.ResponseSchema))
		if err != nil {
			return llm.Completion{}, llm.NewFatalError(fmt.Errorf("encode response schema: %w", err))
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: "Answer with a single JSON object matching this JSON schema:\n" + string(schemaJSON),
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return llm.Completion{}, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return llm.Completion{}, llm.NewTransientError(errors.New("openai: response contained no choices"))
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return llm.Completion{}, llm.NewFatalError(errors.New("openai: response blocked by content filter"))
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}
	return llm.Completion{Text: choice.Message.Content, Model: model}, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return llm.ClassifyHTTPStatus(apiErr.HTTPStatusCode, fmt.Errorf("openai: %w", err))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return llm.ClassifyHTTPStatus(reqErr.HTTPStatusCode, fmt.Errorf("openai: %w", err))
	}
	// Transport failures (net.Error, deadline) are left for the client to judge.
	return fmt.Errorf("openai: %w", err)
}
