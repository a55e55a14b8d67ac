package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// StructuredMode selects how JSON requests are constrained on the wire.
type StructuredMode string

const (
	// StructuredPrompt relies on prompt wording alone.
	StructuredPrompt StructuredMode = "prompt"
	// StructuredJSONObject sets response_format to json_object.
	StructuredJSONObject StructuredMode = "json_object"
	// StructuredJSONSchema sends the reflected schema, non-strict.
	StructuredJSONSchema StructuredMode = "json_schema"
)

// GroqBaseURL is the OpenAI-compatible Groq endpoint.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// OpenAIBackend talks to any OpenAI-compatible chat completions endpoint.
type OpenAIBackend struct {
	client     openai.Client
	baseURL    string
	structured StructuredMode
}

// NewOpenAIBackend creates a backend for baseURL. SDK-level retries are
// disabled; the Client owns that policy.
func NewOpenAIBackend(apiKey, baseURL string, mode StructuredMode) *OpenAIBackend {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if mode == "" {
		mode = StructuredPrompt
	}
	return &OpenAIBackend{
		client:     openai.NewClient(opts...),
		baseURL:    baseURL,
		structured: mode,
	}
}

func (b *OpenAIBackend) Name() string {
	if b.baseURL == "" {
		return "openai"
	}
	return "openai-compatible:" + b.baseURL
}

func (b *OpenAIBackend) Generate(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
	}
	if req.JSON != nil {
		switch b.structured {
		case StructuredJSONObject:
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
			}
		case StructuredJSONSchema:
			if req.JSON.Schema != nil {
				params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
					OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
						JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
							Name:   req.JSON.Name,
							Schema: req.JSON.Schema,
							Strict: openai.Bool(false),
						},
					},
				}
			}
		}
	}

	completion, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &StatusError{Provider: b.Name(), StatusCode: apiErr.StatusCode, Err: err}
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", ErrNoChoices
	}
	return completion.Choices[0].Message.Content, nil
}
