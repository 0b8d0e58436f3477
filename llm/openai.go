// ABOUTME: OpenAI Chat Completions adapter with base URL support for compatible providers.
// ABOUTME: Enables Cerebras, OpenRouter, Cloudflare AI Gateway, and other OpenAI-compatible services.
package llm

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIAdapter implements ProviderAdapter using the OpenAI Chat Completions
// API. A custom base URL routes requests to any OpenAI-compatible provider.
type OpenAIAdapter struct {
	client openai.Client
	model  string
}

// OpenAIOption is a functional option for configuring an OpenAIAdapter.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	baseURL string
	model   string
}

// WithBaseURL routes requests to an OpenAI-compatible endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithModel overrides the default model name.
func WithModel(model string) OpenAIOption {
	return func(c *openAIConfig) { c.model = model }
}

// NewOpenAIAdapter creates an adapter with the given API key and options.
func NewOpenAIAdapter(apiKey string, opts ...OpenAIOption) *OpenAIAdapter {
	cfg := openAIConfig{model: "gpt-4o-mini"}
	for _, opt := range opts {
		opt(&cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &OpenAIAdapter{
		client: openai.NewClient(reqOpts...),
		model:  cfg.model,
	}
}

// Name returns the provider name for this adapter.
func (a *OpenAIAdapter) Name() string { return "openai" }

// Complete sends a synchronous chat completion request and returns the raw
// text of the first choice.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    a.model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
