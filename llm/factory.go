package llm

import (
	"context"

	"github.com/m4xw311/quill/config"
	"github.com/m4xw311/quill/errors"
)

// Factory builds a fresh provider for one session. An empty model selects
// the configured one.
type Factory func(ctx context.Context, model string) (Provider, error)

var defaultModels = map[string]string{
	"openai":    "gpt-5-mini",
	"anthropic": "claude-sonnet-4-20250514",
	"gemini":    "gemini-2.5-flash",
	"bedrock":   "anthropic.claude-3-5-sonnet-20240620-v1:0",
	"mock":      "mock",
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(backend string) string { return defaultModels[backend] }

// ModelName returns the model top-level sessions use.
func ModelName(s *config.Settings) string {
	if s.Model != "" {
		return s.Model
	}
	return defaultModels[s.Backend]
}

// NewFactory returns a Factory for the backend and calling convention in s.
// Every provider it builds uses the same convention.
func NewFactory(s *config.Settings) (Factory, error) {
	if _, ok := defaultModels[s.Backend]; !ok {
		return nil, errors.NewConfigError("llm", "unknown client %q (want openai, anthropic, gemini, bedrock or mock)", s.Backend)
	}
	backend, api, effort, configured := s.Backend, s.API, s.ReasoningEffort, s.Model

	return func(ctx context.Context, model string) (Provider, error) {
		if model == "" {
			model = configured
		}
		if model == "" {
			model = defaultModels[backend]
		}
		if api == config.APIResponses {
			r, err := NewResponsesAdapter(model, effort)
			if err != nil {
				return nil, err
			}
			return r, nil
		}

		var chat ChatBackend
		var err error
		switch backend {
		case "openai":
			chat, err = NewOpenAIChat(model)
		case "anthropic":
			chat, err = NewAnthropicChat(model)
		case "gemini":
			chat, err = NewGeminiChat(ctx, model)
		case "bedrock":
			chat, err = NewBedrockChat(ctx, model)
		case "mock":
			chat = &MockChat{}
		}
		if err != nil {
			return nil, err
		}
		return NewCompletionAdapter(chat), nil
	}, nil
}
