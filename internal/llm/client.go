// Package llm is the chat-completion boundary used by the pipeline stages.
package llm

import (
	"context"
	"fmt"

	"se-assistant/internal/config"
)

// Request is a single-turn completion request.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int64
	Temperature *float64
}

// Client sends one prompt and returns the model's text.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req Request) (string, error)

func (f ClientFunc) Complete(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

func (f ClientFunc) Name() string { return "func" }

// New builds the client selected by cfg.Provider.
func New(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAI(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.Endpoint,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		}), nil
	case config.ProviderAzureOpenAI:
		return NewAzureOpenAI(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.Endpoint,
			APIVersion:  cfg.APIVersion,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		}), nil
	case config.ProviderAnthropic:
		return NewAnthropic(AnthropicConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.Endpoint,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

// Preview shortens s to at most n bytes for logging.
func Preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
