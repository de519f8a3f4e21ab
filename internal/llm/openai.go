package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIConfig configures the OpenAI and Azure OpenAI clients.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	APIVersion  string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// OpenAIClient calls the chat completions API.
type OpenAIClient struct {
	client *openai.Client
	config OpenAIConfig
	name   string
}

// NewOpenAI creates a client for api.openai.com or a compatible endpoint.
func NewOpenAI(cfg OpenAIConfig, opts ...option.RequestOption) *OpenAIClient {
	base := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(append(base, opts...)...)
	return &OpenAIClient{client: &client, config: cfg, name: "openai"}
}

// NewAzureOpenAI creates a client for an Azure OpenAI deployment. Model is the
// deployment name.
func NewAzureOpenAI(cfg OpenAIConfig, opts ...option.RequestOption) *OpenAIClient {
	base := []option.RequestOption{
		azure.WithEndpoint(cfg.BaseURL, cfg.APIVersion),
		azure.WithAPIKey(cfg.APIKey),
	}
	client := openai.NewClient(append(base, opts...)...)
	return &OpenAIClient{client: &client, config: cfg, name: "azure-openai"}
}

func (c *OpenAIClient) Name() string { return c.name + "-" + c.config.Model }

// Complete sends a system and user message and returns the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.config.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.Prompt),
		},
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(maxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	} else if c.config.Temperature > 0 {
		params.Temperature = openai.Float(c.config.Temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", c.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New(c.name + " completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
