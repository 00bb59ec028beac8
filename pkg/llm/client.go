package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/lorekeep/lorekeep-engine/pkg/retry"
)

// Config holds configuration for creating an LLM client.
type Config struct {
	Provider string // "openai" or "anthropic"
	Endpoint string // Base URL, e.g. "https://api.openai.com/v1"
	Model    string // Model name
	APIKey   string // Optional for local OpenAI-compatible endpoints
	Timeout  time.Duration
}

// NewClient creates an LLM client for the configured provider. The client
// retries transient failures (rate limits, 5xx, connection resets) with
// backoff before surfacing an error.
func NewClient(cfg *Config, logger *zap.Logger) (LLMClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	var inner LLMClient
	var err error
	switch cfg.Provider {
	case "", "openai":
		inner, err = newOpenAIClient(cfg, logger)
	case "anthropic":
		inner, err = newAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return &retryingClient{inner: inner, cfg: retry.DefaultConfig()}, nil
}

// retryingClient wraps a provider client with transient-failure retries.
type retryingClient struct {
	inner LLMClient
	cfg   *retry.Config
}

func (c *retryingClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error) {
	return retry.DoWithResult(ctx, c.cfg, func() (string, error) {
		return c.inner.GenerateResponse(ctx, prompt, systemMessage, temperature)
	})
}

func (c *retryingClient) GetModel() string {
	return c.inner.GetModel()
}

var _ LLMClient = (*retryingClient)(nil)

// openAIClient talks to any OpenAI-compatible endpoint.
type openAIClient struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

func newOpenAIClient(cfg *Config, logger *zap.Logger) (*openAIClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	return &openAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		logger: logger.Named("llm"),
	}, nil
}

func (c *openAIClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}

	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)),
		zap.Float64("temperature", temperature))

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(temperature),
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", ClassifyError(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	c.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return resp.Choices[0].Message.Content, nil
}

func (c *openAIClient) GetModel() string {
	return c.model
}

var _ LLMClient = (*openAIClient)(nil)
