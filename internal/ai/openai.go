package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sony/gobreaker"
	"github.com/vestiapp/vesti/internal/setup/config"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// OpenAIProvider is the secondary text provider, talking to any
// OpenAI-compatible endpoint. Concurrency is capped by a semaphore and calls
// run through a circuit breaker.
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	breaker   *gobreaker.CircuitBreaker
	semaphore *semaphore.Weighted
	logger    *zap.Logger
}

// NewOpenAIProvider creates the OpenAI-backed text provider.
func NewOpenAIProvider(cfg *config.OpenAI, logger *zap.Logger) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(90 * time.Second),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)

	return &OpenAIProvider{
		client:    &client,
		model:     cfg.Model,
		breaker:   gobreaker.NewCircuitBreaker(breakerSettings("openai", logger)),
		semaphore: semaphore.NewWeighted(cfg.MaxConcurrent),
		logger:    logger.Named("openai"),
	}
}

// Name implements TextProvider.
func (p *OpenAIProvider) Name() string { return "openai" }

// Generate implements TextProvider using a strict JSON-schema response format.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, schema any) (string, error) {
	if err := p.semaphore.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("failed to acquire semaphore: %w", err)
	}
	defer p.semaphore.Release(1)

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:       p.model,
		Temperature: openai.Float(0.8),
	}

	if schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "styleSuggestions",
					Description: openai.String("Ranked outfit suggestions"),
					Schema:      schema,
					Strict:      openai.Bool(true),
				},
			},
		}
	}

	result, err := p.breaker.Execute(func() (any, error) {
		return p.client.Chat.Completions.New(ctx, params)
	})
	if err != nil {
		p.logger.Warn("Failed to make request", zap.Error(err))
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	resp := result.(*openai.ChatCompletion)
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}

	return resp.Choices[0].Message.Content, nil
}
