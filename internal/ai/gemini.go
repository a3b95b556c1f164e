package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"github.com/vestiapp/vesti/internal/ai/keypool"
	"github.com/vestiapp/vesti/pkg/utils"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// ErrKeyPoolEmpty signals that every credential for this provider is
// exhausted. Classified as fatal so the orchestrator cascades immediately
// instead of retrying the pool.
var ErrKeyPoolEmpty = errors.New("all API keys for provider are consumed")

// GeminiProvider is the primary text provider. It rotates API keys through
// the pool on quota failures and guards calls with a circuit breaker.
type GeminiProvider struct {
	keys    *keypool.Pool
	model   string
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGeminiProvider creates the Gemini-backed text provider.
func NewGeminiProvider(keys *keypool.Pool, model string, logger *zap.Logger) *GeminiProvider {
	return &GeminiProvider{
		keys:    keys,
		model:   model,
		breaker: gobreaker.NewCircuitBreaker(breakerSettings("gemini", logger)),
		logger:  logger.Named("gemini"),
		clients: make(map[string]*genai.Client),
	}
}

// Name implements TextProvider.
func (p *GeminiProvider) Name() string { return "gemini" }

// Generate implements TextProvider. On a quota failure the current key is
// marked exhausted and the next usable key is tried within the same call.
func (p *GeminiProvider) Generate(ctx context.Context, prompt string, schema any) (string, error) {
	for {
		key, ok := p.keys.NextAvailable()
		if !ok {
			return "", ErrKeyPoolEmpty
		}

		client, err := p.clientFor(ctx, key)
		if err != nil {
			return "", fmt.Errorf("failed to create gemini client: %w", err)
		}

		model := client.GenerativeModel(p.model)
		model.ResponseMIMEType = "application/json"
		model.Temperature = utils.Ptr(float32(0.8))
		model.MaxOutputTokens = utils.Ptr(int32(8192))

		if schema != nil {
			if raw, merr := sonic.MarshalString(schema); merr == nil {
				model.SystemInstruction = genai.NewUserContent(genai.Text(
					"Respond only with a JSON object matching this schema:\n" + raw,
				))
			}
		}

		result, err := p.breaker.Execute(func() (any, error) {
			return model.GenerateContent(ctx, genai.Text(prompt))
		})
		if err != nil {
			if IsQuotaError(err) {
				p.logger.Warn("Gemini key hit quota, rotating", zap.Error(err))
				p.keys.MarkCurrentExhausted()
				if p.keys.HasAvailable() {
					continue
				}
				return "", ErrKeyPoolEmpty
			}
			return "", fmt.Errorf("gemini request failed: %w", err)
		}

		p.keys.IncrementUsage()

		text, err := extractText(result.(*genai.GenerateContentResponse))
		if err != nil {
			return "", err
		}
		return text, nil
	}
}

// clientFor lazily builds one genai client per credential.
func (p *GeminiProvider) clientFor(ctx context.Context, key string) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, exists := p.clients[key]; exists {
		return client, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, err
	}

	p.clients[key] = client
	return client, nil
}

// Close releases all cached genai clients.
func (p *GeminiProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, client := range p.clients {
		_ = client.Close()
		delete(p.clients, key)
	}
}

// extractText concatenates the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out += string(text)
		}
	}

	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

// breakerSettings builds circuit breaker settings shared by all providers.
func breakerSettings(name string, logger *zap.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(_ string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
}
