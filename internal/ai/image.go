package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/generative-ai-go/genai"
	"github.com/sourcegraph/conc/pool"
	"github.com/vestiapp/vesti/internal/ai/keypool"
	"github.com/vestiapp/vesti/pkg/utils"
	"go.uber.org/zap"
)

// ErrNoImage is returned when a provider response carried no image payload.
var ErrNoImage = errors.New("provider returned no image")

// ImageProvider generates one illustration URL for an outfit prompt.
type ImageProvider interface {
	Name() string
	Generate(ctx context.Context, prompt string, colors []string) (string, error)
}

// ImageCache is the prompt+color keyed cache consulted before any generation
// call. Implementations must treat failures as misses.
type ImageCache interface {
	GetImage(ctx context.Context, fingerprint string) (string, bool)
	SetImage(ctx context.Context, fingerprint, url string)
}

// FingerprintFunc derives the image cache key for a prompt and color set.
type FingerprintFunc func(prompt string, colors []string) string

// ImageStage generates one illustration per candidate outfit in parallel
// under a single wall-clock budget. Slots that miss the budget or fail every
// provider resolve to a deterministic placeholder, never an empty value.
type ImageStage struct {
	providers   []ImageProvider
	cache       ImageCache
	fingerprint FingerprintFunc
	budget      time.Duration
	logger      *zap.Logger
}

// NewImageStage creates the image stage over a ranked provider chain.
func NewImageStage(
	providers []ImageProvider, cache ImageCache, fingerprint FingerprintFunc,
	budget time.Duration, logger *zap.Logger,
) *ImageStage {
	return &ImageStage{
		providers:   providers,
		cache:       cache,
		fingerprint: fingerprint,
		budget:      budget,
		logger:      logger.Named("image_stage"),
	}
}

// GenerateAll produces one image URL per outfit. The output slice always has
// the same length and order as the input regardless of completion order.
func (s *ImageStage) GenerateAll(ctx context.Context, outfits []*CandidateOutfit) []string {
	results := make([]string, len(outfits))
	settled := make([]bool, len(outfits))

	var mu sync.Mutex
	finalized := false

	p := pool.New().WithContext(ctx)

	for i, outfit := range outfits {
		fingerprint := s.fingerprint(outfit.ImagePrompt, outfit.ColorPalette)

		// Cache hits settle immediately, no network call
		if cached, ok := s.cache.GetImage(ctx, fingerprint); ok {
			results[i] = cached
			settled[i] = true
			continue
		}

		p.Go(func(ctx context.Context) error {
			imageURL, err := s.generateOne(ctx, outfit)
			if err != nil {
				// Slot stays unsettled and resolves to a placeholder
				s.logger.Warn("Image generation failed for slot",
					zap.Int("slot", i),
					zap.Error(err))
				return nil
			}

			mu.Lock()
			if !finalized {
				results[i] = imageURL
				settled[i] = true
			}
			mu.Unlock()

			// Cache write is fire-and-forget; a failed write never fails the request
			go s.cache.SetImage(context.WithoutCancel(ctx), fingerprint, imageURL)
			return nil
		})
	}

	// Race all-settled against the stage budget. In-flight operations are not
	// force-cancelled when the timer fires; their results are discarded.
	done := make(chan struct{})
	go func() {
		_ = p.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.budget)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		s.logger.Warn("Image stage budget elapsed, assigning placeholders",
			zap.Duration("budget", s.budget))
	case <-ctx.Done():
	}

	mu.Lock()
	finalized = true
	for i := range results {
		if !settled[i] {
			results[i] = PlaceholderImageURL(outfits[i])
		}
	}
	mu.Unlock()

	return results
}

// generateOne walks the provider chain for a single outfit.
func (s *ImageStage) generateOne(ctx context.Context, outfit *CandidateOutfit) (string, error) {
	var lastErr error

	for _, provider := range s.providers {
		imageURL, err := provider.Generate(ctx, outfit.ImagePrompt, outfit.ColorPalette)
		if err == nil {
			return imageURL, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	if lastErr == nil {
		lastErr = ErrNoImage
	}
	return "", lastErr
}

// PlaceholderImageURL returns the deterministic stand-in for an outfit,
// seeded by its first palette color so placeholders stay visually distinct.
func PlaceholderImageURL(outfit *CandidateOutfit) string {
	color := "CCCCCC"
	if len(outfit.ColorPalette) > 0 {
		color = strings.TrimPrefix(outfit.ColorPalette[0], "#")
	}

	label := outfit.Title
	if label == "" {
		label = "Outfit"
	}

	return fmt.Sprintf("https://placehold.co/600x800/%s/FFFFFF?text=%s",
		color, url.QueryEscape(label))
}

// GeminiImageProvider generates illustrations with a Gemini image model,
// rotating API keys through the pool on quota failures.
type GeminiImageProvider struct {
	gemini *GeminiProvider
	keys   *keypool.Pool
	model  string
	logger *zap.Logger
}

// NewGeminiImageProvider creates the quota-aware primary image provider.
// It shares the credential pool and client cache with the text provider.
func NewGeminiImageProvider(gemini *GeminiProvider, keys *keypool.Pool, model string, logger *zap.Logger) *GeminiImageProvider {
	return &GeminiImageProvider{
		gemini: gemini,
		keys:   keys,
		model:  model,
		logger: logger.Named("gemini_image"),
	}
}

// Name implements ImageProvider.
func (p *GeminiImageProvider) Name() string { return "gemini_image" }

// Generate implements ImageProvider, returning a data URL built from the
// model's inline image payload.
func (p *GeminiImageProvider) Generate(ctx context.Context, prompt string, colors []string) (string, error) {
	fullPrompt := prompt
	if len(colors) > 0 {
		fullPrompt += " Color palette: " + strings.Join(colors, ", ") + "."
	}

	generate := func() (string, error) {
		for {
			key, ok := p.keys.NextAvailable()
			if !ok {
				// Exhausted pool is permanent for this attempt; retrying
				// cannot produce a key
				return "", backoff.Permanent(ErrKeyPoolEmpty)
			}

			client, err := p.gemini.clientFor(ctx, key)
			if err != nil {
				return "", fmt.Errorf("failed to create gemini client: %w", err)
			}

			model := client.GenerativeModel(p.model)
			resp, err := model.GenerateContent(ctx, genai.Text(fullPrompt))
			if err != nil {
				if IsQuotaError(err) {
					p.logger.Warn("Image key hit quota, rotating", zap.Error(err))
					p.keys.MarkCurrentExhausted()
					if p.keys.HasAvailable() {
						continue
					}
					return "", backoff.Permanent(ErrKeyPoolEmpty)
				}
				return "", fmt.Errorf("gemini image request failed: %w", err)
			}

			p.keys.IncrementUsage()
			return extractImageDataURL(resp)
		}
	}

	return utils.WithRetry(ctx, generate, utils.GetImageRetryOptions())
}

// extractImageDataURL finds the first inline image blob in the response.
func extractImageDataURL(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrNoImage
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if blob, ok := part.(genai.Blob); ok && len(blob.Data) > 0 {
			mime := blob.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(blob.Data), nil
		}
	}

	return "", ErrNoImage
}

// PollinationsProvider is the free, unlimited fallback. It derives a hosted
// render URL from the prompt; the render happens on first fetch, so no API
// call or credential is needed here.
type PollinationsProvider struct{}

// NewPollinationsProvider creates the fallback image provider.
func NewPollinationsProvider() *PollinationsProvider { return &PollinationsProvider{} }

// Name implements ImageProvider.
func (p *PollinationsProvider) Name() string { return "pollinations" }

// Generate implements ImageProvider.
func (p *PollinationsProvider) Generate(_ context.Context, prompt string, colors []string) (string, error) {
	if prompt == "" {
		return "", ErrNoImage
	}

	full := prompt
	if len(colors) > 0 {
		full += " using colors " + strings.Join(colors, ", ")
	}

	return "https://image.pollinations.ai/prompt/" + url.PathEscape(full) + "?width=600&height=800&nologo=true", nil
}
