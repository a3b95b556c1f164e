package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/vestiapp/vesti/pkg/utils"
	"go.uber.org/zap"
)

// StylistSystemPrompt instructs the model to act as a personal stylist and
// return structured outfit suggestions.
const StylistSystemPrompt = `You are a professional fashion stylist. Based on the wearer's context
and the colors extracted from their photo, propose complete outfit combinations.

Rules:
1. Respond with a JSON object containing an "outfitRecommendations" array.
2. Every outfit needs a title, a one-sentence description, a color palette of
   3-5 hex colors in #RRGGBB form, a styleType, an occasion, a list of
   concrete clothing items, and an imagePrompt suitable for an illustration
   model (full-body outfit on a plain background, no faces).
3. Colors must harmonize with the extracted photo colors and suit the skin tone.
4. Items must be realistic, purchasable garments, not abstract concepts.
5. Vary silhouettes and styles across the outfits; do not repeat one formula.`

// requiredOutfitFields maps JSON field names to their accessors for schema
// validation. Missing names feed the repair correction verbatim.
var requiredOutfitFields = []struct {
	name  string
	empty func(*CandidateOutfit) bool
}{
	{"title", func(o *CandidateOutfit) bool { return o.Title == "" }},
	{"description", func(o *CandidateOutfit) bool { return o.Description == "" }},
	{"colorPalette", func(o *CandidateOutfit) bool { return len(o.ColorPalette) == 0 }},
	{"styleType", func(o *CandidateOutfit) bool { return o.StyleType == "" }},
	{"occasion", func(o *CandidateOutfit) bool { return o.Occasion == "" }},
	{"items", func(o *CandidateOutfit) bool { return len(o.Items) == 0 }},
	{"imagePrompt", func(o *CandidateOutfit) bool { return o.ImagePrompt == "" }},
}

// StyleSuggestionsSchema is the JSON schema for the structured response.
var StyleSuggestionsSchema = utils.GenerateSchema[StyleSuggestions]()

// Stylist turns a style context into validated candidate outfits through the
// provider chain.
type Stylist struct {
	orchestrator *Orchestrator
	logger       *zap.Logger
}

// NewStylist creates a Stylist over the given orchestrator.
func NewStylist(orchestrator *Orchestrator, logger *zap.Logger) *Stylist {
	return &Stylist{
		orchestrator: orchestrator,
		logger:       logger.Named("stylist"),
	}
}

// Suggest generates candidate outfits for the context. The returned result is
// tagged with the provider that produced it.
func (s *Stylist) Suggest(ctx context.Context, style *StyleContext) (*ChainResult, error) {
	count := style.Count
	if count <= 0 {
		count = 3
	}

	prompt := buildStylePrompt(style, count)

	result, err := s.orchestrator.Generate(ctx, prompt, StyleSuggestionsSchema, func(raw string) (*StyleSuggestions, error) {
		return validateSuggestions(raw, count)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Generated outfit candidates",
		zap.String("provider", result.Provider),
		zap.Bool("repaired", result.Repaired),
		zap.Int("outfits", len(result.Suggestions.OutfitRecommendations)))

	return result, nil
}

// buildStylePrompt renders the user context into the generation prompt.
func buildStylePrompt(style *StyleContext, count int) string {
	var b strings.Builder

	b.WriteString(StylistSystemPrompt)
	b.WriteString(fmt.Sprintf("\n\nPropose exactly %d outfits for this wearer:\n", count))
	b.WriteString(fmt.Sprintf("- Occasion: %s\n", style.Occasion))

	if style.Gender != "" {
		b.WriteString(fmt.Sprintf("- Gender: %s\n", style.Gender))
	}
	if style.Weather != "" {
		b.WriteString(fmt.Sprintf("- Weather: %s\n", style.Weather))
	}
	if style.Genre != "" {
		b.WriteString(fmt.Sprintf("- Preferred style genre: %s\n", style.Genre))
	}
	if style.SkinTone != "" {
		b.WriteString(fmt.Sprintf("- Skin tone: %s\n", style.SkinTone))
	}
	if len(style.Colors) > 0 {
		b.WriteString(fmt.Sprintf("- Colors extracted from photo: %s\n", strings.Join(style.Colors, ", ")))
	}

	return b.String()
}

// validateSuggestions parses and validates the raw provider output. Invalid
// documents return a *SchemaError whose missing fields drive the repair loop.
func validateSuggestions(raw string, count int) (*StyleSuggestions, error) {
	var suggestions StyleSuggestions
	if err := sonic.Unmarshal([]byte(stripCodeFence(raw)), &suggestions); err != nil {
		return nil, &SchemaError{Cause: err}
	}

	if len(suggestions.OutfitRecommendations) == 0 {
		return nil, &SchemaError{MissingFields: []string{"outfitRecommendations"}}
	}

	var missing []string
	for i := range suggestions.OutfitRecommendations {
		outfit := &suggestions.OutfitRecommendations[i]

		// Normalize the palette to uppercase #RRGGBB, dropping junk values
		normalized := outfit.ColorPalette[:0]
		for _, color := range outfit.ColorPalette {
			if hex, ok := utils.NormalizeHexColor(color); ok {
				normalized = append(normalized, hex)
			}
		}
		outfit.ColorPalette = normalized

		for _, field := range requiredOutfitFields {
			if field.empty(outfit) {
				missing = append(missing, fmt.Sprintf("outfitRecommendations[%d].%s", i, field.name))
			}
		}
	}

	if len(missing) > 0 {
		return nil, &SchemaError{MissingFields: missing}
	}

	// More outfits than asked for is not a schema violation, just excess
	if len(suggestions.OutfitRecommendations) > count {
		suggestions.OutfitRecommendations = suggestions.OutfitRecommendations[:count]
	}

	return &suggestions, nil
}

// stripCodeFence removes a markdown code fence some models wrap around JSON.
func stripCodeFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}

	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")

	return strings.TrimSpace(raw)
}
