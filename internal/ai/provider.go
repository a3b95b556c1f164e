package ai

import "context"

// TextProvider generates a raw JSON document for a prompt under a fixed
// generation configuration. Implementations must surface enough information
// in returned errors for ClassifyProviderError to work.
type TextProvider interface {
	Name() string
	Generate(ctx context.Context, prompt string, schema any) (string, error)
}

// ProviderSpec pairs a provider with its attempt budget. Budgets are
// provider-specific: the primary typically gets more attempts than fallbacks.
type ProviderSpec struct {
	Provider    TextProvider
	MaxAttempts int
}

// ChainResult is a successful orchestrator outcome tagged with the provider
// that produced it. The tag feeds downstream analytics, not correctness.
type ChainResult struct {
	Suggestions *StyleSuggestions
	Provider    string
	Repaired    bool
}
