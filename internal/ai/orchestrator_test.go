package ai_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vestiapp/vesti/internal/ai"
	"go.uber.org/zap"
)

// fakeProvider replays a scripted sequence of responses and records the
// prompts it was called with.
type fakeProvider struct {
	mu        sync.Mutex
	name      string
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(_ context.Context, prompt string, _ any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.calls
	f.calls++
	f.prompts = append(f.prompts, prompt)

	if idx < len(f.errs) && f.errs[idx] != nil {
		return "", f.errs[idx]
	}
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	return "", errors.New("script exhausted")
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testOptions() ai.OrchestratorOptions {
	return ai.OrchestratorOptions{
		BaseBackoff:   time.Millisecond,
		MaxBackoff:    4 * time.Millisecond,
		RepairBackoff: 0,
		MaxRepairs:    2,
	}
}

const validDoc = `{"outfitRecommendations":[{"title":"Weekend Layers","description":"ok","colorPalette":["#112233"],"styleType":"casual","occasion":"brunch","items":["tee"],"imagePrompt":"p"}]}`

func passthroughValidate(raw string) (*ai.StyleSuggestions, error) {
	if raw == "bad" {
		return nil, &ai.SchemaError{MissingFields: []string{"outfitRecommendations[0].items"}}
	}

	var suggestions ai.StyleSuggestions
	if err := sonic.Unmarshal([]byte(raw), &suggestions); err != nil {
		return nil, &ai.SchemaError{Cause: err}
	}
	return &suggestions, nil
}

func TestGenerateFirstProviderSuccess(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{name: "primary", responses: []string{validDoc}}
	orchestrator := ai.NewOrchestrator([]ai.ProviderSpec{
		{Provider: provider, MaxAttempts: 3},
	}, testOptions(), zap.NewNop())

	result, err := orchestrator.Generate(t.Context(), "prompt", nil, passthroughValidate)
	require.NoError(t, err)

	assert.Equal(t, "primary", result.Provider)
	assert.False(t, result.Repaired)
	assert.Len(t, result.Suggestions.OutfitRecommendations, 1)
	assert.Equal(t, 1, provider.callCount())
}

func TestGenerateCascadesOnFatalError(t *testing.T) {
	t.Parallel()

	primary := &fakeProvider{name: "primary", errs: []error{errors.New("invalid api key")}}
	secondary := &fakeProvider{name: "secondary", responses: []string{validDoc}}
	orchestrator := ai.NewOrchestrator([]ai.ProviderSpec{
		{Provider: primary, MaxAttempts: 3},
		{Provider: secondary, MaxAttempts: 1},
	}, testOptions(), zap.NewNop())

	result, err := orchestrator.Generate(t.Context(), "prompt", nil, passthroughValidate)
	require.NoError(t, err)

	// Fatal errors must not consume the remaining attempt budget
	assert.Equal(t, 1, primary.callCount())
	assert.Equal(t, "secondary", result.Provider)
}

func TestGenerateRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		name:      "primary",
		errs:      []error{errors.New("429 too many requests"), errors.New("service unavailable"), nil},
		responses: []string{"", "", validDoc},
	}
	orchestrator := ai.NewOrchestrator([]ai.ProviderSpec{
		{Provider: provider, MaxAttempts: 3},
	}, testOptions(), zap.NewNop())

	result, err := orchestrator.Generate(t.Context(), "prompt", nil, passthroughValidate)
	require.NoError(t, err)

	assert.Equal(t, 3, provider.callCount())
	assert.Equal(t, "primary", result.Provider)
}

func TestGenerateRepairsSchemaFailure(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{name: "primary", responses: []string{"bad", validDoc}}
	orchestrator := ai.NewOrchestrator([]ai.ProviderSpec{
		{Provider: provider, MaxAttempts: 5},
	}, testOptions(), zap.NewNop())

	result, err := orchestrator.Generate(t.Context(), "prompt", nil, passthroughValidate)
	require.NoError(t, err)

	assert.True(t, result.Repaired)
	require.Equal(t, 2, provider.callCount())

	// The repair retry names the missing fields in the prompt
	assert.Equal(t, "prompt", provider.prompts[0])
	assert.Contains(t, provider.prompts[1], "outfitRecommendations[0].items")
}

func TestGenerateRepairBudgetExhausted(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{name: "primary", responses: []string{"bad", "bad", "bad", "bad", "bad"}}
	orchestrator := ai.NewOrchestrator([]ai.ProviderSpec{
		{Provider: provider, MaxAttempts: 5},
	}, testOptions(), zap.NewNop())

	_, err := orchestrator.Generate(t.Context(), "prompt", nil, passthroughValidate)
	require.Error(t, err)

	assert.ErrorIs(t, err, ai.ErrProvidersExhausted)
	// Initial attempt plus MaxRepairs re-invocations
	assert.Equal(t, 3, provider.callCount())
}

func TestGenerateBusyWhenLastErrorTransient(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		name: "primary",
		errs: []error{errors.New("503 unavailable"), errors.New("503 unavailable")},
	}
	orchestrator := ai.NewOrchestrator([]ai.ProviderSpec{
		{Provider: provider, MaxAttempts: 2},
	}, testOptions(), zap.NewNop())

	_, err := orchestrator.Generate(t.Context(), "prompt", nil, passthroughValidate)
	require.Error(t, err)

	assert.ErrorIs(t, err, ai.ErrProvidersBusy)
	assert.Equal(t, 2, provider.callCount())
}

func TestGenerateNeverRevisitsFailedProvider(t *testing.T) {
	t.Parallel()

	primary := &fakeProvider{
		name: "primary",
		errs: []error{errors.New("rate limit exceeded"), errors.New("rate limit exceeded")},
	}
	secondary := &fakeProvider{name: "secondary", errs: []error{errors.New("invalid request")}}
	orchestrator := ai.NewOrchestrator([]ai.ProviderSpec{
		{Provider: primary, MaxAttempts: 2},
		{Provider: secondary, MaxAttempts: 3},
	}, testOptions(), zap.NewNop())

	_, err := orchestrator.Generate(t.Context(), "prompt", nil, passthroughValidate)
	require.Error(t, err)

	assert.Equal(t, 2, primary.callCount())
	assert.Equal(t, 1, secondary.callCount())
}

func TestClassifyProviderError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ai.ErrorKind
	}{
		{name: "rate limit", err: errors.New("429 Too Many Requests"), want: ai.KindTransient},
		{name: "quota", err: errors.New("quota exceeded for project"), want: ai.KindTransient},
		{name: "timeout", err: errors.New("context deadline exceeded"), want: ai.KindTransient},
		{name: "schema", err: &ai.SchemaError{MissingFields: []string{"title"}}, want: ai.KindSchema},
		{name: "auth", err: errors.New("invalid api key"), want: ai.KindFatal},
		{name: "wrapped transient", err: errors.New("request failed: server overloaded"), want: ai.KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ai.ClassifyProviderError(tt.err))
		})
	}
}

func TestSchemaErrorMessage(t *testing.T) {
	t.Parallel()

	err := &ai.SchemaError{MissingFields: []string{"title", "items"}}
	assert.True(t, strings.Contains(err.Error(), "title"))
	assert.True(t, strings.Contains(err.Error(), "items"))
}
