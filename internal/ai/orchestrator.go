package ai

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OrchestratorOptions tunes the retry behavior of the provider chain.
type OrchestratorOptions struct {
	// BaseBackoff seeds the exponential backoff for transient failures.
	BaseBackoff time.Duration
	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration
	// MaxJitter is the upper bound of the random jitter added to each backoff.
	MaxJitter time.Duration
	// RepairBackoff is the fixed pause between schema repair attempts.
	RepairBackoff time.Duration
	// MaxRepairs bounds schema repair re-invocations per provider.
	MaxRepairs int
}

// DefaultOrchestratorOptions returns the production retry configuration.
func DefaultOrchestratorOptions() OrchestratorOptions {
	return OrchestratorOptions{
		BaseBackoff:   2 * time.Second,
		MaxBackoff:    32 * time.Second,
		MaxJitter:     time.Second,
		RepairBackoff: 500 * time.Millisecond,
		MaxRepairs:    2,
	}
}

// Orchestrator produces a schema-valid structured result from one of N ranked
// providers. Provider attempts are strictly sequential: a later provider is
// never tried before the former's retry budget is exhausted, and a failed
// provider is never re-attempted within one call.
type Orchestrator struct {
	specs  []ProviderSpec
	opts   OrchestratorOptions
	logger *zap.Logger
}

// NewOrchestrator creates an orchestrator over the ranked provider list.
func NewOrchestrator(specs []ProviderSpec, opts OrchestratorOptions, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		specs:  specs,
		opts:   opts,
		logger: logger.Named("orchestrator"),
	}
}

// Generate runs the provider cascade until one provider yields a result that
// passes validate. The validate callback returns a *SchemaError for
// repairable failures and parses the raw document on success.
func (o *Orchestrator) Generate(
	ctx context.Context, prompt string, schema any,
	validate func(raw string) (*StyleSuggestions, error),
) (*ChainResult, error) {
	var lastErr error

	for _, spec := range o.specs {
		result, err := o.tryProvider(ctx, spec, prompt, schema, validate)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		o.logger.Warn("Provider exhausted, cascading to next",
			zap.String("provider", spec.Provider.Name()),
			zap.Error(err))
	}

	if lastErr == nil {
		return nil, ErrProvidersExhausted
	}

	if ClassifyProviderError(lastErr) == KindTransient {
		return nil, fmt.Errorf("%w: %w", ErrProvidersBusy, lastErr)
	}

	return nil, fmt.Errorf("%w: %w", ErrProvidersExhausted, lastErr)
}

// tryProvider consumes one provider's attempt budget. Schema repairs and
// transient retries share the same attempt counter but use different backoff
// strategies.
func (o *Orchestrator) tryProvider(
	ctx context.Context, spec ProviderSpec, prompt string, schema any,
	validate func(raw string) (*StyleSuggestions, error),
) (*ChainResult, error) {
	var (
		lastErr       error
		repairs       int
		currentPrompt = prompt
	)

	maxAttempts := spec.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := spec.Provider.Generate(ctx, currentPrompt, schema)
		if err == nil {
			suggestions, verr := validate(raw)
			if verr == nil {
				return &ChainResult{
					Suggestions: suggestions,
					Provider:    spec.Provider.Name(),
					Repaired:    repairs > 0,
				}, nil
			}

			lastErr = verr
			if repairs >= o.opts.MaxRepairs {
				return nil, verr
			}

			repairs++
			currentPrompt = prompt + repairCorrection(verr)

			o.logger.Warn("Schema validation failed, issuing repair retry",
				zap.String("provider", spec.Provider.Name()),
				zap.Int("attempt", attempt),
				zap.Int("repair", repairs),
				zap.Error(verr))

			if err := sleepCtx(ctx, o.opts.RepairBackoff); err != nil {
				return nil, err
			}
			continue
		}

		lastErr = err
		kind := ClassifyProviderError(err)

		if kind != KindTransient {
			// Fatal failures cascade immediately, no retry
			return nil, err
		}

		if attempt == maxAttempts {
			break
		}

		delay := o.transientBackoff(attempt)
		o.logger.Warn("Transient provider failure, backing off",
			zap.String("provider", spec.Provider.Name()),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		if err := sleepCtx(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// transientBackoff computes min(base * 2^(attempt-1), max) plus random jitter.
func (o *Orchestrator) transientBackoff(attempt int) time.Duration {
	delay := o.opts.BaseBackoff << (attempt - 1)
	if delay > o.opts.MaxBackoff || delay <= 0 {
		delay = o.opts.MaxBackoff
	}

	if o.opts.MaxJitter > 0 {
		delay += rand.N(o.opts.MaxJitter)
	}

	return delay
}

// repairCorrection builds the natural-language correction appended to the
// prompt on a schema repair retry.
func repairCorrection(err error) string {
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) && len(schemaErr.MissingFields) > 0 {
		return fmt.Sprintf(
			"\n\nYour previous response was invalid: the required fields %s were missing or empty. "+
				"Respond again with the complete JSON object including every required field.",
			strings.Join(schemaErr.MissingFields, ", "),
		)
	}

	return "\n\nYour previous response was not valid JSON matching the required schema. " +
		"Respond again with only the JSON object."
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
