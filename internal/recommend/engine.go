package recommend

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"github.com/vestiapp/vesti/internal/ai"
	"github.com/vestiapp/vesti/internal/cache"
	"github.com/vestiapp/vesti/internal/recommend/repetition"
	"github.com/vestiapp/vesti/internal/rest/middleware/ratelimit"
	"github.com/vestiapp/vesti/pkg/utils"
	"go.uber.org/zap"
)

// backgroundWriteTimeout bounds fire-and-forget cache and tracker writes.
const backgroundWriteTimeout = 5 * time.Second

// maxOutfitCount caps how many outfits one request may ask for.
const maxOutfitCount = 6

// cachedPayload is what the shared cache tiers store: enriched outfits before
// any personalization. Match fields are derived per request so one user's
// scores never leak into another's cache hit.
type cachedPayload struct {
	Outfits  []EnrichedOutfit `json:"outfits"`
	Provider string           `json:"provider"`
}

// Engine runs the full recommendation pipeline: validation, rate limiting,
// the cache tiers, generation, enrichment and personalization.
type Engine struct {
	stylist     *ai.Stylist
	images      *ai.ImageStage
	store       *cache.Store
	memory      *utils.TTLMap[string, []byte]
	repetition  *repetition.Store
	scorer      *Scorer
	diversifier *Diversifier
	limiter     *ratelimit.Limiter
	prefs       PreferenceStore
	tracker     InteractionTracker
	shopping    ShoppingSearcher
	outfitCount int
	logger      *zap.Logger
}

// EngineOptions wires the engine's collaborators. Prefs, Tracker and Shopping
// are optional; the pipeline degrades gracefully without them.
type EngineOptions struct {
	Stylist     *ai.Stylist
	Images      *ai.ImageStage
	Store       *cache.Store
	MemoryTTL   time.Duration
	Repetition  *repetition.Store
	Scorer      *Scorer
	Diversifier *Diversifier
	Limiter     *ratelimit.Limiter
	Prefs       PreferenceStore
	Tracker     InteractionTracker
	Shopping    ShoppingSearcher
	OutfitCount int
	Logger      *zap.Logger
}

// NewEngine creates the recommendation engine.
func NewEngine(opts EngineOptions) *Engine {
	outfitCount := opts.OutfitCount
	if outfitCount <= 0 {
		outfitCount = 3
	}

	return &Engine{
		stylist:     opts.Stylist,
		images:      opts.Images,
		store:       opts.Store,
		memory:      utils.NewTTLMap[string, []byte](opts.MemoryTTL),
		repetition:  opts.Repetition,
		scorer:      opts.Scorer,
		diversifier: opts.Diversifier,
		limiter:     opts.Limiter,
		prefs:       opts.Prefs,
		tracker:     opts.Tracker,
		shopping:    opts.Shopping,
		outfitCount: outfitCount,
		logger:      opts.Logger.Named("engine"),
	}
}

// Recommend runs one request through the pipeline.
func (e *Engine) Recommend(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	if err := e.validate(req); err != nil {
		return nil, err
	}

	if decision := e.limiter.Check(req.Identity); !decision.Allowed {
		return nil, &RateLimitError{ResetAt: decision.ResetAt}
	}

	photoHash := cache.HashPhoto(req.Photo)

	// Dedup: the same user re-uploading the same photo gets their prior
	// response back verbatim, no budget or provider spend.
	if req.UserID != "" {
		if payload, ok := e.store.GetDedup(ctx, req.UserID, photoHash); ok {
			var resp Response
			if err := sonic.Unmarshal(payload, &resp); err == nil {
				resp.Cached = true
				resp.PerformanceMs = time.Since(start).Milliseconds()
				return &resp, nil
			}
		}
	}

	fingerprint := cache.FingerprintRequest(
		photoHash, req.Occasion, req.Gender, req.Weather, req.Genre, req.SkinTone)

	payload, cached := e.lookupCached(ctx, fingerprint)
	if !cached {
		var err error
		payload, err = e.generate(ctx, req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrTimedOut
			}
			return nil, err
		}

		e.writeCached(ctx, fingerprint, payload)
	}

	resp := e.personalize(ctx, req, payload)
	resp.Cached = cached
	resp.PerformanceMs = time.Since(start).Milliseconds()

	e.finishRequest(ctx, req, photoHash, resp)

	return resp, nil
}

// validate rejects malformed requests before any budget is spent. Colors are
// normalized in place; unparsable values are dropped rather than rejected.
func (e *Engine) validate(req *Request) error {
	req.Occasion = utils.CompressAllWhitespace(req.Occasion)
	req.Weather = utils.CompressAllWhitespace(req.Weather)
	req.Gender = utils.CompressAllWhitespace(req.Gender)
	req.Genre = utils.CompressAllWhitespace(req.Genre)
	req.SkinTone = utils.CompressAllWhitespace(req.SkinTone)

	if req.Identity == "" {
		return &ValidationError{Field: "identity", Message: "is required"}
	}
	if len(req.Photo) == 0 {
		return &ValidationError{Field: "photo", Message: "is required"}
	}
	if req.Occasion == "" {
		return &ValidationError{Field: "occasion", Message: "is required"}
	}
	if req.Count <= 0 {
		req.Count = e.outfitCount
	}
	if req.Count > maxOutfitCount {
		req.Count = maxOutfitCount
	}

	normalized := req.Colors[:0]
	for _, color := range req.Colors {
		if hex, ok := utils.NormalizeHexColor(color); ok {
			normalized = append(normalized, hex)
		}
	}
	req.Colors = normalized

	return nil
}

// lookupCached checks the in-process tier, then the shared tier. A shared hit
// is promoted into the in-process tier.
func (e *Engine) lookupCached(ctx context.Context, fingerprint string) (*cachedPayload, bool) {
	decode := func(raw []byte) (*cachedPayload, bool) {
		var payload cachedPayload
		if err := sonic.Unmarshal(raw, &payload); err != nil {
			e.logger.Warn("Discarding undecodable cache entry", zap.Error(err))
			return nil, false
		}
		return &payload, true
	}

	if raw, ok := e.memory.Get(fingerprint); ok {
		if payload, ok := decode(raw); ok {
			return payload, true
		}
	}

	if raw, ok := e.store.GetResponse(ctx, fingerprint); ok {
		if payload, ok := decode(raw); ok {
			e.memory.Set(fingerprint, raw)
			return payload, true
		}
	}

	return nil, false
}

// writeCached stores a fresh payload in both shared tiers, fire-and-forget.
func (e *Engine) writeCached(ctx context.Context, fingerprint string, payload *cachedPayload) {
	raw, err := sonic.Marshal(payload)
	if err != nil {
		e.logger.Warn("Failed to marshal cache payload", zap.Error(err))
		return
	}

	e.memory.Set(fingerprint, raw)

	go func() {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundWriteTimeout)
		defer cancel()
		e.store.SetResponse(writeCtx, fingerprint, raw)
	}()
}

// generate runs the provider chain, then enriches candidates with images and
// shopping links in parallel.
func (e *Engine) generate(ctx context.Context, req *Request) (*cachedPayload, error) {
	result, err := e.stylist.Suggest(ctx, &ai.StyleContext{
		Colors:   req.Colors,
		SkinTone: req.SkinTone,
		Occasion: req.Occasion,
		Weather:  req.Weather,
		Gender:   req.Gender,
		Genre:    req.Genre,
		Count:    req.Count,
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]*ai.CandidateOutfit, len(result.Suggestions.OutfitRecommendations))
	for i := range result.Suggestions.OutfitRecommendations {
		candidates[i] = &result.Suggestions.OutfitRecommendations[i]
	}

	imageURLs := make([]string, len(candidates))
	links := make([]ShoppingLinks, len(candidates))

	p := pool.New().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		imageURLs = e.images.GenerateAll(ctx, candidates)
		return nil
	})
	p.Go(func(ctx context.Context) error {
		for i, candidate := range candidates {
			links[i] = e.deriveLinks(ctx, candidate, req.Gender)
		}
		return nil
	})
	_ = p.Wait()

	outfits := make([]EnrichedOutfit, len(candidates))
	for i, candidate := range candidates {
		outfits[i] = EnrichedOutfit{
			Title:         candidate.Title,
			Description:   candidate.Description,
			ColorPalette:  candidate.ColorPalette,
			StyleType:     candidate.StyleType,
			Occasion:      candidate.Occasion,
			Items:         candidate.Items,
			ImageURL:      imageURLs[i],
			ShoppingLinks: links[i],
		}
	}

	return &cachedPayload{Outfits: outfits, Provider: result.Provider}, nil
}

// deriveLinks asks the shopping searcher for links, degrading to empty links
// when it is absent or failing.
func (e *Engine) deriveLinks(ctx context.Context, outfit *ai.CandidateOutfit, gender string) ShoppingLinks {
	if e.shopping == nil {
		return ShoppingLinks{}
	}

	links, err := e.shopping.DeriveLinks(ctx, outfit, gender)
	if err != nil {
		e.logger.Debug("Shopping link derivation failed",
			zap.String("outfit", outfit.Title),
			zap.Error(err))
		return ShoppingLinks{}
	}

	return links
}

// personalize turns a cached payload into the final response. Anonymous
// requests pass outfits through in provider order; identified requests are
// filtered, scored and diversified.
func (e *Engine) personalize(ctx context.Context, req *Request, payload *cachedPayload) *Response {
	resp := &Response{
		Success:          true,
		RecommendationID: uuid.New().String(),
		Provider:         payload.Provider,
	}

	if req.UserID == "" {
		n := min(req.Count, len(payload.Outfits))
		resp.Outfits = payload.Outfits[:n]
		return resp
	}

	profile, blocklist := e.loadPreferences(ctx, req.UserID)
	recent := e.repetition.Recent(ctx, req.UserID)

	now := time.Now()
	results := make([]*MatchResult, 0, len(payload.Outfits))
	for i := range payload.Outfits {
		enriched := &payload.Outfits[i]
		outfit := &ai.CandidateOutfit{
			Title:        enriched.Title,
			Description:  enriched.Description,
			ColorPalette: enriched.ColorPalette,
			StyleType:    enriched.StyleType,
			Occasion:     enriched.Occasion,
			Items:        enriched.Items,
		}

		if e.scorer.Excluded(outfit, blocklist, now) {
			continue
		}

		score, explanation := e.scorer.Score(outfit, profile, blocklist, recent)
		results = append(results, &MatchResult{
			Outfit:      outfit,
			ImageURL:    enriched.ImageURL,
			Score:       score,
			Category:    e.diversifier.Categorize(score),
			Explanation: explanation,
		})
	}

	patternLocked := e.diversifier.PatternLocked(recent)
	selected := e.diversifier.Select(results, req.Count, patternLocked)

	linksByTitle := make(map[string]ShoppingLinks, len(payload.Outfits))
	for _, enriched := range payload.Outfits {
		linksByTitle[enriched.Title] = enriched.ShoppingLinks
	}

	resp.Outfits = make([]EnrichedOutfit, 0, len(selected))
	for _, match := range selected {
		category := match.Category
		resp.Outfits = append(resp.Outfits, EnrichedOutfit{
			Title:         match.Outfit.Title,
			Description:   match.Outfit.Description,
			ColorPalette:  match.Outfit.ColorPalette,
			StyleType:     match.Outfit.StyleType,
			Occasion:      match.Outfit.Occasion,
			Items:         match.Outfit.Items,
			ImageURL:      match.ImageURL,
			ShoppingLinks: linksByTitle[match.Outfit.Title],
			MatchScore:    utils.Ptr(match.Score),
			MatchCategory: &category,
			Explanation:   match.Explanation,
		})
	}

	return resp
}

// loadPreferences fetches the profile and blocklists, degrading to a neutral
// profile and no blocklist on any failure.
func (e *Engine) loadPreferences(ctx context.Context, userID string) (*PreferenceProfile, *Blocklist) {
	if e.prefs == nil {
		return NeutralProfile(), nil
	}

	profile, err := e.prefs.GetPreferenceProfile(ctx, userID)
	if err != nil || profile == nil {
		if err != nil {
			e.logger.Warn("Preference profile unavailable, using neutral",
				zap.String("userID", userID),
				zap.Error(err))
		}
		profile = NeutralProfile()
	}

	blocklist, err := e.prefs.GetBlocklists(ctx, userID)
	if err != nil {
		e.logger.Warn("Blocklists unavailable, skipping exclusion",
			zap.String("userID", userID),
			zap.Error(err))
		blocklist = nil
	}

	return profile, blocklist
}

// finishRequest performs the fire-and-forget tail of the pipeline: the dedup
// write, the repetition record, and the interaction track.
func (e *Engine) finishRequest(ctx context.Context, req *Request, photoHash string, resp *Response) {
	bg := context.WithoutCancel(ctx)

	if req.UserID != "" {
		raw, err := sonic.Marshal(resp)
		if err == nil {
			go func() {
				writeCtx, cancel := context.WithTimeout(bg, backgroundWriteTimeout)
				defer cancel()
				e.store.SetDedup(writeCtx, req.UserID, photoHash, raw)
			}()
		}

		// Only the position-1 outfit enters the history; penalizing the
		// stretch and explore picks would punish the variety they exist for
		if len(resp.Outfits) > 0 {
			shown := resp.Outfits[0]
			go func() {
				writeCtx, cancel := context.WithTimeout(bg, backgroundWriteTimeout)
				defer cancel()
				e.repetition.Record(writeCtx, req.UserID, repetition.Entry{
					Fingerprint: cache.FingerprintOutfit(shown.Title, shown.ColorPalette, shown.Items),
					Colors:      shown.ColorPalette,
					Style:       shown.StyleType,
				})
			}()
		}
	}

	if e.tracker != nil {
		go func() {
			writeCtx, cancel := context.WithTimeout(bg, backgroundWriteTimeout)
			defer cancel()
			if err := e.tracker.TrackShown(writeCtx, resp.RecommendationID, req, resp.Outfits); err != nil {
				e.logger.Debug("Interaction tracking failed", zap.Error(err))
			}
		}()
	}
}
