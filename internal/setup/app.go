package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/vestiapp/vesti/internal/ai"
	"github.com/vestiapp/vesti/internal/ai/keypool"
	"github.com/vestiapp/vesti/internal/cache"
	"github.com/vestiapp/vesti/internal/recommend"
	"github.com/vestiapp/vesti/internal/recommend/repetition"
	"github.com/vestiapp/vesti/internal/redis"
	"github.com/vestiapp/vesti/internal/rest/middleware/ratelimit"
	"github.com/vestiapp/vesti/internal/setup/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// App bundles the application's shared dependencies.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Redis  *redis.Manager
	Engine *recommend.Engine

	gemini *ai.GeminiProvider
	pools  []*keypool.Pool
}

// InitializeApp loads configuration and builds the full pipeline.
func InitializeApp(ctx context.Context, configPaths ...string) (*App, error) {
	cfg, err := config.LoadConfig(configPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(cfg.Debug.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	redisManager := redis.NewManager(&cfg.Redis, logger)

	cacheClient, err := redisManager.GetClient(redis.CacheDBIndex)
	if err != nil {
		return nil, err
	}
	dedupClient, err := redisManager.GetClient(redis.DedupDBIndex)
	if err != nil {
		return nil, err
	}
	repetitionClient, err := redisManager.GetClient(redis.RepetitionDBIndex)
	if err != nil {
		return nil, err
	}

	rec := &cfg.Recommend
	store := cache.NewStore(cacheClient, dedupClient,
		time.Duration(rec.ResponseCacheTTLSeconds)*time.Second,
		time.Duration(rec.DedupTTLSeconds)*time.Second,
		logger)

	repetitionStore := repetition.NewStore(repetitionClient,
		time.Duration(rec.RepetitionWindowDays)*24*time.Hour, logger)

	textKeys := keypool.New(cfg.Gemini.APIKeys, logger.Named("text"))
	imageKeys := keypool.New(cfg.Gemini.APIKeys, logger.Named("image"))

	gemini := ai.NewGeminiProvider(textKeys, cfg.Gemini.Model, logger)
	openai := ai.NewOpenAIProvider(&cfg.OpenAI, logger)

	orchestrator := ai.NewOrchestrator([]ai.ProviderSpec{
		{Provider: gemini, MaxAttempts: cfg.Gemini.MaxAttempts},
		{Provider: openai, MaxAttempts: cfg.OpenAI.MaxAttempts},
	}, ai.DefaultOrchestratorOptions(), logger)

	stylist := ai.NewStylist(orchestrator, logger)

	images := ai.NewImageStage(
		[]ai.ImageProvider{
			ai.NewGeminiImageProvider(gemini, imageKeys, cfg.Gemini.ImageModel, logger),
			ai.NewPollinationsProvider(),
		},
		store,
		cache.FingerprintImage,
		time.Duration(rec.ImageBudgetMs)*time.Millisecond,
		logger,
	)

	engine := recommend.NewEngine(recommend.EngineOptions{
		Stylist:     stylist,
		Images:      images,
		Store:       store,
		MemoryTTL:   time.Duration(rec.MemoryCacheTTLSeconds) * time.Second,
		Repetition:  repetitionStore,
		Scorer:      recommend.NewScorer(repetitionStore.Window()),
		Diversifier: recommend.NewDiversifier(rec.SafeThreshold, rec.StretchThreshold, rec.PatternLockThreshold, logger),
		Limiter: ratelimit.New(cfg.RateLimit.RequestsPerWindow,
			time.Duration(cfg.RateLimit.WindowSeconds)*time.Second),
		OutfitCount: rec.OutfitCount,
		Logger:      logger,
	})

	app := &App{
		Config: cfg,
		Logger: logger,
		Redis:  redisManager,
		Engine: engine,
		gemini: gemini,
		pools:  []*keypool.Pool{textKeys, imageKeys},
	}

	go app.scheduleKeyReset(ctx)

	return app, nil
}

// Cleanup releases all held connections.
func (a *App) Cleanup() {
	a.gemini.Close()
	a.Redis.Close()
	_ = a.Logger.Sync()
}

// scheduleKeyReset clears key exhaustion at each UTC midnight, matching the
// provider's daily quota refresh.
func (a *App) scheduleKeyReset(ctx context.Context) {
	for {
		now := time.Now().UTC()
		next := now.Truncate(24 * time.Hour).Add(24 * time.Hour)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		for _, pool := range a.pools {
			pool.Reset()
		}
	}
}

// newLogger builds the application logger at the configured level.
func newLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)

	return cfg.Build()
}
