package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
)

// CurrentVersion of the config file.
const CurrentVersion = 1

// Config represents the entire application configuration.
type Config struct {
	// Version of the config file.
	Version   int       `koanf:"version"`
	Debug     Debug     `koanf:"debug"`
	Server    Server    `koanf:"server"`
	Redis     Redis     `koanf:"redis"`
	Gemini    Gemini    `koanf:"gemini"`
	OpenAI    OpenAI    `koanf:"openai"`
	RateLimit RateLimit `koanf:"rate_limit"`
	Recommend Recommend `koanf:"recommend"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
}

// Server contains HTTP server configuration.
type Server struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// Gemini contains configuration for the primary text and image providers.
type Gemini struct {
	// API keys rotated by the key pool.
	APIKeys []string `koanf:"api_keys"`
	// Model used for outfit candidate generation.
	Model string `koanf:"model"`
	// Model used for illustration generation.
	ImageModel string `koanf:"image_model"`
	// Maximum attempts before cascading to the next provider.
	MaxAttempts int `koanf:"max_attempts"`
}

// OpenAI contains configuration for the secondary OpenAI-compatible provider.
type OpenAI struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	// Maximum attempts before the chain is exhausted.
	MaxAttempts int `koanf:"max_attempts"`
	// Maximum concurrent in-flight requests.
	MaxConcurrent int64 `koanf:"max_concurrent"`
}

// RateLimit contains per-identity rate limiting configuration.
type RateLimit struct {
	// Requests allowed per window.
	RequestsPerWindow int `koanf:"requests_per_window"`
	// Window length in seconds.
	WindowSeconds int `koanf:"window_seconds"`
}

// Recommend contains tuning for the recommendation pipeline.
// The distribution and threshold values are empirically tuned constants,
// not derived from any formula.
type Recommend struct {
	// Number of outfits returned per request.
	OutfitCount int `koanf:"outfit_count"`
	// Image stage wall-clock budget in milliseconds.
	ImageBudgetMs int `koanf:"image_budget_ms"`
	// Hard deadline for one recommendation request in milliseconds.
	RequestTimeoutMs int `koanf:"request_timeout_ms"`
	// In-process request cache TTL in seconds.
	MemoryCacheTTLSeconds int `koanf:"memory_cache_ttl_seconds"`
	// Persistent cross-instance cache TTL in seconds.
	ResponseCacheTTLSeconds int `koanf:"response_cache_ttl_seconds"`
	// Photo dedup window in seconds.
	DedupTTLSeconds int `koanf:"dedup_ttl_seconds"`
	// Anti-repetition rolling window in days.
	RepetitionWindowDays int `koanf:"repetition_window_days"`
	// Score threshold at or above which an outfit is a safe match.
	SafeThreshold float64 `koanf:"safe_threshold"`
	// Score threshold at or above which an outfit is a stretch match.
	StretchThreshold float64 `koanf:"stretch_threshold"`
	// Fraction of recent history on one color or style that triggers pattern lock.
	PatternLockThreshold float64 `koanf:"pattern_lock_threshold"`
}

// LoadConfig loads the configuration from the first readable path.
func LoadConfig(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		paths = []string{"config.toml", "config/config.toml", "/etc/vesti/config.toml"}
	}

	k := koanf.New(".")

	loaded := false
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		loaded = true
		break
	}

	if !loaded {
		return nil, ErrConfigFileNotFound
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrConfigVersionMismatch, CurrentVersion, cfg.Version)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults fills zero values with working defaults.
func applyDefaults(cfg *Config) {
	if cfg.Debug.LogLevel == "" {
		cfg.Debug.LogLevel = "info"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-2.0-flash"
	}
	if cfg.Gemini.MaxAttempts == 0 {
		cfg.Gemini.MaxAttempts = 3
	}
	if cfg.OpenAI.MaxAttempts == 0 {
		cfg.OpenAI.MaxAttempts = 2
	}
	if cfg.OpenAI.MaxConcurrent == 0 {
		cfg.OpenAI.MaxConcurrent = 8
	}
	if cfg.RateLimit.RequestsPerWindow == 0 {
		cfg.RateLimit.RequestsPerWindow = 10
	}
	if cfg.RateLimit.WindowSeconds == 0 {
		cfg.RateLimit.WindowSeconds = 60
	}

	rec := &cfg.Recommend
	if rec.OutfitCount == 0 {
		rec.OutfitCount = 3
	}
	if rec.ImageBudgetMs == 0 {
		rec.ImageBudgetMs = 12000
	}
	if rec.RequestTimeoutMs == 0 {
		rec.RequestTimeoutMs = 30000
	}
	if rec.MemoryCacheTTLSeconds == 0 {
		rec.MemoryCacheTTLSeconds = 600
	}
	if rec.ResponseCacheTTLSeconds == 0 {
		rec.ResponseCacheTTLSeconds = 3600
	}
	if rec.DedupTTLSeconds == 0 {
		rec.DedupTTLSeconds = 86400
	}
	if rec.RepetitionWindowDays == 0 {
		rec.RepetitionWindowDays = 30
	}
	if rec.SafeThreshold == 0 {
		rec.SafeThreshold = 0.66
	}
	if rec.StretchThreshold == 0 {
		rec.StretchThreshold = 0.33
	}
	if rec.PatternLockThreshold == 0 {
		rec.PatternLockThreshold = 0.7
	}
}
