package app

import (
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/adapter/ai/bytez"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/adapter/ai/openrouter"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/adapter/ai/throttle"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/adapter/textextractor/local"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/adapter/textextractor/tika"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/analysis"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/config"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
)

// NewProvider returns the completion provider selected by COMPLETION_PROVIDER
// together with the model it calls.
func NewProvider(cfg config.Config) (domain.CompletionProvider, string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	switch strings.ToLower(cfg.CompletionProvider) {
	case config.ProviderOpenRouter:
		return openrouter.New(cfg), cfg.OpenRouterModel, nil
	case config.ProviderBytez:
		return bytez.New(cfg), cfg.BytezModel, nil
	}
	return nil, "", fmt.Errorf("op=app.new_provider: unknown provider %q", cfg.CompletionProvider)
}

// NewPipeline builds the analysis pipeline for the configured provider, with
// prompt token estimates for its model. With a Redis client and
// PROVIDER_RATE_PER_MIN set, provider calls share a Redis token bucket.
func NewPipeline(cfg config.Config, rdb goredis.UniversalClient) (*analysis.Pipeline, error) {
	provider, model, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	provider = throttle.Wrap(provider, throttle.NewLimiter(rdb, throttle.PerMinute(cfg.ProviderRatePerMin)))
	return analysis.NewPipeline(provider,
		analysis.WithTimeout(cfg.ProviderTimeout),
		analysis.WithTokenCounter(tokencount.New(model)),
	), nil
}

// NewExtractor returns Tika when TIKA_URL is set, otherwise the in-process
// extractor. The Pinger is non-nil only for Tika.
func NewExtractor(cfg config.Config) (domain.TextExtractor, Pinger) {
	if strings.TrimSpace(cfg.TikaURL) != "" {
		c := tika.New(cfg.TikaURL)
		return c, c
	}
	return local.New(), nil
}
