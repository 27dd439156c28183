// Package redis caches successful analyses in Redis.
package redis

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
)

// Cache implements domain.AnalysisCache with JSON values and a fixed TTL.
type Cache struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

var _ domain.AnalysisCache = (*Cache)(nil)

// New wraps client. A non-positive ttl stores entries without expiry.
func New(client goredis.UniversalClient, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// NewClient parses a redis:// URL and returns a client for it.
func NewClient(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("op=redis.parse_url: %w", err)
	}
	return goredis.NewClient(opts), nil
}

// Get returns the cached analysis for key. A miss is (zero, false, nil).
func (c *Cache) Get(ctx domain.Context, key string) (domain.CandidateAnalysis, bool, error) {
	ctx, span := otel.Tracer("cache.redis").Start(ctx, "cache.Get")
	defer span.End()
	span.SetAttributes(attribute.String("cache.key", key))

	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return domain.CandidateAnalysis{}, false, nil
	}
	if err != nil {
		span.RecordError(err)
		return domain.CandidateAnalysis{}, false, fmt.Errorf("op=cache.get: %w", err)
	}
	var a domain.CandidateAnalysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return domain.CandidateAnalysis{}, false, fmt.Errorf("op=cache.get.decode: %w", err)
	}
	span.SetAttributes(attribute.Bool("cache.hit", true))
	return a, true, nil
}

// Set stores a under key.
func (c *Cache) Set(ctx domain.Context, key string, a domain.CandidateAnalysis) error {
	ctx, span := otel.Tracer("cache.redis").Start(ctx, "cache.Set")
	defer span.End()

	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("op=cache.set.encode: %w", err)
	}
	ttl := c.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("op=cache.set: %w", err)
	}
	return nil
}
