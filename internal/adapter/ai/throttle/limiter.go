// Package throttle paces completion calls with a token bucket kept in Redis,
// so the HTTP service and every worker share one provider budget.
package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/observability"
)

// Bucket is a token bucket refilled continuously.
type Bucket struct {
	Capacity   int64
	RefillRate float64 // tokens per second
}

// PerMinute sizes a bucket that allows n calls per minute with a burst of n.
func PerMinute(n int) Bucket {
	if n <= 0 {
		return Bucket{}
	}
	return Bucket{Capacity: int64(n), RefillRate: float64(n) / 60}
}

// Floats are returned as strings because Redis truncates Lua numbers to
// integers on the way out.
const tokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local tokens = capacity
local last = now
local data = redis.call("HMGET", key, "tokens", "last_refill")
if data[1] then tokens = tonumber(data[1]) end
if data[2] then last = tonumber(data[2]) end

local delta = math.max(0, now - last)
tokens = math.min(capacity, tokens + delta * refill_rate)

local allowed = 0
local retry_after = 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
elseif refill_rate > 0 then
  retry_after = (cost - tokens) / refill_rate
end

redis.call("HSET", key, "tokens", tostring(tokens), "last_refill", tostring(now))
redis.call("EXPIRE", key, math.ceil(capacity / refill_rate) + 60)
return { allowed, tostring(retry_after) }
`

// Limiter evaluates the bucket script against Redis.
type Limiter struct {
	rdb    goredis.UniversalClient
	bucket Bucket
	script *goredis.Script
	now    func() time.Time
}

// NewLimiter returns nil when rdb is nil or the bucket is empty; a nil
// Limiter allows everything.
func NewLimiter(rdb goredis.UniversalClient, b Bucket) *Limiter {
	if rdb == nil || b.Capacity <= 0 || b.RefillRate <= 0 {
		return nil
	}
	return &Limiter{rdb: rdb, bucket: b, script: goredis.NewScript(tokenBucketScript), now: time.Now}
}

// Allow takes one token from key. On Redis errors it fails open and returns
// the error for logging.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l == nil {
		return true, 0, nil
	}
	now := float64(l.now().UnixNano()) / 1e9
	res, err := l.script.Run(ctx, l.rdb, []string{"throttle:" + key},
		l.bucket.Capacity, l.bucket.RefillRate, strconv.FormatFloat(now, 'f', 6, 64), 1).Slice()
	if err != nil {
		return true, 0, fmt.Errorf("op=throttle.allow: %w", err)
	}
	if len(res) < 2 {
		return true, 0, fmt.Errorf("op=throttle.allow: unexpected script result %v", res)
	}
	allowed, _ := res[0].(int64)
	retrySec, _ := strconv.ParseFloat(fmt.Sprint(res[1]), 64)
	return allowed == 1, time.Duration(retrySec * float64(time.Second)), nil
}

// Wait blocks until a token is available or ctx ends.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	for {
		ok, retry, err := l.Allow(ctx, key)
		if err != nil {
			observability.LoggerFromContext(ctx).Warn("provider throttle unavailable; allowing call",
				slog.String("key", key), slog.Any("error", err))
			return nil
		}
		if ok {
			return nil
		}
		if retry <= 0 {
			retry = 100 * time.Millisecond
		}
		t := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w: %w: op=throttle.wait: %w", domain.ErrUpstreamTimeout, domain.ErrProvider, ctx.Err())
		case <-t.C:
		}
	}
}

// Provider gates every Complete call on the shared bucket.
type Provider struct {
	next    domain.CompletionProvider
	limiter *Limiter
}

// Wrap returns p unchanged when l is nil.
func Wrap(p domain.CompletionProvider, l *Limiter) domain.CompletionProvider {
	if l == nil {
		return p
	}
	return &Provider{next: p, limiter: l}
}

func (p *Provider) Name() string { return p.next.Name() }

func (p *Provider) Complete(ctx domain.Context, systemPrompt, userPrompt string) (string, error) {
	if err := p.limiter.Wait(ctx, p.next.Name()); err != nil {
		return "", err
	}
	return p.next.Complete(ctx, systemPrompt, userPrompt)
}
