package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, ttl), mr
}

func TestCache_RoundTripWithTTL(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t, time.Hour)
	ctx := context.Background()
	name := "Jane Doe"
	in := domain.CandidateAnalysis{
		CandidateName:  &name,
		MatchedSkills:  []string{"python"},
		MissingSkills:  []string{"aws"},
		OverallScore:   72,
		Recommendation: domain.GoodMatch,
	}

	_, ok, err := c.Get(ctx, "analysis:v1:abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "analysis:v1:abc", in))
	assert.Equal(t, time.Hour, mr.TTL("analysis:v1:abc"))

	got, ok, err := c.Get(ctx, "analysis:v1:abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, got)

	mr.FastForward(2 * time.Hour)
	_, ok, err = c.Get(ctx, "analysis:v1:abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_CorruptValue(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t, 0)
	require.NoError(t, mr.Set("k", "{not json"))
	_, ok, err := c.Get(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "op=cache.get.decode")
}

func TestCache_ServerDown(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t, time.Minute)
	mr.Close()
	_, _, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, c.Set(context.Background(), "k", domain.CandidateAnalysis{}))
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	client, err := NewClient("redis://localhost:6379/1")
	require.NoError(t, err)
	assert.Equal(t, 1, client.Options().DB)
	_ = client.Close()

	_, err = NewClient("::bad")
	assert.Error(t, err)
}
