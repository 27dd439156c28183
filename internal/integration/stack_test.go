//go:build integration

// Package integration runs the analysis service against real Tika, Postgres
// and Redis containers with a scripted OpenRouter-compatible endpoint.
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	rediscache "github.com/fairyhunter13/ai-cv-analyzer/internal/adapter/cache/redis"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/app"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/config"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/usecase"
)

const modelReply = `{"candidate_name":"Jane Doe","email":"jane@example.com","phone":null,
"summary":"Backend engineer","extracted_skills":["Python","AWS","Docker"],
"matched_skills":["Python","AWS"],"missing_skills":["Kubernetes"],"experience_years":6,
"education":["BSc Computer Science"],"skill_match_percentage":66,"overall_score":72,
"recommendation":"GOOD_MATCH","strengths":["Python"],"concerns":["No Kubernetes"],
"interview_questions":["Describe an AWS deployment you owned."]}`

// startContainer runs image and returns host:port for the exposed port.
func startContainer(t *testing.T, req testcontainers.ContainerRequest, port nat.Port) string {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	mapped, err := c.MappedPort(ctx, port)
	require.NoError(t, err)
	return host + ":" + mapped.Port()
}

func fakeOpenRouter(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		resp := map[string]any{"choices": []map[string]any{{"message": map[string]string{"content": modelReply}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnalyzeService_FullStack(t *testing.T) {
	ctx := context.Background()

	tikaAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "apache/tika:2.9.0.0",
		ExposedPorts: []string{"9998/tcp"},
		WaitingFor:   wait.ForHTTP("/version").WithPort("9998/tcp").WithStartupTimeout(90 * time.Second),
	}, "9998/tcp")
	pgAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16",
		Env:          map[string]string{"POSTGRES_PASSWORD": "postgres", "POSTGRES_USER": "postgres", "POSTGRES_DB": "app"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(90 * time.Second),
	}, "5432/tcp")
	redisAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}, "6379/tcp")

	var calls atomic.Int32
	provider := fakeOpenRouter(t, &calls)

	cfg := config.Config{
		CompletionProvider: config.ProviderOpenRouter,
		OpenRouterAPIKey:   "test",
		OpenRouterBaseURL:  provider.URL,
		OpenRouterModel:    "meta-llama/llama-3.2-3b-instruct",
		ProviderTimeout:    30 * time.Second,
		ProviderRatePerMin: 600,
		TikaURL:            "http://" + tikaAddr,
		ResultCacheTTL:     time.Hour,
	}

	pool, err := postgres.NewPool(ctx, "postgres://postgres:postgres@"+pgAddr+"/app?sslmode=disable", 60*time.Second)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.EnsureSchema(ctx, pool))

	rdb := goredis.NewClient(&goredis.Options{Addr: redisAddr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.Eventually(t, func() bool { return rdb.Ping(ctx).Err() == nil }, 30*time.Second, time.Second)

	pipeline, err := app.NewPipeline(cfg, rdb)
	require.NoError(t, err)
	extractor, tikaPing := app.NewExtractor(cfg)
	require.NotNil(t, tikaPing)
	require.Eventually(t, func() bool { return tikaPing.Ping(ctx) == nil }, 60*time.Second, 2*time.Second)

	db, redisCheck, tikaCheck := app.BuildReadinessChecks(pool, rdb, tikaPing)
	for _, check := range []func(context.Context) error{db, redisCheck, tikaCheck} {
		require.NoError(t, check(ctx))
	}

	repo := postgres.NewAnalysisRepo(pool)
	svc := usecase.NewAnalyzeService(pipeline, repo, rediscache.New(rdb, cfg.ResultCacheTTL), nil, 2)

	cv := []byte("Jane Doe\njane@example.com\nSkills: Python, AWS, Docker.\nSix years building Python services on AWS.")
	text, err := extractor.Extract(ctx, "jane.txt", cv)
	require.NoError(t, err)
	require.Contains(t, text, "Jane Doe")

	req := usecase.AnalyzeRequest{RequiredSkills: "python, aws, kubernetes", RoleLevel: "senior"}
	doc := domain.Document{FileName: "jane.txt", SizeBytes: int64(len(cv)), Text: text}

	first := svc.AnalyzeOne(ctx, doc, req)
	require.NoError(t, first.Err)
	require.True(t, first.OK())
	assert.False(t, first.Cached)
	assert.Equal(t, []string{"python", "aws"}, first.Analysis.MatchedSkills)
	assert.Equal(t, []string{"kubernetes"}, first.Analysis.MissingSkills)

	rec, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, rec.Status)
	require.NotNil(t, rec.OverallScore)
	assert.Equal(t, first.Analysis.OverallScore, *rec.OverallScore)

	second := svc.AnalyzeOne(ctx, doc, req)
	require.True(t, second.OK())
	assert.True(t, second.Cached)
	assert.Equal(t, int32(1), calls.Load())
}
