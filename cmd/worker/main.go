// Command worker consumes queued analysis jobs from Redpanda, runs them
// through the analysis pipeline and stores the outcome.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	rediscache "github.com/fairyhunter13/ai-cv-analyzer/internal/adapter/cache/redis"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/app"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/config"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// the worker has no HTTP API; expose job metrics on their own listener
	observability.InitMetrics()
	metricsSrv := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	pool, err := postgres.NewPool(ctx, cfg.DBURL, 30*time.Second)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("db schema bootstrap failed", slog.Any("error", err))
		os.Exit(1)
	}
	repo := postgres.NewAnalysisRepo(pool)

	var (
		cache domain.AnalysisCache
		rdb   goredis.UniversalClient
	)
	if cfg.RedisURL != "" {
		client, err := rediscache.NewClient(cfg.RedisURL)
		if err != nil {
			slog.Error("redis config invalid", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = client.Close() }()
		cache, rdb = rediscache.New(client, cfg.ResultCacheTTL), client
	}

	pipeline, err := app.NewPipeline(cfg, rdb)
	if err != nil {
		slog.Error("completion provider config invalid", slog.Any("error", err))
		os.Exit(1)
	}

	svc := usecase.NewAnalyzeService(pipeline, repo, cache, nil, 1)

	maxElapsed, initial, maxInterval := cfg.WorkerRetry()
	consumer, err := redpanda.NewConsumer(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, svc,
		redpanda.RetryPolicy{Initial: initial, MaxInterval: maxInterval, MaxElapsed: maxElapsed})
	if err != nil {
		slog.Error("redpanda consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer consumer.Close()

	// A job legitimately stays in processing for its whole retry window, so
	// only records older than that plus one provider call are stuck.
	sweeperAge := maxElapsed + cfg.ProviderTimeout + time.Minute
	if sweeper := app.NewStuckJobSweeper(repo, sweeperAge, 0); sweeper != nil {
		go sweeper.Run(ctx)
	}

	slog.Info("worker started, waiting for jobs", slog.String("topic", cfg.KafkaTopic), slog.String("group_id", cfg.KafkaGroupID))
	if err := consumer.Run(ctx); err != nil {
		slog.Error("consumer stopped with error", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	slog.Info("worker stopped")
}
