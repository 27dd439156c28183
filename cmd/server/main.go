// Command server starts the AI CV Analyzer HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	rediscache "github.com/fairyhunter13/ai-cv-analyzer/internal/adapter/cache/redis"
	httpserver "github.com/fairyhunter13/ai-cv-analyzer/internal/adapter/httpserver"
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
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

	extractor, tikaPinger := app.NewExtractor(cfg)

	// Optional adapters stay nil interfaces when not configured.
	var (
		repo     domain.AnalysisRepository
		cache    domain.AnalysisCache
		queue    domain.Queue
		dbPinger app.Pinger
		rdb      goredis.UniversalClient
	)

	if cfg.DBURL != "" {
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
		repo, dbPinger = postgres.NewAnalysisRepo(pool), pool
	}

	if cfg.RedisURL != "" {
		client, err := rediscache.NewClient(cfg.RedisURL)
		if err != nil {
			slog.Error("redis config invalid", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = client.Close() }()
		cache, rdb = rediscache.New(client, cfg.ResultCacheTTL), client
	}

	if repo != nil && cfg.AsyncEnabled() {
		producer, err := redpanda.NewProducer(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			slog.Error("redpanda producer init failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer producer.Close()
		queue = producer
	}

	pipeline, err := app.NewPipeline(cfg, rdb)
	if err != nil {
		slog.Error("completion provider config invalid", slog.Any("error", err))
		os.Exit(1)
	}

	svc := usecase.NewAnalyzeService(pipeline, repo, cache, queue, cfg.BatchConcurrency)
	slog.Info("analysis service ready",
		slog.String("provider", cfg.CompletionProvider),
		slog.Bool("persistence", repo != nil),
		slog.Bool("cache", cache != nil),
		slog.Bool("provider_throttle", rdb != nil && cfg.ProviderRatePerMin > 0),
		slog.Bool("async", svc.AsyncEnabled()))

	dbCheck, redisCheck, tikaCheck := app.BuildReadinessChecks(dbPinger, rdb, tikaPinger)
	srv := httpserver.NewServer(cfg, svc, extractor, dbCheck, redisCheck, tikaCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", slog.Any("error", err))
	}
}
