// Package app wires HTTP routing, readiness probes and background
// maintenance for the server and worker binaries.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/ai-cv-analyzer/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/config"
)

// readTimeout bounds the read-only endpoints. Analyze routes are bounded by
// the server write timeout instead, since a batch may take minutes.
const readTimeout = 10 * time.Second

// ParseOrigins splits a comma-separated origin list, trimming spaces.
// An empty list allows every origin.
func ParseOrigins(s string) []string {
	out := make([]string, 0, 4)
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.RequestID())
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// analysis calls a paid provider; rate limit per client
	r.Group(func(wr chi.Router) {
		if cfg.RateLimitPerMin > 0 {
			wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute))
		}
		wr.Post("/v1/analyze", srv.AnalyzeHandler())
		wr.Post("/v1/analyze/async", srv.AnalyzeAsyncHandler())
	})
	r.Group(func(rr chi.Router) {
		rr.Use(httpserver.TimeoutMiddleware(readTimeout))
		rr.Get("/v1/analyses/{id}", srv.AnalysisHandler())
		rr.Get("/v1/batches/{id}", srv.BatchHandler())
	})

	r.Get("/healthz", srv.HealthzHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	r.Handle("/metrics", promhttp.Handler())

	return httpserver.SecurityHeaders(r)
}
