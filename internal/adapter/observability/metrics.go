package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60, 120},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of completion requests by provider and outcome",
		},
		[]string{"provider", "status"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "Completion request duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		},
		[]string{"provider"},
	)

	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_total",
			Help: "Analyses by outcome (success or failure kind)",
		},
		[]string{"outcome"},
	)
	ReplyParseTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_reply_parse_total",
			Help: "Replies by the recovery tier that produced the field map",
		},
		[]string{"tier"},
	)
	ReplySchemaViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analysis_reply_schema_violations_total",
			Help: "Schema violations found in strictly parsed replies",
		},
	)
	OverallScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_overall_score",
			Help:    "Distribution of overall_score [0,100]",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)
	SkillMatchHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_skill_match_percentage",
			Help:    "Distribution of skill_match_percentage [0,100]",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)
	PromptTokensHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_prompt_tokens",
			Help:    "Estimated prompt size in tokens",
			Buckets: prometheus.ExponentialBuckets(256, 2, 8),
		},
	)
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_cache_total",
			Help: "Result cache lookups by result",
		},
		[]string{"result"},
	)

	JobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"type"},
	)
	JobsProcessing = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobs_processing",
			Help: "Number of jobs currently processing",
		},
		[]string{"type"},
	)
	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Total number of jobs completed",
		},
		[]string{"type"},
	)
	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Total number of jobs failed",
		},
		[]string{"type"},
	)
)

var registerOnce sync.Once

// InitMetrics registers every collector with the default registry. Safe to
// call more than once.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AIRequestsTotal,
			AIRequestDuration,
			AnalysesTotal,
			ReplyParseTotal,
			ReplySchemaViolationsTotal,
			OverallScoreHistogram,
			SkillMatchHistogram,
			PromptTokensHistogram,
			CacheLookupsTotal,
			JobsEnqueuedTotal,
			JobsProcessing,
			JobsCompletedTotal,
			JobsFailedTotal,
		)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveCompletion records one provider call.
func ObserveCompletion(provider, status string, d time.Duration) {
	AIRequestsTotal.WithLabelValues(provider, status).Inc()
	AIRequestDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveReplyParse counts which recovery tier handled a reply.
func ObserveReplyParse(tier string, schemaViolations int) {
	ReplyParseTotal.WithLabelValues(tier).Inc()
	if schemaViolations > 0 {
		ReplySchemaViolationsTotal.Add(float64(schemaViolations))
	}
}

// ObserveAnalysis records a successful analysis' scores.
func ObserveAnalysis(overallScore, skillMatch int) {
	AnalysesTotal.WithLabelValues("success").Inc()
	OverallScoreHistogram.Observe(float64(overallScore))
	SkillMatchHistogram.Observe(float64(skillMatch))
}

// ObserveAnalysisFailure counts a failed analysis by kind.
func ObserveAnalysisFailure(kind string) {
	AnalysesTotal.WithLabelValues(kind).Inc()
}

func ObservePromptTokens(n int) {
	if n > 0 {
		PromptTokensHistogram.Observe(float64(n))
	}
}

func ObserveCacheLookup(hit bool) {
	if hit {
		CacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	CacheLookupsTotal.WithLabelValues("miss").Inc()
}

func EnqueueJob(jobType string) {
	JobsEnqueuedTotal.WithLabelValues(jobType).Inc()
}

func StartProcessingJob(jobType string) {
	JobsProcessing.WithLabelValues(jobType).Inc()
}

func CompleteJob(jobType string) {
	JobsProcessing.WithLabelValues(jobType).Dec()
	JobsCompletedTotal.WithLabelValues(jobType).Inc()
}

func FailJob(jobType string) {
	JobsProcessing.WithLabelValues(jobType).Dec()
	JobsFailedTotal.WithLabelValues(jobType).Inc()
}
