package observability

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/config"
)

func TestNewLogger_AddsServiceFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	lg := NewLogger(&buf, config.Config{AppEnv: "dev", OTELServiceName: "svc"})
	lg.Debug("hello", "k", 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "svc", rec["service"])
	assert.Equal(t, "dev", rec["env"])
	assert.Equal(t, "hello", rec["msg"])
}

func TestNewLogger_ProdSuppressesDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	lg := NewLogger(&buf, config.Config{AppEnv: "prod"})
	lg.Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestSetupTracing_Disabled(t *testing.T) {
	t.Parallel()
	shutdown, err := SetupTracing(config.Config{})
	require.NoError(t, err)
	assert.Nil(t, shutdown)
}

func TestHTTPMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	InitMetrics()

	r := chi.NewRouter()
	r.Use(HTTPMetricsMiddleware)
	r.Get("/v1/analyses/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/v1/analyses/{id}", http.MethodGet, "No Content"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/analyses/abc", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/v1/analyses/{id}", http.MethodGet, "No Content"))
	assert.Equal(t, before+1, after)
}

func TestAnalysisMetricHelpers(t *testing.T) {
	InitMetrics()
	InitMetrics()

	before := testutil.ToFloat64(ReplyParseTotal.WithLabelValues("salvaged"))
	ObserveReplyParse("salvaged", 2)
	assert.Equal(t, before+1, testutil.ToFloat64(ReplyParseTotal.WithLabelValues("salvaged")))

	fails := testutil.ToFloat64(AnalysesTotal.WithLabelValues("empty_reply"))
	ObserveAnalysisFailure("empty_reply")
	assert.Equal(t, fails+1, testutil.ToFloat64(AnalysesTotal.WithLabelValues("empty_reply")))

	ObserveAnalysis(88, 75)
	ObserveCompletion("bytez", "ok", time.Second)
	ObservePromptTokens(1200)
	ObserveCacheLookup(true)
	ObserveCacheLookup(false)
	EnqueueJob("analyze")
	StartProcessingJob("analyze")
	CompleteJob("analyze")
	StartProcessingJob("analyze")
	FailJob("analyze")
	assert.Equal(t, 0.0, testutil.ToFloat64(JobsProcessing.WithLabelValues("analyze")))
}
