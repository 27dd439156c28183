package httpserver

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	obsctx "github.com/fairyhunter13/ai-cv-analyzer/internal/observability"
)

func noContent(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(noContent)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	h := rec.Result().Header
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "default-src 'none'", h.Get("Content-Security-Policy"))
	assert.Equal(t, "no-referrer", h.Get("Referrer-Policy"))
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	t.Run("generates", func(t *testing.T) {
		t.Parallel()
		var seen string
		rec := httptest.NewRecorder()
		RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = obsctx.RequestIDFromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Len(t, seen, 26)
		assert.Equal(t, seen, rec.Header().Get("X-Request-Id"))
	})

	t.Run("reuses incoming", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("X-Request-Id", "abc-123")
		rec := httptest.NewRecorder()
		RequestID()(http.HandlerFunc(noContent)).ServeHTTP(rec, req)
		assert.Equal(t, "abc-123", rec.Header().Get("X-Request-Id"))
	})

	t.Run("replaces oversized", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("X-Request-Id", strings.Repeat("a", 200))
		rec := httptest.NewRecorder()
		RequestID()(http.HandlerFunc(noContent)).ServeHTTP(rec, req)
		assert.Len(t, rec.Header().Get("X-Request-Id"), 26)
	})
}

func TestRecoverer(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	Recoverer()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "INTERNAL", env.Error.Code)
}

func TestTimeoutMiddleware(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	TimeoutMiddleware(5*time.Millisecond)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "UPSTREAM_TIMEOUT")
}

func TestTraceMiddleware_PassesStatus(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Use(TraceMiddleware)
	r.Get("/v1/analyses/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/analyses/42", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestAccessLog_UsesRoutePatternAndLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	lg := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(obsctx.ContextWithLogger(req.Context(), lg)))
		})
	})
	r.Use(AccessLog())
	r.Get("/v1/analyses/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/analyses/42", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "http_access", line["msg"])
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "/v1/analyses/{id}", line["route"])
	assert.EqualValues(t, 404, line["status"])
}

func TestNewReqID_Unique(t *testing.T) {
	t.Parallel()

	ids := make(map[string]bool, 100)
	for i := 0; i < 100; i++ {
		id := newReqID()
		require.Len(t, id, 26)
		require.False(t, ids[id], "duplicate id %s", id)
		ids[id] = true
	}
}
