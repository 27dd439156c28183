// Package ai holds the HTTP plumbing shared by the completion provider
// adapters in its subpackages.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
)

// BodySnippetLimit bounds provider error bodies carried in errors and logs.
const BodySnippetLimit = 512

// maxResponseBytes caps how much of a provider reply is read.
const maxResponseBytes = 8 << 20

// NewHTTPClient returns a traced client. Deadlines come from the caller's
// context, so the client timeout is only a backstop.
func NewHTTPClient(backstop time.Duration) *http.Client {
	return &http.Client{
		Timeout:   backstop,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Request is one JSON POST to a provider.
type Request struct {
	Provider string
	URL      string
	Headers  map[string]string
	Body     any
}

// PostJSON sends req and returns the raw 2xx response body. Failures map to
// the domain taxonomy: context deadline to ErrUpstreamTimeout, non-2xx to
// *domain.ProviderHTTPError, anything else to ErrProvider. It never retries.
func PostJSON(ctx context.Context, hc *http.Client, req Request) ([]byte, error) {
	payload, err := json.Marshal(req.Body)
	if err != nil {
		return nil, fmt.Errorf("op=%s.complete.marshal: %w", req.Provider, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: op=%s.complete.request: %v", domain.ErrProvider, req.Provider, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := hc.Do(httpReq)
	if err != nil {
		observability.ObserveCompletion(req.Provider, "transport_error", time.Since(start))
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w: op=%s.complete: %w", domain.ErrUpstreamTimeout, domain.ErrProvider, req.Provider, err)
		}
		return nil, fmt.Errorf("%w: op=%s.complete: %w", domain.ErrProvider, req.Provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		observability.ObserveCompletion(req.Provider, "read_error", time.Since(start))
		return nil, fmt.Errorf("%w: op=%s.complete.read: %w", domain.ErrProvider, req.Provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.ObserveCompletion(req.Provider, fmt.Sprintf("http_%d", resp.StatusCode), time.Since(start))
		snippet := Snippet(body)
		slog.Warn("completion provider non-2xx",
			slog.String("provider", req.Provider),
			slog.Int("status", resp.StatusCode),
			slog.String("x_request_id", resp.Header.Get("X-Request-Id")),
			slog.String("body", snippet))
		return nil, &domain.ProviderHTTPError{Provider: req.Provider, StatusCode: resp.StatusCode, Body: snippet}
	}
	observability.ObserveCompletion(req.Provider, "ok", time.Since(start))
	return body, nil
}

// Snippet truncates a body to BodySnippetLimit bytes.
func Snippet(b []byte) string {
	if len(b) > BodySnippetLimit {
		b = b[:BodySnippetLimit]
	}
	return string(b)
}
