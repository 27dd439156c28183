package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/adapter/ai"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/observability"
)

// Model is one entry of the /models listing.
type Model struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Pricing Pricing `json:"pricing"`
}

// Pricing is quoted per token as decimal strings.
type Pricing struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
	Request    string `json:"request"`
	Image      string `json:"image"`
}

// excludedModelPatterns never get picked even when listed at zero price:
// router aliases time out and the large paid families sometimes show up with
// promotional zero pricing.
var excludedModelPatterns = []string{"auto", "gpt-4", "gpt-5", "claude-", "gemini-pro", "mistral-large"}

// Free reports whether every price component is zero.
func (m Model) Free() bool {
	id := strings.ToLower(m.ID)
	for _, p := range excludedModelPatterns {
		if strings.Contains(id, p) {
			return false
		}
	}
	for _, price := range []string{m.Pricing.Prompt, m.Pricing.Completion, m.Pricing.Request, m.Pricing.Image} {
		switch strings.TrimSpace(price) {
		case "", "0", "0.0":
		default:
			return false
		}
	}
	return true
}

// Catalog caches the free models listed by the provider. A failed refresh
// keeps serving the previous list.
type Catalog struct {
	hc      *http.Client
	apiKey  string
	baseURL string
	ttl     time.Duration
	now     func() time.Time

	mu        sync.Mutex
	models    []Model
	fetchedAt time.Time
}

// NewCatalog builds a catalog reading baseURL+"/models".
func NewCatalog(hc *http.Client, apiKey, baseURL string, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Catalog{hc: hc, apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), ttl: ttl, now: time.Now}
}

// FreeModels returns the cached free models, refreshing when stale.
func (c *Catalog) FreeModels(ctx context.Context) ([]Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.models != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.models, nil
	}
	models, err := c.fetch(ctx)
	if err != nil {
		if c.models != nil {
			observability.LoggerFromContext(ctx).Warn("model catalog refresh failed; serving cached list",
				slog.Int("cached", len(c.models)), slog.Any("error", err))
			return c.models, nil
		}
		return nil, err
	}
	c.models, c.fetchedAt = models, c.now()
	observability.LoggerFromContext(ctx).Info("model catalog refreshed", slog.Int("free_models", len(models)))
	return models, nil
}

// Pick returns the ID of the first free model in ID order.
func (c *Catalog) Pick(ctx context.Context) (string, error) {
	models, err := c.FreeModels(ctx)
	if err != nil {
		return "", err
	}
	if len(models) == 0 {
		return "", fmt.Errorf("%w: op=openrouter.catalog.pick: no free models listed", domain.ErrProvider)
	}
	return models[0].ID, nil
}

func (c *Catalog) fetch(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: op=openrouter.catalog.request: %v", domain.ErrProvider, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: op=openrouter.catalog: %w", domain.ErrProvider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, ai.BodySnippetLimit))
		return nil, &domain.ProviderHTTPError{Provider: providerName, StatusCode: resp.StatusCode, Body: string(body)}
	}
	var out struct {
		Data []Model `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: op=openrouter.catalog.decode: %v", domain.ErrProvider, err)
	}

	free := make([]Model, 0, len(out.Data))
	for _, m := range out.Data {
		if m.Free() {
			free = append(free, m)
		}
	}
	sort.Slice(free, func(i, j int) bool { return free[i].ID < free[j].ID })
	return free, nil
}
