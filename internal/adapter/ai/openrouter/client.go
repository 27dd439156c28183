// Package openrouter implements a completion provider for OpenAI-compatible
// chat completion endpoints, OpenRouter by default.
package openrouter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/adapter/ai"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/config"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
)

const providerName = "openrouter"

// Client implements domain.CompletionProvider.
type Client struct {
	hc        *http.Client
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	referer   string
	title     string
	// catalog resolves the model per call when model is config.ModelFree.
	catalog *Catalog
}

// New builds a client from configuration.
func New(cfg config.Config) *Client {
	hc := ai.NewHTTPClient(cfg.ProviderTimeout + 10*time.Second)
	c := &Client{
		hc:        hc,
		apiKey:    cfg.OpenRouterAPIKey,
		baseURL:   strings.TrimRight(cfg.OpenRouterBaseURL, "/"),
		model:     cfg.OpenRouterModel,
		maxTokens: cfg.ProviderMaxTokens,
		referer:   cfg.OpenRouterReferer,
		title:     cfg.OpenRouterTitle,
	}
	if strings.EqualFold(c.model, config.ModelFree) {
		c.catalog = NewCatalog(hc, c.apiKey, c.baseURL, cfg.OpenRouterCatalogTTL)
	}
	return c
}

func (c *Client) Name() string { return providerName }

// Complete calls /chat/completions and returns the first choice's content.
func (c *Client) Complete(ctx domain.Context, systemPrompt, userPrompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: op=openrouter.complete: OPENROUTER_API_KEY missing", domain.ErrProvider)
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	model := c.model
	if c.catalog != nil {
		picked, err := c.catalog.Pick(ctx)
		if err != nil {
			return "", err
		}
		model = picked
	}
	if c.referer != "" {
		headers["HTTP-Referer"] = c.referer
	}
	if c.title != "" {
		headers["X-Title"] = c.title
	}
	body := map[string]any{
		"model":       model,
		"temperature": 0.2,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
	}
	if c.maxTokens > 0 {
		body["max_tokens"] = c.maxTokens
	}

	raw, err := ai.PostJSON(ctx, c.hc, ai.Request{
		Provider: providerName,
		URL:      c.baseURL + "/chat/completions",
		Headers:  headers,
		Body:     body,
	})
	if err != nil {
		return "", err
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: op=openrouter.complete.decode: %v: %s", domain.ErrEmptyReply, err, ai.Snippet(raw))
	}
	if out.Error != nil && out.Error.Message != "" {
		return "", &domain.ProviderHTTPError{Provider: providerName, StatusCode: http.StatusOK, Body: ai.Snippet([]byte(out.Error.Message))}
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: op=openrouter.complete: no choices", domain.ErrEmptyReply)
	}
	return out.Choices[0].Message.Content, nil
}
