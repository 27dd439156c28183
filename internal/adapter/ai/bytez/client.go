// Package bytez implements a completion provider for the Bytez hosted model
// API.
package bytez

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

const providerName = "bytez"

// Client implements domain.CompletionProvider against
// POST {base}/{model} with a raw API key in the Authorization header.
type Client struct {
	hc       *http.Client
	apiKey   string
	endpoint string
}

// New builds a client from configuration.
func New(cfg config.Config) *Client {
	return &Client{
		hc:       ai.NewHTTPClient(cfg.ProviderTimeout + 10*time.Second),
		apiKey:   cfg.BytezAPIKey,
		endpoint: strings.TrimRight(cfg.BytezBaseURL, "/") + "/" + strings.TrimLeft(cfg.BytezModel, "/"),
	}
}

func (c *Client) Name() string { return providerName }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type response struct {
	Error  json.RawMessage `json:"error"`
	Output json.RawMessage `json:"output"`
}

// Complete sends the system and user instructions and returns output.content.
func (c *Client) Complete(ctx domain.Context, systemPrompt, userPrompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: op=bytez.complete: BYTEZ_API_KEY missing", domain.ErrProvider)
	}
	body, err := ai.PostJSON(ctx, c.hc, ai.Request{
		Provider: providerName,
		URL:      c.endpoint,
		Headers:  map[string]string{"Authorization": c.apiKey},
		Body: map[string]any{
			"messages": []message{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: userPrompt},
			},
		},
	})
	if err != nil {
		return "", err
	}

	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: op=bytez.complete.decode: %v: %s", domain.ErrEmptyReply, err, ai.Snippet(body))
	}
	if msg := errorText(out.Error); msg != "" {
		return "", &domain.ProviderHTTPError{Provider: providerName, StatusCode: http.StatusOK, Body: msg}
	}
	content := outputContent(out.Output)
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: op=bytez.complete: no output content", domain.ErrEmptyReply)
	}
	return content, nil
}

// outputContent accepts {"content": "..."} or a bare string.
func outputContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Content
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ai.Snippet([]byte(s))
	}
	return ai.Snippet(raw)
}
