package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/config"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(config.Config{
		OpenRouterAPIKey:  "k",
		OpenRouterBaseURL: srv.URL + "/api/v1/",
		OpenRouterModel:   "meta-llama/llama-3.2-3b-instruct",
		OpenRouterTitle:   "AI CV Analyzer",
		ProviderMaxTokens: 1024,
		ProviderTimeout:   5 * time.Second,
	})
}

func TestComplete_Success(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.Equal(t, "AI CV Analyzer", r.Header.Get("X-Title"))
		assert.Empty(t, r.Header.Get("HTTP-Referer"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "meta-llama/llama-3.2-3b-instruct", body["model"])
		assert.Equal(t, 1024.0, body["max_tokens"])

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{}"}}]}`))
	})

	got, err := c.Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "{}", got)
	assert.Equal(t, "openrouter", c.Name())
}

func TestComplete_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server_error", http.StatusBadGateway, `{"error":{"message":"upstream"}}`, domain.ErrProvider},
		{"rate_limited", http.StatusTooManyRequests, `slow down`, domain.ErrProvider},
		{"error_in_200", http.StatusOK, `{"error":{"message":"no endpoints"}}`, domain.ErrProvider},
		{"no_choices", http.StatusOK, `{"choices":[]}`, domain.ErrEmptyReply},
		{"blank_content", http.StatusOK, `{"choices":[{"message":{"content":"  "}}]}`, domain.ErrEmptyReply},
		{"not_json", http.StatusOK, `<html>`, domain.ErrEmptyReply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Complete(context.Background(), "s", "u")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestComplete_MissingKey(t *testing.T) {
	t.Parallel()
	_, err := New(config.Config{}).Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, domain.ErrProvider)
}
