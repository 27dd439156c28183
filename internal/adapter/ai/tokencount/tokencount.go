// Package tokencount estimates prompt sizes with tiktoken-go.
//
// Encodings load from the embedded offline loader so counting never reaches
// the network. Open models (Llama, Mistral, Qwen) have no tiktoken encoding;
// cl100k_base is close enough for sizing prompts.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const fallbackEncoding = "cl100k_base"

// Chat framing overhead for OpenAI-compatible message lists.
const (
	tokensPerMessage = 3
	tokensPerRole    = 1
	replyPriming     = 3
)

var loaderOnce sync.Once

// Counter counts tokens for one model. A nil encoding means the encoding
// could not be loaded and counts fall back to a character estimate.
type Counter struct {
	model string
	enc   *tiktoken.Tiktoken
}

// New returns a counter for model, resolving provider-prefixed ids such as
// "meta-llama/llama-3.2-3b-instruct:free".
func New(model string) *Counter {
	loaderOnce.Do(func() { tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader()) })

	name := baseModelName(model)
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		slog.Warn("token encoding unavailable, using estimate", slog.String("model", model), slog.Any("error", err))
		enc = nil
	}
	return &Counter{model: model, enc: enc}
}

func baseModelName(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	if i := strings.Index(m, ":"); i >= 0 {
		m = m[:i]
	}
	return m
}

// Model returns the model id the counter was built for.
func (c *Counter) Model() string { return c.model }

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	if c.enc == nil {
		return estimate(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// CountChat counts a system+user message pair including message framing.
func (c *Counter) CountChat(systemPrompt, userPrompt string) int {
	n := replyPriming
	for _, m := range [][2]string{{"system", systemPrompt}, {"user", userPrompt}} {
		n += tokensPerMessage + tokensPerRole + c.Count(m[0]) + c.Count(m[1])
	}
	return n
}

// estimate assumes roughly four bytes per token.
func estimate(text string) int {
	return (len(text) + 3) / 4
}
