package tokencount

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseModelName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"gpt-4", "gpt-4"},
		{"meta-llama/llama-3.2-3b-instruct:free", "llama-3.2-3b-instruct"},
		{"  Qwen/Qwen2-7B-Instruct ", "qwen2-7b-instruct"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, baseModelName(tt.in), tt.in)
	}
}

func TestCounter_Count(t *testing.T) {
	t.Parallel()

	c := New("meta-llama/llama-3.2-3b-instruct")
	assert.Equal(t, "meta-llama/llama-3.2-3b-instruct", c.Model())
	assert.Zero(t, c.Count(""))
	assert.Positive(t, c.Count("Senior Go engineer with Kubernetes experience"))
	assert.Greater(t, c.Count("hello world, this is a longer sentence"), c.Count("hello"))
}

func TestCounter_CountChatIncludesFraming(t *testing.T) {
	t.Parallel()

	c := New("gpt-4")
	plain := c.Count("sys") + c.Count("user prompt")
	assert.Greater(t, c.CountChat("sys", "user prompt"), plain)
}

func TestCounter_EstimateWithoutEncoding(t *testing.T) {
	t.Parallel()

	c := &Counter{model: "x"}
	assert.Equal(t, 3, c.Count("abcdefghij"))
	assert.Equal(t, replyPriming+2*(tokensPerMessage+tokensPerRole)+2+1+0+0, c.CountChat("", ""))
}
