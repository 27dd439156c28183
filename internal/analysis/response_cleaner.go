package analysis

import (
	"regexp"
	"strings"
)

var (
	reLeadingFence  = regexp.MustCompile("(?i)^```(?:json)?\\s*")
	reTrailingFence = regexp.MustCompile("\\s*```$")
)

// ExtractJSON narrows a raw reply to its JSON payload: trims, strips one
// code fence, then cuts to the span between the first '{' and the last '}'.
// Input without a '{' is returned trimmed and otherwise unchanged.
func ExtractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = reLeadingFence.ReplaceAllLiteralString(s, "")
	s = reTrailingFence.ReplaceAllLiteralString(s, "")
	s = strings.TrimSpace(s)

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return strings.TrimSpace(s)
}
