package analysis

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
)

// Fields is the provisional field map decoded from a reply. Values carry
// encoding/json's generic types (string, float64, []any, nil, ...).
type Fields map[string]any

// Recovery is the outcome of RecoverFields.
type Recovery struct {
	Fields Fields
	Tier   domain.ParseTier
}

// RecoverFields parses an extracted reply with three ordered attempts:
// strict decode, decode after syntactic repair, and per-field regex
// salvage. It never fails; an empty Fields means nothing was usable.
func RecoverFields(extracted string) Recovery {
	if f, ok := decodeObject(extracted); ok {
		return Recovery{Fields: f, Tier: domain.TierStrict}
	}
	repaired := RepairJSON(extracted)
	if f, ok := decodeObject(repaired); ok {
		return Recovery{Fields: f, Tier: domain.TierRepaired}
	}
	// Salvage reads the text as the model wrote it; the repaired text only
	// fills fields the original hides behind single quotes.
	f := SalvageFields(extracted)
	for k, v := range SalvageFields(repaired) {
		if _, ok := f[k]; !ok {
			f[k] = v
		}
	}
	if len(f) == 0 {
		return Recovery{Fields: Fields{}, Tier: domain.TierNone}
	}
	return Recovery{Fields: f, Tier: domain.TierSalvaged}
}

// decodeObject succeeds only for a non-empty JSON object.
func decodeObject(s string) (Fields, bool) {
	var f Fields
	if err := json.Unmarshal([]byte(s), &f); err != nil {
		return nil, false
	}
	return f, len(f) > 0
}

// RepairJSON fixes the syntax errors models commonly produce. It scans the
// text once, tracking whether it is inside a string literal, and:
//   - escapes raw newlines, carriage returns and tabs inside strings
//   - drops other raw control characters
//   - escapes stray quotes and invalid backslash escapes inside strings
//   - rewrites single-quoted strings as double-quoted
//   - quotes bare object keys
//   - drops trailing commas before a closer or at end of input
//   - rewrites Python-style None/True/False values
//   - closes an unterminated string, then appends missing ']' and '}'
//
// Text before the first '{' is discarded.
func RepairJSON(s string) string {
	if i := strings.IndexByte(s, '{'); i > 0 {
		s = s[i:]
	}
	var b strings.Builder
	b.Grow(len(s) + 16)

	rs := []rune(s)
	n := len(rs)
	braces, brackets := 0, 0

	for i := 0; i < n; i++ {
		r := rs[i]
		switch {
		case r == '"':
			i = writeString(&b, rs, i+1, '"')
		case r == '\'':
			i = writeString(&b, rs, i+1, '\'')
		case r == ',':
			j := skipSpace(rs, i+1)
			if j >= n || rs[j] == '}' || rs[j] == ']' {
				continue
			}
			b.WriteRune(r)
		case r == '{':
			braces++
			b.WriteRune(r)
		case r == '}':
			braces--
			b.WriteRune(r)
		case r == '[':
			brackets++
			b.WriteRune(r)
		case r == ']':
			brackets--
			b.WriteRune(r)
		case isIdentStart(r):
			j := i
			for j < n && isIdentPart(rs[j]) {
				j++
			}
			ident := string(rs[i:j])
			k := skipSpace(rs, j)
			if k < n && rs[k] == ':' && !isLiteral(ident) {
				b.WriteByte('"')
				b.WriteString(ident)
				b.WriteByte('"')
			} else if lit, ok := pythonLiterals[ident]; ok {
				b.WriteString(lit)
			} else {
				b.WriteString(ident)
			}
			i = j - 1
		case isDisallowedControl(r):
			// dropped
		default:
			b.WriteRune(r)
		}
	}

	for ; brackets > 0; brackets-- {
		b.WriteByte(']')
	}
	for ; braces > 0; braces-- {
		b.WriteByte('}')
	}
	return strings.TrimSpace(b.String())
}

// writeString emits a double-quoted JSON string whose body starts at rs[i]
// and ends at the matching quote. It returns the index of that quote, or of
// the last rune when the string is unterminated.
func writeString(b *strings.Builder, rs []rune, i int, quote rune) int {
	n := len(rs)
	b.WriteByte('"')
	for ; i < n; i++ {
		r := rs[i]
		switch {
		case r == '\\':
			if i+1 < n && strings.ContainsRune(`"\/bfnrtu'`, rs[i+1]) {
				if rs[i+1] == '\'' {
					b.WriteRune('\'')
				} else {
					b.WriteRune('\\')
					b.WriteRune(rs[i+1])
				}
				i++
				continue
			}
			b.WriteString(`\\`)
		case r == quote:
			if closesString(rs, i+1) {
				b.WriteByte('"')
				return i
			}
			if quote == '"' {
				b.WriteString(`\"`)
			} else {
				b.WriteRune(r)
			}
		case r == '"':
			b.WriteString(`\"`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20:
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return n - 1
}

// closesString reports whether a quote followed by rs[i:] plausibly ends a
// string literal rather than being embedded in it.
func closesString(rs []rune, i int) bool {
	j := skipSpace(rs, i)
	if j >= len(rs) {
		return true
	}
	switch rs[j] {
	case ',', ':', '}', ']':
		return true
	}
	return false
}

func skipSpace(rs []rune, i int) int {
	for i < len(rs) && unicode.IsSpace(rs[i]) {
		i++
	}
	return i
}

func isIdentStart(r rune) bool { return r == '_' || (r < 0x80 && unicode.IsLetter(r)) }

func isIdentPart(r rune) bool { return isIdentStart(r) || (r >= '0' && r <= '9') }

var pythonLiterals = map[string]string{"None": "null", "True": "true", "False": "false"}

func isLiteral(s string) bool { return s == "true" || s == "false" || s == "null" }

// isDisallowedControl matches [\x00-\x08\x0B\x0C\x0E-\x1F]. Whitespace
// control characters between tokens are kept.
func isDisallowedControl(r rune) bool {
	return r < 0x20 && r != '\n' && r != '\r' && r != '\t'
}
