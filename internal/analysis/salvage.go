package analysis

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	stringFieldKeys  = []string{"candidate_name", "email", "phone", "recommendation"}
	numberFieldKeys  = []string{"experience_years", "skill_match_percentage", "overall_score"}
	listFieldKeys    = []string{"extracted_skills", "matched_skills", "missing_skills", "education", "strengths", "concerns", "interview_questions"}
	reQuoted         = regexp.MustCompile(`"([^"]*)"`)
	reSummary        = regexp.MustCompile(`"summary"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	reSummaryEscapes = strings.NewReplacer(`\n`, " ", `\r`, " ", `\t`, " ", `\"`, `"`)
)

type listPatterns struct {
	closed   *regexp.Regexp
	unclosed *regexp.Regexp
}

var (
	stringPatterns = compileKeyed(stringFieldKeys, `"%s"\s*:\s*"([^"]*)"`)
	numberPatterns = compileKeyed(numberFieldKeys, `"%s"\s*:\s*"?(-?\d+(?:\.\d+)?)`)
	listPatternSet = func() map[string]listPatterns {
		closed := compileKeyed(listFieldKeys, `"%s"\s*:\s*\[([^\]]*)\]`)
		unclosed := compileKeyed(listFieldKeys, `"%s"\s*:\s*\[([^,}]*)(?:,|}|$)`)
		out := make(map[string]listPatterns, len(listFieldKeys))
		for _, k := range listFieldKeys {
			out[k] = listPatterns{closed: closed[k], unclosed: unclosed[k]}
		}
		return out
	}()
)

func compileKeyed(keys []string, format string) map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(keys))
	for _, k := range keys {
		out[k] = regexp.MustCompile(strings.Replace(format, "%s", regexp.QuoteMeta(k), 1))
	}
	return out
}

// SalvageFields pulls each expected field out of text that need not be
// well-formed JSON. Fields that cannot be found are left out.
func SalvageFields(content string) Fields {
	out := Fields{}

	for _, k := range stringFieldKeys {
		if m := stringPatterns[k].FindStringSubmatch(content); m != nil {
			out[k] = m[1]
		}
	}
	if m := reSummary.FindStringSubmatch(content); m != nil {
		out["summary"] = reSummaryEscapes.Replace(m[1])
	}
	for _, k := range numberFieldKeys {
		if m := numberPatterns[k].FindStringSubmatch(content); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				out[k] = v
			}
		}
	}
	for _, k := range listFieldKeys {
		if items, ok := salvageList(content, listPatternSet[k]); ok {
			out[k] = items
		}
	}
	return out
}

func salvageList(content string, p listPatterns) ([]any, bool) {
	m := p.closed.FindStringSubmatch(content)
	if m == nil {
		m = p.unclosed.FindStringSubmatch(content)
	}
	if m == nil {
		return nil, false
	}
	items := make([]any, 0)
	for _, q := range reQuoted.FindAllStringSubmatch(m[1], -1) {
		if v := strings.TrimSpace(q[1]); v != "" {
			items = append(items, v)
		}
	}
	return items, true
}
