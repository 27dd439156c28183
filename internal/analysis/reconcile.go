package analysis

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// minPartialMatchLen is the length the shorter of two skill names must
// exceed before a substring relation counts as a match ("go" must not match
// "django").
const minPartialMatchLen = 3

// SkillSets is the reconciled skill classification. All lists are
// lower-cased and free of duplicates.
type SkillSets struct {
	Extracted []string
	Matched   []string
	Missing   []string
	// Dropped counts extracted entries discarded as unverified copies of
	// requested skills.
	Dropped int
}

// Reconcile rebuilds the extracted/matched/missing skill lists from the
// reply fields, the requested skills and the source document. The model's
// own matched and missing lists are not trusted; classification is
// recomputed from the verified extracted skills. It is pure and never fails.
func Reconcile(f Fields, requested []string, document string) SkillSets {
	extracted := toStringList(f["extracted_skills"])

	requestedLower := make(map[string]struct{}, len(requested))
	for _, r := range requested {
		requestedLower[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}

	docLower := strings.ToLower(document)
	verified := make([]string, 0, len(extracted))
	dropped := 0
	for _, e := range extracted {
		el := strings.ToLower(e)
		if _, isRequested := requestedLower[el]; isRequested && !observedInDocument(docLower, el) {
			dropped++
			continue
		}
		verified = append(verified, e)
	}

	matched := make([]string, 0, len(requested))
	for _, r := range requested {
		if matchesAny(r, verified) {
			matched = append(matched, r)
		}
	}
	missing := make([]string, 0, len(requested))
	for _, r := range requested {
		if !matchesAny(r, matched) {
			missing = append(missing, r)
		}
	}

	matched, missing = partition(matched, missing, requested)

	return SkillSets{
		Extracted: lowerUnique(verified),
		Matched:   lowerUnique(matched),
		Missing:   lowerUnique(missing),
		Dropped:   dropped,
	}
}

// observedInDocument accepts a requested skill echoed in extracted_skills
// only when the document mentions it at least twice or lists it right
// after the word "skill".
func observedInDocument(docLower, skillLower string) bool {
	return strings.Count(docLower, skillLower) >= 2 || strings.Contains(docLower, "skill"+skillLower)
}

func skillMatches(required, candidate string) bool {
	r := strings.ToLower(strings.TrimSpace(required))
	c := strings.ToLower(strings.TrimSpace(candidate))
	if r == "" || c == "" {
		return false
	}
	if r == c {
		return true
	}
	if strings.Contains(c, r) || strings.Contains(r, c) {
		return min(utf8.RuneCountInString(r), utf8.RuneCountInString(c)) > minPartialMatchLen
	}
	return false
}

func matchesAny(required string, candidates []string) bool {
	for _, c := range candidates {
		if skillMatches(required, c) {
			return true
		}
	}
	return false
}

// partition makes matched and missing disjoint subsets of requested that
// together cover it. Anything unclassified lands in missing.
func partition(matched, missing, requested []string) ([]string, []string) {
	req := make(map[string]string, len(requested))
	for _, r := range requested {
		req[strings.ToLower(r)] = r
	}

	inMatched := make(map[string]struct{}, len(matched))
	m := make([]string, 0, len(matched))
	for _, s := range matched {
		k := strings.ToLower(s)
		if _, ok := req[k]; !ok {
			continue
		}
		if _, dup := inMatched[k]; dup {
			continue
		}
		inMatched[k] = struct{}{}
		m = append(m, s)
	}

	inMissing := make(map[string]struct{}, len(missing))
	miss := make([]string, 0, len(missing))
	for _, s := range missing {
		k := strings.ToLower(s)
		if _, ok := req[k]; !ok {
			continue
		}
		if _, taken := inMatched[k]; taken {
			continue
		}
		if _, dup := inMissing[k]; dup {
			continue
		}
		inMissing[k] = struct{}{}
		miss = append(miss, s)
	}

	for _, r := range requested {
		k := strings.ToLower(r)
		_, a := inMatched[k]
		_, b := inMissing[k]
		if !a && !b {
			inMissing[k] = struct{}{}
			miss = append(miss, r)
		}
	}
	return m, miss
}

func lowerUnique(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		l := strings.ToLower(strings.TrimSpace(s))
		if l == "" {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// toStringList coerces a decoded JSON value into trimmed, non-empty strings.
// Non-list values become an empty list.
func toStringList(v any) []string {
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case []string:
		items = make([]any, len(t))
		for i, s := range t {
			items[i] = s
		}
	default:
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		var s string
		switch x := it.(type) {
		case string:
			s = x
		case float64, bool:
			s = fmt.Sprint(x)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
