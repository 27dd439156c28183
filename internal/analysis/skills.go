// Package analysis turns a résumé plus a requested skill list into a
// validated CandidateAnalysis by prompting a completion provider and
// recovering a typed record from its unreliable reply.
package analysis

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

type phrase struct {
	match     string
	canonical string
}

// protectedPhrases are substituted with placeholders before any splitting.
// Order matters: earlier entries win when phrases overlap.
var protectedPhrases = []phrase{
	{"problem solving", "Problem Solving"},
	{"data structures", "Data Structures"},
	{"algorithms & data structures", "Algorithms & Data Structures"},
	{"vs code", "VS Code"},
	{"git & github", "Git & GitHub"},
	{"git github", "Git & GitHub"},
	{"react.js", "React"},
	{"react js", "React"},
	{"node.js", "Node.js"},
	{"node js", "Node.js"},
	{"rest api", "REST API"},
	{"machine learning", "Machine Learning"},
	{"deep learning", "Deep Learning"},
	{"natural language", "NLP"},
	{"artificial intelligence", "AI"},
}

type correction struct {
	pattern     *regexp.Regexp
	replacement string
}

func word(w, replacement string) correction {
	return correction{pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(w) + `\b`), replacement: replacement}
}

// corrections are applied sequentially; "github" must run before "git".
var corrections = []correction{
	word("aws", "AWS"),
	word("php", "PHP"),
	word("python", "Python"),
	word("javascript", "JavaScript"),
	word("react", "React"),
	word("node", "Node.js"),
	word("github", "GitHub"),
	word("git", "Git"),
	word("docker", "Docker"),
	word("kubernetes", "Kubernetes"),
	word("html", "HTML"),
	word("css", "CSS"),
	word("sql", "SQL"),
	word("nosql", "NoSQL"),
	word("ai", "AI"),
	word("ml", "Machine Learning"),
	word("tnsorflow", "TensorFlow"),
	word("pandas", "Pandas"),
	word("numpy", "NumPy"),
}

var stopWords = map[string]struct{}{
	"&": {}, "vs": {}, "and": {}, "or": {}, "the": {}, "a": {}, "an": {},
	"in": {}, "to": {}, "for": {}, "with": {},
}

// shortSkills survive the minimum length filter; keyed lower-case.
var shortSkills = map[string]string{"c": "C", "r": "R", "go": "Go", "java": "Java"}

var (
	reWhitespace  = regexp.MustCompile(`\s+`)
	reAmpersand   = regexp.MustCompile(`\s*&\s*`)
	reDoubleComma = regexp.MustCompile(`,\s*,`)
	reNoise       = regexp.MustCompile(`^[\d\s&\-.]+$`)
)

// NormalizeSkills parses free-form skill input (comma separated, space
// separated or mixed) into distinct canonical labels, first-seen order.
// It never fails; unusable input yields an empty slice.
func NormalizeSkills(input string) []string {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return []string{}
	}

	// Placeholders are upper-case, so they cannot collide with the
	// lower-cased input.
	restore := make([]string, 0, len(protectedPhrases)*2)
	for i, p := range protectedPhrases {
		ph := fmt.Sprintf("@@SKILL%d@@", i)
		s = strings.ReplaceAll(s, p.match, ph)
		restore = append(restore, ph, p.canonical)
	}

	if !strings.Contains(s, ",") {
		s = strings.Join(strings.Fields(s), ", ")
	}

	for _, c := range corrections {
		s = c.pattern.ReplaceAllLiteralString(s, c.replacement)
	}

	s = strings.NewReplacer(restore...).Replace(s)
	s = reAmpersand.ReplaceAllLiteralString(s, " & ")
	s = reDoubleComma.ReplaceAllLiteralString(s, ",")

	out := make([]string, 0)
	seen := make(map[string]struct{})
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(reWhitespace.ReplaceAllLiteralString(tok, " "))
		if tok == "" {
			continue
		}
		lower := strings.ToLower(tok)
		if _, stop := stopWords[lower]; stop {
			continue
		}
		if utf8.RuneCountInString(tok) < 2 {
			canon, ok := shortSkills[lower]
			if !ok {
				continue
			}
			tok = canon
		}
		if reNoise.MatchString(tok) {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// JoinSkills renders a normalized list the way it is shown to the model.
func JoinSkills(skills []string) string {
	return strings.Join(skills, ", ")
}
