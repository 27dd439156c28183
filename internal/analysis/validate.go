package analysis

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
)

const (
	maxExperienceYears   = 50
	maxScore             = 100
	maxExperienceBonus   = 20
	experienceBonusShare = 0.3
)

type fieldSpec struct {
	name   string
	def    func() any
	assign func(a *domain.CandidateAnalysis, v any)
}

func nullDefault() any      { return nil }
func emptyListDefault() any { return []any{} }
func zeroDefault() any      { return 0 }

// requiredFields is the fixed set of reply fields with the default each
// receives when still absent after recovery and reconciliation.
var requiredFields = []fieldSpec{
	{"candidate_name", nullDefault, func(a *domain.CandidateAnalysis, v any) { a.CandidateName = optionalText(v) }},
	{"email", nullDefault, func(a *domain.CandidateAnalysis, v any) { a.Email = optionalText(v) }},
	{"phone", nullDefault, func(a *domain.CandidateAnalysis, v any) { a.Phone = optionalText(v) }},
	{"summary", nullDefault, func(a *domain.CandidateAnalysis, v any) { a.Summary = optionalText(v) }},
	{"extracted_skills", emptyListDefault, func(a *domain.CandidateAnalysis, v any) { a.ExtractedSkills = toStringList(v) }},
	{"matched_skills", emptyListDefault, func(a *domain.CandidateAnalysis, v any) { a.MatchedSkills = toStringList(v) }},
	{"missing_skills", emptyListDefault, func(a *domain.CandidateAnalysis, v any) { a.MissingSkills = toStringList(v) }},
	{"experience_years", nullDefault, func(a *domain.CandidateAnalysis, v any) { a.ExperienceYears = optionalInt(v) }},
	{"education", emptyListDefault, func(a *domain.CandidateAnalysis, v any) { a.Education = toStringList(v) }},
	{"skill_match_percentage", zeroDefault, func(a *domain.CandidateAnalysis, v any) { a.SkillMatchPercentage = intValue(v) }},
	{"overall_score", zeroDefault, func(a *domain.CandidateAnalysis, v any) { a.OverallScore = intValue(v) }},
	{"recommendation", func() any { return string(domain.WeakMatch) }, func(a *domain.CandidateAnalysis, v any) {
		s, _ := v.(string)
		a.Recommendation = domain.Recommendation(s)
	}},
	{"strengths", emptyListDefault, func(a *domain.CandidateAnalysis, v any) { a.Strengths = toStringList(v) }},
	{"concerns", emptyListDefault, func(a *domain.CandidateAnalysis, v any) { a.Concerns = toStringList(v) }},
	{"interview_questions", emptyListDefault, func(a *domain.CandidateAnalysis, v any) { a.InterviewQuestions = toStringList(v) }},
}

// Validate builds the final record from the reply fields and the reconciled
// skill sets: experience years are bounded, the match percentage is
// recomputed, the score is clamped or derived, the recommendation follows
// the score, and every absent field takes its default. It cannot fail.
func Validate(f Fields, skills SkillSets, requestedCount int) domain.CandidateAnalysis {
	work := make(Fields, len(f)+3)
	for k, v := range f {
		work[k] = v
	}
	work["extracted_skills"] = skills.Extracted
	work["matched_skills"] = skills.Matched
	work["missing_skills"] = skills.Missing

	var years *int
	if v, ok := work["experience_years"]; ok && v != nil {
		years = boundedYears(v)
		if years != nil {
			work["experience_years"] = *years
		} else {
			work["experience_years"] = nil
		}
	}

	pct := 0
	if requestedCount > 0 {
		pct = clamp(int(math.Round(100*float64(len(skills.Matched))/float64(requestedCount))), 0, maxScore)
	}
	work["skill_match_percentage"] = pct

	var score int
	if n, ok := toNumber(work["overall_score"]); ok {
		score = clamp(int(math.Round(n)), 0, maxScore)
	} else {
		score = derivedScore(pct, years)
	}
	work["overall_score"] = score
	work["recommendation"] = string(domain.RecommendationFor(score))

	var a domain.CandidateAnalysis
	for _, spec := range requiredFields {
		v, ok := work[spec.name]
		if !ok {
			v = spec.def()
		}
		spec.assign(&a, v)
	}
	return a
}

// derivedScore stands in for a missing or non-numeric score: the match
// percentage plus 30% of a bounded experience bonus, truncated.
func derivedScore(pct int, years *int) int {
	bonus := 0
	if years != nil && *years > 0 {
		bonus = min(maxExperienceBonus, *years*2)
	}
	return min(maxScore, int(float64(pct)+float64(bonus)*experienceBonusShare))
}

func boundedYears(v any) *int {
	n, ok := toNumber(v)
	if !ok {
		return nil
	}
	y := int(math.Round(n))
	if y < 0 || y > maxExperienceYears {
		return nil
	}
	return &y
}

// toNumber accepts JSON numbers and numeric strings.
func toNumber(v any) (float64, bool) {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case int:
		n = float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func clamp(v, lo, hi int) int { return max(lo, min(hi, v)) }

func optionalText(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

func optionalInt(v any) *int {
	i, ok := v.(int)
	if !ok {
		return nil
	}
	return &i
}

func intValue(v any) int {
	i, _ := v.(int)
	return i
}
