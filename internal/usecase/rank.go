package usecase

import (
	"cmp"
	"slices"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
)

// RankOutcomes returns outcomes ordered by overall score, highest first,
// with failures after every success. Ties keep upload order.
func RankOutcomes(in []Outcome) []Outcome {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b Outcome) int {
		switch {
		case a.OK() && !b.OK():
			return -1
		case !a.OK() && b.OK():
			return 1
		case !a.OK():
			return 0
		}
		return cmp.Compare(b.Analysis.OverallScore, a.Analysis.OverallScore)
	})
	return out
}

// RankRecords orders stored records the way RankOutcomes orders live ones.
// Records without a score (queued, processing, failed) go last.
func RankRecords(in []domain.AnalysisRecord) []domain.AnalysisRecord {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b domain.AnalysisRecord) int {
		switch {
		case a.OverallScore != nil && b.OverallScore == nil:
			return -1
		case a.OverallScore == nil && b.OverallScore != nil:
			return 1
		case a.OverallScore == nil:
			return 0
		}
		return cmp.Compare(*b.OverallScore, *a.OverallScore)
	})
	return out
}
