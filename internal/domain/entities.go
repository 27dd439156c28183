package domain

import (
	"context"
	"time"
)

// Recommendation is the categorical tier derived from overall_score.
type Recommendation string

const (
	StrongMatch  Recommendation = "STRONG_MATCH"
	GoodMatch    Recommendation = "GOOD_MATCH"
	PartialMatch Recommendation = "PARTIAL_MATCH"
	WeakMatch    Recommendation = "WEAK_MATCH"
)

// RecommendationFor maps a 0-100 score onto its tier.
func RecommendationFor(score int) Recommendation {
	switch {
	case score >= 85:
		return StrongMatch
	case score >= 70:
		return GoodMatch
	case score >= 50:
		return PartialMatch
	default:
		return WeakMatch
	}
}

// CandidateAnalysis is the canonical analysis record.
// Invariants: MatchedSkills and MissingSkills are disjoint and together cover
// the requested skills; MatchedSkills is a subset of the requested skills.
type CandidateAnalysis struct {
	CandidateName        *string        `json:"candidate_name" yaml:"candidate_name"`
	Email                *string        `json:"email" yaml:"email"`
	Phone                *string        `json:"phone" yaml:"phone"`
	Summary              *string        `json:"summary" yaml:"summary"`
	ExtractedSkills      []string       `json:"extracted_skills" yaml:"extracted_skills"`
	MatchedSkills        []string       `json:"matched_skills" yaml:"matched_skills"`
	MissingSkills        []string       `json:"missing_skills" yaml:"missing_skills"`
	ExperienceYears      *int           `json:"experience_years" yaml:"experience_years"`
	Education            []string       `json:"education" yaml:"education"`
	SkillMatchPercentage int            `json:"skill_match_percentage" yaml:"skill_match_percentage"`
	OverallScore         int            `json:"overall_score" yaml:"overall_score"`
	Recommendation       Recommendation `json:"recommendation" yaml:"recommendation"`
	Strengths            []string       `json:"strengths" yaml:"strengths"`
	Concerns             []string       `json:"concerns" yaml:"concerns"`
	InterviewQuestions   []string       `json:"interview_questions" yaml:"interview_questions"`
}

// ParseTier records which recovery stage produced the reply field map.
type ParseTier string

const (
	TierStrict   ParseTier = "strict"
	TierRepaired ParseTier = "repaired"
	TierSalvaged ParseTier = "salvaged"
	TierNone     ParseTier = "none"
)

// Degraded reports whether the record was completed from a partial salvage.
func (t ParseTier) Degraded() bool { return t == TierSalvaged }

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Document is one uploaded file after text extraction.
type Document struct {
	FileName  string
	SizeBytes int64
	Text      string
	// Err is set when the file could not be turned into text; such documents
	// are reported per item and never reach the pipeline.
	Err error
}

// AnalysisRecord is the persisted view of one document's analysis.
type AnalysisRecord struct {
	ID             string
	BatchID        string
	FileName       string
	Status         JobStatus
	Error          string
	FailureKind    FailureKind
	RawPreview     string
	ParseTier      ParseTier
	RequiredSkills string
	RoleLevel      string
	OverallScore   *int
	Analysis       *CandidateAnalysis
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AnalyzeJobPayload is the message carried by the async queue.
type AnalyzeJobPayload struct {
	JobID          string `json:"job_id"`
	BatchID        string `json:"batch_id"`
	FileName       string `json:"file_name"`
	DocumentText   string `json:"document_text"`
	RequiredSkills string `json:"required_skills"`
	RoleLevel      string `json:"role_level"`
}

// Ports

// CompletionProvider sends one system+user instruction pair to a generative
// text service and returns the raw reply text.
type CompletionProvider interface {
	Complete(ctx Context, systemPrompt, userPrompt string) (string, error)
	Name() string
}

// TextExtractor turns a binary document into plain text.
type TextExtractor interface {
	Extract(ctx Context, fileName string, data []byte) (string, error)
}

type AnalysisRepository interface {
	Create(ctx Context, r AnalysisRecord) (string, error)
	UpdateStatus(ctx Context, id string, status JobStatus) error
	Complete(ctx Context, id string, a CandidateAnalysis, tier ParseTier) error
	Fail(ctx Context, id string, f *AnalysisFailure) error
	Get(ctx Context, id string) (AnalysisRecord, error)
	ListByBatch(ctx Context, batchID string) ([]AnalysisRecord, error)
}

type AnalysisCache interface {
	Get(ctx Context, key string) (CandidateAnalysis, bool, error)
	Set(ctx Context, key string, a CandidateAnalysis) error
}

type Queue interface {
	EnqueueAnalyze(ctx Context, payload AnalyzeJobPayload) (string, error)
}

// Context aliases the std context so ports read uniformly.
type Context = context.Context
