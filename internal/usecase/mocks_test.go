package usecase

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/analysis"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
)

// stubAnalyzer answers by document text.
type stubAnalyzer struct {
	mu      sync.Mutex
	calls   int
	results map[string]analysis.Report
	errs    map[string]error
}

func (s *stubAnalyzer) Run(_ context.Context, doc, _, _ string) (analysis.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err, ok := s.errs[doc]; ok {
		return analysis.Report{}, err
	}
	return s.results[doc], nil
}

func report(score int) analysis.Report {
	return analysis.Report{
		Analysis: domain.CandidateAnalysis{OverallScore: score, Recommendation: domain.RecommendationFor(score)},
		Tier:     domain.TierStrict,
	}
}

type mockRepo struct{ mock.Mock }

func (m *mockRepo) Create(ctx domain.Context, r domain.AnalysisRecord) (string, error) {
	ret := m.Called(ctx, r)
	return ret.String(0), ret.Error(1)
}

func (m *mockRepo) UpdateStatus(ctx domain.Context, id string, status domain.JobStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *mockRepo) Complete(ctx domain.Context, id string, a domain.CandidateAnalysis, tier domain.ParseTier) error {
	return m.Called(ctx, id, a, tier).Error(0)
}

func (m *mockRepo) Fail(ctx domain.Context, id string, f *domain.AnalysisFailure) error {
	return m.Called(ctx, id, f).Error(0)
}

func (m *mockRepo) Get(ctx domain.Context, id string) (domain.AnalysisRecord, error) {
	ret := m.Called(ctx, id)
	return ret.Get(0).(domain.AnalysisRecord), ret.Error(1)
}

func (m *mockRepo) ListByBatch(ctx domain.Context, batchID string) ([]domain.AnalysisRecord, error) {
	ret := m.Called(ctx, batchID)
	recs, _ := ret.Get(0).([]domain.AnalysisRecord)
	return recs, ret.Error(1)
}

// mapCache is an in-memory domain.AnalysisCache.
type mapCache struct {
	mu     sync.Mutex
	data   map[string]domain.CandidateAnalysis
	getErr error
}

func newMapCache() *mapCache { return &mapCache{data: map[string]domain.CandidateAnalysis{}} }

func (c *mapCache) Get(_ domain.Context, key string) (domain.CandidateAnalysis, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return domain.CandidateAnalysis{}, false, c.getErr
	}
	a, ok := c.data[key]
	return a, ok, nil
}

func (c *mapCache) Set(_ domain.Context, key string, a domain.CandidateAnalysis) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = a
	return nil
}

type mockQueue struct{ mock.Mock }

func (m *mockQueue) EnqueueAnalyze(ctx domain.Context, p domain.AnalyzeJobPayload) (string, error) {
	ret := m.Called(ctx, p)
	return ret.String(0), ret.Error(1)
}
