package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/analysis"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
)

var req = AnalyzeRequest{RequiredSkills: "python, aws", RoleLevel: "Senior"}

func TestCacheKey(t *testing.T) {
	t.Parallel()

	k := CacheKey("doc", "python aws", "Senior")
	assert.True(t, strings.HasPrefix(k, "analysis:v1:"))
	assert.Len(t, k, len("analysis:v1:")+64)

	assert.Equal(t, k, CacheKey("doc", "Python, AWS", " senior "), "normalized skills and role casing share a key")
	assert.NotEqual(t, k, CacheKey("doc2", "python aws", "senior"))
	assert.NotEqual(t, k, CacheKey("doc", "python", "senior"))
	assert.NotEqual(t, k, CacheKey("doc", "python aws", "junior"))
}

func TestAnalyzeOne_SuccessCachesAndPersists(t *testing.T) {
	t.Parallel()

	an := &stubAnalyzer{results: map[string]analysis.Report{"cv text": report(82)}}
	repo := &mockRepo{}
	cache := newMapCache()
	repo.On("Create", mock.Anything, mock.MatchedBy(func(r domain.AnalysisRecord) bool {
		return r.Status == domain.JobProcessing && r.FileName == "a.pdf" && r.BatchID == ""
	})).Return("id", nil).Twice()
	repo.On("Complete", mock.Anything, mock.Anything, mock.Anything, domain.TierStrict).Return(nil).Once()
	repo.On("Complete", mock.Anything, mock.Anything, mock.Anything, domain.ParseTier("")).Return(nil).Once()

	svc := NewAnalyzeService(an, repo, cache, nil, 2)
	doc := domain.Document{FileName: "a.pdf", SizeBytes: 10, Text: "cv text"}

	first := svc.AnalyzeOne(context.Background(), doc, req)
	require.True(t, first.OK())
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, 82, first.Analysis.OverallScore)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, first.FileIndex)

	second := svc.AnalyzeOne(context.Background(), doc, req)
	require.True(t, second.OK())
	assert.True(t, second.Cached)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, an.calls, "cache hit skips the pipeline")
	repo.AssertExpectations(t)
}

func TestAnalyzeOne_FailurePersistedNotCached(t *testing.T) {
	t.Parallel()

	failure := domain.NewFailure(domain.FailureUnrecoverable, "no fields", "garbage", nil)
	an := &stubAnalyzer{errs: map[string]error{"cv": failure}}
	repo := &mockRepo{}
	cache := newMapCache()
	repo.On("Create", mock.Anything, mock.Anything).Return("id", nil).Once()
	repo.On("Fail", mock.Anything, mock.Anything, failure).Return(nil).Once()

	o := NewAnalyzeService(an, repo, cache, nil, 1).AnalyzeOne(context.Background(), domain.Document{FileName: "a.txt", Text: "cv"}, req)
	assert.False(t, o.OK())
	assert.ErrorIs(t, o.Err, domain.ErrUnrecoverableReply)
	assert.Empty(t, cache.data)
	repo.AssertExpectations(t)
}

func TestAnalyzeOne_StorageErrorsDoNotFail(t *testing.T) {
	t.Parallel()

	an := &stubAnalyzer{results: map[string]analysis.Report{"cv": report(50)}}
	repo := &mockRepo{}
	repo.On("Create", mock.Anything, mock.Anything).Return("", errors.New("db down")).Once()
	cache := newMapCache()
	cache.getErr = errors.New("redis down")

	o := NewAnalyzeService(an, repo, cache, nil, 1).AnalyzeOne(context.Background(), domain.Document{FileName: "a.txt", Text: "cv"}, req)
	require.True(t, o.OK())
	assert.Equal(t, 50, o.Analysis.OverallScore)
	repo.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalyzeBatch_RanksAndIsolatesFailures(t *testing.T) {
	t.Parallel()

	an := &stubAnalyzer{
		results: map[string]analysis.Report{"a": report(40), "b": report(90), "d": report(90)},
		errs:    map[string]error{"c": domain.NewFailure(domain.FailureProvider, "down", "", nil)},
	}
	docs := []domain.Document{
		{FileName: "a.pdf", Text: "a"},
		{FileName: "b.pdf", Text: "b"},
		{FileName: "c.pdf", Text: "c"},
		{FileName: "x.odt", Err: fmt.Errorf("%w: odt", domain.ErrUnsupportedMedia)},
		{FileName: "d.pdf", Text: "d"},
	}

	batchID, out := NewAnalyzeService(an, nil, nil, nil, 3).AnalyzeBatch(context.Background(), docs, req)
	assert.NotEmpty(t, batchID)
	require.Len(t, out, 5)

	names := make([]string, len(out))
	indexes := make([]int, len(out))
	for i, o := range out {
		names[i] = o.FileName
		indexes[i] = o.FileIndex
	}
	assert.Equal(t, []string{"b.pdf", "d.pdf", "a.pdf", "c.pdf", "x.odt"}, names)
	assert.Equal(t, []int{2, 5, 1, 3, 4}, indexes)
	assert.ErrorIs(t, out[3].Err, domain.ErrProvider)
	assert.ErrorIs(t, out[4].Err, domain.ErrUnsupportedMedia)
	assert.Empty(t, out[4].ID)
	assert.Equal(t, 4, an.calls)
}

func TestRankOutcomes_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	a := domain.CandidateAnalysis{OverallScore: 10}
	b := domain.CandidateAnalysis{OverallScore: 20}
	in := []Outcome{{FileName: "a", Analysis: &a}, {FileName: "b", Analysis: &b}}
	out := RankOutcomes(in)
	assert.Equal(t, "b", out[0].FileName)
	assert.Equal(t, "a", in[0].FileName)
	assert.Empty(t, RankOutcomes(nil))
}

func TestEnqueue(t *testing.T) {
	t.Parallel()

	repo := &mockRepo{}
	q := &mockQueue{}
	repo.On("Create", mock.Anything, mock.MatchedBy(func(r domain.AnalysisRecord) bool { return r.FileName == "ok.pdf" })).Return("job-ok", nil).Once()
	repo.On("Create", mock.Anything, mock.MatchedBy(func(r domain.AnalysisRecord) bool { return r.FileName == "lost.pdf" })).Return("job-lost", nil).Once()
	q.On("EnqueueAnalyze", mock.Anything, mock.MatchedBy(func(p domain.AnalyzeJobPayload) bool {
		return p.JobID == "job-ok" && p.DocumentText == "ok text" && p.RoleLevel == "Senior" && p.BatchID != ""
	})).Return("job-ok", nil).Once()
	q.On("EnqueueAnalyze", mock.Anything, mock.MatchedBy(func(p domain.AnalyzeJobPayload) bool { return p.JobID == "job-lost" })).
		Return("", errors.New("broker down")).Once()
	repo.On("UpdateStatus", mock.Anything, "job-lost", domain.JobFailed).Return(nil).Once()

	svc := NewAnalyzeService(&stubAnalyzer{}, repo, nil, q, 1)
	require.True(t, svc.AsyncEnabled())
	batchID, jobs, err := svc.Enqueue(context.Background(), []domain.Document{
		{FileName: "ok.pdf", Text: "ok text"},
		{FileName: "bad.odt", Err: domain.ErrUnsupportedMedia},
		{FileName: "lost.pdf", Text: "lost text"},
	}, req)
	require.NoError(t, err)
	assert.NotEmpty(t, batchID)
	require.Len(t, jobs, 3)
	assert.Equal(t, EnqueuedJob{ID: "job-ok", FileName: "ok.pdf", Status: "queued"}, jobs[0])
	assert.Equal(t, "error", jobs[1].Status)
	assert.Equal(t, "error", jobs[2].Status)
	repo.AssertExpectations(t)
	q.AssertExpectations(t)
}

func TestEnqueue_Disabled(t *testing.T) {
	t.Parallel()

	svc := NewAnalyzeService(&stubAnalyzer{}, nil, nil, nil, 0)
	assert.False(t, svc.AsyncEnabled())
	assert.Equal(t, 1, svc.Concurrency)
	_, _, err := svc.Enqueue(context.Background(), nil, req)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestProcessJob(t *testing.T) {
	t.Parallel()

	payload := domain.AnalyzeJobPayload{JobID: "j1", DocumentText: "cv", RequiredSkills: "python", RoleLevel: "mid"}

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		repo := &mockRepo{}
		repo.On("UpdateStatus", mock.Anything, "j1", domain.JobProcessing).Return(nil).Once()
		repo.On("Complete", mock.Anything, "j1", mock.Anything, domain.TierStrict).Return(nil).Once()
		svc := NewAnalyzeService(&stubAnalyzer{results: map[string]analysis.Report{"cv": report(75)}}, repo, newMapCache(), nil, 1)
		require.NoError(t, svc.ProcessJob(context.Background(), payload))
		repo.AssertExpectations(t)
	})

	t.Run("failure_returned_untouched", func(t *testing.T) {
		t.Parallel()
		failure := domain.NewFailure(domain.FailureProvider, "down", "", nil)
		repo := &mockRepo{}
		repo.On("UpdateStatus", mock.Anything, "j1", domain.JobProcessing).Return(nil).Once()
		svc := NewAnalyzeService(&stubAnalyzer{errs: map[string]error{"cv": failure}}, repo, nil, nil, 1)
		err := svc.ProcessJob(context.Background(), payload)
		assert.Same(t, failure, err)
		repo.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing_record", func(t *testing.T) {
		t.Parallel()
		repo := &mockRepo{}
		repo.On("UpdateStatus", mock.Anything, "j1", domain.JobProcessing).Return(domain.ErrNotFound).Once()
		an := &stubAnalyzer{}
		err := NewAnalyzeService(an, repo, nil, nil, 1).ProcessJob(context.Background(), payload)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Zero(t, an.calls)
	})
}

func TestFailJob(t *testing.T) {
	t.Parallel()

	repo := &mockRepo{}
	svc := NewAnalyzeService(&stubAnalyzer{}, repo, nil, nil, 1)
	failure := domain.NewFailure(domain.FailureEmptyReply, "empty", "", nil)
	repo.On("Fail", mock.Anything, "j1", failure).Return(nil).Once()
	repo.On("Fail", mock.Anything, "j2", mock.MatchedBy(func(f *domain.AnalysisFailure) bool {
		return f.Message == "db down" && f.Kind == ""
	})).Return(nil).Once()

	require.NoError(t, svc.FailJob(context.Background(), domain.AnalyzeJobPayload{JobID: "j1"}, failure))
	require.NoError(t, svc.FailJob(context.Background(), domain.AnalyzeJobPayload{JobID: "j2"}, errors.New("db down")))
	repo.AssertExpectations(t)
}

func TestGet(t *testing.T) {
	t.Parallel()

	_, err := NewAnalyzeService(&stubAnalyzer{}, nil, nil, nil, 1).Get(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	repo := &mockRepo{}
	repo.On("Get", mock.Anything, "x").Return(domain.AnalysisRecord{ID: "x", Status: domain.JobQueued}, nil).Once()
	rec, err := NewAnalyzeService(&stubAnalyzer{}, repo, nil, nil, 1).Get(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, domain.JobQueued, rec.Status)
}

func TestBatch(t *testing.T) {
	t.Parallel()

	score := func(n int) *int { return &n }
	repo := &mockRepo{}
	repo.On("ListByBatch", mock.Anything, "b1").Return([]domain.AnalysisRecord{
		{ID: "queued", Status: domain.JobQueued},
		{ID: "low", Status: domain.JobCompleted, OverallScore: score(40)},
		{ID: "failed", Status: domain.JobFailed},
		{ID: "high", Status: domain.JobCompleted, OverallScore: score(90)},
	}, nil).Once()
	repo.On("ListByBatch", mock.Anything, "empty").Return(nil, nil).Once()
	repo.On("ListByBatch", mock.Anything, "broken").Return(nil, errors.New("db down")).Once()
	svc := NewAnalyzeService(&stubAnalyzer{}, repo, nil, nil, 1)

	recs, err := svc.Batch(context.Background(), "b1")
	require.NoError(t, err)
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"high", "low", "queued", "failed"}, ids)

	_, err = svc.Batch(context.Background(), "empty")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Batch(context.Background(), "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)

	_, err = NewAnalyzeService(&stubAnalyzer{}, nil, nil, nil, 1).Batch(context.Background(), "b1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	repo.AssertExpectations(t)
}
