// Package usecase contains application business logic services.
package usecase

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	obsmetrics "github.com/fairyhunter13/ai-cv-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/analysis"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/observability"
)

// Analyzer runs the analysis pipeline for one document.
type Analyzer interface {
	Run(ctx context.Context, documentText, requestedSkills, roleLevel string) (analysis.Report, error)
}

// AnalyzeRequest holds the per-request inputs shared by every document.
type AnalyzeRequest struct {
	RequiredSkills string
	RoleLevel      string
}

// Outcome is the result for one document. Exactly one of Analysis and Err
// is set.
type Outcome struct {
	ID        string
	FileName  string
	FileIndex int
	SizeBytes int64
	Analysis  *domain.CandidateAnalysis
	Tier      domain.ParseTier
	Cached    bool
	Err       error
}

// OK reports whether the document was analyzed.
func (o Outcome) OK() bool { return o.Err == nil && o.Analysis != nil }

// EnqueuedJob is one accepted (or rejected) async job.
type EnqueuedJob struct {
	ID       string `json:"id,omitempty"`
	FileName string `json:"file_name"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// AnalyzeService coordinates the pipeline with caching, persistence and the
// async queue. Repo, Cache and Queue are optional.
type AnalyzeService struct {
	Pipeline    Analyzer
	Repo        domain.AnalysisRepository
	Cache       domain.AnalysisCache
	Queue       domain.Queue
	Concurrency int
}

// NewAnalyzeService constructs an AnalyzeService; nil adapters disable the
// corresponding feature.
func NewAnalyzeService(p Analyzer, repo domain.AnalysisRepository, cache domain.AnalysisCache, q domain.Queue, concurrency int) *AnalyzeService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &AnalyzeService{Pipeline: p, Repo: repo, Cache: cache, Queue: q, Concurrency: concurrency}
}

// AsyncEnabled reports whether Enqueue can accept jobs.
func (s *AnalyzeService) AsyncEnabled() bool { return s.Repo != nil && s.Queue != nil }

// CacheKey derives the result cache key from the inputs that determine an
// analysis: document text, normalized skills and role level.
func CacheKey(documentText, requiredSkills, roleLevel string) string {
	joined := analysis.JoinSkills(analysis.NormalizeSkills(requiredSkills))
	sum := blake2b.Sum256([]byte(documentText + "\x00" + joined + "\x00" + strings.ToLower(strings.TrimSpace(roleLevel))))
	return "analysis:v1:" + hex.EncodeToString(sum[:])
}

// AnalyzeOne analyzes a single document. Failures are reported in the
// Outcome, never returned.
func (s *AnalyzeService) AnalyzeOne(ctx context.Context, doc domain.Document, req AnalyzeRequest) Outcome {
	return s.analyze(ctx, "", 1, doc, req)
}

// AnalyzeBatch analyzes docs with bounded parallelism and returns the batch
// id with outcomes ranked by RankOutcomes. One document's failure never
// affects another.
func (s *AnalyzeService) AnalyzeBatch(ctx context.Context, docs []domain.Document, req AnalyzeRequest) (string, []Outcome) {
	batchID := uuid.NewString()
	out := make([]Outcome, len(docs))

	var g errgroup.Group
	g.SetLimit(s.Concurrency)
	for i, doc := range docs {
		g.Go(func() error {
			out[i] = s.analyze(ctx, batchID, i+1, doc, req)
			return nil
		})
	}
	_ = g.Wait()

	observability.LoggerFromContext(ctx).Info("batch analyzed",
		slog.String("batch_id", batchID),
		slog.Int("total_files", len(docs)),
		slog.Int("failed", countFailed(out)))
	return batchID, RankOutcomes(out)
}

func (s *AnalyzeService) analyze(ctx context.Context, batchID string, index int, doc domain.Document, req AnalyzeRequest) Outcome {
	o := Outcome{ID: uuid.NewString(), FileName: doc.FileName, FileIndex: index, SizeBytes: doc.SizeBytes}
	if doc.Err != nil {
		o.ID = ""
		o.Err = doc.Err
		return o
	}
	ctx = observability.WithLogAttrs(ctx, slog.String("analysis_id", o.ID), slog.String("file_name", doc.FileName))
	lg := observability.LoggerFromContext(ctx)

	key := CacheKey(doc.Text, req.RequiredSkills, req.RoleLevel)
	if a, ok := s.cached(ctx, key); ok {
		o.Analysis, o.Cached = &a, true
		s.persist(ctx, batchID, o, req, nil)
		return o
	}

	rep, err := s.Pipeline.Run(ctx, doc.Text, req.RequiredSkills, req.RoleLevel)
	if err != nil {
		o.Err = err
		s.persist(ctx, batchID, o, req, err)
		return o
	}
	o.Analysis, o.Tier = &rep.Analysis, rep.Tier
	if s.Cache != nil {
		if err := s.Cache.Set(ctx, key, rep.Analysis); err != nil {
			lg.Warn("result cache write failed", slog.Any("error", err))
		}
	}
	s.persist(ctx, batchID, o, req, nil)
	return o
}

func (s *AnalyzeService) cached(ctx context.Context, key string) (domain.CandidateAnalysis, bool) {
	if s.Cache == nil {
		return domain.CandidateAnalysis{}, false
	}
	a, ok, err := s.Cache.Get(ctx, key)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("result cache read failed", slog.Any("error", err))
		return domain.CandidateAnalysis{}, false
	}
	obsmetrics.ObserveCacheLookup(ok)
	return a, ok
}

// persist records a synchronous outcome. Storage errors are logged only.
func (s *AnalyzeService) persist(ctx context.Context, batchID string, o Outcome, req AnalyzeRequest, cause error) {
	if s.Repo == nil {
		return
	}
	lg := observability.LoggerFromContext(ctx)
	rec := domain.AnalysisRecord{
		ID:             o.ID,
		BatchID:        batchID,
		FileName:       o.FileName,
		Status:         domain.JobProcessing,
		RequiredSkills: req.RequiredSkills,
		RoleLevel:      req.RoleLevel,
	}
	if _, err := s.Repo.Create(ctx, rec); err != nil {
		lg.Error("persisting analysis failed", slog.Any("error", err))
		return
	}
	var err error
	if cause != nil {
		err = s.Repo.Fail(ctx, o.ID, failureOf(cause))
	} else {
		err = s.Repo.Complete(ctx, o.ID, *o.Analysis, o.Tier)
	}
	if err != nil {
		lg.Error("persisting analysis outcome failed", slog.Any("error", err))
	}
}

// Enqueue creates a queued record per document and publishes it. Documents
// that failed extraction or could not be published are reported per item.
func (s *AnalyzeService) Enqueue(ctx context.Context, docs []domain.Document, req AnalyzeRequest) (string, []EnqueuedJob, error) {
	if !s.AsyncEnabled() {
		return "", nil, fmt.Errorf("%w: async analysis requires a database and a queue", domain.ErrUnavailable)
	}
	batchID := uuid.NewString()
	lg := observability.LoggerFromContext(ctx).With(slog.String("batch_id", batchID))
	jobs := make([]EnqueuedJob, 0, len(docs))

	for _, doc := range docs {
		if doc.Err != nil {
			jobs = append(jobs, EnqueuedJob{FileName: doc.FileName, Status: "error", Error: doc.Err.Error()})
			continue
		}
		id, err := s.Repo.Create(ctx, domain.AnalysisRecord{
			ID:             uuid.NewString(),
			BatchID:        batchID,
			FileName:       doc.FileName,
			Status:         domain.JobQueued,
			RequiredSkills: req.RequiredSkills,
			RoleLevel:      req.RoleLevel,
		})
		if err != nil {
			return "", nil, fmt.Errorf("op=analyze.enqueue: %w", err)
		}
		_, err = s.Queue.EnqueueAnalyze(ctx, domain.AnalyzeJobPayload{
			JobID:          id,
			BatchID:        batchID,
			FileName:       doc.FileName,
			DocumentText:   doc.Text,
			RequiredSkills: req.RequiredSkills,
			RoleLevel:      req.RoleLevel,
		})
		if err != nil {
			lg.Error("enqueue failed", slog.String("job_id", id), slog.Any("error", err))
			if uerr := s.Repo.UpdateStatus(ctx, id, domain.JobFailed); uerr != nil {
				lg.Error("marking unqueued job failed", slog.String("job_id", id), slog.Any("error", uerr))
			}
			jobs = append(jobs, EnqueuedJob{ID: id, FileName: doc.FileName, Status: "error", Error: "enqueue failed"})
			continue
		}
		jobs = append(jobs, EnqueuedJob{ID: id, FileName: doc.FileName, Status: string(domain.JobQueued)})
	}
	return batchID, jobs, nil
}

// ProcessJob runs one queued job and stores a successful result. A failure
// is returned unchanged so the caller can decide whether to retry.
func (s *AnalyzeService) ProcessJob(ctx context.Context, p domain.AnalyzeJobPayload) error {
	if s.Repo == nil {
		return fmt.Errorf("%w: op=analyze.process_job: no repository", domain.ErrUnavailable)
	}
	if err := s.Repo.UpdateStatus(ctx, p.JobID, domain.JobProcessing); err != nil {
		return fmt.Errorf("op=analyze.process_job: %w", err)
	}

	key := CacheKey(p.DocumentText, p.RequiredSkills, p.RoleLevel)
	if a, ok := s.cached(ctx, key); ok {
		return s.complete(ctx, p.JobID, a, "")
	}
	rep, err := s.Pipeline.Run(ctx, p.DocumentText, p.RequiredSkills, p.RoleLevel)
	if err != nil {
		return err
	}
	if s.Cache != nil {
		if err := s.Cache.Set(ctx, key, rep.Analysis); err != nil {
			observability.LoggerFromContext(ctx).Warn("result cache write failed", slog.Any("error", err))
		}
	}
	return s.complete(ctx, p.JobID, rep.Analysis, rep.Tier)
}

func (s *AnalyzeService) complete(ctx context.Context, id string, a domain.CandidateAnalysis, tier domain.ParseTier) error {
	if err := s.Repo.Complete(ctx, id, a, tier); err != nil {
		return fmt.Errorf("op=analyze.complete: %w", err)
	}
	return nil
}

// FailJob stores the terminal failure of a queued job.
func (s *AnalyzeService) FailJob(ctx context.Context, p domain.AnalyzeJobPayload, cause error) error {
	if s.Repo == nil {
		return fmt.Errorf("%w: op=analyze.fail_job: no repository", domain.ErrUnavailable)
	}
	if err := s.Repo.Fail(ctx, p.JobID, failureOf(cause)); err != nil {
		return fmt.Errorf("op=analyze.fail_job: %w", err)
	}
	return nil
}

// Get loads a stored analysis.
func (s *AnalyzeService) Get(ctx context.Context, id string) (domain.AnalysisRecord, error) {
	if s.Repo == nil {
		return domain.AnalysisRecord{}, fmt.Errorf("%w: analysis %s", domain.ErrNotFound, id)
	}
	return s.Repo.Get(ctx, id)
}

// Batch loads every record of a batch, ranked like a synchronous batch:
// completed records by score, highest first, then the rest in creation order.
func (s *AnalyzeService) Batch(ctx context.Context, batchID string) ([]domain.AnalysisRecord, error) {
	if s.Repo == nil {
		return nil, fmt.Errorf("%w: batch %s", domain.ErrNotFound, batchID)
	}
	recs, err := s.Repo.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("op=analyze.batch: %w", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: batch %s", domain.ErrNotFound, batchID)
	}
	return RankRecords(recs), nil
}

// failureOf returns cause as an AnalysisFailure, wrapping foreign errors.
func failureOf(cause error) *domain.AnalysisFailure {
	if f, ok := domain.AsFailure(cause); ok {
		return f
	}
	if cause == nil {
		cause = errors.New("unknown failure")
	}
	return &domain.AnalysisFailure{Message: cause.Error(), Err: cause}
}

func countFailed(out []Outcome) int {
	n := 0
	for _, o := range out {
		if !o.OK() {
			n++
		}
	}
	return n
}
