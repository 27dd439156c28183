package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
)

// StaleStore lists analyses stuck in a status and fails them.
type StaleStore interface {
	ListStale(ctx domain.Context, status domain.JobStatus, before time.Time, limit int) ([]domain.AnalysisRecord, error)
	Fail(ctx domain.Context, id string, f *domain.AnalysisFailure) error
}

// StuckJobSweeper fails analyses left in processing longer than
// maxProcessingAge, typically because a worker died mid-job.
type StuckJobSweeper struct {
	store            StaleStore
	maxProcessingAge time.Duration
	interval         time.Duration
	now              func() time.Time
}

// sweepPageSize bounds one ListStale call.
const sweepPageSize = 100

func NewStuckJobSweeper(store StaleStore, maxProcessingAge, interval time.Duration) *StuckJobSweeper {
	if store == nil {
		return nil
	}
	if maxProcessingAge <= 0 {
		maxProcessingAge = 15 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StuckJobSweeper{store: store, maxProcessingAge: maxProcessingAge, interval: interval, now: time.Now}
}

// Run sweeps immediately and then on every interval until ctx is done.
func (s *StuckJobSweeper) Run(ctx context.Context) {
	if s == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("stuck job sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

// sweepOnce fails every stale record and returns how many it failed.
func (s *StuckJobSweeper) sweepOnce(ctx context.Context) int {
	ctx, span := otel.Tracer("jobs.sweeper").Start(ctx, "StuckJobSweeper.sweepOnce")
	defer span.End()

	cutoff := s.now().Add(-s.maxProcessingAge)
	span.SetAttributes(attribute.Float64("jobs.max_processing_age_seconds", s.maxProcessingAge.Seconds()))

	failure := &domain.AnalysisFailure{
		Message: fmt.Sprintf("processing exceeded %v; marked failed by sweeper", s.maxProcessingAge),
	}
	marked := 0
	for {
		recs, err := s.store.ListStale(ctx, domain.JobProcessing, cutoff, sweepPageSize)
		if err != nil {
			span.RecordError(err)
			slog.Error("stuck job sweep failed to list analyses", slog.Any("error", err))
			break
		}
		failedThisPage := 0
		for _, rec := range recs {
			if err := s.store.Fail(ctx, rec.ID, failure); err != nil {
				slog.Error("stuck job sweep failed to mark analysis", slog.String("analysis_id", rec.ID), slog.Any("error", err))
				continue
			}
			failedThisPage++
		}
		marked += failedThisPage
		// a page where nothing could be failed would come back unchanged
		if len(recs) < sweepPageSize || failedThisPage == 0 {
			break
		}
	}

	span.SetAttributes(attribute.Int("jobs.total_marked_failed", marked))
	if marked > 0 {
		slog.Warn("stuck analyses marked failed", slog.Int("count", marked))
	}
	return marked
}
