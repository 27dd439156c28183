package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
)

const analysisColumns = `id, COALESCE(batch_id::text, ''), file_name, status, error, failure_kind, raw_preview,
	parse_tier, required_skills, role_level, overall_score, analysis, created_at, updated_at`

// AnalysisRepo implements domain.AnalysisRepository over the analyses table.
type AnalysisRepo struct{ Pool PgxPool }

// NewAnalysisRepo constructs an AnalysisRepo with the given pool.
func NewAnalysisRepo(p PgxPool) *AnalysisRepo { return &AnalysisRepo{Pool: p} }

var _ domain.AnalysisRepository = (*AnalysisRepo)(nil)

func startSpan(ctx domain.Context, name, op string) (domain.Context, trace.Span) {
	ctx, span := otel.Tracer("repo.analyses").Start(ctx, name)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
		attribute.String("db.sql.table", "analyses"),
	)
	return ctx, span
}

// Create inserts a record and returns its id (generates one if empty).
func (r *AnalysisRepo) Create(ctx domain.Context, rec domain.AnalysisRecord) (string, error) {
	ctx, span := startSpan(ctx, "analyses.Create", "INSERT")
	defer span.End()

	id := rec.ID
	if id == "" {
		id = uuid.New().String()
	}
	status := rec.Status
	if status == "" {
		status = domain.JobQueued
	}
	now := time.Now().UTC()
	q := `INSERT INTO analyses (id, batch_id, file_name, status, required_skills, role_level, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	if _, err := r.Pool.Exec(ctx, q, id, nullIfEmpty(rec.BatchID), rec.FileName, string(status), rec.RequiredSkills, rec.RoleLevel, now, now); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("op=analysis.create: %w", err)
	}
	return id, nil
}

// UpdateStatus moves a record to status.
func (r *AnalysisRepo) UpdateStatus(ctx domain.Context, id string, status domain.JobStatus) error {
	ctx, span := startSpan(ctx, "analyses.UpdateStatus", "UPDATE")
	defer span.End()

	q := `UPDATE analyses SET status=$2, updated_at=$3 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, string(status), time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("op=analysis.update_status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=analysis.update_status: %w", domain.ErrNotFound)
	}
	return nil
}

// Complete stores a successful analysis.
func (r *AnalysisRepo) Complete(ctx domain.Context, id string, a domain.CandidateAnalysis, tier domain.ParseTier) error {
	ctx, span := startSpan(ctx, "analyses.Complete", "UPDATE")
	defer span.End()

	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("op=analysis.complete.marshal: %w", err)
	}
	q := `UPDATE analyses SET status=$2, parse_tier=$3, overall_score=$4, analysis=$5,
	error='', failure_kind='', raw_preview='', updated_at=$6 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, string(domain.JobCompleted), string(tier), a.OverallScore, body, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("op=analysis.complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=analysis.complete: %w", domain.ErrNotFound)
	}
	return nil
}

// Fail stores a terminal failure with its kind and raw reply preview.
func (r *AnalysisRepo) Fail(ctx domain.Context, id string, f *domain.AnalysisFailure) error {
	ctx, span := startSpan(ctx, "analyses.Fail", "UPDATE")
	defer span.End()

	if f == nil {
		return fmt.Errorf("%w: op=analysis.fail: nil failure", domain.ErrInvalidArgument)
	}
	q := `UPDATE analyses SET status=$2, error=$3, failure_kind=$4, raw_preview=$5, updated_at=$6 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, string(domain.JobFailed), f.Message, string(f.Kind), f.RawPreview, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("op=analysis.fail: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=analysis.fail: %w", domain.ErrNotFound)
	}
	return nil
}

// Get loads a record by id.
func (r *AnalysisRepo) Get(ctx domain.Context, id string) (domain.AnalysisRecord, error) {
	ctx, span := startSpan(ctx, "analyses.Get", "SELECT")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return domain.AnalysisRecord{}, fmt.Errorf("op=analysis.get: %w", domain.ErrNotFound)
	}
	row := r.Pool.QueryRow(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE id=$1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AnalysisRecord{}, fmt.Errorf("op=analysis.get: %w", domain.ErrNotFound)
		}
		span.RecordError(err)
		return domain.AnalysisRecord{}, fmt.Errorf("op=analysis.get: %w", err)
	}
	return rec, nil
}

// ListByBatch loads every record of a batch in creation order.
func (r *AnalysisRepo) ListByBatch(ctx domain.Context, batchID string) ([]domain.AnalysisRecord, error) {
	ctx, span := startSpan(ctx, "analyses.ListByBatch", "SELECT")
	defer span.End()

	if _, err := uuid.Parse(batchID); err != nil {
		return nil, nil
	}
	return r.list(ctx, "list_by_batch", `SELECT `+analysisColumns+` FROM analyses WHERE batch_id=$1 ORDER BY created_at, id`, batchID)
}

// ListStale returns up to limit records that have sat in status since before
// the cutoff, oldest first.
func (r *AnalysisRepo) ListStale(ctx domain.Context, status domain.JobStatus, before time.Time, limit int) ([]domain.AnalysisRecord, error) {
	ctx, span := startSpan(ctx, "analyses.ListStale", "SELECT")
	defer span.End()
	span.SetAttributes(attribute.String("analysis.status", string(status)))

	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, "list_stale", `SELECT `+analysisColumns+` FROM analyses WHERE status=$1 AND updated_at < $2 ORDER BY updated_at, id LIMIT $3`,
		string(status), before.UTC(), limit)
}

func (r *AnalysisRepo) list(ctx domain.Context, op, q string, args ...any) ([]domain.AnalysisRecord, error) {
	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
		return nil, fmt.Errorf("op=analysis.%s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.AnalysisRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("op=analysis.%s.scan: %w", op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=analysis.%s: %w", op, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (domain.AnalysisRecord, error) {
	var (
		rec                       domain.AnalysisRecord
		status, failureKind, tier string
		body                      []byte
	)
	err := s.Scan(&rec.ID, &rec.BatchID, &rec.FileName, &status, &rec.Error, &failureKind, &rec.RawPreview,
		&tier, &rec.RequiredSkills, &rec.RoleLevel, &rec.OverallScore, &body, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return domain.AnalysisRecord{}, err
	}
	rec.Status = domain.JobStatus(status)
	rec.FailureKind = domain.FailureKind(failureKind)
	rec.ParseTier = domain.ParseTier(tier)
	if len(body) > 0 {
		var a domain.CandidateAnalysis
		if err := json.Unmarshal(body, &a); err != nil {
			return domain.AnalysisRecord{}, fmt.Errorf("decode analysis: %w", err)
		}
		rec.Analysis = &a
	}
	return rec, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
