package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/config"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/usecase"
)

// Multipart field names for uploaded documents. The bracketed form marks an
// explicit batch even when it carries a single file.
const (
	fileField      = "cv_file"
	fileArrayField = "cv_file[]"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Analyze    *usecase.AnalyzeService
	Extractor  domain.TextExtractor
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
	TikaCheck  func(ctx context.Context) error
}

// NewServer constructs a Server. Nil checks are skipped by /readyz.
func NewServer(cfg config.Config, svc *usecase.AnalyzeService, extractor domain.TextExtractor, dbCheck, redisCheck, tikaCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Analyze: svc, Extractor: extractor, DBCheck: dbCheck, RedisCheck: redisCheck, TikaCheck: tikaCheck}
}

type analyzeResponse struct {
	Status     string                    `json:"status"`
	ID         string                    `json:"id,omitempty"`
	FileName   string                    `json:"file_name"`
	FileSizeKB int64                     `json:"file_size_kb"`
	ParseTier  domain.ParseTier          `json:"parse_tier,omitempty"`
	Cached     bool                      `json:"cached,omitempty"`
	Analysis   *domain.CandidateAnalysis `json:"analysis"`
}

type batchItem struct {
	Status      string                    `json:"status"`
	ID          string                    `json:"id,omitempty"`
	FileName    string                    `json:"file_name"`
	FileSizeKB  int64                     `json:"file_size_kb"`
	FileIndex   int                       `json:"file_index"`
	ParseTier   domain.ParseTier          `json:"parse_tier,omitempty"`
	Analysis    *domain.CandidateAnalysis `json:"analysis,omitempty"`
	Error       string                    `json:"error,omitempty"`
	Kind        domain.FailureKind        `json:"kind,omitempty"`
	RawResponse *string                   `json:"raw_response,omitempty"`
}

type batchResponse struct {
	Status     string      `json:"status"`
	BatchID    string      `json:"batch_id"`
	TotalFiles int         `json:"total_files"`
	Results    []batchItem `json:"results"`
}

type asyncResponse struct {
	BatchID string                `json:"batch_id"`
	Jobs    []usecase.EnqueuedJob `json:"jobs"`
}

// AnalyzeHandler analyzes uploaded documents synchronously. One file yields
// a single result (422 on failure); several yield a ranked batch where each
// file succeeds or fails on its own.
func (s *Server) AnalyzeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, files, batch, ok := s.decodeAnalyzeRequest(w, r)
		if !ok {
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		ctx := r.Context()
		docs := s.readDocuments(ctx, files)
		req := usecase.AnalyzeRequest{RequiredSkills: form.RequiredSkills, RoleLevel: form.RoleLevel}

		if !batch {
			doc := docs[0]
			if doc.Err != nil {
				writeError(w, r, doc.Err, map[string]string{"file_name": doc.FileName})
				return
			}
			o := s.Analyze.AnalyzeOne(ctx, doc, req)
			if !o.OK() {
				writeError(w, r, o.Err, nil)
				return
			}
			writeJSON(w, http.StatusOK, analyzeResponse{
				Status:     "success",
				ID:         o.ID,
				FileName:   o.FileName,
				FileSizeKB: sizeKB(o.SizeBytes),
				ParseTier:  o.Tier,
				Cached:     o.Cached,
				Analysis:   o.Analysis,
			})
			return
		}

		batchID, outcomes := s.Analyze.AnalyzeBatch(ctx, docs, req)
		resp := batchResponse{Status: "success", BatchID: batchID, TotalFiles: len(docs), Results: make([]batchItem, 0, len(outcomes))}
		for _, o := range outcomes {
			resp.Results = append(resp.Results, itemOf(o))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// AnalyzeAsyncHandler queues one job per document and answers 202 at once.
func (s *Server) AnalyzeAsyncHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.Analyze.AsyncEnabled() {
			writeError(w, r, fmt.Errorf("%w: async analysis is not configured", domain.ErrUnavailable), nil)
			return
		}
		form, files, _, ok := s.decodeAnalyzeRequest(w, r)
		if !ok {
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		ctx := r.Context()
		docs := s.readDocuments(ctx, files)
		batchID, jobs, err := s.Analyze.Enqueue(ctx, docs, usecase.AnalyzeRequest{RequiredSkills: form.RequiredSkills, RoleLevel: form.RoleLevel})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusAccepted, asyncResponse{BatchID: batchID, Jobs: jobs})
	}
}

// AnalysisHandler returns one stored analysis by id.
func (s *Server) AnalysisHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := validateAnalysisID(id); err != nil {
			writeError(w, r, err, map[string]string{"field": "id"})
			return
		}
		rec, err := s.Analyze.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(rec))
	}
}

// BatchHandler returns every stored analysis of a batch, ranked.
func (s *Server) BatchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := validateAnalysisID(id); err != nil {
			writeError(w, r, err, map[string]string{"field": "id"})
			return
		}
		recs, err := s.Analyze.Batch(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		views := make([]analysisView, 0, len(recs))
		pending := 0
		for _, rec := range recs {
			views = append(views, viewOf(rec))
			if rec.Status == domain.JobQueued || rec.Status == domain.JobProcessing {
				pending++
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"batch_id":    id,
			"total_files": len(recs),
			"pending":     pending,
			"results":     views,
		})
	}
}

// HealthzHandler reports liveness only.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler probes the configured dependencies: database, Redis and Tika.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		probes := []struct {
			name string
			fn   func(context.Context) error
		}{
			{"db", s.DBCheck},
			{"redis", s.RedisCheck},
			{"tika", s.TikaCheck},
		}
		checks := make([]check, 0, len(probes))
		st := http.StatusOK
		for _, p := range probes {
			if p.fn == nil {
				continue
			}
			c := check{Name: p.name, OK: true}
			if err := p.fn(ctx); err != nil {
				c.OK, c.Details = false, err.Error()
				st = http.StatusServiceUnavailable
			}
			checks = append(checks, c)
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}

// decodeAnalyzeRequest parses and validates the multipart form. It writes the
// error response itself and reports ok=false when the request is rejected.
func (s *Server) decodeAnalyzeRequest(w http.ResponseWriter, r *http.Request) (analyzeForm, []*multipart.FileHeader, bool, bool) {
	var form analyzeForm
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data", domain.ErrInvalidArgument), nil)
		return form, nil, false, false
	}
	maxFiles := s.Cfg.MaxBatchFiles
	if maxFiles <= 0 {
		maxFiles = 1
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.Cfg.MaxUploadBytes()*int64(maxFiles)+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{
				Code:    "PAYLOAD_TOO_LARGE",
				Message: "payload too large",
				Details: map[string]any{"max_mb_per_file": s.Cfg.MaxUploadMB, "max_files": maxFiles},
			}})
			return form, nil, false, false
		}
		writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
		return form, nil, false, false
	}

	form.RequiredSkills = r.FormValue("required_skills")
	form.RoleLevel = r.FormValue("role_level")
	if verrs := validateForm(&form); len(verrs) > 0 {
		_ = r.MultipartForm.RemoveAll()
		writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
		return form, nil, false, false
	}

	files := r.MultipartForm.File[fileArrayField]
	batch := len(files) > 0
	files = append(files, r.MultipartForm.File[fileField]...)
	switch {
	case len(files) == 0:
		_ = r.MultipartForm.RemoveAll()
		writeError(w, r, fmt.Errorf("%w: %s is required", domain.ErrInvalidArgument, fileField), []ValidationError{{Field: fileField, Code: "REQUIRED", Message: fileField + " is required"}})
		return form, nil, false, false
	case len(files) > maxFiles:
		_ = r.MultipartForm.RemoveAll()
		writeError(w, r, fmt.Errorf("%w: at most %d files per request", domain.ErrInvalidArgument, maxFiles), map[string]int{"max_files": maxFiles, "received": len(files)})
		return form, nil, false, false
	}
	return form, files, batch || len(files) > 1, true
}

// readDocuments turns uploads into documents in upload order. A file that
// cannot be read, sniffed or extracted carries its error instead of text.
func (s *Server) readDocuments(ctx context.Context, files []*multipart.FileHeader) []domain.Document {
	docs := make([]domain.Document, 0, len(files))
	for _, h := range files {
		name := filepath.Base(h.Filename)
		doc := domain.Document{FileName: name, SizeBytes: h.Size}
		doc.Text, doc.Err = s.extract(ctx, h, name)
		docs = append(docs, doc)
	}
	return docs
}

func (s *Server) extract(ctx context.Context, h *multipart.FileHeader, name string) (string, error) {
	if !allowedExt(name) {
		return "", fmt.Errorf("%w: %s: only .pdf, .docx and .txt are accepted", domain.ErrUnsupportedMedia, name)
	}
	limit := s.Cfg.MaxUploadBytes()
	if h.Size > limit {
		return "", fmt.Errorf("%w: %s exceeds %d MB", domain.ErrInvalidArgument, name, s.Cfg.MaxUploadMB)
	}
	f, err := h.Open()
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrInvalidArgument, name, err)
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrInvalidArgument, name, err)
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("%w: %s exceeds %d MB", domain.ErrInvalidArgument, name, s.Cfg.MaxUploadMB)
	}
	if m := mimetype.Detect(data); !allowedMIMEFor(m.String(), name) {
		return "", fmt.Errorf("%w: %s content is %s", domain.ErrUnsupportedMedia, name, m.String())
	}
	if s.Extractor == nil {
		return "", fmt.Errorf("%w: no text extractor configured", domain.ErrUnavailable)
	}
	text, err := s.Extractor.Extract(ctx, name, data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return text, nil
}

// allowedExt enforces the upload allowlist: .pdf, .docx, .txt.
func allowedExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".docx", ".txt":
		return true
	}
	return false
}

// allowedMIMEFor checks that sniffed content agrees with the extension.
// A .docx is a zip container and may sniff as plain application/zip.
func allowedMIMEFor(m, name string) bool {
	m = strings.ToLower(m)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		return strings.HasPrefix(m, "text/")
	case ".pdf":
		return m == "application/pdf"
	case ".docx":
		return m == "application/vnd.openxmlformats-officedocument.wordprocessingml.document" || m == "application/zip"
	}
	return false
}

// sizeKB rounds a byte count to whole kilobytes.
func sizeKB(n int64) int64 { return int64(math.Round(float64(n) / 1024)) }

func itemOf(o usecase.Outcome) batchItem {
	it := batchItem{
		ID:         o.ID,
		FileName:   o.FileName,
		FileSizeKB: sizeKB(o.SizeBytes),
		FileIndex:  o.FileIndex,
	}
	if o.OK() {
		it.Status, it.Analysis, it.ParseTier = "success", o.Analysis, o.Tier
		return it
	}
	it.Status = "error"
	if f, ok := domain.AsFailure(o.Err); ok {
		it.Error, it.Kind = f.Message, f.Kind
		it.RawResponse = failureDetailsOf(f).RawResponse
		return it
	}
	it.Error = o.Err.Error()
	return it
}

type recordError struct {
	Kind        domain.FailureKind `json:"kind,omitempty"`
	Message     string             `json:"message"`
	RawResponse *string            `json:"raw_response,omitempty"`
}

type analysisView struct {
	ID             string                    `json:"id"`
	BatchID        string                    `json:"batch_id,omitempty"`
	FileName       string                    `json:"file_name"`
	Status         domain.JobStatus          `json:"status"`
	ParseTier      domain.ParseTier          `json:"parse_tier,omitempty"`
	RequiredSkills string                    `json:"required_skills"`
	RoleLevel      string                    `json:"role_level"`
	OverallScore   *int                      `json:"overall_score,omitempty"`
	Analysis       *domain.CandidateAnalysis `json:"analysis,omitempty"`
	Error          *recordError              `json:"error,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

func viewOf(rec domain.AnalysisRecord) analysisView {
	v := analysisView{
		ID:             rec.ID,
		BatchID:        rec.BatchID,
		FileName:       rec.FileName,
		Status:         rec.Status,
		ParseTier:      rec.ParseTier,
		RequiredSkills: rec.RequiredSkills,
		RoleLevel:      rec.RoleLevel,
		OverallScore:   rec.OverallScore,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
	if rec.Status == domain.JobCompleted {
		v.Analysis = rec.Analysis
	}
	if rec.Status == domain.JobFailed {
		e := &recordError{Kind: rec.FailureKind, Message: rec.Error}
		if rec.RawPreview != "" {
			raw := rec.RawPreview
			e.RawResponse = &raw
		}
		v.Error = e
	}
	return v
}
