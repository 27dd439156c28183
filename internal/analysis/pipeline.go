package analysis

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	obsmetrics "github.com/fairyhunter13/ai-cv-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/observability"
)

// DefaultTimeout bounds a completion call when no timeout is configured.
const DefaultTimeout = 120 * time.Second

// TokenCounter estimates the prompt size of a system+user message pair.
type TokenCounter interface {
	CountChat(systemPrompt, userPrompt string) int
}

// Pipeline runs one document through normalize, prompt, completion,
// extraction, recovery, reconciliation and validation. It holds only
// configuration and is safe for concurrent use.
type Pipeline struct {
	provider domain.CompletionProvider
	timeout  time.Duration
	tokens   TokenCounter
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTimeout bounds each completion call.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithTokenCounter enables prompt size estimates in logs and metrics.
func WithTokenCounter(tc TokenCounter) Option {
	return func(p *Pipeline) { p.tokens = tc }
}

// NewPipeline builds a Pipeline around a completion provider.
func NewPipeline(provider domain.CompletionProvider, opts ...Option) *Pipeline {
	p := &Pipeline{provider: provider, timeout: DefaultTimeout}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Report is a successful run with its diagnostics.
type Report struct {
	Analysis         domain.CandidateAnalysis
	Tier             domain.ParseTier
	RequestedSkills  []string
	PromptTokens     int
	SchemaViolations []string
}

// Analyze returns the analysis for one document or an *domain.AnalysisFailure.
func (p *Pipeline) Analyze(ctx context.Context, documentText, requestedSkills, roleLevel string) (domain.CandidateAnalysis, error) {
	rep, err := p.Run(ctx, documentText, requestedSkills, roleLevel)
	if err != nil {
		return domain.CandidateAnalysis{}, err
	}
	return rep.Analysis, nil
}

// Run is Analyze with diagnostics. Every error it returns is an
// *domain.AnalysisFailure; nothing is retried.
func (p *Pipeline) Run(ctx context.Context, documentText, requestedSkills, roleLevel string) (Report, error) {
	ctx, span := otel.Tracer("analysis.pipeline").Start(ctx, "analysis.Run")
	defer span.End()
	lg := observability.LoggerFromContext(ctx).With(observability.TraceAttrs(ctx)...)

	skills := NormalizeSkills(requestedSkills)
	prompt := BuildPrompt(documentText, skills, roleLevel)
	rep := Report{RequestedSkills: skills}
	if p.tokens != nil {
		rep.PromptTokens = p.tokens.CountChat(SystemPrompt, prompt)
		obsmetrics.ObservePromptTokens(rep.PromptTokens)
	}
	span.SetAttributes(
		attribute.Int("analysis.requested_skills", len(skills)),
		attribute.Int("analysis.prompt_length", len(prompt)),
		attribute.String("analysis.provider", p.provider.Name()),
	)
	lg.Info("analysis prompt built",
		slog.Int("skills_count", len(skills)),
		slog.Int("document_length", len(documentText)),
		slog.Int("prompt_length", len(prompt)),
		slog.Int("prompt_tokens", rep.PromptTokens))

	reply, err := p.complete(ctx, prompt)
	if err != nil {
		return rep, p.fail(span, lg, providerFailure(err))
	}
	if strings.TrimSpace(reply) == "" {
		return rep, p.fail(span, lg, domain.NewFailure(domain.FailureEmptyReply, "no usable content in completion reply", "", nil))
	}
	lg.Debug("analysis reply received", slog.Int("reply_length", len(reply)))

	extracted := ExtractJSON(reply)
	rec := RecoverFields(extracted)
	rep.Tier = rec.Tier
	if rec.Tier == domain.TierStrict {
		rep.SchemaViolations = SchemaViolations(rec.Fields)
	}
	obsmetrics.ObserveReplyParse(string(rec.Tier), len(rep.SchemaViolations))
	span.SetAttributes(attribute.String("analysis.parse_tier", string(rec.Tier)))

	if len(rec.Fields) == 0 {
		return rep, p.fail(span, lg, domain.NewFailure(domain.FailureUnrecoverable,
			"reply contained no recoverable analysis fields", extracted, nil))
	}
	parsedAttrs := []any{
		slog.String("parse_tier", string(rec.Tier)),
		slog.Int("field_count", len(rec.Fields)),
		slog.Int("schema_violations", len(rep.SchemaViolations)),
	}
	if rec.Tier.Degraded() {
		lg.Warn("analysis reply partially salvaged", append(parsedAttrs, slog.Any("absent_fields", absentFields(rec.Fields)))...)
	} else {
		lg.Info("analysis reply parsed", parsedAttrs...)
	}

	sets := Reconcile(rec.Fields, skills, documentText)
	lg.Info("analysis skills reconciled",
		slog.Int("extracted_raw", len(toStringList(rec.Fields["extracted_skills"]))),
		slog.Int("matched_raw", len(toStringList(rec.Fields["matched_skills"]))),
		slog.Int("missing_raw", len(toStringList(rec.Fields["missing_skills"]))),
		slog.Int("extracted", len(sets.Extracted)),
		slog.Int("matched", len(sets.Matched)),
		slog.Int("missing", len(sets.Missing)),
		slog.Int("unverified_dropped", sets.Dropped))

	rep.Analysis = Validate(rec.Fields, sets, len(skills))
	obsmetrics.ObserveAnalysis(rep.Analysis.OverallScore, rep.Analysis.SkillMatchPercentage)
	span.SetAttributes(attribute.Int("analysis.overall_score", rep.Analysis.OverallScore))
	lg.Info("analysis completed",
		slog.Int("overall_score", rep.Analysis.OverallScore),
		slog.Int("skill_match_percentage", rep.Analysis.SkillMatchPercentage),
		slog.String("recommendation", string(rep.Analysis.Recommendation)),
		slog.String("parse_tier", string(rec.Tier)))
	return rep, nil
}

func (p *Pipeline) complete(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	reply, err := p.provider.Complete(callCtx, SystemPrompt, prompt)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrUpstreamTimeout) {
		err = errors.Join(domain.ErrUpstreamTimeout, err)
	}
	return reply, err
}

func providerFailure(err error) *domain.AnalysisFailure {
	if errors.Is(err, domain.ErrEmptyReply) {
		return domain.NewFailure(domain.FailureEmptyReply, "no usable content in completion reply", "", err)
	}
	var httpErr *domain.ProviderHTTPError
	if errors.As(err, &httpErr) {
		return domain.NewFailure(domain.FailureProvider, "completion request failed", httpErr.Body, err)
	}
	return domain.NewFailure(domain.FailureProvider, "completion request failed", "", err)
}

func (p *Pipeline) fail(span trace.Span, lg *slog.Logger, f *domain.AnalysisFailure) error {
	obsmetrics.ObserveAnalysisFailure(string(f.Kind))
	span.RecordError(f)
	span.SetStatus(codes.Error, string(f.Kind))
	lg.Error("analysis failed",
		slog.String("failure_kind", string(f.Kind)),
		slog.String("error", f.Error()),
		slog.Int("raw_preview_length", len(f.RawPreview)))
	return f
}

func absentFields(f Fields) []string {
	out := make([]string, 0)
	for _, spec := range requiredFields {
		if _, ok := f[spec.name]; !ok {
			out = append(out, spec.name)
		}
	}
	return out
}
