package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/app"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/config"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/observability"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/usecase"
)

// newAnalyzer builds the pipeline; tests replace it with a stub.
var newAnalyzer = func(cfg config.Config) (usecase.Analyzer, error) {
	p, err := app.NewPipeline(cfg, nil)
	if err != nil {
		return nil, err
	}
	return p, nil
}

type analyzeOptions struct {
	files    []string
	skills   string
	role     string
	output   string
	provider string
	timeout  time.Duration
	verbose  bool
}

// cliResult is one ranked line of output.
type cliResult struct {
	FileName    string                    `json:"file_name" yaml:"file_name"`
	FileIndex   int                       `json:"file_index" yaml:"file_index"`
	Status      string                    `json:"status" yaml:"status"`
	ParseTier   domain.ParseTier          `json:"parse_tier,omitempty" yaml:"parse_tier,omitempty"`
	Analysis    *domain.CandidateAnalysis `json:"analysis,omitempty" yaml:"analysis,omitempty"`
	Error       string                    `json:"error,omitempty" yaml:"error,omitempty"`
	Kind        domain.FailureKind        `json:"kind,omitempty" yaml:"kind,omitempty"`
	RawResponse string                    `json:"raw_response,omitempty" yaml:"raw_response,omitempty"`
}

func newAnalyzeCmd() *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze one or more CV files",
		Example: `  cvctl analyze --file jane.pdf --skills "python, aws" --role senior
  cvctl analyze --file a.pdf --file b.docx --skills "go sql" --role lead --output yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}
	f := cmd.Flags()
	f.StringArrayVarP(&opts.files, "file", "f", nil, "CV file to analyze (.pdf, .docx, .txt); repeatable")
	f.StringVarP(&opts.skills, "skills", "s", "", "required skills, comma or space separated")
	f.StringVarP(&opts.role, "role", "r", "", "role level, e.g. junior, senior, lead")
	f.StringVarP(&opts.output, "output", "o", "json", "output format: json or yaml")
	f.StringVar(&opts.provider, "provider", "", "completion provider (overrides COMPLETION_PROVIDER)")
	f.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall deadline for the whole run")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log pipeline progress to stderr")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("skills")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func runAnalyze(ctx context.Context, stdout, stderr io.Writer, opts *analyzeOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	format := strings.ToLower(opts.output)
	if format != "json" && format != "yaml" {
		return fmt.Errorf("unsupported --output %q (want json or yaml)", opts.output)
	}
	if strings.TrimSpace(opts.skills) == "" || strings.TrimSpace(opts.role) == "" {
		return fmt.Errorf("--skills and --role must not be blank")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.provider != "" {
		cfg.CompletionProvider = opts.provider
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	lg := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	ctx = observability.ContextWithLogger(ctx, lg)

	analyzer, err := newAnalyzer(cfg)
	if err != nil {
		return err
	}
	extractor, _ := app.NewExtractor(cfg)

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	docs := make([]domain.Document, 0, len(opts.files))
	for _, path := range opts.files {
		docs = append(docs, readDocument(ctx, extractor, path, cfg.MaxUploadBytes()))
	}

	svc := usecase.NewAnalyzeService(analyzer, nil, nil, nil, cfg.BatchConcurrency)
	_, outcomes := svc.AnalyzeBatch(ctx, docs, usecase.AnalyzeRequest{RequiredSkills: opts.skills, RoleLevel: opts.role})

	results := make([]cliResult, 0, len(outcomes))
	failed := 0
	for _, o := range outcomes {
		r := cliResult{FileName: o.FileName, FileIndex: o.FileIndex}
		if o.OK() {
			r.Status, r.ParseTier, r.Analysis = "success", o.Tier, o.Analysis
		} else {
			failed++
			r.Status, r.Error = "error", o.Err.Error()
			if f, ok := domain.AsFailure(o.Err); ok {
				r.Error, r.Kind, r.RawResponse = f.Message, f.Kind, f.RawPreview
			}
		}
		results = append(results, r)
	}

	if err := writeResults(stdout, format, results); err != nil {
		return err
	}
	if failed == len(results) {
		return fmt.Errorf("all %d documents failed", failed)
	}
	return nil
}

// readDocument loads and extracts one file; failures ride on Document.Err so
// the remaining files are still analyzed.
func readDocument(ctx context.Context, ext domain.TextExtractor, path string, limit int64) domain.Document {
	doc := domain.Document{FileName: filepath.Base(path)}
	info, err := os.Stat(path)
	if err != nil {
		doc.Err = err
		return doc
	}
	doc.SizeBytes = info.Size()
	if limit > 0 && info.Size() > limit {
		doc.Err = fmt.Errorf("%w: %s is %d bytes, limit is %d", domain.ErrInvalidArgument, doc.FileName, info.Size(), limit)
		return doc
	}
	data, err := os.ReadFile(path)
	if err != nil {
		doc.Err = err
		return doc
	}
	doc.Text, doc.Err = ext.Extract(ctx, doc.FileName, data)
	return doc
}

func writeResults(w io.Writer, format string, results []cliResult) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(results); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
