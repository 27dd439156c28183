// Package local extracts document text in-process: PDF pages through
// ledongthuc/pdf, DOCX bodies through nguyenthenguyen/docx, and plain text.
package local

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-cv-analyzer/pkg/textx"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeText = "text/plain"
)

var (
	reParagraphEnd = regexp.MustCompile(`</w:p>|<w:br\s*/>|<w:tab\s*/>`)
	reXMLTag       = regexp.MustCompile(`<[^>]+>`)
)

// Extractor implements domain.TextExtractor without external services.
type Extractor struct{}

// New returns a local extractor.
func New() *Extractor { return &Extractor{} }

// Extract returns the sanitized text of data, choosing a decoder from the
// file extension, or from sniffed content when the name has none.
func (e *Extractor) Extract(ctx context.Context, fileName string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: op=local.extract: empty file %q", domain.ErrInvalidArgument, fileName)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("op=local.extract: %w", err)
	}

	var (
		raw string
		err error
	)
	switch kind := kindOf(fileName, data); kind {
	case mimePDF:
		raw, err = pdfText(data)
	case mimeDOCX:
		raw, err = docxText(data)
	case mimeText:
		raw = string(data)
	default:
		return "", fmt.Errorf("%w: op=local.extract: %q (%s)", domain.ErrUnsupportedMedia, fileName, kind)
	}
	if err != nil {
		return "", fmt.Errorf("%w: op=local.extract: %q: %v", domain.ErrInvalidArgument, fileName, err)
	}

	text := textx.Clean(raw)
	if text == "" {
		return "", fmt.Errorf("%w: op=local.extract: no extractable text in %q", domain.ErrInvalidArgument, fileName)
	}
	return text, nil
}

func kindOf(fileName string, data []byte) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return mimePDF
	case ".docx":
		return mimeDOCX
	case ".txt":
		return mimeText
	case "":
		m := mimetype.Detect(data)
		switch {
		case m.Is(mimePDF):
			return mimePDF
		case m.Is(mimeDOCX):
			return mimeDOCX
		case m.Is(mimeText):
			return mimeText
		}
		return m.String()
	default:
		return strings.ToLower(filepath.Ext(fileName))
	}
}

func pdfText(data []byte) (text string, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		t, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(t)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func docxText(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse docx: %w", err)
	}
	defer doc.Close()

	content := doc.Editable().GetContent()
	content = reParagraphEnd.ReplaceAllString(content, "\n")
	content = reXMLTag.ReplaceAllString(content, "")
	return html.UnescapeString(content), nil
}
