package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotFound           = errors.New("not found")
	ErrUnsupportedMedia   = errors.New("unsupported media type")
	ErrUpstreamTimeout    = errors.New("upstream timeout")
	ErrProvider           = errors.New("completion provider error")
	ErrEmptyReply         = errors.New("empty completion reply")
	ErrUnrecoverableReply = errors.New("unrecoverable completion reply")
	ErrUnavailable        = errors.New("dependency unavailable")
	ErrInternal           = errors.New("internal error")
)

// FailureKind tags an AnalysisFailure.
type FailureKind string

const (
	FailureProvider      FailureKind = "provider_error"
	FailureEmptyReply    FailureKind = "empty_reply"
	FailureUnrecoverable FailureKind = "unrecoverable_reply"
)

// Sentinel returns the taxonomy error matching the kind.
func (k FailureKind) Sentinel() error {
	switch k {
	case FailureProvider:
		return ErrProvider
	case FailureEmptyReply:
		return ErrEmptyReply
	case FailureUnrecoverable:
		return ErrUnrecoverableReply
	default:
		return ErrInternal
	}
}

// RawPreviewLimit bounds the raw reply text attached to a failure.
const RawPreviewLimit = 2000

// AnalysisFailure is the terminal outcome of one document's analysis.
type AnalysisFailure struct {
	Kind       FailureKind
	Message    string
	RawPreview string
	Err        error
}

func (f *AnalysisFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Unwrap exposes both the kind's sentinel and the underlying cause so callers
// can match either with errors.Is.
func (f *AnalysisFailure) Unwrap() []error {
	if f.Err != nil {
		return []error{f.Kind.Sentinel(), f.Err}
	}
	return []error{f.Kind.Sentinel()}
}

// NewFailure builds an AnalysisFailure, truncating raw to RawPreviewLimit.
func NewFailure(kind FailureKind, message, raw string, err error) *AnalysisFailure {
	return &AnalysisFailure{Kind: kind, Message: message, RawPreview: truncatePreview(raw), Err: err}
}

// AsFailure extracts an AnalysisFailure from err's chain.
func AsFailure(err error) (*AnalysisFailure, bool) {
	var f *AnalysisFailure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

func truncatePreview(s string) string {
	if len(s) <= RawPreviewLimit {
		return s
	}
	cut := RawPreviewLimit
	// back off to a rune boundary
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}

// ProviderHTTPError is a non-success response from a completion provider.
// Body holds the provider's raw error text, already bounded by the adapter.
type ProviderHTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderHTTPError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

func (e *ProviderHTTPError) Unwrap() error { return ErrProvider }
