// Package httpserver contains HTTP handlers and middleware.
//
// It exposes the CV analysis API: synchronous single and batch analysis of
// uploaded documents, asynchronous job submission, stored result retrieval
// and health probes. Handlers only decode requests and map outcomes to
// status codes; analysis itself lives in the usecase and analysis packages.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/ai-cv-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-cv-analyzer/internal/observability"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

// failureDetails is attached to ANALYSIS_FAILED errors.
type failureDetails struct {
	Kind        domain.FailureKind `json:"kind"`
	RawResponse *string            `json:"raw_response"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error onto its HTTP status and envelope code. An
// AnalysisFailure always maps to 422, even when caused by a provider timeout.
func statusFor(err error) (int, string) {
	if _, ok := domain.AsFailure(err); ok {
		return http.StatusUnprocessableEntity, "ANALYSIS_FAILED"
	}
	switch {
	case errors.Is(err, domain.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE"
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return http.StatusServiceUnavailable, "UPSTREAM_TIMEOUT"
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func writeError(w http.ResponseWriter, r *http.Request, err error, details interface{}) {
	code, codeStr := statusFor(err)
	if f, ok := domain.AsFailure(err); ok && details == nil {
		details = failureDetailsOf(f)
	}
	msg := err.Error()
	if code == http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error("request failed", "error", err)
		msg = "internal error"
	}
	writeJSON(w, code, errorEnvelope{Error: apiError{Code: codeStr, Message: msg, Details: details}})
}

func failureDetailsOf(f *domain.AnalysisFailure) failureDetails {
	d := failureDetails{Kind: f.Kind}
	if f.RawPreview != "" {
		raw := f.RawPreview
		d.RawResponse = &raw
	}
	return d
}
