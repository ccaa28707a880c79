// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ManuGH/streamstage/internal/ingest"
	"github.com/ManuGH/streamstage/internal/job"
	"github.com/ManuGH/streamstage/internal/log"
	"github.com/ManuGH/streamstage/internal/pipeline"
	"github.com/ManuGH/streamstage/internal/resilience"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type badRequestError struct{ err error }

func (e badRequestError) Error() string { return e.err.Error() }
func (e badRequestError) Unwrap() error { return e.err }

func badRequest(err error) error { return badRequestError{err: err} }

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, label := classify(err)
	if code == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(err)))
	}
	body := errorBody{Error: label, RequestID: log.RequestIDFromContext(r.Context())}
	// Internal details stay in the logs.
	if code < http.StatusInternalServerError || code == http.StatusBadGateway {
		body.Detail = err.Error()
	}
	writeJSON(w, code, body)
}

// retryAfterSeconds prefers the breaker's own hint, rounded up.
func retryAfterSeconds(err error) int {
	var open *resilience.OpenError
	if errors.As(err, &open) && open.RetryAfter > 0 {
		return int((open.RetryAfter + time.Second - 1) / time.Second)
	}
	return 30
}

// classify maps an error to its HTTP status and a stable error label.
func classify(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes), errors.Is(err, ingest.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "upload_too_large"
	case errors.Is(err, ingest.ErrEmpty), errors.As(err, new(badRequestError)):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, pipeline.ErrUnknownPipeline):
		return http.StatusNotFound, "unknown_pipeline"
	case errors.Is(err, job.ErrNotFound):
		return http.StatusNotFound, "job_not_found"
	case errors.Is(err, job.ErrBusy):
		return http.StatusConflict, "job_busy"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "backend_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "cancelled"
	}
	switch pipeline.Kind(err) {
	case "source_unavailable":
		return http.StatusUnprocessableEntity, "source_unavailable"
	case "transport":
		return http.StatusBadGateway, "backend_failure"
	case "persistence":
		return http.StatusInternalServerError, "persistence_failure"
	}
	return http.StatusInternalServerError, "internal_error"
}
