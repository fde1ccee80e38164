// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/decipherd/decipherd/internal/log"
	"github.com/decipherd/decipherd/internal/metrics"
	"github.com/decipherd/decipherd/internal/playerstore"
	"github.com/decipherd/decipherd/internal/playerurl"
	"github.com/decipherd/decipherd/internal/resolve"
	"github.com/decipherd/decipherd/internal/solver"
	"github.com/decipherd/decipherd/internal/workerpool"
)

// errorBody is the error detail nested under "error".
type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Details   any    `json:"details,omitempty"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id"`
}

// errorEnvelope is the top-level error response.
type errorEnvelope struct {
	Success   bool      `json:"success"`
	Error     errorBody `json:"error"`
	Timestamp string    `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, msg string, details any) {
	now := time.Now().UTC().Format(time.RFC3339)
	writeJSON(w, status, errorEnvelope{
		Success: false,
		Error: errorBody{
			Error:     msg,
			Code:      code,
			Details:   details,
			Timestamp: now,
			RequestID: log.RequestIDFromContext(r.Context()),
		},
		Timestamp: now,
	})
}

// respondSuccess merges the operation result with the standard envelope
// fields.
func respondSuccess(w http.ResponseWriter, r *http.Request, started time.Time, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "internal_error", "encoding response failed", nil)
		return
	}
	body := map[string]any{}
	if err := json.Unmarshal(data, &body); err != nil {
		respondError(w, r, http.StatusInternalServerError, "internal_error", "encoding response failed", nil)
		return
	}
	body["success"] = true
	body["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	body["processing_time_ms"] = float64(time.Since(started).Microseconds()) / 1000.0
	writeJSON(w, http.StatusOK, body)
}

// classify maps a resolver error to an HTTP status and a stable code.
func classify(err error) (int, string) {
	var fetchErr *playerstore.FetchError
	switch {
	case resolve.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, playerurl.ErrEmptyURL),
		errors.Is(err, playerurl.ErrInvalidHost),
		errors.Is(err, playerurl.ErrNotPlayerScript):
		return http.StatusBadRequest, "invalid_player_url"
	case errors.Is(err, resolve.ErrStsNotFound):
		return http.StatusNotFound, "sts_not_found"
	case errors.Is(err, resolve.ErrInvalidPlayerContent):
		return http.StatusBadGateway, "invalid_player_content"
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway, "upstream_error"
	case errors.Is(err, workerpool.ErrQueueFull):
		return http.StatusServiceUnavailable, "queue_full"
	case errors.Is(err, resolve.ErrInvalidStsValue):
		return http.StatusInternalServerError, "invalid_sts_value"
	case errors.Is(err, resolve.ErrNoSignatureSolver):
		return http.StatusInternalServerError, "no_signature_solver"
	case errors.Is(err, solver.ErrSolverGeneration):
		return http.StatusInternalServerError, "solver_generation_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// respondOperationError classifies, counts and emits a resolver failure.
func respondOperationError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, code := classify(err)
	metrics.IncResolverRequest(operation, false)
	metrics.IncError(code)

	logger := log.WithComponentFromContext(r.Context(), "api")
	evt := logger.Warn()
	if status >= http.StatusInternalServerError {
		evt = logger.Error()
	}
	evt.Err(err).
		Str("event", "api.operation_failed").
		Str("operation", operation).
		Int("status", status).
		Str("code", code).
		Msg("operation failed")

	respondError(w, r, status, code, err.Error(), nil)
}
