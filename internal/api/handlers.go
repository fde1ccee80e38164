// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/decipherd/decipherd/internal/health"
	"github.com/decipherd/decipherd/internal/metrics"
	"github.com/decipherd/decipherd/internal/resolve"
)

// decodeBody parses a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_json", "request body is not valid JSON", nil)
		return false
	}
	return true
}

func (s *Server) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req resolve.DecryptRequest
	if !decodeBody(w, r, &req) {
		return
	}

	out, err := s.svc.Decrypt(r.Context(), req)
	if err != nil {
		respondOperationError(w, r, "decrypt", err)
		return
	}
	metrics.IncResolverRequest("decrypt", true)
	respondSuccess(w, r, started, out)
}

func (s *Server) handleSts(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req resolve.StsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	out, cacheHit, err := s.svc.Sts(r.Context(), req)
	if err != nil {
		respondOperationError(w, r, "sts", err)
		return
	}
	w.Header().Set("X-Cache-Hit", strconv.FormatBool(cacheHit))
	metrics.IncResolverRequest("sts", true)
	respondSuccess(w, r, started, out)
}

func (s *Server) handleResolveURL(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req resolve.ResolveURLRequest
	if !decodeBody(w, r, &req) {
		return
	}

	out, err := s.svc.ResolveURL(r.Context(), req)
	if err != nil {
		respondOperationError(w, r, "resolve_url", err)
		return
	}
	metrics.IncResolverRequest("resolve_url", true)
	respondSuccess(w, r, started, out)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req resolve.BatchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	out, err := s.svc.Batch(r.Context(), req)
	if err != nil {
		respondOperationError(w, r, "batch", err)
		return
	}
	metrics.IncResolverRequest("batch", true)
	respondSuccess(w, r, started, out)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req resolve.ValidateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	out, err := s.svc.Validate(r.Context(), req)
	if err != nil {
		respondOperationError(w, r, "validate", err)
		return
	}
	metrics.IncResolverRequest("validate", true)
	respondSuccess(w, r, started, out)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req resolve.ClearCacheRequest
	if !decodeBody(w, r, &req) {
		return
	}

	out, err := s.svc.ClearCache(r.Context(), req)
	if err != nil {
		respondOperationError(w, r, "clear_cache", err)
		return
	}
	metrics.IncResolverRequest("clear_cache", true)
	respondSuccess(w, r, started, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	status := http.StatusOK
	if snap.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status":          snap.Status,
		"error_rate":      snap.ErrorRate,
		"window_errors":   snap.Errors,
		"window_requests": snap.Requests,
		"uptime_seconds":  int64(time.Since(s.startTime).Seconds()),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	reg := s.svc.Registry()
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         s.tracker.Snapshot(),
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"version":        Version,
		"caches": map[string]any{
			"preprocessed": reg.Preprocessed.Stats(),
			"solver":       reg.Solvers.Stats(),
			"sts":          reg.Sts.Stats(),
			"player": map[string]any{
				"files": reg.Store.Count(),
			},
		},
		"workers": s.pool.Stats(),
		"memory": map[string]any{
			"alloc_bytes": mem.Alloc,
			"sys_bytes":   mem.Sys,
			"goroutines":  runtime.NumGoroutine(),
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "decipherd",
		"version": Version,
		"endpoints": []string{
			"/decrypt_signature",
			"/get_sts",
			"/resolve_url",
			"/batch_decrypt",
			"/validate_signature",
			"/clear_cache",
			"/health",
			"/status",
			"/metrics",
			"/info",
		},
	})
}

const docsPage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>decipherd</title></head>
<body>
<h1>decipherd</h1>
<p>Remote signature resolver. All core endpoints accept POST with a JSON body.</p>
<ul>
<li><code>POST /decrypt_signature</code> {player_url, encrypted_signature?, n_param?}</li>
<li><code>POST /get_sts</code> {player_url}</li>
<li><code>POST /resolve_url</code> {stream_url, player_url, encrypted_signature?, signature_key?, n_param?}</li>
<li><code>POST /batch_decrypt</code> {signatures: [...]}</li>
<li><code>POST /validate_signature</code> {player_url, encrypted_signature}</li>
<li><code>POST /clear_cache</code> {cache_type | clear_all}</li>
<li><code>GET /health</code>, <code>GET /status</code>, <code>GET /metrics</code>, <code>GET /info</code></li>
</ul>
</body>
</html>
`

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(docsPage))
}
