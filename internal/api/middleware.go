// SPDX-License-Identifier: MIT

package api

import (
	"crypto/subtle"
	"encoding/base64"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/decipherd/decipherd/internal/log"
	"github.com/decipherd/decipherd/internal/metrics"
)

var (
	trustedIPNets     []*net.IPNet
	trustedIPNetsOnce sync.Once
)

// SetTrustedProxies configures the proxies whose forwarding headers are
// honored. Must be called at startup.
func SetTrustedProxies(csv string) {
	trustedIPNetsOnce.Do(func() {
		for _, part := range strings.Split(csv, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			if !strings.Contains(p, "/") {
				if strings.Contains(p, ":") {
					p += "/128"
				} else {
					p += "/32"
				}
			}
			if _, ipnet, err := net.ParseCIDR(p); err == nil {
				trustedIPNets = append(trustedIPNets, ipnet)
			}
		}
	})
}

func remoteIsTrusted(remote string) bool {
	if len(trustedIPNets) == 0 {
		return false
	}
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, n := range trustedIPNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// clientIP resolves the originating address, honoring forwarding headers
// only from trusted proxies.
func clientIP(r *http.Request) string {
	if remoteIsTrusted(r.RemoteAddr) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}
		if xr := r.Header.Get("X-Real-IP"); xr != "" {
			return xr
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// requestIDMiddleware assigns every request an ID, echoed on the response
// and threaded through the context for log correlation.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r.WithContext(log.ContextWithRequestID(r.Context(), rid)))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.cfg.CORSOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// statusWriter captures the response code for logging and metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		// The route pattern keeps label cardinality bounded; arbitrary
		// unmatched paths would otherwise mint a new series each.
		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		metrics.ObserveHTTPRequest(path, r.Method, sw.status, time.Since(start))
	})
}

// statusSurface lists the endpoints excluded from health accounting. The
// /health 503 emitted while unhealthy must not feed back into the tracker,
// or health polling alone would sustain the unhealthy verdict forever.
var statusSurface = map[string]struct{}{
	"/":        {},
	"/health":  {},
	"/status":  {},
	"/metrics": {},
	"/info":    {},
}

// healthObserver feeds the windowed error-rate tracker. Server-side
// failures count as errors; client mistakes and throttling do not.
func (s *Server) healthObserver(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, skip := statusSurface[r.URL.Path]; skip {
			next.ServeHTTP(w, r)
			return
		}
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.tracker.Observe(sw.status >= http.StatusInternalServerError)
	})
}

// requireJSON rejects POST bodies that are not declared as JSON.
func requireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if r.Method == http.MethodPost && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			respondError(w, r, http.StatusUnsupportedMediaType, "unsupported_media_type",
				"Content-Type must be application/json", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware enforces the API token when one is configured. The token
// may arrive as a Bearer token, Basic credentials or the bare value.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.AuthEnabled() {
			next.ServeHTTP(w, r)
			return
		}

		supplied := extractToken(r)
		if supplied == "" || subtle.ConstantTimeCompare([]byte(supplied), []byte(s.cfg.APIToken)) != 1 {
			logger := log.WithComponentFromContext(r.Context(), "auth")
			logger.Warn().
				Str("event", "auth.invalid_token").
				Str("remote", clientIP(r)).
				Str("path", r.URL.Path).
				Msg("authentication failed")
			metrics.IncError("auth")
			respondError(w, r, http.StatusUnauthorized, "unauthorized", "invalid or missing API token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	if t, ok := strings.CutPrefix(raw, "Bearer "); ok {
		return strings.TrimSpace(t)
	}
	if b64, ok := strings.CutPrefix(raw, "Basic "); ok {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
		if err != nil {
			return ""
		}
		// Credentials are user:token; the user part is ignored.
		if _, pass, found := strings.Cut(string(decoded), ":"); found {
			return pass
		}
		return ""
	}
	return raw
}

// rateLimitMiddleware throttles per client IP and path with a sliding
// window. Throttled responses carry Retry-After alongside the standard
// X-RateLimit headers.
func (s *Server) rateLimitMiddleware() func(http.Handler) http.Handler {
	window := s.cfg.RateLimitWindow
	return httprate.Limit(
		s.cfg.RateLimitMaxRequests,
		window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return clientIP(r) + ":" + r.URL.Path, nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.HTTPRateLimitedTotal.Inc()
			metrics.IncError("rate_limit")
			// X-RateLimit-Reset carries the epoch second the window ends,
			// so Retry-After reflects the time remaining, not the full window.
			retryAfter := int(window.Seconds())
			if reset, err := strconv.ParseInt(w.Header().Get("X-RateLimit-Reset"), 10, 64); err == nil {
				if remaining := time.Until(time.Unix(reset, 0)); remaining > 0 && remaining < window {
					retryAfter = int(remaining.Seconds())
				}
			}
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			respondError(w, r, http.StatusTooManyRequests, "rate_limit_exceeded",
				"too many requests, slow down", nil)
		}),
	)
}
