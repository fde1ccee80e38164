// SPDX-License-Identifier: MIT

// Package api provides the HTTP surface of the resolver service.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/decipherd/decipherd/internal/config"
	"github.com/decipherd/decipherd/internal/health"
	"github.com/decipherd/decipherd/internal/log"
	"github.com/decipherd/decipherd/internal/resolve"
	"github.com/decipherd/decipherd/internal/workerpool"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	cfg       config.AppConfig
	svc       *resolve.Service
	pool      *workerpool.Pool
	tracker   *health.Tracker
	startTime time.Time
}

// New wires a server. The pool is referenced only for status reporting; the
// resolvers reach it through the registry.
func New(cfg config.AppConfig, svc *resolve.Service, pool *workerpool.Pool) *Server {
	SetTrustedProxies(cfg.TrustedProxies)
	return &Server{
		cfg:       cfg,
		svc:       svc,
		pool:      pool,
		tracker:   health.NewTracker(),
		startTime: time.Now(),
	}
}

// Router assembles the middleware chain and routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(s.requestIDMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(securityHeaders)
	r.Use(s.metricsMiddleware)
	r.Use(log.Middleware())
	r.Use(s.healthObserver)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, "not_found", "unknown endpoint", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	// Unauthenticated status surface.
	r.Get("/", s.handleDocs)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/info", s.handleInfo)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Core operations.
	r.Group(func(r chi.Router) {
		r.Use(requireJSON)
		r.Use(s.authMiddleware)
		r.Use(s.rateLimitMiddleware())

		r.Post("/decrypt_signature", s.handleDecrypt)
		r.Post("/get_sts", s.handleSts)
		r.Post("/resolve_url", s.handleResolveURL)
		r.Post("/batch_decrypt", s.handleBatch)
		r.Post("/validate_signature", s.handleValidate)
		r.Post("/clear_cache", s.handleClearCache)
	})

	return r
}
