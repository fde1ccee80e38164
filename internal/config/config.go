// SPDX-License-Identifier: MIT

// Package config loads and validates the service configuration from the
// environment. All knobs have working defaults; the service starts with an
// empty environment.
package config

import (
	"fmt"
	"strings"
	"time"
)

// DefaultAPIToken is the placeholder token shipped in documentation.
// Auth enforcement is disabled while the configured token equals this value.
const DefaultAPIToken = "change-me"

// CacheConfig holds sizing for one in-memory cache tier.
type CacheConfig struct {
	MaxSize int
	TTL     time.Duration
	Sweep   time.Duration
}

// AppConfig is the immutable runtime configuration.
type AppConfig struct {
	Host string
	Port int

	APIToken string

	PlayerCacheDir       string
	PlayerCacheRetention time.Duration

	RateLimitWindow      time.Duration
	RateLimitMaxRequests int

	PreprocessedCache CacheConfig
	SolverCache       CacheConfig
	StsCache          CacheConfig

	WorkerConcurrency int
	WorkerQueueSize   int
	WorkerTimeout     time.Duration
	WorkerMaxRetries  int
	WorkerRetryDelay  time.Duration

	UpstreamTimeout time.Duration
	UpstreamRPS     int

	LogLevel  string
	LogFormat string

	CORSOrigins    []string
	TrustedProxies string
}

// FromEnv builds an AppConfig from the process environment.
func FromEnv() AppConfig {
	return AppConfig{
		Host: ParseString("HOST", "0.0.0.0"),
		Port: ParseInt("PORT", 3000),

		APIToken: ParseString("API_TOKEN", DefaultAPIToken),

		PlayerCacheDir:       ParseString("PLAYER_CACHE_DIR", "player_cache"),
		PlayerCacheRetention: ParseDuration("PLAYER_CACHE_RETENTION", 14*24*time.Hour),

		RateLimitWindow:      ParseDuration("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitMaxRequests: ParseInt("RATE_LIMIT_MAX_REQUESTS", 60),

		PreprocessedCache: CacheConfig{
			MaxSize: ParseInt("PREPROCESSED_CACHE_MAX", 15000),
			TTL:     ParseDuration("PREPROCESSED_CACHE_TTL", 4*time.Hour),
			Sweep:   ParseDuration("PREPROCESSED_CACHE_SWEEP", 10*time.Minute),
		},
		SolverCache: CacheConfig{
			MaxSize: ParseInt("SOLVER_CACHE_MAX", 5000),
			TTL:     ParseDuration("SOLVER_CACHE_TTL", 2*time.Hour),
			Sweep:   ParseDuration("SOLVER_CACHE_SWEEP", 10*time.Minute),
		},
		StsCache: CacheConfig{
			MaxSize: ParseInt("STS_CACHE_MAX", 10000),
			TTL:     ParseDuration("STS_CACHE_TTL", time.Hour),
			Sweep:   ParseDuration("STS_CACHE_SWEEP", 10*time.Minute),
		},

		WorkerConcurrency: ParseInt("WORKER_CONCURRENCY", 16),
		WorkerQueueSize:   ParseInt("WORKER_QUEUE_SIZE", 64),
		WorkerTimeout:     ParseDuration("WORKER_TIMEOUT", 60*time.Second),
		WorkerMaxRetries:  ParseInt("WORKER_MAX_RETRIES", 5),
		WorkerRetryDelay:  ParseDuration("WORKER_RETRY_DELAY", 100*time.Millisecond),

		UpstreamTimeout: ParseDuration("UPSTREAM_TIMEOUT", 30*time.Second),
		UpstreamRPS:     ParseInt("UPSTREAM_RPS", 2),

		LogLevel:  ParseString("LOG_LEVEL", "info"),
		LogFormat: ParseString("LOG_FORMAT", "json"),

		CORSOrigins:    splitCSV(ParseString("CORS_ORIGINS", "")),
		TrustedProxies: ParseString("TRUSTED_PROXIES", ""),
	}
}

// Validate rejects configurations the service cannot run with.
func (c AppConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PlayerCacheDir == "" {
		return fmt.Errorf("player cache dir must not be empty")
	}
	if c.PlayerCacheRetention <= 0 {
		return fmt.Errorf("player cache retention must be positive, got %s", c.PlayerCacheRetention)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("worker concurrency must be at least 1, got %d", c.WorkerConcurrency)
	}
	if c.WorkerQueueSize < 1 {
		return fmt.Errorf("worker queue size must be at least 1, got %d", c.WorkerQueueSize)
	}
	if c.WorkerMaxRetries < 0 {
		return fmt.Errorf("worker max retries must not be negative, got %d", c.WorkerMaxRetries)
	}
	if c.RateLimitMaxRequests < 1 {
		return fmt.Errorf("rate limit max requests must be at least 1, got %d", c.RateLimitMaxRequests)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %s", c.RateLimitWindow)
	}
	for _, cc := range []struct {
		name string
		cfg  CacheConfig
	}{
		{"preprocessed", c.PreprocessedCache},
		{"solver", c.SolverCache},
		{"sts", c.StsCache},
	} {
		if cc.cfg.MaxSize < 1 {
			return fmt.Errorf("%s cache max size must be at least 1, got %d", cc.name, cc.cfg.MaxSize)
		}
		if cc.cfg.TTL <= 0 {
			return fmt.Errorf("%s cache ttl must be positive, got %s", cc.name, cc.cfg.TTL)
		}
	}
	return nil
}

// AuthEnabled reports whether the API token gate is active.
func (c AppConfig) AuthEnabled() bool {
	return c.APIToken != "" && c.APIToken != DefaultAPIToken
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
