// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus collectors for every service boundary.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheOpsTotal counts every cache operation by cache identity, operation
	// and outcome.
	CacheOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decipherd_cache_ops_total",
		Help: "Total cache operations by cache, op and outcome",
	}, []string{"cache", "op", "outcome"})

	// CacheHitsTotal counts successful Get operations per cache.
	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decipherd_cache_hits_total",
		Help: "Total cache hits by cache",
	}, []string{"cache"})

	// CacheMissesTotal counts failed Get operations (absent or expired).
	CacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decipherd_cache_misses_total",
		Help: "Total cache misses by cache",
	}, []string{"cache"})

	// CacheEvictionsTotal counts entries removed by LRU overflow or TTL sweep.
	CacheEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decipherd_cache_evictions_total",
		Help: "Total cache evictions by cache and reason",
	}, []string{"cache", "reason"})

	// CacheSize tracks the current entry count per cache.
	CacheSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "decipherd_cache_size",
		Help: "Current number of entries by cache",
	}, []string{"cache"})

	// CacheOpDuration tracks per-operation latency per cache.
	CacheOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "decipherd_cache_op_duration_seconds",
		Help:    "Cache operation latencies in seconds",
		Buckets: []float64{0.000001, 0.00001, 0.0001, 0.001, 0.01, 0.1},
	}, []string{"cache", "op"})
)

// ObserveCacheOp records one cache operation with its outcome and duration.
func ObserveCacheOp(cache, op, outcome string, duration time.Duration) {
	CacheOpsTotal.WithLabelValues(cache, op, outcome).Inc()
	CacheOpDuration.WithLabelValues(cache, op).Observe(duration.Seconds())
}

// IncCacheHit records a cache hit.
func IncCacheHit(cache string) {
	CacheHitsTotal.WithLabelValues(cache).Inc()
}

// IncCacheMiss records a cache miss.
func IncCacheMiss(cache string) {
	CacheMissesTotal.WithLabelValues(cache).Inc()
}

// IncCacheEviction records an eviction with its reason ("lru" or "expired").
func IncCacheEviction(cache, reason string) {
	CacheEvictionsTotal.WithLabelValues(cache, reason).Inc()
}

// SetCacheSize publishes the current entry count for a cache.
func SetCacheSize(cache string, size int) {
	CacheSize.WithLabelValues(cache).Set(float64(size))
}
