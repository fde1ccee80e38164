// SPDX-License-Identifier: MIT

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts requests by path, method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decipherd_http_requests_total",
			Help: "HTTP requests by path, method and status code.",
		},
		[]string{"path", "method", "status"},
	)

	// HTTPRequestDuration observes request latency by path.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "decipherd_http_request_duration_seconds",
			Help:    "HTTP request latency by path.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	// HTTPRateLimitedTotal counts requests rejected by the rate limiter.
	HTTPRateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "decipherd_http_rate_limited_total",
			Help: "Requests rejected with 429 by the rate limiter.",
		},
	)
)

// ObserveHTTPRequest records one completed request.
func ObserveHTTPRequest(path, method string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}
