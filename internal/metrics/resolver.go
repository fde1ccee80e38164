// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolverRequestsTotal counts resolver invocations by operation and result.
	ResolverRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decipherd_resolver_requests_total",
		Help: "Resolver invocations by operation and result",
	}, []string{"operation", "result"})

	// ErrorsTotal counts errors by kind across the whole service.
	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decipherd_errors_total",
		Help: "Total errors by kind",
	}, []string{"kind"})

	// UptimeSeconds reports process uptime.
	UptimeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "decipherd_uptime_seconds",
		Help: "Process uptime in seconds",
	})
)

// IncResolverRequest records a resolver invocation outcome.
func IncResolverRequest(operation string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	ResolverRequestsTotal.WithLabelValues(operation, result).Inc()
}

// IncError records an error by kind (validation, not_found, upstream,
// resource_exhausted, internal).
func IncError(kind string) {
	ErrorsTotal.WithLabelValues(kind).Inc()
}
