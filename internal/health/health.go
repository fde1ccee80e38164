// SPDX-License-Identifier: MIT

// Package health tracks request outcomes over a sliding five-minute window
// and derives a service status from the windowed error rate. Windowing is
// deliberate: cumulative counters drift toward healthy and never recover a
// degraded signal.
package health

import (
	"sync"
	"time"
)

// Status is the coarse service verdict.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const (
	windowMinutes      = 5
	degradedThreshold  = 0.10
	unhealthyThreshold = 0.30
)

type bucket struct {
	minute int64
	total  int64
	errors int64
}

// Tracker accumulates outcomes into per-minute buckets.
type Tracker struct {
	mu      sync.Mutex
	buckets [windowMinutes]bucket
	now     func() time.Time
}

// NewTracker returns a tracker using the wall clock.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Observe records one request outcome.
func (t *Tracker) Observe(isError bool) {
	minute := t.now().Unix() / 60

	t.mu.Lock()
	defer t.mu.Unlock()

	b := &t.buckets[minute%windowMinutes]
	if b.minute != minute {
		b.minute = minute
		b.total = 0
		b.errors = 0
	}
	b.total++
	if isError {
		b.errors++
	}
}

// Snapshot is a point-in-time view of the window.
type Snapshot struct {
	Status    Status  `json:"status"`
	Requests  int64   `json:"requests"`
	Errors    int64   `json:"errors"`
	ErrorRate float64 `json:"error_rate"`
}

// Snapshot sums the live buckets and classifies the error rate.
func (t *Tracker) Snapshot() Snapshot {
	minute := t.now().Unix() / 60

	t.mu.Lock()
	defer t.mu.Unlock()

	var s Snapshot
	for i := range t.buckets {
		b := &t.buckets[i]
		if b.minute > minute-windowMinutes && b.minute <= minute {
			s.Requests += b.total
			s.Errors += b.errors
		}
	}
	if s.Requests > 0 {
		s.ErrorRate = float64(s.Errors) / float64(s.Requests)
	}
	switch {
	case s.ErrorRate > unhealthyThreshold:
		s.Status = StatusUnhealthy
	case s.ErrorRate > degradedThreshold:
		s.Status = StatusDegraded
	default:
		s.Status = StatusHealthy
	}
	return s
}
