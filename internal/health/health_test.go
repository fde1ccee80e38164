// SPDX-License-Identifier: MIT

package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock lets tests advance the window minute by minute.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker() (*Tracker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	tr := NewTracker()
	tr.now = clock.now
	return tr, clock
}

func TestSnapshot_EmptyIsHealthy(t *testing.T) {
	tr, _ := newTestTracker()

	s := tr.Snapshot()
	assert.Equal(t, StatusHealthy, s.Status)
	assert.Zero(t, s.Requests)
	assert.Zero(t, s.ErrorRate)
}

func TestSnapshot_Thresholds(t *testing.T) {
	tests := []struct {
		name   string
		total  int
		errors int
		want   Status
	}{
		{"all success", 100, 0, StatusHealthy},
		{"ten percent is still healthy", 100, 10, StatusHealthy},
		{"above ten percent degrades", 100, 11, StatusDegraded},
		{"thirty percent is still degraded", 100, 30, StatusDegraded},
		{"above thirty percent is unhealthy", 100, 31, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTestTracker()
			for i := 0; i < tt.total; i++ {
				tr.Observe(i < tt.errors)
			}
			s := tr.Snapshot()
			assert.Equal(t, tt.want, s.Status)
			assert.Equal(t, int64(tt.total), s.Requests)
			assert.Equal(t, int64(tt.errors), s.Errors)
		})
	}
}

func TestSnapshot_WindowRecovers(t *testing.T) {
	tr, clock := newTestTracker()

	// A burst of failures makes the service unhealthy.
	for i := 0; i < 10; i++ {
		tr.Observe(true)
	}
	assert.Equal(t, StatusUnhealthy, tr.Snapshot().Status)

	// Five minutes later the burst has aged out of the window.
	clock.advance(5 * time.Minute)
	assert.Equal(t, StatusHealthy, tr.Snapshot().Status)

	// Fresh successes keep it healthy.
	for i := 0; i < 10; i++ {
		tr.Observe(false)
	}
	s := tr.Snapshot()
	assert.Equal(t, StatusHealthy, s.Status)
	assert.Equal(t, int64(10), s.Requests)
}

func TestSnapshot_SpansMultipleMinutes(t *testing.T) {
	tr, clock := newTestTracker()

	for minute := 0; minute < 4; minute++ {
		tr.Observe(minute == 0)
		clock.advance(time.Minute)
	}

	s := tr.Snapshot()
	assert.Equal(t, int64(4), s.Requests)
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, StatusDegraded, s.Status)
}

func TestObserve_BucketReuseDropsStaleCounts(t *testing.T) {
	tr, clock := newTestTracker()

	tr.Observe(true)
	// Six minutes later the same ring slot is reused for a new minute.
	clock.advance(6 * time.Minute)
	tr.Observe(false)

	s := tr.Snapshot()
	assert.Equal(t, int64(1), s.Requests)
	assert.Zero(t, s.Errors)
	assert.Equal(t, StatusHealthy, s.Status)
}
