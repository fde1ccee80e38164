// SPDX-License-Identifier: MIT

package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MemAllocBytes reports currently allocated heap bytes.
	MemAllocBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "decipherd_mem_alloc_bytes",
		Help: "Currently allocated heap bytes",
	})

	// MemSysBytes reports bytes obtained from the OS.
	MemSysBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "decipherd_mem_sys_bytes",
		Help: "Total bytes obtained from the OS",
	})

	// Goroutines reports the current goroutine count.
	Goroutines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "decipherd_goroutines",
		Help: "Current number of goroutines",
	})
)

// UpdateSystemGauges samples runtime memory statistics into the gauges.
func UpdateSystemGauges() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	MemAllocBytes.Set(float64(ms.Alloc))
	MemSysBytes.Set(float64(ms.Sys))
	Goroutines.Set(float64(runtime.NumGoroutine()))
}

// RunSystemSampler updates uptime and memory gauges on the given interval
// until ctx is cancelled.
func RunSystemSampler(ctx context.Context, start time.Time, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			UptimeSeconds.Set(time.Since(start).Seconds())
			UpdateSystemGauges()
		}
	}
}
