// SPDX-License-Identifier: MIT

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PlayerFetchTotal counts player-script store lookups by result.
	PlayerFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decipherd_player_fetch_total",
		Help: "Player script store lookups by result (hit_disk, downloaded, upstream_error, io_error)",
	}, []string{"result"})

	// PlayerFetchDuration tracks upstream download latency.
	PlayerFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "decipherd_player_fetch_duration_seconds",
		Help:    "Upstream player script download latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	// PlayerStoreFiles tracks scripts currently held on disk.
	PlayerStoreFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "decipherd_player_store_files",
		Help: "Number of player scripts currently on disk",
	})

	// SolverBuildsTotal counts solver pipeline executions by result.
	SolverBuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decipherd_solver_builds_total",
		Help: "Solver extraction pipeline runs by result",
	}, []string{"result"})

	// SolverBuildDuration tracks the full fetch+preprocess+extract pipeline.
	SolverBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "decipherd_solver_build_duration_seconds",
		Help:    "Cold solver pipeline duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})
)

// IncPlayerFetch records a player store lookup result.
func IncPlayerFetch(result string) {
	PlayerFetchTotal.WithLabelValues(result).Inc()
}

// ObservePlayerFetchDuration records an upstream download duration.
func ObservePlayerFetchDuration(duration time.Duration) {
	PlayerFetchDuration.Observe(duration.Seconds())
}

// SetPlayerStoreFiles publishes the on-disk script count.
func SetPlayerStoreFiles(n int) {
	PlayerStoreFiles.Set(float64(n))
}

// ObserveSolverBuild records a completed solver pipeline run.
func ObserveSolverBuild(success bool, duration time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	SolverBuildsTotal.WithLabelValues(result).Inc()
	SolverBuildDuration.Observe(duration.Seconds())
}
