// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/decipherd/decipherd/internal/api"
	"github.com/decipherd/decipherd/internal/cache"
	"github.com/decipherd/decipherd/internal/config"
	"github.com/decipherd/decipherd/internal/jsproc"
	xdlog "github.com/decipherd/decipherd/internal/log"
	"github.com/decipherd/decipherd/internal/metrics"
	"github.com/decipherd/decipherd/internal/playerstore"
	"github.com/decipherd/decipherd/internal/resolve"
	"github.com/decipherd/decipherd/internal/solver"
	"github.com/decipherd/decipherd/internal/workerpool"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("decipherd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg := config.FromEnv()

	xdlog.Configure(xdlog.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "decipherd",
	})
	logger := xdlog.WithComponent("daemon")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.invalid").
			Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	api.Version = version

	store, err := playerstore.New(playerstore.Config{
		Dir:       cfg.PlayerCacheDir,
		Retention: cfg.PlayerCacheRetention,
		Timeout:   cfg.UpstreamTimeout,
		RPS:       cfg.UpstreamRPS,
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "playerstore.init_failed").
			Str("dir", cfg.PlayerCacheDir).
			Msg("player store initialization failed")
	}
	if err := store.CleanupStartup(); err != nil {
		logger.Warn().
			Err(err).
			Str("event", "playerstore.cleanup_failed").
			Msg("startup cleanup failed, continuing")
	}

	pool := workerpool.New(workerpool.Config{
		Workers:     cfg.WorkerConcurrency,
		QueueSize:   cfg.WorkerQueueSize,
		TaskTimeout: cfg.WorkerTimeout,
		MaxRetries:  cfg.WorkerMaxRetries,
		RetryDelay:  cfg.WorkerRetryDelay,
	}, solver.PreprocessTask)
	defer pool.Close()

	newCache := func(name string, cc config.CacheConfig) cache.Config {
		return cache.Config{Name: name, MaxSize: cc.MaxSize, TTL: cc.TTL, Sweep: cc.Sweep}
	}
	preprocessed := cache.New[string](newCache("preprocessed", cfg.PreprocessedCache))
	defer preprocessed.Close()
	solvers := cache.New[jsproc.Solvers](newCache("solver", cfg.SolverCache))
	defer solvers.Close()
	sts := cache.New[string](newCache("sts", cfg.StsCache))
	defer sts.Close()

	registry := solver.New(store, pool, preprocessed, solvers, sts)
	server := api.New(cfg, resolve.NewService(registry), pool)

	go metrics.RunSystemSampler(ctx, start, 15*time.Second)

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("event", "server.listening").
			Str("addr", addr).
			Str("version", version).
			Bool("auth_enabled", cfg.AuthEnabled()).
			Msg("server started")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().
			Str("event", "server.shutdown_signal").
			Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().
				Err(err).
				Str("event", "server.failed").
				Msg("server terminated unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().
			Err(err).
			Str("event", "server.shutdown_failed").
			Msg("graceful shutdown failed")
	}
	logger.Info().
		Str("event", "server.stopped").
		Dur("uptime", time.Since(start)).
		Msg("server stopped")
}
