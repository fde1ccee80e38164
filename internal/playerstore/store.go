// SPDX-License-Identifier: MIT

// Package playerstore maintains the on-disk, content-addressed cache of
// fetched player scripts. Files are named by the fingerprint of their
// canonical URL; nothing else lives in the store directory.
package playerstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/decipherd/decipherd/internal/log"
	"github.com/decipherd/decipherd/internal/metrics"
	"github.com/decipherd/decipherd/internal/playerurl"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// maxScriptSize caps a single fetched script; upstream scripts are 1-3 MB.
const maxScriptSize = 32 << 20

// FetchError reports a non-2xx upstream response.
type FetchError struct {
	URL    string
	Status int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: upstream status %d", e.URL, e.Status)
}

// ErrIOFailed wraps filesystem failures while persisting a script.
var ErrIOFailed = errors.New("player store io failed")

// Config holds the store's tunables.
type Config struct {
	Dir       string
	Retention time.Duration // delete files not accessed for this long
	Timeout   time.Duration // per-fetch HTTP timeout
	RPS       int           // politeness limit toward upstream, 0 disables

	// Transport overrides the HTTP transport; nil uses the default. Tests
	// use it to point canonical URLs at a stub upstream.
	Transport http.RoundTripper
}

// Store owns the script directory. Callers read returned paths but never
// mutate the files.
type Store struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	flight  singleflight.Group
}

// New creates the store and its directory.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	s := &Store{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
	}
	if cfg.RPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.RPS)
	}
	return s, nil
}

// PathFor returns the filesystem path of the script for playerURL, fetching
// it from upstream when absent. Concurrent callers for the same fingerprint
// are coalesced onto a single fetch; waiters re-examine the filesystem once
// the flight completes.
func (s *Store) PathFor(ctx context.Context, playerURL string) (string, error) {
	canonical, err := playerurl.Canonicalize(playerURL)
	if err != nil {
		return "", err
	}
	fp := playerurl.Fingerprint(canonical)
	path := filepath.Join(s.cfg.Dir, fp+".js")

	if s.refreshIfPresent(path) {
		metrics.IncPlayerFetch("hit_disk")
		return path, nil
	}

	_, err, _ = s.flight.Do(fp, func() (any, error) {
		// Re-check under the flight: a previous winner may have written
		// the file between our stat and the flight admission.
		if s.refreshIfPresent(path) {
			return nil, nil
		}
		return nil, s.fetchToFile(ctx, canonical, path)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// refreshIfPresent reports whether path exists, refreshing its access
// timestamp so retention is measured from last use.
func (s *Store) refreshIfPresent(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	now := time.Now()
	_ = os.Chtimes(path, now, now)
	return true
}

func (s *Store) fetchToFile(ctx context.Context, canonicalURL, path string) error {
	logger := log.WithComponentFromContext(ctx, "playerstore")

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("upstream limiter: %w", err)
		}
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, canonicalURL, nil)
	if err != nil {
		return fmt.Errorf("build fetch request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.IncPlayerFetch("upstream_error")
		return fmt.Errorf("fetch player script: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.IncPlayerFetch("upstream_error")
		return &FetchError{URL: canonicalURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptSize))
	if err != nil {
		metrics.IncPlayerFetch("upstream_error")
		return fmt.Errorf("read player script: %w", err)
	}

	if err := renameio.WriteFile(path, body, 0o640); err != nil {
		metrics.IncPlayerFetch("io_error")
		return fmt.Errorf("%w: %v", ErrIOFailed, err)
	}

	metrics.IncPlayerFetch("downloaded")
	metrics.ObservePlayerFetchDuration(time.Since(start))
	logger.Info().
		Str("event", "playerstore.downloaded").
		Str("url", canonicalURL).
		Int("bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("player script fetched")
	return nil
}

// CleanupStartup deletes scripts not accessed within the retention window
// and publishes the survivor count. Called once at process start.
func (s *Store) CleanupStartup() error {
	logger := log.WithComponent("playerstore")
	cutoff := time.Now().Add(-s.cfg.Retention)

	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return fmt.Errorf("read store dir: %w", err)
	}

	removed, kept := 0, 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".js") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		// Access refreshes bump mtime via Chtimes, so ModTime is the
		// newest of the timestamps we control.
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.cfg.Dir, entry.Name())); err == nil {
				removed++
				continue
			}
		}
		kept++
	}

	metrics.SetPlayerStoreFiles(kept)
	logger.Info().
		Str("event", "playerstore.cleanup").
		Int("removed", removed).
		Int("kept", kept).
		Dur("retention", s.cfg.Retention).
		Msg("startup cleanup complete")
	return nil
}

// Clear removes every script from the store and returns the count removed.
func (s *Store) Clear() (int, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return 0, fmt.Errorf("read store dir: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".js") {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.Dir, entry.Name())); err == nil {
			removed++
		}
	}
	metrics.SetPlayerStoreFiles(0)
	return removed, nil
}

// Count returns the number of scripts currently on disk.
func (s *Store) Count() int {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".js") {
			n++
		}
	}
	return n
}
