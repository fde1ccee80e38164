// SPDX-License-Identifier: MIT

// Package solver coordinates the fetch, preprocess and extract pipeline
// that turns a player URL into a pair of callable transforms. At most one
// pipeline runs per fingerprint at any instant; concurrent callers share
// the result.
package solver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/decipherd/decipherd/internal/cache"
	"github.com/decipherd/decipherd/internal/jsproc"
	"github.com/decipherd/decipherd/internal/log"
	"github.com/decipherd/decipherd/internal/metrics"
	"github.com/decipherd/decipherd/internal/playerstore"
	"github.com/decipherd/decipherd/internal/playerurl"
	"github.com/decipherd/decipherd/internal/workerpool"
)

// ErrSolverGeneration marks any pipeline failure past URL validation.
// Failures are never cached; the next caller retries from scratch.
var ErrSolverGeneration = errors.New("solver generation failed")

// PreprocessTask adapts jsproc.Preprocess for the worker pool: malformed
// scripts are marked permanent so the pool does not burn its retry budget
// on input that cannot improve.
func PreprocessTask(raw string) (string, error) {
	pp, err := jsproc.Preprocess(raw)
	if err != nil {
		if errors.Is(err, jsproc.ErrMalformedScript) {
			return "", workerpool.Permanent(err)
		}
		return "", err
	}
	return pp, nil
}

// Registry owns the solver pipeline and its three in-memory caches. The
// caches are exported for the resolvers and the cache-clearing operation.
type Registry struct {
	Store        *playerstore.Store
	Pool         *workerpool.Pool
	Preprocessed *cache.Cache[string]
	Solvers      *cache.Cache[jsproc.Solvers]
	Sts          *cache.Cache[string]

	flight singleflight.Group
}

// New wires a registry. The pool's task function must be PreprocessTask or
// an equivalent wrapper around it.
func New(store *playerstore.Store, pool *workerpool.Pool, preprocessed *cache.Cache[string], solvers *cache.Cache[jsproc.Solvers], sts *cache.Cache[string]) *Registry {
	return &Registry{
		Store:        store,
		Pool:         pool,
		Preprocessed: preprocessed,
		Solvers:      solvers,
		Sts:          sts,
	}
}

// SolversFor returns the transform pair for a player URL, building it at
// most once per fingerprint across concurrent callers. URL validation
// errors pass through unwrapped so the boundary can classify them;
// everything past validation wraps ErrSolverGeneration.
func (r *Registry) SolversFor(ctx context.Context, playerURL string) (jsproc.Solvers, error) {
	canonical, err := playerurl.Canonicalize(playerURL)
	if err != nil {
		return jsproc.Solvers{}, err
	}
	fp := playerurl.Fingerprint(canonical)

	if pair, ok := r.Solvers.Get(fp); ok {
		return pair, nil
	}

	v, err, _ := r.flight.Do(fp, func() (any, error) {
		return r.build(ctx, canonical, fp)
	})
	if err != nil {
		return jsproc.Solvers{}, err
	}
	return v.(jsproc.Solvers), nil
}

// build runs the pipeline body under the flight for one fingerprint.
func (r *Registry) build(ctx context.Context, canonical, fp string) (jsproc.Solvers, error) {
	// A waiter released by a previous flight may already find the pair.
	if pair, ok := r.Solvers.Get(fp); ok {
		return pair, nil
	}

	start := time.Now()
	logger := log.WithComponentFromContext(ctx, "solver")

	pair, err := r.buildPair(ctx, canonical, fp)
	metrics.ObserveSolverBuild(err == nil, time.Since(start))
	if err != nil {
		logger.Warn().
			Err(err).
			Str("event", "solver.build_failed").
			Str("fingerprint", fp).
			Msg("solver pipeline failed")
		return jsproc.Solvers{}, err
	}

	r.Solvers.Put(fp, pair)
	logger.Info().
		Str("event", "solver.built").
		Str("fingerprint", fp).
		Bool("has_sig", pair.Sig != nil).
		Bool("has_n", pair.N != nil).
		Dur("duration", time.Since(start)).
		Msg("solver pair built")
	return pair, nil
}

func (r *Registry) buildPair(ctx context.Context, canonical, fp string) (jsproc.Solvers, error) {
	pp, ok := r.Preprocessed.Get(fp)
	if !ok {
		path, err := r.Store.PathFor(ctx, canonical)
		if err != nil {
			return jsproc.Solvers{}, fmt.Errorf("%w: %w", ErrSolverGeneration, err)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return jsproc.Solvers{}, fmt.Errorf("%w: reading script: %w", ErrSolverGeneration, err)
		}
		pp, err = r.Pool.Run(ctx, string(raw))
		if err != nil {
			return jsproc.Solvers{}, fmt.Errorf("%w: preprocessing: %w", ErrSolverGeneration, err)
		}
		r.Preprocessed.Put(fp, pp)
	}

	pair, err := jsproc.Extract(pp)
	if err != nil {
		return jsproc.Solvers{}, fmt.Errorf("%w: extracting: %w", ErrSolverGeneration, err)
	}
	return pair, nil
}
