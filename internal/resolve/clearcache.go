// SPDX-License-Identifier: MIT

package resolve

import (
	"context"
	"fmt"

	"github.com/decipherd/decipherd/internal/log"
)

// ClearCacheRequest is the body of a clear_cache operation. clear_all:true
// is an alias for cache_type "all".
type ClearCacheRequest struct {
	CacheType string `json:"cache_type,omitempty"`
	ClearAll  bool   `json:"clear_all,omitempty"`
}

// ClearCacheResult reports which caches were cleared.
type ClearCacheResult struct {
	ClearedCaches []string `json:"cleared_caches"`
	CacheCount    int      `json:"cache_count"`
	ClearAll      bool     `json:"clear_all"`
}

// ClearCache empties the named cache tier, or all four.
func (s *Service) ClearCache(ctx context.Context, req ClearCacheRequest) (ClearCacheResult, error) {
	cacheType := req.CacheType
	if req.ClearAll {
		cacheType = "all"
	}
	if cacheType == "" {
		return ClearCacheResult{}, Validationf("cache_type or clear_all is required")
	}

	var cleared []string
	clearPlayer := func() error {
		n, err := s.registry.Store.Clear()
		if err != nil {
			return fmt.Errorf("clearing player store: %w", err)
		}
		logger := log.WithComponentFromContext(ctx, "resolve")
		logger.Info().
			Str("event", "resolve.player_store_cleared").
			Int("removed", n).
			Msg("player store cleared")
		cleared = append(cleared, "player")
		return nil
	}

	switch cacheType {
	case "all":
		if err := clearPlayer(); err != nil {
			return ClearCacheResult{}, err
		}
		s.registry.Solvers.Clear()
		cleared = append(cleared, "solver")
		s.registry.Preprocessed.Clear()
		cleared = append(cleared, "preprocessed")
		s.registry.Sts.Clear()
		cleared = append(cleared, "sts")
	case "player":
		if err := clearPlayer(); err != nil {
			return ClearCacheResult{}, err
		}
	case "solver":
		s.registry.Solvers.Clear()
		cleared = append(cleared, "solver")
	case "preprocessed":
		s.registry.Preprocessed.Clear()
		cleared = append(cleared, "preprocessed")
	case "sts":
		s.registry.Sts.Clear()
		cleared = append(cleared, "sts")
	default:
		return ClearCacheResult{}, Validationf("unknown cache_type %q", cacheType)
	}

	return ClearCacheResult{
		ClearedCaches: cleared,
		CacheCount:    len(cleared),
		ClearAll:      cacheType == "all",
	}, nil
}
