// SPDX-License-Identifier: MIT

package resolve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/decipherd/decipherd/internal/log"
	"github.com/decipherd/decipherd/internal/playerurl"
)

var (
	// ErrInvalidPlayerContent marks a fetched script too small to be a real
	// player.
	ErrInvalidPlayerContent = errors.New("invalid player script content")
	// ErrInvalidStsValue marks a matched timestamp outside the accepted range.
	ErrInvalidStsValue = errors.New("signature timestamp out of range")
	// ErrStsNotFound marks a script with no recognizable timestamp.
	ErrStsNotFound = errors.New("signature timestamp not found")
)

const (
	minPlayerScriptSize = 1000
	maxStsValue         = 9_999_999_999
)

// stsPatterns is scanned in order; the first match wins. The list stays
// explicit because a single alternation would not preserve priority.
var stsPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:signatureTimestamp|sts):\s*(\d+)`),
	regexp.MustCompile(`"signatureTimestamp":\s*(\d+)`),
	regexp.MustCompile(`'signatureTimestamp':\s*(\d+)`),
	regexp.MustCompile(`signatureTimestamp\s*=\s*(\d+)`),
	regexp.MustCompile(`sts\s*=\s*(\d+)`),
	regexp.MustCompile(`"sts":\s*(\d+)`),
	regexp.MustCompile(`'sts':\s*(\d+)`),
}

// StsRequest is the body of a get_sts operation.
type StsRequest struct {
	PlayerURL string `json:"player_url"`
}

// StsResult carries the signature timestamp as a decimal string.
type StsResult struct {
	Sts string `json:"sts"`
}

// Sts extracts the player's signature timestamp. The second return value
// reports whether the value came from the sts cache.
func (s *Service) Sts(ctx context.Context, req StsRequest) (StsResult, bool, error) {
	if req.PlayerURL == "" {
		return StsResult{}, false, Validationf("player_url is required")
	}

	canonical, err := playerurl.Canonicalize(req.PlayerURL)
	if err != nil {
		return StsResult{}, false, err
	}
	fp := playerurl.Fingerprint(canonical)

	if sts, ok := s.registry.Sts.Get(fp); ok {
		return StsResult{Sts: sts}, true, nil
	}

	path, err := s.registry.Store.PathFor(ctx, canonical)
	if err != nil {
		return StsResult{}, false, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return StsResult{}, false, fmt.Errorf("reading script: %w", err)
	}
	if len(raw) < minPlayerScriptSize {
		return StsResult{}, false, fmt.Errorf("%w: script is %d bytes", ErrInvalidPlayerContent, len(raw))
	}

	sts, err := scanSts(string(raw))
	if err != nil {
		return StsResult{}, false, err
	}

	s.registry.Sts.Put(fp, sts)
	logger := log.WithComponentFromContext(ctx, "resolve")
	logger.Debug().
		Str("event", "resolve.sts_extracted").
		Str("fingerprint", fp).
		Str("sts", sts).
		Msg("signature timestamp extracted")
	return StsResult{Sts: sts}, false, nil
}

// scanSts applies the ordered pattern list and range-checks the match.
func scanSts(script string) (string, error) {
	for _, re := range stsPatterns {
		m := re.FindStringSubmatch(script)
		if m == nil {
			continue
		}
		v, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || v < 0 || v > maxStsValue {
			return "", fmt.Errorf("%w: %q", ErrInvalidStsValue, m[1])
		}
		return strconv.FormatInt(v, 10), nil
	}
	return "", ErrStsNotFound
}
