// SPDX-License-Identifier: MIT

package resolve

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/decipherd/decipherd/internal/solver"
)

// ErrNoSignatureSolver marks a resolve request that supplied a signature
// for a player that defines no signature transform.
var ErrNoSignatureSolver = errors.New("player has no signature solver")

// ResolveURLRequest is the body of a resolve_url operation.
type ResolveURLRequest struct {
	StreamURL          string `json:"stream_url"`
	PlayerURL          string `json:"player_url"`
	EncryptedSignature string `json:"encrypted_signature,omitempty"`
	SignatureKey       string `json:"signature_key,omitempty"`
	NParam             string `json:"n_param,omitempty"`
}

// ResolveURLResult carries the rewritten stream URL.
type ResolveURLResult struct {
	ResolvedURL string `json:"resolved_url"`
}

// ResolveURL rewrites a stream URL with deobfuscated tokens. The signature
// parameter name defaults to "sig"; the obfuscated "s" parameter is removed
// once a signature was applied. The effective n-parameter is taken from the
// body when supplied, otherwise from the URL itself.
func (s *Service) ResolveURL(ctx context.Context, req ResolveURLRequest) (ResolveURLResult, error) {
	if req.StreamURL == "" {
		return ResolveURLResult{}, Validationf("stream_url is required")
	}
	if req.PlayerURL == "" {
		return ResolveURLResult{}, Validationf("player_url is required")
	}

	pair, err := s.registry.SolversFor(ctx, req.PlayerURL)
	if err != nil {
		return ResolveURLResult{}, err
	}

	u, err := url.Parse(req.StreamURL)
	if err != nil {
		return ResolveURLResult{}, Validationf("stream_url is not a valid URL: %v", err)
	}
	q := u.Query()

	if req.EncryptedSignature != "" {
		if pair.Sig == nil {
			return ResolveURLResult{}, ErrNoSignatureSolver
		}
		dec, err := pair.Sig(req.EncryptedSignature)
		if err != nil {
			return ResolveURLResult{}, fmt.Errorf("%w: signature evaluation: %w", solver.ErrSolverGeneration, err)
		}
		key := req.SignatureKey
		if key == "" {
			key = "sig"
		}
		q.Set(key, dec)
		q.Del("s")
	}

	n := req.NParam
	if n == "" {
		n = q.Get("n")
	}
	if n != "" && pair.N != nil {
		dec, err := pair.N(n)
		if err != nil {
			return ResolveURLResult{}, fmt.Errorf("%w: n-parameter evaluation: %w", solver.ErrSolverGeneration, err)
		}
		q.Set("n", dec)
	}

	u.RawQuery = q.Encode()
	return ResolveURLResult{ResolvedURL: u.String()}, nil
}
