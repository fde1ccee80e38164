// SPDX-License-Identifier: MIT

// Package resolve implements the request-level operations built on the
// solver registry: decrypt, sts, resolve, batch, validate and clear-cache.
package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/decipherd/decipherd/internal/log"
	"github.com/decipherd/decipherd/internal/solver"
)

// ValidationError marks a request the client can fix. The boundary maps it
// to 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a request-validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Service executes resolver operations against a shared registry.
type Service struct {
	registry *solver.Registry
}

// NewService wires the resolvers to a registry.
func NewService(registry *solver.Registry) *Service {
	return &Service{registry: registry}
}

// Registry exposes the underlying registry for status reporting.
func (s *Service) Registry() *solver.Registry { return s.registry }

// DecryptRequest is the body of a decrypt operation.
type DecryptRequest struct {
	PlayerURL          string `json:"player_url"`
	EncryptedSignature string `json:"encrypted_signature,omitempty"`
	NParam             string `json:"n_param,omitempty"`
}

// DecryptResult carries the deobfuscated tokens. A field is empty when the
// input was absent, the player has no such transform, or evaluation failed.
type DecryptResult struct {
	DecryptedSignature string `json:"decrypted_signature"`
	DecryptedNSig      string `json:"decrypted_n_sig"`
}

// Decrypt evaluates the player's transforms against the supplied tokens.
// Evaluation failures are logged and yield empty fields; the operation
// itself still succeeds. Pipeline failures propagate.
func (s *Service) Decrypt(ctx context.Context, req DecryptRequest) (DecryptResult, error) {
	if req.PlayerURL == "" {
		return DecryptResult{}, Validationf("player_url is required")
	}

	pair, err := s.registry.SolversFor(ctx, req.PlayerURL)
	if err != nil {
		return DecryptResult{}, err
	}

	logger := log.WithComponentFromContext(ctx, "resolve")
	var out DecryptResult
	if req.EncryptedSignature != "" && pair.Sig != nil {
		v, err := pair.Sig(req.EncryptedSignature)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("event", "resolve.sig_eval_failed").
				Msg("signature evaluation failed")
		} else {
			out.DecryptedSignature = v
		}
	}
	if req.NParam != "" && pair.N != nil {
		v, err := pair.N(req.NParam)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("event", "resolve.n_eval_failed").
				Msg("n-parameter evaluation failed")
		} else {
			out.DecryptedNSig = v
		}
	}
	return out, nil
}

// BatchRequest is an array of decrypt inputs.
type BatchRequest struct {
	Signatures []DecryptRequest `json:"signatures"`
}

// BatchItemResult echoes one input alongside its outcome.
type BatchItemResult struct {
	Success            bool   `json:"success"`
	PlayerURL          string `json:"player_url"`
	EncryptedSignature string `json:"encrypted_signature,omitempty"`
	NParam             string `json:"n_param,omitempty"`
	DecryptedSignature string `json:"decrypted_signature,omitempty"`
	DecryptedNSig      string `json:"decrypted_n_sig,omitempty"`
	Error              string `json:"error,omitempty"`
}

// BatchSummary aggregates per-item outcomes.
type BatchSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// BatchResult is the full batch response payload.
type BatchResult struct {
	Results []BatchItemResult `json:"results"`
	Summary BatchSummary      `json:"summary"`
}

// Batch runs each decrypt input independently. A failing item never fails
// the batch; a missing signatures field does.
func (s *Service) Batch(ctx context.Context, req BatchRequest) (BatchResult, error) {
	if req.Signatures == nil {
		return BatchResult{}, Validationf("signatures array is required")
	}

	out := BatchResult{Results: make([]BatchItemResult, 0, len(req.Signatures))}
	for _, item := range req.Signatures {
		r := BatchItemResult{
			PlayerURL:          item.PlayerURL,
			EncryptedSignature: item.EncryptedSignature,
			NParam:             item.NParam,
		}
		dec, err := s.Decrypt(ctx, item)
		if err != nil {
			r.Error = err.Error()
			out.Summary.Failed++
		} else {
			r.Success = true
			r.DecryptedSignature = dec.DecryptedSignature
			r.DecryptedNSig = dec.DecryptedNSig
			out.Summary.Successful++
		}
		out.Summary.Total++
		out.Results = append(out.Results, r)
	}
	return out, nil
}
