// SPDX-License-Identifier: MIT

package resolve

import (
	"context"
	"regexp"
	"strings"
)

const (
	minSignatureLength = 10
	maxSignatureLength = 200
)

var signatureCharsetRe = regexp.MustCompile(`^[A-Za-z0-9+/=_-]+$`)

// ValidateRequest is the body of a validate_signature operation.
type ValidateRequest struct {
	PlayerURL          string `json:"player_url"`
	EncryptedSignature string `json:"encrypted_signature"`
}

// ValidationDetails itemizes the individual heuristic checks.
type ValidationDetails struct {
	LengthValid    bool `json:"length_valid"`
	CharsetValid   bool `json:"charset_valid"`
	PlayerURLValid bool `json:"player_url_valid"`
}

// ValidateResult carries the heuristic verdict.
type ValidateResult struct {
	IsValid           bool              `json:"is_valid"`
	SignatureType     string            `json:"signature_type"`
	SignatureLength   int               `json:"signature_length"`
	PlayerURLValid    bool              `json:"player_url_valid"`
	ValidationDetails ValidationDetails `json:"validation_details"`
}

// Validate applies cheap heuristics without touching the solver pipeline.
func (s *Service) Validate(_ context.Context, req ValidateRequest) (ValidateResult, error) {
	if req.PlayerURL == "" {
		return ValidateResult{}, Validationf("player_url is required")
	}
	if req.EncryptedSignature == "" {
		return ValidateResult{}, Validationf("encrypted_signature is required")
	}

	n := len(req.EncryptedSignature)
	details := ValidationDetails{
		LengthValid:  n >= minSignatureLength && n <= maxSignatureLength,
		CharsetValid: signatureCharsetRe.MatchString(req.EncryptedSignature),
		PlayerURLValid: strings.Contains(req.PlayerURL, "/s/player/") ||
			strings.Contains(req.PlayerURL, "/yts/jsbin/"),
	}

	sigType := "invalid_player_url"
	if details.PlayerURLValid {
		switch {
		case n <= 50:
			sigType = "short"
		case n <= 100:
			sigType = "medium"
		default:
			sigType = "long"
		}
	}

	return ValidateResult{
		IsValid:           details.LengthValid && details.CharsetValid && details.PlayerURLValid,
		SignatureType:     sigType,
		SignatureLength:   n,
		PlayerURLValid:    details.PlayerURLValid,
		ValidationDetails: details,
	}, nil
}
