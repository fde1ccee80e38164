// SPDX-License-Identifier: MIT

// Package playerurl canonicalizes and fingerprints player-script URLs.
// Canonicalization must run before fingerprinting so equivalent URLs share
// one cache key.
package playerurl

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// CanonicalHost is the host relative player paths are expanded against.
const CanonicalHost = "www.youtube.com"

var (
	ErrEmptyURL        = errors.New("player url is empty")
	ErrInvalidHost     = errors.New("player url host is not allowed")
	ErrNotPlayerScript = errors.New("player url does not reference a player script")
)

// allowedHosts is the upstream host allow-list. Only scripts served from
// these hosts are ever fetched.
var allowedHosts = map[string]bool{
	"youtube.com":              true,
	"www.youtube.com":          true,
	"m.youtube.com":            true,
	"music.youtube.com":        true,
	"www.youtube-nocookie.com": true,
}

// Canonicalize validates raw and returns the canonical absolute URL.
// Relative paths beginning with /s/player/ are expanded to the canonical
// host; the scheme is forced to https.
func Canonicalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyURL
	}

	if strings.HasPrefix(raw, "/s/player/") {
		raw = "https://" + CanonicalHost + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse player url: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", fmt.Errorf("%w: scheme %q", ErrInvalidHost, u.Scheme)
	}
	u.Scheme = "https"

	host := strings.ToLower(u.Hostname())
	if !allowedHosts[host] {
		return "", fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}

	if !strings.Contains(u.Path, "/player/") {
		return "", fmt.Errorf("%w: path %q", ErrNotPlayerScript, u.Path)
	}

	u.Fragment = ""
	return u.String(), nil
}

// Fingerprint returns the hex-encoded SHA-256 of the canonical URL. It is
// the key into the player store and all player-scoped caches.
func Fingerprint(canonicalURL string) string {
	sum := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])
}
