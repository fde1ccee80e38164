// SPDX-License-Identifier: MIT

package playerurl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize_Valid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "absolute https",
			in:   "https://www.youtube.com/s/player/abc123/player_ias.vflset/en_US/base.js",
			want: "https://www.youtube.com/s/player/abc123/player_ias.vflset/en_US/base.js",
		},
		{
			name: "relative path expanded",
			in:   "/s/player/abc123/player_ias.vflset/en_US/base.js",
			want: "https://www.youtube.com/s/player/abc123/player_ias.vflset/en_US/base.js",
		},
		{
			name: "http upgraded to https",
			in:   "http://www.youtube.com/s/player/abc/player.js",
			want: "https://www.youtube.com/s/player/abc/player.js",
		},
		{
			name: "music host",
			in:   "https://music.youtube.com/s/player/x/player.js",
			want: "https://music.youtube.com/s/player/x/player.js",
		},
		{
			name: "surrounding whitespace trimmed",
			in:   "  https://www.youtube.com/s/player/abc/player.js ",
			want: "https://www.youtube.com/s/player/abc/player.js",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalize_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr error
	}{
		{"empty", "", ErrEmptyURL},
		{"whitespace only", "   ", ErrEmptyURL},
		{"disallowed host", "https://evil.example/s/player/x/player.js", ErrInvalidHost},
		{"subdomain spoof", "https://www.youtube.com.evil.example/s/player/x/player.js", ErrInvalidHost},
		{"not a player path", "https://www.youtube.com/watch?v=abc", ErrNotPlayerScript},
		{"ftp scheme", "ftp://www.youtube.com/s/player/x/player.js", ErrInvalidHost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Canonicalize(tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFingerprint_StableAndDistinct(t *testing.T) {
	a := Fingerprint("https://www.youtube.com/s/player/a/player.js")
	b := Fingerprint("https://www.youtube.com/s/player/b/player.js")

	assert.Len(t, a, 64)
	assert.Equal(t, a, Fingerprint("https://www.youtube.com/s/player/a/player.js"))
	assert.NotEqual(t, a, b)
}

func TestFingerprint_EquivalentURLsShareKey(t *testing.T) {
	c1, err := Canonicalize("/s/player/abc/player.js")
	require.NoError(t, err)
	c2, err := Canonicalize("https://www.youtube.com/s/player/abc/player.js")
	require.NoError(t, err)

	assert.Equal(t, Fingerprint(c1), Fingerprint(c2))
}
