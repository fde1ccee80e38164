// SPDX-License-Identifier: MIT

// Package jsproc analyzes player scripts. Preprocess normalizes a raw
// script into a compact form; Extract locates the signature and n-parameter
// transform routines in that form and compiles them to native callables.
// Both functions are pure and deterministic.
package jsproc

import (
	"errors"
	"strings"
)

// ErrMalformedScript marks a script in which no solver landmark can be
// located. It is permanent: retrying preprocessing cannot succeed.
var ErrMalformedScript = errors.New("malformed player script")

// Preprocess strips comments and collapses insignificant whitespace while
// preserving string, template and regex literals. The result is the form
// Extract operates on. CPU-bound on multi-MB inputs; callers run it on the
// worker pool.
func Preprocess(raw string) (string, error) {
	var b strings.Builder
	b.Grow(len(raw))

	const (
		stCode = iota
		stLineComment
		stBlockComment
		stSingle
		stDouble
		stTemplate
		stRegex
		stRegexClass
	)

	state := stCode
	pendingSpace := false
	// lastSig tracks the last significant byte written, used to decide
	// whether a '/' starts a regex literal or is a division operator.
	var lastSig byte

	writeByte := func(c byte) {
		if pendingSpace {
			// Drop the space when it cannot separate two tokens.
			if b.Len() > 0 && isIdentChar(lastSig) && isIdentChar(c) {
				b.WriteByte(' ')
			}
			pendingSpace = false
		}
		b.WriteByte(c)
		lastSig = c
	}

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		var next byte
		if i+1 < len(raw) {
			next = raw[i+1]
		}

		switch state {
		case stCode:
			switch {
			case c == '/' && next == '/':
				state = stLineComment
				i++
			case c == '/' && next == '*':
				state = stBlockComment
				i++
			case c == '/' && regexCanFollow(lastSig):
				state = stRegex
				writeByte(c)
			case c == '\'':
				state = stSingle
				writeByte(c)
			case c == '"':
				state = stDouble
				writeByte(c)
			case c == '`':
				state = stTemplate
				writeByte(c)
			case c == ' ' || c == '\t' || c == '\n' || c == '\r':
				pendingSpace = true
			default:
				writeByte(c)
			}
		case stLineComment:
			if c == '\n' {
				state = stCode
				pendingSpace = true
			}
		case stBlockComment:
			if c == '*' && next == '/' {
				state = stCode
				pendingSpace = true
				i++
			}
		case stSingle:
			b.WriteByte(c)
			if c == '\\' {
				if i+1 < len(raw) {
					i++
					b.WriteByte(raw[i])
				}
			} else if c == '\'' {
				state = stCode
				lastSig = c
			}
		case stDouble:
			b.WriteByte(c)
			if c == '\\' {
				if i+1 < len(raw) {
					i++
					b.WriteByte(raw[i])
				}
			} else if c == '"' {
				state = stCode
				lastSig = c
			}
		case stTemplate:
			b.WriteByte(c)
			if c == '\\' {
				if i+1 < len(raw) {
					i++
					b.WriteByte(raw[i])
				}
			} else if c == '`' {
				state = stCode
				lastSig = c
			}
		case stRegex:
			b.WriteByte(c)
			switch {
			case c == '\\':
				if i+1 < len(raw) {
					i++
					b.WriteByte(raw[i])
				}
			case c == '[':
				state = stRegexClass
			case c == '/':
				state = stCode
				lastSig = c
			}
		case stRegexClass:
			b.WriteByte(c)
			if c == '\\' {
				if i+1 < len(raw) {
					i++
					b.WriteByte(raw[i])
				}
			} else if c == ']' {
				state = stRegex
			}
		}
	}

	out := b.String()
	if !hasSolverLandmark(out) {
		return "", ErrMalformedScript
	}
	return out, nil
}

// hasSolverLandmark reports whether the normalized script contains anything
// Extract could work with.
func hasSolverLandmark(s string) bool {
	return strings.Contains(s, `.split("")`) ||
		strings.Contains(s, "signatureTimestamp") ||
		strings.Contains(s, "sts")
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// regexCanFollow reports whether a '/' after the given byte starts a regex
// literal rather than a division.
func regexCanFollow(prev byte) bool {
	switch prev {
	case 0, '(', ',', '=', ':', '[', '!', '&', '|', '?', '{', '}', ';', '\n', '+', '-', '*', '%', '<', '>', '^', '~':
		return true
	}
	return false
}
