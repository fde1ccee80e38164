// SPDX-License-Identifier: MIT

package jsproc

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Solvers holds the two callables extracted from a preprocessed script.
// A nil slot means the player defines no such transform.
type Solvers struct {
	Sig func(string) (string, error)
	N   func(string) (string, error)
}

// ErrNoSolvers marks a script in which neither transform routine could be
// located.
var ErrNoSolvers = errors.New("no solver routines found in player script")

// The transform routine is a flat function that splits its argument,
// applies a sequence of helper-object calls and joins the result. The
// helper bodies fall into exactly three shapes: reverse, splice and swap.
type opKind int

const (
	opReverse opKind = iota
	opSplice
	opSwap
)

type op struct {
	kind opKind
	arg  int
}

var (
	// function xx(a){a=a.split("");...;return a.join("")}
	namedFnRe = regexp.MustCompile(`function ?([a-zA-Z0-9$]*) ?\(([a-zA-Z0-9$]+)\) ?\{([^{}]*)\}`)
	// xx=function(a){a=a.split("");...;return a.join("")}
	assignedFnRe = regexp.MustCompile(`([a-zA-Z0-9$]+) ?= ?function ?\(([a-zA-Z0-9$]+)\) ?\{([^{}]*)\}`)

	memberFnRe = regexp.MustCompile(`([a-zA-Z0-9$]+) ?: ?function ?\(([^)]*)\) ?\{([^{}]*)\}`)

	// b=a.get("n"))&&(b=XX[0](b) — the n-routine dispatch landmark.
	nDispatchRe = regexp.MustCompile(`\.get\("n"\)\) ?&& ?\(\w+ ?= ?([a-zA-Z0-9$]+)(?:\[(\d+)\])? ?\(`)
)

// Extract locates the signature and n-parameter transforms in a
// preprocessed script and compiles each to a native callable. A script
// with only one of the two routines still yields a valid pair; only a
// script with neither fails.
func Extract(preprocessed string) (Solvers, error) {
	var solvers Solvers

	// Resolve the n-routine first so its body can be excluded from sig
	// candidacy: both routines share the split/join shape.
	nParam, nBody, nOK := findNFunction(preprocessed)
	if nOK {
		if fn, err := compilePlan(preprocessed, nParam, nBody); err == nil {
			solvers.N = fn
		}
	}

	if param, body, ok := findSigFunction(preprocessed, nBody); ok {
		if fn, err := compilePlan(preprocessed, param, body); err == nil {
			solvers.Sig = fn
		}
	}

	if solvers.Sig == nil && solvers.N == nil {
		return Solvers{}, ErrNoSolvers
	}
	return solvers, nil
}

// findSigFunction returns the parameter name and body of the signature
// transform: the function that splits its argument and joins it on return.
// excludeBody skips the routine already claimed by the n-parameter.
func findSigFunction(pp, excludeBody string) (param, body string, ok bool) {
	for _, re := range []*regexp.Regexp{namedFnRe, assignedFnRe} {
		for _, m := range re.FindAllStringSubmatch(pp, -1) {
			p, b := m[2], m[3]
			if excludeBody != "" && b == excludeBody {
				continue
			}
			if strings.Contains(b, p+`.split("")`) && strings.Contains(b, `return `+p+`.join("")`) {
				return p, b, true
			}
		}
	}
	return "", "", false
}

// findNFunction resolves the n-routine through its dispatch landmark. Only
// routines that follow the same split/transform/join shape as the signature
// routine are compiled; anything else is treated as absent.
func findNFunction(pp string) (param, body string, ok bool) {
	m := nDispatchRe.FindStringSubmatch(pp)
	if m == nil {
		return "", "", false
	}
	name := m[1]
	if m[2] != "" {
		// Dispatch through a one-element function array: resolve the array
		// to the underlying function name.
		if am := regexp.MustCompile(`var ` + regexp.QuoteMeta(name) + ` ?= ?\[([a-zA-Z0-9$]+)\]`).FindStringSubmatch(pp); am != nil {
			name = am[1]
		} else {
			return "", "", false
		}
	}
	return findFunctionByName(pp, name)
}

func findFunctionByName(pp, name string) (param, body string, ok bool) {
	quoted := regexp.QuoteMeta(name)
	for _, pattern := range []string{
		`function ` + quoted + ` ?\(([a-zA-Z0-9$]+)\) ?\{([^{}]*)\}`,
		quoted + ` ?= ?function ?\(([a-zA-Z0-9$]+)\) ?\{([^{}]*)\}`,
	} {
		if m := regexp.MustCompile(pattern).FindStringSubmatch(pp); m != nil {
			p, b := m[1], m[2]
			if strings.Contains(b, p+`.split("")`) && strings.Contains(b, `.join("")`) {
				return p, b, true
			}
		}
	}
	return "", "", false
}

// compilePlan resolves the helper object referenced by body, classifies its
// members and compiles the ordered call sequence into a native callable.
func compilePlan(pp, param, body string) (func(string) (string, error), error) {
	objNameRe := regexp.MustCompile(`([a-zA-Z0-9$]+)\.[a-zA-Z0-9$]+\(` + regexp.QuoteMeta(param) + `(?:, ?\d+)?\)`)
	om := objNameRe.FindStringSubmatch(body)
	if om == nil {
		return nil, fmt.Errorf("no helper object referenced by transform body")
	}
	objName := om[1]

	members, err := parseHelperObject(pp, objName)
	if err != nil {
		return nil, err
	}

	callRe := regexp.MustCompile(regexp.QuoteMeta(objName) + `\.([a-zA-Z0-9$]+)\(` + regexp.QuoteMeta(param) + `(?:, ?(\d+))?\)`)
	calls := callRe.FindAllStringSubmatch(body, -1)
	if len(calls) == 0 {
		return nil, fmt.Errorf("transform body has no helper calls")
	}

	plan := make([]op, 0, len(calls))
	for _, call := range calls {
		kind, ok := members[call[1]]
		if !ok {
			return nil, fmt.Errorf("helper %s.%s is not defined", objName, call[1])
		}
		arg := 0
		if call[2] != "" {
			arg, err = strconv.Atoi(call[2])
			if err != nil {
				return nil, fmt.Errorf("helper argument %q: %w", call[2], err)
			}
		}
		plan = append(plan, op{kind: kind, arg: arg})
	}

	return func(token string) (string, error) {
		return applyPlan(plan, token)
	}, nil
}

// parseHelperObject locates `var OBJ={...}` (brace-balanced, since members
// are function literals) and classifies each member.
func parseHelperObject(pp, objName string) (map[string]opKind, error) {
	marker := objName + "="
	idx := -1
	for _, prefix := range []string{"var " + marker, "let " + marker, "const " + marker, marker} {
		if i := strings.Index(pp, prefix+"{"); i >= 0 {
			idx = i + len(prefix)
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("helper object %s not found", objName)
	}

	literal, err := balancedBraces(pp[idx:])
	if err != nil {
		return nil, fmt.Errorf("helper object %s: %w", objName, err)
	}

	members := make(map[string]opKind)
	for _, m := range memberFnRe.FindAllStringSubmatch(literal, -1) {
		name, fnBody := m[1], m[3]
		switch {
		case strings.Contains(fnBody, "reverse"):
			members[name] = opReverse
		case strings.Contains(fnBody, "splice"):
			members[name] = opSplice
		case strings.Contains(fnBody, "%"):
			members[name] = opSwap
		default:
			return nil, fmt.Errorf("helper %s.%s has unknown shape", objName, name)
		}
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("helper object %s has no recognizable members", objName)
	}
	return members, nil
}

// balancedBraces returns the brace-delimited block starting at s[0] ('{'),
// braces inside string literals included in the scan.
func balancedBraces(s string) (string, error) {
	if len(s) == 0 || s[0] != '{' {
		return "", fmt.Errorf("expected '{'")
	}
	depth := 0
	inStr := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr != 0 {
			if c == '\\' {
				i++
			} else if c == inStr {
				inStr = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			inStr = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced braces")
}

// applyPlan executes the transform plan against a token.
func applyPlan(plan []op, token string) (string, error) {
	chars := []byte(token)
	for _, o := range plan {
		switch o.kind {
		case opReverse:
			for i, j := 0, len(chars)-1; i < j; i, j = i+1, j-1 {
				chars[i], chars[j] = chars[j], chars[i]
			}
		case opSplice:
			if o.arg < 0 || o.arg > len(chars) {
				return "", fmt.Errorf("splice offset %d out of range for token length %d", o.arg, len(chars))
			}
			chars = chars[o.arg:]
		case opSwap:
			if len(chars) == 0 {
				return "", fmt.Errorf("swap on empty token")
			}
			j := o.arg % len(chars)
			chars[0], chars[j] = chars[j], chars[0]
		}
	}
	return string(chars), nil
}
