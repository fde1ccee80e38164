// SPDX-License-Identifier: MIT

package jsproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixtureScript mirrors the shape of a real player script: a helper object
// with reverse/splice/swap members, a flat signature routine and an
// n-routine dispatched through a one-element function array.
const fixtureScript = `
// player bootstrap
var Xr = {
	w9: function(a) { a.reverse() },
	Dx: function(a, b) { a.splice(0, b) },
	z2: function(a, b) { var c = a[0]; a[0] = a[b % a.length]; a[b % a.length] = c }
};

var decodeSig = function(a) {
	a = a.split("");
	Xr.z2(a, 1);
	Xr.w9(a, 2);
	Xr.Dx(a, 3);
	return a.join("")
};

function pfn(a) {
	a = a.split("");
	Xr.w9(a, 0);
	return a.join("")
}
var Nq = [pfn];

/* stream url assembly */
function assemble(d, e) {
	var c;
	(c = d.get("n")) && (e = Nq[0](e));
	return e
}
var sts = 19999;
`

func preprocessFixture(t *testing.T) string {
	t.Helper()
	pp, err := Preprocess(fixtureScript)
	require.NoError(t, err)
	return pp
}

func TestPreprocess_StripsCommentsAndWhitespace(t *testing.T) {
	pp := preprocessFixture(t)

	assert.NotContains(t, pp, "player bootstrap")
	assert.NotContains(t, pp, "stream url assembly")
	assert.NotContains(t, pp, "\n")
	assert.Contains(t, pp, `a.split("")`)
	assert.Contains(t, pp, `var sts=19999`)
}

func TestPreprocess_PreservesStringLiterals(t *testing.T) {
	pp, err := Preprocess(`var s = "a // not a comment /* neither */ b"; var x = 1; var q = a.split("");`)
	require.NoError(t, err)
	assert.Contains(t, pp, `"a // not a comment /* neither */ b"`)
	assert.NotContains(t, pp, "var x =")
	assert.Contains(t, pp, "var x=1")
}

func TestPreprocess_PreservesRegexLiterals(t *testing.T) {
	pp, err := Preprocess(`var re = /sts\/\d+/; var sig = a.split("");`)
	require.NoError(t, err)
	assert.Contains(t, pp, `/sts\/\d+/`)
}

func TestPreprocess_Deterministic(t *testing.T) {
	a, err := Preprocess(fixtureScript)
	require.NoError(t, err)
	b, err := Preprocess(fixtureScript)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPreprocess_RejectsScriptWithoutLandmarks(t *testing.T) {
	_, err := Preprocess(`function add(a, b) { return a + b; }`)
	assert.ErrorIs(t, err, ErrMalformedScript)
}

func TestExtract_SigSolver(t *testing.T) {
	solvers, err := Extract(preprocessFixture(t))
	require.NoError(t, err)
	require.NotNil(t, solvers.Sig)

	// Plan: swap(1), reverse, splice(3) applied to "abcdefgh":
	// swap(1)  -> "bacdefgh"
	// reverse  -> "hgfedcab"
	// splice(3)-> "edcab"
	got, err := solvers.Sig("abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, "edcab", got)
}

func TestExtract_NSolver(t *testing.T) {
	solvers, err := Extract(preprocessFixture(t))
	require.NoError(t, err)
	require.NotNil(t, solvers.N)

	// pfn only reverses.
	got, err := solvers.N("abc123")
	require.NoError(t, err)
	assert.Equal(t, "321cba", got)
}

func TestExtract_Deterministic(t *testing.T) {
	pp := preprocessFixture(t)

	s1, err := Extract(pp)
	require.NoError(t, err)
	s2, err := Extract(pp)
	require.NoError(t, err)

	out1, err := s1.Sig("token0123456789")
	require.NoError(t, err)
	out2, err := s2.Sig("token0123456789")
	require.NoError(t, err)
	assert.Equal(t, out1, out2)
}

func TestExtract_SigOnlyScript(t *testing.T) {
	script := `
var Ab = { r: function(a) { a.reverse() } };
var dec = function(a) { a = a.split(""); Ab.r(a); return a.join("") };
`
	pp, err := Preprocess(script)
	require.NoError(t, err)

	solvers, err := Extract(pp)
	require.NoError(t, err)
	require.NotNil(t, solvers.Sig)
	assert.Nil(t, solvers.N, "script without n dispatch must yield an absent n solver")

	got, err := solvers.Sig("xyz")
	require.NoError(t, err)
	assert.Equal(t, "zyx", got)
}

func TestExtract_NoSolvers(t *testing.T) {
	pp, err := Preprocess(`var sts = 123; var other = "no transforms here";`)
	require.NoError(t, err)

	_, err = Extract(pp)
	assert.ErrorIs(t, err, ErrNoSolvers)
}

func TestExtract_NamedSigFunction(t *testing.T) {
	script := `
var Qw = {
	sp: function(a, b) { a.splice(0, b) }
};
function decode(a) { a = a.split(""); Qw.sp(a, 2); return a.join("") }
`
	pp, err := Preprocess(script)
	require.NoError(t, err)

	solvers, err := Extract(pp)
	require.NoError(t, err)
	require.NotNil(t, solvers.Sig)

	got, err := solvers.Sig("hello")
	require.NoError(t, err)
	assert.Equal(t, "llo", got)
}

func TestApplyPlan_SpliceOutOfRange(t *testing.T) {
	script := `
var Qw = { sp: function(a, b) { a.splice(0, b) } };
function decode(a) { a = a.split(""); Qw.sp(a, 50); return a.join("") }
`
	pp, err := Preprocess(script)
	require.NoError(t, err)

	solvers, err := Extract(pp)
	require.NoError(t, err)
	require.NotNil(t, solvers.Sig)

	_, err = solvers.Sig("short")
	assert.Error(t, err, "splice beyond token length must fail, not panic")
}

func TestExtract_SwapOnEmptyToken(t *testing.T) {
	solvers, err := Extract(preprocessFixture(t))
	require.NoError(t, err)

	_, err = solvers.Sig("")
	assert.Error(t, err)
}
