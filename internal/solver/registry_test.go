// SPDX-License-Identifier: MIT

package solver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decipherd/decipherd/internal/cache"
	"github.com/decipherd/decipherd/internal/jsproc"
	"github.com/decipherd/decipherd/internal/playerstore"
	"github.com/decipherd/decipherd/internal/playerurl"
	"github.com/decipherd/decipherd/internal/workerpool"
)

const testPlayerURL = "https://www.youtube.com/s/player/fixture/player_ias.vflset/en_US/base.js"

// fixtureScript defines a reverse-only signature routine.
const fixtureScript = `
var Ab = { r: function(a) { a.reverse() } };
var dec = function(a) { a = a.split(""); Ab.r(a); return a.join("") };
var sts = 19999;
`

type rewriteTransport struct {
	target *url.URL
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = t.target.Scheme
	clone.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(clone)
}

type testRig struct {
	registry    *Registry
	fetches     *int64
	preprocesses *int64
}

func newTestRig(t *testing.T, handler http.Handler) *testRig {
	t.Helper()

	var fetches int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&fetches, 1)
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	store, err := playerstore.New(playerstore.Config{
		Dir:       t.TempDir(),
		Retention: 14 * 24 * time.Hour,
		Timeout:   5 * time.Second,
		Transport: &rewriteTransport{target: target},
	})
	require.NoError(t, err)

	var preprocesses int64
	pool := workerpool.New(workerpool.Config{Workers: 4, QueueSize: 16, TaskTimeout: 5 * time.Second}, func(raw string) (string, error) {
		atomic.AddInt64(&preprocesses, 1)
		return PreprocessTask(raw)
	})
	t.Cleanup(pool.Close)

	registry := New(
		store,
		pool,
		cache.New[string](cache.Config{Name: "preprocessed", MaxSize: 100, TTL: time.Hour}),
		cache.New[jsproc.Solvers](cache.Config{Name: "solver", MaxSize: 100, TTL: time.Hour}),
		cache.New[string](cache.Config{Name: "sts", MaxSize: 100, TTL: time.Hour}),
	)
	return &testRig{registry: registry, fetches: &fetches, preprocesses: &preprocesses}
}

func scriptHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	})
}

func TestSolversFor_ColdPipeline(t *testing.T) {
	rig := newTestRig(t, scriptHandler(fixtureScript))

	pair, err := rig.registry.SolversFor(context.Background(), testPlayerURL)
	require.NoError(t, err)
	require.NotNil(t, pair.Sig)

	out, err := pair.Sig("abc")
	require.NoError(t, err)
	assert.Equal(t, "cba", out)

	assert.Equal(t, int64(1), atomic.LoadInt64(rig.fetches))
	assert.Equal(t, int64(1), atomic.LoadInt64(rig.preprocesses))
}

func TestSolversFor_SecondCallServedFromCache(t *testing.T) {
	rig := newTestRig(t, scriptHandler(fixtureScript))

	_, err := rig.registry.SolversFor(context.Background(), testPlayerURL)
	require.NoError(t, err)
	_, err = rig.registry.SolversFor(context.Background(), testPlayerURL)
	require.NoError(t, err)

	assert.Equal(t, int64(1), atomic.LoadInt64(rig.fetches), "second call must not refetch")
	assert.Equal(t, int64(1), atomic.LoadInt64(rig.preprocesses), "second call must not re-preprocess")
}

func TestSolversFor_EquivalentURLsShareOnePipeline(t *testing.T) {
	rig := newTestRig(t, scriptHandler(fixtureScript))

	_, err := rig.registry.SolversFor(context.Background(), testPlayerURL)
	require.NoError(t, err)
	// Relative form of the same player script.
	_, err = rig.registry.SolversFor(context.Background(), "/s/player/fixture/player_ias.vflset/en_US/base.js")
	require.NoError(t, err)

	assert.Equal(t, int64(1), atomic.LoadInt64(rig.fetches))
}

func TestSolversFor_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	rig := newTestRig(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(fixtureScript))
	}))

	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)
	pairs := make([]jsproc.Solvers, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pairs[i], errs[i] = rig.registry.SolversFor(context.Background(), testPlayerURL)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i], "caller %d", i)
		require.NotNil(t, pairs[i].Sig, "caller %d", i)
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(rig.fetches), "one upstream fetch for n concurrent callers")
	assert.Equal(t, int64(1), atomic.LoadInt64(rig.preprocesses), "one preprocess for n concurrent callers")
}

func TestSolversFor_FailureNotCached(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	rig := newTestRig(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(fixtureScript))
	}))

	_, err := rig.registry.SolversFor(context.Background(), testPlayerURL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSolverGeneration)

	fail.Store(false)
	pair, err := rig.registry.SolversFor(context.Background(), testPlayerURL)
	require.NoError(t, err, "failed builds must not be cached")
	require.NotNil(t, pair.Sig)
}

func TestSolversFor_MalformedScript(t *testing.T) {
	rig := newTestRig(t, scriptHandler("function add(a, b) { return a + b; }"))

	_, err := rig.registry.SolversFor(context.Background(), testPlayerURL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSolverGeneration)
	assert.ErrorIs(t, err, jsproc.ErrMalformedScript)
	assert.Equal(t, int64(1), atomic.LoadInt64(rig.preprocesses), "malformed scripts must not be retried")
}

func TestSolversFor_InvalidURLPassesThrough(t *testing.T) {
	rig := newTestRig(t, scriptHandler(fixtureScript))

	_, err := rig.registry.SolversFor(context.Background(), "https://evil.example/s/player/x/base.js")
	require.Error(t, err)
	assert.ErrorIs(t, err, playerurl.ErrInvalidHost)
	assert.NotErrorIs(t, err, ErrSolverGeneration)
	assert.Equal(t, int64(0), atomic.LoadInt64(rig.fetches))
}

func TestSolversFor_PreprocessedCacheShortCircuitsPool(t *testing.T) {
	rig := newTestRig(t, scriptHandler(fixtureScript))

	canonical, err := playerurl.Canonicalize(testPlayerURL)
	require.NoError(t, err)
	fp := playerurl.Fingerprint(canonical)

	pp, err := jsproc.Preprocess(fixtureScript)
	require.NoError(t, err)
	rig.registry.Preprocessed.Put(fp, pp)

	pair, err := rig.registry.SolversFor(context.Background(), testPlayerURL)
	require.NoError(t, err)
	require.NotNil(t, pair.Sig)

	assert.Equal(t, int64(0), atomic.LoadInt64(rig.fetches), "preprocessed hit must skip the store")
	assert.Equal(t, int64(0), atomic.LoadInt64(rig.preprocesses), "preprocessed hit must skip the pool")
}

func TestSolversFor_ClearCacheThenRebuild(t *testing.T) {
	rig := newTestRig(t, scriptHandler(fixtureScript))

	first, err := rig.registry.SolversFor(context.Background(), testPlayerURL)
	require.NoError(t, err)

	rig.registry.Solvers.Clear()
	rig.registry.Preprocessed.Clear()

	second, err := rig.registry.SolversFor(context.Background(), testPlayerURL)
	require.NoError(t, err)

	a, err := first.Sig("token123456")
	require.NoError(t, err)
	b, err := second.Sig("token123456")
	require.NoError(t, err)
	assert.Equal(t, a, b, "rebuilt pair must behave identically")
}
