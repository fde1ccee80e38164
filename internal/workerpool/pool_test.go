// SPDX-License-Identifier: MIT

package workerpool

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestPool(t *testing.T, cfg Config, fn Func) *Pool {
	t.Helper()
	p := New(cfg, fn)
	t.Cleanup(p.Close)
	return p
}

func TestRun_Success(t *testing.T) {
	p := newTestPool(t, Config{Workers: 2, QueueSize: 4}, func(s string) (string, error) {
		return strings.ToUpper(s), nil
	})

	out, err := p.Run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "HELLO", out)
}

func TestRun_ConcurrentTasks(t *testing.T) {
	p := newTestPool(t, Config{Workers: 4, QueueSize: 64}, func(s string) (string, error) {
		return s + s, nil
	})

	const n = 32
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := strconv.Itoa(i)
			results[i], errs[i] = p.Run(context.Background(), in)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		in := strconv.Itoa(i)
		assert.Equal(t, in+in, results[i])
	}
}

func TestRun_QueueFullFailsFast(t *testing.T) {
	block := make(chan struct{})
	p := newTestPool(t, Config{Workers: 1, QueueSize: 1}, func(s string) (string, error) {
		<-block
		return s, nil
	})

	// Occupy the single worker, then fill the single queue slot.
	go func() { _, _ = p.Run(context.Background(), "busy") }()
	require.Eventually(t, func() bool {
		return p.Stats().Active == 1
	}, time.Second, 5*time.Millisecond)
	go func() { _, _ = p.Run(context.Background(), "queued") }()
	require.Eventually(t, func() bool {
		return p.Stats().Queued == 1
	}, time.Second, 5*time.Millisecond)

	start := time.Now()
	_, err := p.Run(context.Background(), "overflow")
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Less(t, time.Since(start), 100*time.Millisecond, "rejection must not block")

	close(block)
}

func TestRun_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	p := newTestPool(t, Config{Workers: 1, QueueSize: 1, TaskTimeout: 20 * time.Millisecond, MaxRetries: 0}, func(s string) (string, error) {
		<-release
		return s, nil
	})

	_, err := p.Run(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrTaskTimeout)
}

func TestRun_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int64
	p := newTestPool(t, Config{Workers: 1, QueueSize: 1, MaxRetries: 5, RetryDelay: time.Millisecond}, func(s string) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("transient")
		}
		return s, nil
	})

	out, err := p.Run(context.Background(), "payload")
	require.NoError(t, err)
	assert.Equal(t, "payload", out)
	assert.Equal(t, int64(3), calls.Load())
}

func TestRun_RetryBudgetExhausted(t *testing.T) {
	var calls atomic.Int64
	p := newTestPool(t, Config{Workers: 1, QueueSize: 1, MaxRetries: 2, RetryDelay: time.Millisecond}, func(s string) (string, error) {
		calls.Add(1)
		return "", errors.New("transient")
	})

	_, err := p.Run(context.Background(), "payload")
	require.Error(t, err)
	assert.Equal(t, int64(3), calls.Load(), "initial attempt plus MaxRetries")
}

func TestRun_PermanentErrorNotRetried(t *testing.T) {
	sentinel := errors.New("malformed input")
	var calls atomic.Int64
	p := newTestPool(t, Config{Workers: 1, QueueSize: 1, MaxRetries: 5, RetryDelay: time.Millisecond}, func(s string) (string, error) {
		calls.Add(1)
		return "", Permanent(sentinel)
	})

	_, err := p.Run(context.Background(), "payload")
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, int64(1), calls.Load(), "permanent failures must not burn the retry budget")
}

func TestRun_ContextCancelledWhileWaiting(t *testing.T) {
	release := make(chan struct{})
	p := newTestPool(t, Config{Workers: 1, QueueSize: 1, TaskTimeout: time.Minute}, func(s string) (string, error) {
		<-release
		return s, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := p.Run(ctx, "payload")
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
}

func TestRun_AfterClose(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1}, func(s string) (string, error) { return s, nil })
	p.Close()

	_, err := p.Run(context.Background(), "late")
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestClose_Idempotent(t *testing.T) {
	p := New(Config{Workers: 2, QueueSize: 2}, func(s string) (string, error) { return s, nil })
	p.Close()
	p.Close()
}

func TestClose_DrainsInFlightTasks(t *testing.T) {
	var done atomic.Int64
	p := New(Config{Workers: 2, QueueSize: 8}, func(s string) (string, error) {
		time.Sleep(5 * time.Millisecond)
		done.Add(1)
		return s, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.Run(context.Background(), "x")
		}()
	}
	// Let submissions land before closing.
	require.Eventually(t, func() bool {
		s := p.Stats()
		return s.Active+s.Queued+int(done.Load()) >= 4
	}, time.Second, time.Millisecond)

	p.Close()
	wg.Wait()
	assert.Equal(t, int64(4), done.Load())
}

func TestStats(t *testing.T) {
	p := newTestPool(t, Config{Workers: 3, QueueSize: 5}, func(s string) (string, error) { return s, nil })

	s := p.Stats()
	assert.Equal(t, 3, s.Workers)
	assert.Equal(t, 0, s.Active)
	assert.Equal(t, 0, s.Queued)
}
