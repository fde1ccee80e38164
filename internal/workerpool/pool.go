// SPDX-License-Identifier: MIT

// Package workerpool executes CPU-bound preprocessing tasks on a fixed set
// of workers behind a bounded FIFO queue.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decipherd/decipherd/internal/log"
	"github.com/decipherd/decipherd/internal/metrics"
)

var (
	// ErrQueueFull signals backpressure: the queue is at capacity and the
	// task was not accepted.
	ErrQueueFull = errors.New("worker queue full")
	// ErrTaskTimeout marks a task that exceeded the per-task timeout.
	ErrTaskTimeout = errors.New("worker task timeout")
	// ErrPoolClosed is returned for submissions after Close.
	ErrPoolClosed = errors.New("worker pool closed")
)

// permanentError wraps an error the pool must not retry.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable (malformed input rather than a
// transient runtime failure).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Func is the task body. It must be safe for concurrent invocation.
type Func func(payload string) (string, error)

// Config holds the pool's tunables.
type Config struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
}

// Stats is a snapshot of pool occupancy.
type Stats struct {
	Workers int `json:"workers"`
	Active  int `json:"active"`
	Queued  int `json:"queued"`
}

type taskResult struct {
	value string
	err   error
}

type task struct {
	id         uint64
	payload    string
	submitTime time.Time
	attempts   int
	result     chan taskResult
}

// Pool is a bounded worker pool. Construct with New, release with Close.
type Pool struct {
	cfg Config
	fn  Func

	jobs   chan *task
	nextID atomic.Uint64
	active atomic.Int64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New starts the workers immediately.
func New(cfg Config, fn Func) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 16
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 60 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}

	p := &Pool{
		cfg:  cfg,
		fn:   fn,
		jobs: make(chan *task, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Run submits a payload and waits for its result. Submission fails fast
// with ErrQueueFull when the queue is at capacity; the caller decides how
// to surface the backpressure. Cancelling ctx abandons the wait but the
// task still completes and its result is discarded.
func (p *Pool) Run(ctx context.Context, payload string) (string, error) {
	t := &task{
		id:         p.nextID.Add(1),
		payload:    payload,
		submitTime: time.Now(),
		result:     make(chan taskResult, 1),
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return "", ErrPoolClosed
	}
	select {
	case p.jobs <- t:
		p.mu.RUnlock()
		metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))
	default:
		p.mu.RUnlock()
		metrics.ObserveWorkerTask("rejected", 0)
		return "", ErrQueueFull
	}

	select {
	case r := <-t.result:
		return r.value, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close stops accepting tasks and waits for the workers to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers: p.cfg.Workers,
		Active:  int(p.active.Load()),
		Queued:  len(p.jobs),
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	logger := log.WithComponent("workerpool").With().Int("worker_id", id).Logger()

	for t := range p.jobs {
		metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))
		p.active.Add(1)
		metrics.WorkerActive.Set(float64(p.active.Load()))

		value, err := p.execute(t)
		t.result <- taskResult{value: value, err: err}

		p.active.Add(-1)
		metrics.WorkerActive.Set(float64(p.active.Load()))

		status := "ok"
		if err != nil {
			status = "error"
			if errors.Is(err, ErrTaskTimeout) {
				status = "timeout"
			}
		}
		duration := time.Since(t.submitTime)
		metrics.ObserveWorkerTask(status, duration)
		logger.Debug().
			Str("event", "workerpool.task_done").
			Uint64("task_id", t.id).
			Str("status", status).
			Int("attempts", t.attempts).
			Dur("duration", duration).
			Msg("task completed")
	}
}

// execute runs one task with the retry budget. Transient failures (timeout
// or runtime error) are retried; permanent errors are not.
func (p *Pool) execute(t *task) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.IncWorkerRetry()
			time.Sleep(p.cfg.RetryDelay)
		}
		t.attempts++

		value, err := p.attempt(t.payload)
		if err == nil {
			return value, nil
		}
		if IsPermanent(err) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("task failed after %d attempts: %w", t.attempts, lastErr)
}

// attempt runs the task body once under the per-task timeout. The body is
// pure CPU and cannot be interrupted; on timeout the goroutine is left to
// finish into a buffered channel so the worker is released without leaking
// a blocked sender.
func (p *Pool) attempt(payload string) (string, error) {
	done := make(chan taskResult, 1)
	go func() {
		value, err := p.fn(payload)
		done <- taskResult{value: value, err: err}
	}()

	timer := time.NewTimer(p.cfg.TaskTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.value, r.err
	case <-timer.C:
		return "", ErrTaskTimeout
	}
}
