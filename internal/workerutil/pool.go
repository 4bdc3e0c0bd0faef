package workerutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrPoolClosed is returned by Submit once Shutdown has started.
	ErrPoolClosed = errors.New("worker pool closed")
	// ErrQueueFull is returned by Submit when the backlog is at capacity.
	ErrQueueFull = errors.New("worker pool queue full")
)

const (
	DefaultPoolSize  = 4
	defaultQueueSize = 64
)

// Job is a unit of pool work. ctx is cancelled when the pool shuts down;
// long waits inside a job must select on it.
type Job func(ctx context.Context)

type queuedJob struct {
	name string
	run  Job
}

// Pool runs submitted jobs on a fixed set of goroutines. Submit never
// blocks, so it is safe to call from input hook callbacks.
type Pool struct {
	jobs   chan queuedJob
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	wg sync.WaitGroup
}

// NewPool starts size workers with a backlog of queue pending jobs.
// Non-positive arguments select the defaults.
func NewPool(size, queue int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if queue <= 0 {
		queue = defaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		jobs:   make(chan queuedJob, queue),
		ctx:    ctx,
		cancel: cancel,
	}
	for range size {
		p.wg.Go(p.work)
	}
	return p
}

// Submit queues job under name. It returns ErrPoolClosed after Shutdown
// and ErrQueueFull when the backlog is saturated.
func (p *Pool) Submit(name string, job Job) error {
	if job == nil {
		return fmt.Errorf("submit %s: nil job", name)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- queuedJob{name: name, run: job}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Closed reports whether Shutdown has been called.
func (p *Pool) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Shutdown rejects new jobs, cancels the context passed to running jobs,
// drops jobs that have not started and waits up to timeout for workers to
// exit. Calling it more than once is safe.
func (p *Pool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		slog.Warn("[DEBUG-WORKER] pool shutdown timed out", "timeout", timeout)
		return fmt.Errorf("worker pool shutdown: timed out after %s", timeout)
	}
}

func (p *Pool) work() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case job := <-p.jobs:
			if p.ctx.Err() != nil {
				slog.Debug("[DEBUG-WORKER] dropping job after shutdown", "job", job.name)
				return
			}
			p.run(job)
		}
	}
}

func (p *Pool) run(job queuedJob) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(job.name, r)
		}
	}()
	job.run(p.ctx)
}
