package workerutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsJobs(t *testing.T) {
	p := NewPool(2, 8)
	defer p.Shutdown(time.Second)

	var wg sync.WaitGroup
	var ran atomic.Int32
	for range 5 {
		wg.Add(1)
		if err := p.Submit("count", func(context.Context) {
			defer wg.Done()
			ran.Add(1)
		}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	wg.Wait()
	if got := ran.Load(); got != 5 {
		t.Errorf("ran %d jobs, want 5", got)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	const size = 3
	p := NewPool(size, 16)
	defer p.Shutdown(time.Second)

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		_ = p.Submit("busy", func(context.Context) {
			defer wg.Done()
			n := active.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
		})
	}
	wg.Wait()
	if got := peak.Load(); got > size {
		t.Errorf("peak concurrency = %d, want <= %d", got, size)
	}
}

func TestPoolRecoversJobPanic(t *testing.T) {
	p := NewPool(1, 4)
	defer p.Shutdown(time.Second)

	_ = p.Submit("panics", func(context.Context) { panic("job failure") })

	done := make(chan struct{})
	if err := p.Submit("after", func(context.Context) { close(done) }); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive a panicking job")
	}
}

func TestPoolShutdown(t *testing.T) {
	p := NewPool(1, 4)

	started := make(chan struct{})
	cancelled := make(chan struct{})
	_ = p.Submit("waiting", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	})
	<-started

	if err := p.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	select {
	case <-cancelled:
	default:
		t.Error("running job did not observe cancellation")
	}
	if !p.Closed() {
		t.Error("Closed() = false after Shutdown")
	}
	if err := p.Submit("late", func(context.Context) {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit() after Shutdown error = %v, want ErrPoolClosed", err)
	}
	if err := p.Shutdown(time.Second); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestPoolShutdownTimeout(t *testing.T) {
	p := NewPool(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})
	_ = p.Submit("stuck", func(context.Context) {
		close(started)
		<-release
	})
	<-started

	if err := p.Shutdown(10 * time.Millisecond); err == nil {
		t.Error("Shutdown() error = nil, want timeout")
	}
	close(release)
}

func TestPoolQueueFull(t *testing.T) {
	p := NewPool(1, 1)
	defer p.Shutdown(time.Second)

	block := make(chan struct{})
	started := make(chan struct{})
	_ = p.Submit("hold", func(context.Context) {
		close(started)
		<-block
	})
	<-started
	if err := p.Submit("queued", func(context.Context) {}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := p.Submit("overflow", func(context.Context) {}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Submit() error = %v, want ErrQueueFull", err)
	}
	close(block)
}
