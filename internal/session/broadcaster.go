// Package session publishes recording session lifecycle events to sinks
// such as the websocket feed and the journal.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"dictakey/internal/shortcut"
	"dictakey/internal/workerutil"
)

// EventType names a lifecycle transition.
type EventType string

const (
	Begin  EventType = "begin"
	Cancel EventType = "cancel"
	Finish EventType = "finish"
)

const (
	// DefaultQueueSize bounds events waiting for delivery.
	DefaultQueueSize    = 256
	defaultDeliverLimit = 2 * time.Second
)

// Event is one lifecycle transition of a recording session.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Key       string    `json:"key"`
	Class     string    `json:"class"`
	Mode      string    `json:"mode"`
	At        time.Time `json:"at"`
	// ElapsedMS is set on cancel and finish.
	ElapsedMS int64 `json:"elapsed_ms,omitempty"`
}

// Sink receives published events on the delivery goroutine.
type Sink interface {
	Deliver(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Deliver(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Broadcaster fans lifecycle events out to sinks. Publishing never blocks:
// when the queue is full the event is dropped and counted.
type Broadcaster struct {
	sinks []Sink

	mu     sync.RWMutex
	queue  chan Event
	closed bool

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	dropped atomic.Uint64

	now   func() time.Time
	newID func() string
}

// NewBroadcaster starts the delivery goroutine. queueSize <= 0 selects
// DefaultQueueSize.
func NewBroadcaster(queueSize int, sinks ...Sink) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Broadcaster{
		sinks:  sinks,
		queue:  make(chan Event, queueSize),
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	workerutil.RunWithPanicRecovery(ctx, "session-broadcast", &b.wg, b.drain, workerutil.RecoveryOptions{})
	return b
}

// Factory returns a session factory whose sessions publish through b.
func (b *Broadcaster) Factory() shortcut.SessionFactory {
	return func(binding shortcut.Binding) shortcut.Session {
		return &recorder{b: b, binding: binding}
	}
}

// Publish enqueues ev and reports whether it was accepted.
func (b *Broadcaster) Publish(ev Event) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	select {
	case b.queue <- ev:
		return true
	default:
		n := b.dropped.Add(1)
		slog.Warn("[session] event queue full, dropping event",
			"type", string(ev.Type), "sessionId", ev.SessionID, "dropped", n)
		return false
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (b *Broadcaster) Dropped() uint64 { return b.dropped.Load() }

// Close stops accepting events and waits up to timeout for queued events to
// be delivered.
func (b *Broadcaster) Close(timeout time.Duration) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	defer b.cancel()

	if timeout <= 0 {
		timeout = defaultDeliverLimit
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		b.cancel()
		<-done
		return fmt.Errorf("session: %d events undelivered at close", len(b.queue))
	}
}

func (b *Broadcaster) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-b.queue:
			if !ok {
				return
			}
			b.deliver(ctx, ev)
		}
	}
}

func (b *Broadcaster) deliver(ctx context.Context, ev Event) {
	for i, sink := range b.sinks {
		dctx, cancel := context.WithTimeout(ctx, defaultDeliverLimit)
		err := sink.Deliver(dctx, ev)
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("[session] sink delivery failed", "sink", i, "type", string(ev.Type), "error", err)
		}
	}
}

// recorder is the per-binding session.
type recorder struct {
	b       *Broadcaster
	binding shortcut.Binding

	mu      sync.Mutex
	id      string
	started time.Time
}

func (r *recorder) Launch() {
	r.mu.Lock()
	r.id = r.b.newID()
	r.started = r.b.now()
	ev := r.event(Begin, r.started)
	r.mu.Unlock()

	slog.Info("[session] recording started", "key", string(r.binding.Key), "sessionId", ev.SessionID)
	r.b.Publish(ev)
}

func (r *recorder) Cancel() { r.end(Cancel) }

func (r *recorder) Finish() { r.end(Finish) }

func (r *recorder) end(typ EventType) {
	r.mu.Lock()
	if r.id == "" {
		r.mu.Unlock()
		slog.Debug("[session] end without open session", "key", string(r.binding.Key), "type", string(typ))
		return
	}
	now := r.b.now()
	ev := r.event(typ, now)
	ev.ElapsedMS = now.Sub(r.started).Milliseconds()
	r.id = ""
	r.mu.Unlock()

	slog.Info("[session] recording ended", "key", string(r.binding.Key), "sessionId", ev.SessionID,
		"type", string(typ), "elapsedMs", ev.ElapsedMS)
	r.b.Publish(ev)
}

func (r *recorder) event(typ EventType, at time.Time) Event {
	return Event{
		Type:      typ,
		SessionID: r.id,
		Key:       string(r.binding.Key),
		Class:     r.binding.Class.String(),
		Mode:      r.binding.Mode(),
		At:        at,
	}
}
