// Package shortcut turns raw key and button transitions into recording
// session lifecycle calls.
//
// The Engine observes events on the OS hook goroutine and decides, without
// blocking, whether each one is swallowed. Every delayed action (click-mode
// timing, replaying a swallowed tap, restoring a lock key) runs on a bounded
// worker pool.
package shortcut

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"dictakey/internal/input"
	"dictakey/internal/keymap"
	"dictakey/internal/workerutil"
)

var (
	// ErrNoListeners is returned by Start when no input class could be
	// observed.
	ErrNoListeners = errors.New("shortcut: no input listener could be registered")
	// ErrStopped is returned by control calls made after Stop.
	ErrStopped = errors.New("shortcut: engine stopped")
	// ErrUnknownKey is returned for a key with no binding.
	ErrUnknownKey = errors.New("shortcut: no binding for key")
)

const (
	// DefaultSettleDelay lets the OS finish delivering the real release
	// before a replacement event is synthesized.
	DefaultSettleDelay     = 50 * time.Millisecond
	defaultShutdownTimeout = 2 * time.Second
	// clickWindowRatio scales the threshold into the click-mode wait.
	clickWindowRatio = 0.8
)

// Options configures an Engine.
type Options struct {
	Source     input.Source
	Bindings   []Binding
	NewSession SessionFactory

	// Workers sizes the job pool. Zero selects workerutil.DefaultPoolSize.
	Workers         int
	SettleDelay     time.Duration
	ShutdownTimeout time.Duration
}

// Engine dispatches input events to binding tasks.
type Engine struct {
	source          input.Source
	registry        *Registry
	guard           *Guard
	pool            *workerutil.Pool
	settleDelay     time.Duration
	shutdownTimeout time.Duration

	stopping atomic.Bool
	stopOnce sync.Once
	stopErr  error
}

// New validates bindings and builds an engine. It does not touch the OS
// until Start.
func New(opts Options) (*Engine, error) {
	if opts.Source == nil {
		return nil, errors.New("shortcut: input source is required")
	}
	if opts.NewSession == nil {
		return nil, errors.New("shortcut: session factory is required")
	}

	canSuppress := opts.Source.CanSuppress()
	seen := make(map[registryKey]struct{}, len(opts.Bindings))
	tasks := make([]*Task, 0, len(opts.Bindings))
	for _, b := range opts.Bindings {
		b = b.withDefaults()
		if b.Key == "" {
			return nil, errors.New("shortcut: binding with empty key")
		}
		if !canSuppress && b.Suppress {
			b = b.observeOnly()
			slog.Warn("[shortcut] input source cannot suppress, key stays visible to other applications",
				"key", string(b.Key), "restore", b.Restore)
		}
		k := registryKey{b.Class, b.Key}
		if _, dup := seen[k]; dup {
			return nil, fmt.Errorf("shortcut: duplicate binding for %s %s", b.Class, b.Key)
		}
		seen[k] = struct{}{}
		s := opts.NewSession(b)
		if s == nil {
			return nil, fmt.Errorf("shortcut: session factory returned nil for %s", b.Key)
		}
		tasks = append(tasks, newTask(b, s))
	}

	settle := opts.SettleDelay
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	shutdown := opts.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = defaultShutdownTimeout
	}
	return &Engine{
		source:          opts.Source,
		registry:        newRegistry(tasks),
		guard:           NewGuard(),
		pool:            workerutil.NewPool(opts.Workers, 0),
		settleDelay:     settle,
		shutdownTimeout: shutdown,
	}, nil
}

// Guard exposes the self-emission guard.
func (e *Engine) Guard() *Guard { return e.guard }

// Registry exposes the task registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Start registers listeners for every input class a binding uses. A class
// that fails to register is logged and skipped; Start fails only when no
// needed class could be observed.
func (e *Engine) Start() error {
	if e.stopping.Load() {
		return ErrStopped
	}
	needed := make(map[keymap.Class]bool)
	for _, t := range e.registry.Tasks() {
		b := t.binding
		needed[b.Class] = true
		slog.Info("[shortcut] binding registered",
			"key", string(b.Key),
			"class", b.Class.String(),
			"mode", b.Mode(),
			"suppress", b.Suppress,
			"restore", b.Restore,
			"threshold", b.Threshold,
		)
	}
	if len(needed) == 0 {
		slog.Warn("[shortcut] no bindings configured, nothing to listen for")
		return nil
	}

	var errs []error
	registered := 0
	for _, class := range []keymap.Class{keymap.Keyboard, keymap.Mouse} {
		if !needed[class] {
			continue
		}
		if err := e.source.Listen(class, e.HandleEvent); err != nil {
			slog.Error("[shortcut] listener registration failed", "class", class.String(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", class, err))
			continue
		}
		registered++
		slog.Info("[shortcut] listener started", "class", class.String())
	}
	if registered == 0 {
		return errors.Join(append([]error{ErrNoListeners}, errs...)...)
	}
	return nil
}

// Stop shuts the engine down: no further events are handled, listeners are
// closed, every open session is cancelled once and the pool is drained.
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() {
		e.stopping.Store(true)

		var errs []error
		if err := e.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close input source: %w", err))
		}
		slog.Info("[shortcut] listeners stopped")

		now := time.Now()
		for _, t := range e.registry.Tasks() {
			t.mu.Lock()
			if t.recording {
				t.cancelLocked(now)
			}
			t.closed = true
			t.pressed = false
			t.mu.Unlock()
		}

		if err := e.pool.Shutdown(e.shutdownTimeout); err != nil {
			errs = append(errs, err)
		}
		e.stopErr = errors.Join(errs...)
	})
	return e.stopErr
}

// Stopping reports whether Stop has begun.
func (e *Engine) Stopping() bool { return e.stopping.Load() }

// HandleEvent is the input observer. It runs on the OS hook goroutine and
// never blocks: all delayed work is handed to the pool.
func (e *Engine) HandleEvent(ev input.Event) input.Decision {
	if e.stopping.Load() {
		return input.PassThrough
	}

	id, ok := e.source.Canonical(ev.Class, ev.Code)
	if !ok {
		slog.Debug("[shortcut] unmapped input code", "class", ev.Class.String(), "code", ev.Code, "id", string(id))
		return input.PassThrough
	}

	if e.guard.Marked(id) {
		if ev.Kind == input.Release {
			e.guard.Consume(id)
		}
		slog.Debug("[shortcut] passing synthetic event", "key", string(id), "kind", ev.Kind.String(), "injected", ev.Injected)
		return input.PassThrough
	}
	if ev.Injected {
		slog.Debug("[shortcut] foreign synthetic event", "key", string(id), "kind", ev.Kind.String())
	}

	t, ok := e.registry.Lookup(ev.Class, id)
	if !ok {
		return input.PassThrough
	}

	t.mu.Lock()
	closed := t.closed
	if !closed {
		if t.binding.HoldMode {
			e.holdLocked(t, ev)
		} else {
			e.clickLocked(t, ev)
		}
	}
	t.mu.Unlock()

	if closed || !t.binding.Suppress {
		return input.PassThrough
	}
	return input.Suppress
}

func (e *Engine) holdLocked(t *Task, ev input.Event) {
	b := t.binding
	switch ev.Kind {
	case input.Press:
		if !t.recording {
			t.launchLocked(ev.Time)
		}
	case input.Release:
		if !t.recording {
			return
		}
		elapsed := ev.Time.Sub(t.startedAt)
		if elapsed < b.Threshold {
			t.cancelLocked(ev.Time)
			if b.Suppress {
				e.submit("replay:"+string(b.Key), e.resendJob("replay", b))
			}
			return
		}
		t.finishLocked(ev.Time)
		if b.Restore && keymap.IsToggle(b.Key) {
			e.submit("restore:"+string(b.Key), e.resendJob("restore", b))
		}
	}
}

func (e *Engine) clickLocked(t *Task, ev input.Event) {
	switch ev.Kind {
	case input.Press:
		if t.pressed {
			return
		}
		t.pressed = true
		sig := newSignal()
		t.signal = sig
		e.submit("countdown:"+string(t.binding.Key), e.countdownJob(t, sig))
		e.submit("manage:"+string(t.binding.Key), e.manageJob(t, sig))
	case input.Release:
		if !t.pressed {
			return
		}
		t.pressed = false
		if t.signal != nil {
			t.signal.fire()
		}
	}
}

func (e *Engine) submit(name string, job workerutil.Job) {
	if err := e.pool.Submit(name, job); err != nil {
		slog.Warn("[shortcut] job not scheduled", "job", name, "error", err)
	}
}

// StartSession opens a session on the task bound to key, or on the first
// task when key is empty. It is a no-op when that task is already
// recording.
func (e *Engine) StartSession(key keymap.ID) error {
	if e.stopping.Load() {
		return ErrStopped
	}
	t, err := e.taskFor(key)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrStopped
	}
	if t.recording {
		slog.Debug("[shortcut] start ignored, already recording", "key", string(t.binding.Key))
		return nil
	}
	if !t.launchLocked(time.Now()) {
		return fmt.Errorf("shortcut: launch %s failed", t.binding.Key)
	}
	return nil
}

// StopSessions finishes every open session and returns how many were open.
func (e *Engine) StopSessions() int {
	if e.stopping.Load() {
		return 0
	}
	n := 0
	now := time.Now()
	for _, t := range e.registry.Tasks() {
		t.mu.Lock()
		if !t.closed && t.recording {
			t.finishLocked(now)
			n++
		}
		t.mu.Unlock()
	}
	return n
}

// Snapshot returns the state of every task in binding order.
func (e *Engine) Snapshot() []TaskState {
	tasks := e.registry.Tasks()
	out := make([]TaskState, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.state())
	}
	return out
}

func (e *Engine) taskFor(key keymap.ID) (*Task, error) {
	tasks := e.registry.Tasks()
	if key == "" {
		if len(tasks) == 0 {
			return nil, fmt.Errorf("%w: no bindings configured", ErrUnknownKey)
		}
		return tasks[0], nil
	}
	for _, t := range tasks {
		if t.binding.Key == key {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
}
