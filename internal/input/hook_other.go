//go:build !windows

package input

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	hook "github.com/robotn/gohook"

	"dictakey/internal/keymap"
	"dictakey/internal/workerutil"
)

const hookStopTimeout = 2 * time.Second

// errHookNotStarted reports that uiohook never announced HookEnabled, for
// example because no display is available.
var errHookNotStarted = errors.New("input: uiohook did not start")

// Test seams.
var (
	hookStartFn      = func() chan hook.Event { return hook.Start() }
	hookEndFn        = hook.End
	hookStartTimeout = 2 * time.Second
)

// injector synthesizes keyboard events on platforms without SendInput.
type injector interface {
	handle(id keymap.ID) (Handle, error)
	inject(kind Kind, h Handle) error
}

// HookSource observes input through libuiohook (via gohook). The hook is
// observe-only: every event reaches other applications whatever the
// observer decides.
type HookSource struct {
	layout   Layout
	injector injector

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	mu        sync.RWMutex
	observers map[keymap.Class]Observer
	started   bool
	startErr  error
}

// NewHookSource returns a Source backed by gohook.
func NewHookSource() *HookSource {
	ctx, cancel := context.WithCancel(context.Background())
	return &HookSource{
		layout:    Layout{Keyboard: keymap.UiohookKeys(), Mouse: keymap.MouseButtons()},
		injector:  newInjector(),
		ctx:       ctx,
		cancel:    cancel,
		observers: make(map[keymap.Class]Observer),
	}
}

func (s *HookSource) Canonical(class keymap.Class, code uint32) (keymap.ID, bool) {
	return s.layout.Canonical(class, code)
}

// Handle resolves keyboard ids through the injector's own key table. Mouse
// injection is not available through gohook.
func (s *HookSource) Handle(class keymap.Class, id keymap.ID) (Handle, error) {
	if class == keymap.Mouse {
		return Handle{}, fmt.Errorf("mouse %q: %w", id, ErrUnsupported)
	}
	return s.injector.handle(id)
}

// CanSuppress is false: uiohook cannot withhold events from the OS.
func (s *HookSource) CanSuppress() bool { return false }

func (s *HookSource) Inject(kind Kind, h Handle) error {
	if h.Class != keymap.Keyboard {
		return fmt.Errorf("inject %s: %w", h.Class, ErrUnsupported)
	}
	return s.injector.inject(kind, h)
}

// Listen registers obs for class. The shared uiohook event loop is started
// on the first call; if it never reports HookEnabled every class fails.
func (s *HookSource) Listen(class keymap.Class, obs Observer) error {
	if obs == nil {
		return errors.New("input: nil observer")
	}
	if s.closed.Load() {
		return errors.New("input: source closed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return fmt.Errorf("input: %s listener: %w", class, s.startErr)
	}
	if _, dup := s.observers[class]; dup {
		return fmt.Errorf("input: %s listener already running", class)
	}
	if s.started {
		s.observers[class] = obs
		slog.Info("[input] listener attached", "class", class.String())
		return nil
	}

	events := hookStartFn()
	if err := waitHookEnabled(events, hookStartTimeout); err != nil {
		s.startErr = err
		hookEndFn()
		slog.Error("[input] uiohook start failed", "class", class.String(), "error", err)
		return fmt.Errorf("input: %s listener: %w", class, err)
	}
	s.observers[class] = obs
	s.started = true
	workerutil.RunWithPanicRecovery(s.ctx, "input-uiohook", &s.wg, func(ctx context.Context) {
		s.pump(ctx, events)
	}, workerutil.RecoveryOptions{
		MaxRetries: 3,
		IsShutdown: s.closed.Load,
	})
	slog.Info("[input] uiohook started", "class", class.String())
	return nil
}

// waitHookEnabled consumes events until uiohook confirms the hook is
// running.
func waitHookEnabled(events <-chan hook.Event, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case raw, ok := <-events:
			if !ok {
				return fmt.Errorf("%w: event channel closed", errHookNotStarted)
			}
			switch raw.Kind {
			case hook.HookEnabled:
				return nil
			case hook.HookDisabled:
				return fmt.Errorf("%w: hook disabled", errHookNotStarted)
			}
		case <-timer.C:
			return fmt.Errorf("%w within %v", errHookNotStarted, timeout)
		}
	}
}

func (s *HookSource) pump(ctx context.Context, events <-chan hook.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-events:
			if !ok {
				slog.Debug("[input] uiohook event channel closed")
				return
			}
			if raw.Kind == hook.HookDisabled {
				slog.Warn("[input] uiohook disabled, no further events")
				continue
			}
			ev, ok := translate(raw)
			if !ok {
				continue
			}
			s.mu.RLock()
			obs := s.observers[ev.Class]
			s.mu.RUnlock()
			if obs == nil {
				continue
			}
			deliver(obs, ev)
		}
	}
}

// translate keeps key and button transitions. In gohook's numbering KeyDown
// and MouseDown are presses, KeyUp and MouseHold are releases; KeyHold is a
// typed character and MouseUp a completed click, both dropped.
func translate(raw hook.Event) (Event, bool) {
	ev := Event{Time: raw.When}
	switch raw.Kind {
	case hook.KeyDown:
		ev.Kind, ev.Class, ev.Code = Press, keymap.Keyboard, uint32(raw.Keycode)
	case hook.KeyUp:
		ev.Kind, ev.Class, ev.Code = Release, keymap.Keyboard, uint32(raw.Keycode)
	case hook.MouseDown:
		ev.Kind, ev.Class, ev.Code = Press, keymap.Mouse, uint32(raw.Button)
	case hook.MouseHold:
		ev.Kind, ev.Class, ev.Code = Release, keymap.Mouse, uint32(raw.Button)
	default:
		return Event{}, false
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	return ev, true
}

// Close stops the uiohook loop. It is safe to call more than once.
func (s *HookSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.mu.Lock()
	started := s.started
	clear(s.observers)
	s.mu.Unlock()

	s.cancel()
	if started {
		hookEndFn()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(hookStopTimeout)
	defer timer.Stop()
	select {
	case <-done:
		slog.Info("[input] uiohook stopped")
		return nil
	case <-timer.C:
		slog.Warn("[input] uiohook stop timed out")
		return errors.New("input: uiohook stop timed out")
	}
}
