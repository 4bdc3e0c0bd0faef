//go:build !windows

package input

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	hook "github.com/robotn/gohook"

	"dictakey/internal/keymap"
)

func TestTranslate(t *testing.T) {
	when := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name   string
		raw    hook.Event
		want   Event
		wantOK bool
	}{
		{
			name:   "key pressed",
			raw:    hook.Event{Kind: hook.KeyDown, Keycode: 0x3A, When: when},
			want:   Event{Kind: Press, Class: keymap.Keyboard, Code: 0x3A, Time: when},
			wantOK: true,
		},
		{
			name:   "key released",
			raw:    hook.Event{Kind: hook.KeyUp, Keycode: 0x3A, When: when},
			want:   Event{Kind: Release, Class: keymap.Keyboard, Code: 0x3A, Time: when},
			wantOK: true,
		},
		{
			name:   "x2 pressed",
			raw:    hook.Event{Kind: hook.MouseDown, Button: 5, When: when},
			want:   Event{Kind: Press, Class: keymap.Mouse, Code: keymap.ButtonX2, Time: when},
			wantOK: true,
		},
		{
			name:   "x2 released",
			raw:    hook.Event{Kind: hook.MouseHold, Button: 5, When: when},
			want:   Event{Kind: Release, Class: keymap.Mouse, Code: keymap.ButtonX2, Time: when},
			wantOK: true,
		},
		{name: "typed character", raw: hook.Event{Kind: hook.KeyHold, Keycode: 0, Keychar: 'a'}},
		{name: "mouse clicked", raw: hook.Event{Kind: hook.MouseUp, Button: 5}},
		{name: "mouse move", raw: hook.Event{Kind: hook.MouseMove}},
		{name: "hook enabled", raw: hook.Event{Kind: hook.HookEnabled}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := translate(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("translate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHookSourceMouseInjectionUnsupported(t *testing.T) {
	s := NewHookSource()
	if _, err := s.Handle(keymap.Mouse, "x2"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Handle(mouse) error = %v, want ErrUnsupported", err)
	}
	if err := s.Inject(Press, Handle{Class: keymap.Mouse, Code: keymap.ButtonX2}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Inject(mouse) error = %v, want ErrUnsupported", err)
	}
	if s.CanSuppress() {
		t.Error("CanSuppress() = true for an observe-only hook")
	}
	if id, ok := s.Canonical(keymap.Keyboard, 0x3A); !ok || id != "caps_lock" {
		t.Errorf("Canonical(0x3A) = (%q, %v), want caps_lock", id, ok)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// stubHook replaces the uiohook start and end calls with a channel the test
// feeds.
func stubHook(t *testing.T, events chan hook.Event) (starts, ends *atomic.Int32) {
	t.Helper()
	starts, ends = new(atomic.Int32), new(atomic.Int32)
	prevStart, prevEnd, prevTimeout := hookStartFn, hookEndFn, hookStartTimeout
	hookStartFn = func() chan hook.Event {
		starts.Add(1)
		return events
	}
	hookEndFn = func() { ends.Add(1) }
	hookStartTimeout = 50 * time.Millisecond
	t.Cleanup(func() {
		hookStartFn, hookEndFn, hookStartTimeout = prevStart, prevEnd, prevTimeout
	})
	return starts, ends
}

func TestWaitHookEnabled(t *testing.T) {
	tests := []struct {
		name    string
		events  []hook.Event
		close   bool
		wantErr bool
	}{
		{name: "enabled", events: []hook.Event{{Kind: hook.HookEnabled}}},
		{name: "enabled after noise", events: []hook.Event{{Kind: hook.MouseMove}, {Kind: hook.HookEnabled}}},
		{name: "disabled", events: []hook.Event{{Kind: hook.HookDisabled}}, wantErr: true},
		{name: "closed", close: true, wantErr: true},
		{name: "silent", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := make(chan hook.Event, len(tt.events))
			for _, ev := range tt.events {
				ch <- ev
			}
			if tt.close {
				close(ch)
			}
			err := waitHookEnabled(ch, 30*time.Millisecond)
			if (err != nil) != tt.wantErr {
				t.Fatalf("waitHookEnabled() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errHookNotStarted) {
				t.Errorf("error = %v, want errHookNotStarted", err)
			}
		})
	}
}

func TestHookSourceListenFailsWhenHookNeverStarts(t *testing.T) {
	starts, ends := stubHook(t, make(chan hook.Event))
	s := NewHookSource()
	obs := func(Event) Decision { return PassThrough }

	if err := s.Listen(keymap.Keyboard, obs); !errors.Is(err, errHookNotStarted) {
		t.Fatalf("Listen(keyboard) error = %v, want errHookNotStarted", err)
	}
	if err := s.Listen(keymap.Mouse, obs); !errors.Is(err, errHookNotStarted) {
		t.Fatalf("Listen(mouse) error = %v, want errHookNotStarted", err)
	}
	if got := starts.Load(); got != 1 {
		t.Errorf("hook started %d times, want 1", got)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if got := ends.Load(); got != 1 {
		t.Errorf("hook ended %d times, want 1 (after the failed start only)", got)
	}
}

func TestHookSourceDeliversAfterHookEnabled(t *testing.T) {
	events := make(chan hook.Event, 4)
	events <- hook.Event{Kind: hook.HookEnabled}
	_, ends := stubHook(t, events)

	got := make(chan Event, 4)
	s := NewHookSource()
	if err := s.Listen(keymap.Keyboard, func(ev Event) Decision {
		got <- ev
		return Suppress
	}); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	events <- hook.Event{Kind: hook.KeyHold, Keychar: 'a'}
	events <- hook.Event{Kind: hook.KeyDown, Keycode: 0x3A}
	select {
	case ev := <-got:
		if ev.Kind != Press || ev.Code != 0x3A {
			t.Errorf("delivered %+v, want caps_lock press", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if ends.Load() != 1 {
		t.Errorf("hook ended %d times, want 1", ends.Load())
	}
}
