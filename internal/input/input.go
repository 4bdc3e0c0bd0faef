// Package input observes and synthesizes system-wide keyboard and mouse
// button events.
//
// A Source delivers every Press and Release to an Observer on the OS hook
// goroutine. The Observer's Decision is applied before the OS moves on, so
// observers must return quickly and never block.
package input

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dictakey/internal/keymap"
)

// ErrUnsupported reports an operation the current platform adapter cannot
// perform, such as mouse injection through the portable hook.
var ErrUnsupported = errors.New("input: not supported on this platform")

// Kind is the direction of a key or button transition.
type Kind int

const (
	Press Kind = iota
	Release
)

func (k Kind) String() string {
	switch k {
	case Press:
		return "press"
	case Release:
		return "release"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one raw transition reported by a Source.
type Event struct {
	Kind  Kind
	Class keymap.Class
	// Code is the platform code: a virtual-key or uiohook code for keyboards,
	// a keymap.Button* number for mice.
	Code uint32
	Time time.Time
	// Injected is set when the OS flags the event as synthetic.
	Injected bool
}

// Decision tells the Source what to do with an observed event.
type Decision int

const (
	PassThrough Decision = iota
	Suppress
)

func (d Decision) String() string {
	if d == Suppress {
		return "suppress"
	}
	return "pass"
}

// Observer receives events on the hook goroutine.
type Observer func(Event) Decision

// Handle identifies a key or button in the form the injector needs.
type Handle struct {
	Class keymap.Class
	Code  uint32
}

// Source is the platform input facility.
type Source interface {
	// Listen starts delivering events of class to obs. A failure affects
	// only that class.
	Listen(class keymap.Class, obs Observer) error
	// Canonical maps an observed code to its canonical id.
	Canonical(class keymap.Class, code uint32) (keymap.ID, bool)
	// Handle resolves id to something Inject accepts.
	Handle(class keymap.Class, id keymap.ID) (Handle, error)
	// Inject synthesizes a single press or release.
	Inject(kind Kind, h Handle) error
	// CanSuppress reports whether a Suppress decision actually keeps the
	// event from other applications.
	CanSuppress() bool
	// Close stops every listener. It is safe to call more than once.
	Close() error
}

// Layout is the pair of code tables a Source uses to observe events.
type Layout struct {
	Keyboard *keymap.Table
	Mouse    *keymap.Table
}

func (l Layout) table(class keymap.Class) *keymap.Table {
	if class == keymap.Mouse {
		return l.Mouse
	}
	return l.Keyboard
}

// Canonical maps code to an id using the table for class.
func (l Layout) Canonical(class keymap.Class, code uint32) (keymap.ID, bool) {
	t := l.table(class)
	if t == nil {
		return keymap.ID(fmt.Sprintf("code_%d", code)), false
	}
	return t.Canonical(code)
}

// Has reports whether id can be observed for class.
func (l Layout) Has(class keymap.Class, id keymap.ID) bool {
	t := l.table(class)
	return t != nil && t.Has(id)
}

// Handle resolves id through the same table used for observation.
func (l Layout) Handle(class keymap.Class, id keymap.ID) (Handle, error) {
	t := l.table(class)
	if t == nil {
		return Handle{}, fmt.Errorf("%s %q: %w", class, id, keymap.ErrNotFound)
	}
	code, err := t.Code(id)
	if err != nil {
		return Handle{}, err
	}
	return Handle{Class: class, Code: code}, nil
}

// deliver runs the observer and converts a panic into PassThrough so a bug
// never leaves the OS waiting on a dead callback.
func deliver(obs Observer, ev Event) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[DEBUG-PANIC] input observer panicked", "class", ev.Class.String(), "panic", r)
			d = PassThrough
		}
	}()
	return obs(ev)
}
