// Package inputtest provides an in-memory input.Source for tests.
package inputtest

import (
	"errors"
	"sync"
	"time"

	"dictakey/internal/input"
	"dictakey/internal/keymap"
)

// Injection records one call to Inject.
type Injection struct {
	Kind   input.Kind
	Handle input.Handle
}

// FakeSource is an input.Source driven by Emit. With Loopback set, injected
// events are fed back to the observer the way the OS would deliver them.
// With ObserveOnly set it behaves like a hook that cannot suppress: every
// event reaches Downstream whatever the observer decides.
type FakeSource struct {
	Layout      input.Layout
	Loopback    bool
	ObserveOnly bool

	mu         sync.Mutex
	observers  map[keymap.Class]input.Observer
	listenErr  map[keymap.Class]error
	injectErr  error
	injections []Injection
	downstream []input.Event
	closed     bool
}

// NewFakeSource returns a fake using the Windows virtual-key table.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		Layout:    input.Layout{Keyboard: keymap.VirtualKeys(), Mouse: keymap.MouseButtons()},
		observers: make(map[keymap.Class]input.Observer),
		listenErr: make(map[keymap.Class]error),
	}
}

// FailListen makes Listen fail for class.
func (f *FakeSource) FailListen(class keymap.Class, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listenErr[class] = err
}

// FailInject makes every subsequent Inject return err.
func (f *FakeSource) FailInject(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.injectErr = err
}

func (f *FakeSource) Listen(class keymap.Class, obs input.Observer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("inputtest: source closed")
	}
	if err := f.listenErr[class]; err != nil {
		return err
	}
	f.observers[class] = obs
	return nil
}

// Listening reports whether an observer is registered for class.
func (f *FakeSource) Listening(class keymap.Class) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.observers[class] != nil
}

func (f *FakeSource) Canonical(class keymap.Class, code uint32) (keymap.ID, bool) {
	return f.Layout.Canonical(class, code)
}

func (f *FakeSource) Handle(class keymap.Class, id keymap.ID) (input.Handle, error) {
	return f.Layout.Handle(class, id)
}

func (f *FakeSource) CanSuppress() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.ObserveOnly
}

func (f *FakeSource) Inject(kind input.Kind, h input.Handle) error {
	f.mu.Lock()
	if f.injectErr != nil {
		err := f.injectErr
		f.mu.Unlock()
		return err
	}
	f.injections = append(f.injections, Injection{Kind: kind, Handle: h})
	loop := f.Loopback
	f.mu.Unlock()

	if loop {
		f.deliver(input.Event{Kind: kind, Class: h.Class, Code: h.Code, Time: time.Now(), Injected: true})
	}
	return nil
}

// Emit delivers ev as if the OS reported it and returns the observer's
// decision. Events with no observer pass through.
func (f *FakeSource) Emit(ev input.Event) input.Decision {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	return f.deliver(ev)
}

// Press emits a keyboard or mouse press of the canonical id at t.
func (f *FakeSource) Press(class keymap.Class, id keymap.ID, t time.Time) input.Decision {
	return f.emitID(input.Press, class, id, t)
}

// Release emits a release of the canonical id at t.
func (f *FakeSource) Release(class keymap.Class, id keymap.ID, t time.Time) input.Decision {
	return f.emitID(input.Release, class, id, t)
}

func (f *FakeSource) emitID(kind input.Kind, class keymap.Class, id keymap.ID, t time.Time) input.Decision {
	h, err := f.Layout.Handle(class, id)
	if err != nil {
		panic("inputtest: unknown id " + string(id))
	}
	return f.Emit(input.Event{Kind: kind, Class: class, Code: h.Code, Time: t})
}

func (f *FakeSource) deliver(ev input.Event) input.Decision {
	f.mu.Lock()
	obs := f.observers[ev.Class]
	observeOnly := f.ObserveOnly
	f.mu.Unlock()

	decision := input.PassThrough
	if obs != nil {
		decision = obs(ev)
	}
	if decision == input.PassThrough || observeOnly {
		f.mu.Lock()
		f.downstream = append(f.downstream, ev)
		f.mu.Unlock()
	}
	return decision
}

// Injections returns a copy of every successful Inject call.
func (f *FakeSource) Injections() []Injection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Injection(nil), f.injections...)
}

// Downstream returns the events that other applications would have seen.
func (f *FakeSource) Downstream() []input.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]input.Event(nil), f.downstream...)
}

func (f *FakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	clear(f.observers)
	return nil
}

// Closed reports whether Close has been called.
func (f *FakeSource) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
