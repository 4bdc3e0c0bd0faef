package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"dictakey/internal/config"
	"dictakey/internal/input"
	"dictakey/internal/input/inputtest"
	"dictakey/internal/session"
)

// fakeSources replaces newInputSourceFn with a factory of fake sources and
// records each one it hands out.
type fakeSources struct {
	mu      sync.Mutex
	sources []*inputtest.FakeSource
	prepare func(*inputtest.FakeSource)
}

func installFakeSources(t *testing.T) *fakeSources {
	t.Helper()
	fs := &fakeSources{}
	prev := newInputSourceFn
	newInputSourceFn = func() input.Source {
		src := inputtest.NewFakeSource()
		fs.mu.Lock()
		defer fs.mu.Unlock()
		if fs.prepare != nil {
			fs.prepare(src)
		}
		fs.sources = append(fs.sources, src)
		return src
	}
	t.Cleanup(func() { newInputSourceFn = prev })
	return fs
}

func (fs *fakeSources) latest() *inputtest.FakeSource {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.sources) == 0 {
		return nil
	}
	return fs.sources[len(fs.sources)-1]
}

func (fs *fakeSources) count() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.sources)
}

// eventLog is a session sink that keeps every delivered event.
type eventLog struct {
	mu     sync.Mutex
	events []session.Event
}

func (l *eventLog) Deliver(_ context.Context, ev session.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) types() []session.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]session.EventType, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

// newTestApp builds an App with a running engine over fake input and no
// sockets, databases or file watches.
func newTestApp(t *testing.T, cfg config.Config) (*App, *fakeSources, *eventLog) {
	t.Helper()
	sources := installFakeSources(t)
	events := &eventLog{}

	a := NewApp(Options{Stderr: io.Discard})
	a.configPath = filepath.Join(t.TempDir(), "config.yaml")
	a.setConfigSnapshot(cfg)
	a.broadcaster = session.NewBroadcaster(64, events)
	if err := a.swapEngine(cfg); err != nil {
		t.Fatalf("swapEngine() error = %v", err)
	}
	t.Cleanup(func() { _ = a.shutdown() })
	return a, sources, events
}

// keepDefaultLogger restores the process logger after a test that installs
// its own.
func keepDefaultLogger(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}
