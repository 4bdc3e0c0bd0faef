// Package logsink keeps the daemon's recent warnings in memory so the control
// channel can report them alongside session state.
package logsink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
)

// TeeHandler forwards records to base and copies records at or above
// minLevel into a Ring. Teed records are kept even when base filters them
// out, so warnings stay visible over the control channel at log_level error.
type TeeHandler struct {
	base     slog.Handler
	ring     *Ring
	minLevel slog.Level
	group    string // dot-separated slog group, reported as Entry.Source
	bound    []slog.Attr
}

// NewTeeHandler wraps base. A nil ring disables teeing.
func NewTeeHandler(base slog.Handler, minLevel slog.Level, ring *Ring) *TeeHandler {
	return &TeeHandler{
		base:     base,
		ring:     ring,
		minLevel: minLevel,
	}
}

func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.tees(level) || h.base.Enabled(ctx, level)
}

func (h *TeeHandler) tees(level slog.Level) bool {
	return h.ring != nil && level >= h.minLevel
}

// Handle forwards to base first and tees even if base fails; the base error
// is returned so slog reports it.
func (h *TeeHandler) Handle(ctx context.Context, record slog.Record) error {
	var err error
	if h.base.Enabled(ctx, record.Level) {
		err = h.base.Handle(ctx, record)
	}

	if h.tees(record.Level) {
		func() {
			defer func() {
				if r := recover(); r != nil {
					// stderr, not slog: logging here would re-enter this handler.
					fmt.Fprintf(os.Stderr, "[logsink] tee panicked: %v\n%s\n", r, debug.Stack())
				}
			}()
			h.ring.Add(h.entry(record))
		}()
	}
	return err
}

func (h *TeeHandler) entry(record slog.Record) Entry {
	e := Entry{
		Time:    record.Time,
		Level:   record.Level.String(),
		Message: record.Message,
		Source:  h.group,
	}
	n := len(h.bound) + record.NumAttrs()
	if n == 0 {
		return e
	}
	e.Attrs = make(map[string]string, n)
	for _, a := range h.bound {
		e.Attrs[a.Key] = a.Value.String()
	}
	record.Attrs(func(a slog.Attr) bool {
		e.Attrs[a.Key] = a.Value.String()
		return true
	})
	return e
}

func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.base = h.base.WithAttrs(attrs)
	clone.bound = append(append([]slog.Attr(nil), h.bound...), attrs...)
	return &clone
}

func (h *TeeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.base = h.base.WithGroup(name)
	if h.group != "" {
		clone.group = h.group + "." + name
	} else {
		clone.group = name
	}
	return &clone
}
