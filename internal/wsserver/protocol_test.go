package wsserver

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"dictakey/internal/session"
)

func TestEncodeDecodeEvent(t *testing.T) {
	t.Parallel()

	ev := session.Event{
		Type:      session.Finish,
		SessionID: "abc",
		Key:       "caps_lock",
		Class:     "keyboard",
		Mode:      "hold",
		At:        time.Unix(1_700_000_000, 0).UTC(),
		ElapsedMS: 1234,
	}
	frame, err := EncodeEvent(ev)
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}
	got, err := DecodeEvent(frame)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if !got.At.Equal(ev.At) {
		t.Errorf("At = %v, want %v", got.At, ev.At)
	}
	got.At = ev.At
	if got != ev {
		t.Errorf("DecodeEvent() = %+v, want %+v", got, ev)
	}
}

func TestEncodeEventWireFields(t *testing.T) {
	t.Parallel()

	frame, err := EncodeEvent(session.Event{Type: session.Begin, SessionID: "s", Key: "x2"})
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(frame, &raw); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	for _, field := range []string{"type", "session_id", "key", "class", "mode", "at"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("frame %s missing %q", frame, field)
		}
	}
	if _, ok := raw["elapsed_ms"]; ok {
		t.Errorf("begin frame %s carries elapsed_ms", frame)
	}
}

func TestEncodeEventRequiresType(t *testing.T) {
	t.Parallel()

	if _, err := EncodeEvent(session.Event{Key: "x2"}); err == nil {
		t.Fatal("EncodeEvent() accepted an event without type")
	}
}

func TestDecodeEventErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{name: "not json", frame: "{", want: "decode event"},
		{name: "hello frame", frame: `{"type":"hello","version":1}`, want: "unexpected type"},
		{name: "error frame", frame: `{"type":"error","message":"x"}`, want: "unexpected type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeEvent([]byte(tt.frame))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("DecodeEvent(%s) error = %v, want %q", tt.frame, err, tt.want)
			}
		})
	}
}
