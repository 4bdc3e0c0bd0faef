// Package wsserver streams recording session events to local websocket
// clients.
//
// # Protocol
//
// Every server message is a JSON text frame with a "type" field:
//
//   - "hello": sent once on connect, carries the protocol version.
//   - "begin", "cancel", "finish": a session.Event.
//   - "error": a rejected client message.
//
// Clients may narrow the feed to specific keys:
//
//	{"action":"subscribe","keys":["caps_lock"]}
//	{"action":"unsubscribe","keys":["caps_lock"]}
//
// A client with no subscriptions receives every key.
package wsserver

import (
	"encoding/json"
	"fmt"

	"dictakey/internal/session"
)

// ProtocolVersion is reported in the hello message.
const ProtocolVersion = 1

const (
	subscribeAction   = "subscribe"
	unsubscribeAction = "unsubscribe"
)

// subscribeMsg is a client subscribe or unsubscribe request.
type subscribeMsg struct {
	Action string   `json:"action"`
	Keys   []string `json:"keys"`
}

type helloMsg struct {
	Type    string `json:"type"`
	Version int    `json:"version"`
}

type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// EncodeEvent renders ev as a server text frame.
func EncodeEvent(ev session.Event) ([]byte, error) {
	if ev.Type == "" {
		return nil, fmt.Errorf("wsserver: encode event: type must not be empty")
	}
	return json.Marshal(ev)
}

// DecodeEvent parses a frame produced by EncodeEvent.
func DecodeEvent(frame []byte) (session.Event, error) {
	var ev session.Event
	if err := json.Unmarshal(frame, &ev); err != nil {
		return session.Event{}, fmt.Errorf("wsserver: decode event: %w", err)
	}
	switch ev.Type {
	case session.Begin, session.Cancel, session.Finish:
		return ev, nil
	default:
		return session.Event{}, fmt.Errorf("wsserver: decode event: unexpected type %q", ev.Type)
	}
}
