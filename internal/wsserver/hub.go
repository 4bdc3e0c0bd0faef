package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dictakey/internal/session"
)

// writeDeadline bounds a single websocket write. A client that cannot take
// a frame within it is disconnected.
const writeDeadline = 5 * time.Second

// readDeadline allows about three missed pings before a client is dropped.
const readDeadline = 90 * time.Second

const pingInterval = 30 * time.Second

// maxReadMessageSize limits incoming subscribe messages.
const maxReadMessageSize = 4 * 1024

// DefaultMaxClients bounds concurrent feed consumers.
const DefaultMaxClients = 8

var wsUpgrader = websocket.Upgrader{
	// The feed binds to loopback; browsers on the same machine may connect.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4 * 1024,
}

// ErrTooManyClients rejects an upgrade beyond HubOptions.MaxClients.
var ErrTooManyClients = errors.New("wsserver: too many clients")

// HubOptions configures the websocket server.
type HubOptions struct {
	// Addr is the listen address. Use "127.0.0.1:0" for an OS-assigned port.
	Addr string
	// MaxClients defaults to DefaultMaxClients.
	MaxClients int
}

// client is one connected feed consumer.
//
// writeMu serializes WriteMessage calls, which gorilla/websocket does not
// allow concurrently. mu guards keys.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu   sync.RWMutex
	keys map[string]bool
}

func (c *client) wants(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys) == 0 || c.keys[key]
}

// Hub fans session events out to every connected websocket client.
//
// Write failure policy: any failed write disconnects that client; the client
// must reconnect.
type Hub struct {
	opts HubOptions

	mu      sync.RWMutex
	clients map[*client]struct{}

	listener net.Listener
	server   *http.Server
	url      string
	serveWG  sync.WaitGroup

	closeOnce sync.Once
}

// NewHub creates a Hub. It does not listen until Start.
func NewHub(opts HubOptions) *Hub {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	if opts.MaxClients <= 0 {
		opts.MaxClients = DefaultMaxClients
	}
	return &Hub{
		opts:    opts,
		clients: make(map[*client]struct{}),
	}
}

// Start listens on the configured address and serves /ws. Request handlers
// observe ctx cancellation; the server itself stops only via Stop.
func (h *Hub) Start(ctx context.Context) error {
	if h.server != nil {
		return fmt.Errorf("wsserver: already started")
	}

	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return fmt.Errorf("wsserver: listen: %w", err)
	}
	h.listener = ln

	addr := ln.Addr().(*net.TCPAddr)
	if !addr.IP.IsLoopback() {
		slog.Warn("[DEBUG-WS] event feed listening on a non-loopback address", "addr", addr.String())
	}
	h.url = fmt.Sprintf("ws://%s/ws", addr.String())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)

	h.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	h.serveWG.Go(func() {
		if serveErr := h.server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("[DEBUG-WS] server error", "error", serveErr)
		}
	})

	slog.Info("[DEBUG-WS] server started", "url", h.url)
	return nil
}

// Stop closes every client and shuts the HTTP server down. It is idempotent;
// a stopped Hub cannot be restarted.
func (h *Hub) Stop() error {
	var stopErr error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		clients := h.clients
		h.clients = make(map[*client]struct{})
		h.mu.Unlock()

		for c := range clients {
			h.closeConn(c.conn, "hub stop")
		}

		if h.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.server.Shutdown(shutdownCtx); err != nil {
				stopErr = fmt.Errorf("wsserver: shutdown: %w", err)
			}
			h.serveWG.Wait()
		}

		slog.Info("[DEBUG-WS] server stopped")
	})
	return stopErr
}

// URL returns the websocket URL, or "" before Start.
func (h *Hub) URL() string {
	return h.url
}

// ClientCount reports connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Deliver implements session.Sink. Write failures disconnect the affected
// client and are not returned: one slow consumer must not fail delivery to
// the others.
func (h *Hub) Deliver(ctx context.Context, ev session.Event) error {
	frame, err := EncodeEvent(ev)
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if c.wants(ev.Key) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		slog.Debug("[DEBUG-WS] broadcast skipped: no interested clients", "key", ev.Key, "type", string(ev.Type))
		return nil
	}
	for _, c := range targets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.write(c, websocket.TextMessage, frame, "event")
	}
	return nil
}

// write sends one frame under the client's write lock.
func (h *Hub) write(c *client, messageType int, payload []byte, what string) bool {
	c.writeMu.Lock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		c.writeMu.Unlock()
		slog.Warn("[DEBUG-WS] SetWriteDeadline failed, closing connection", "error", err)
		h.drop(c, "SetWriteDeadline failure")
		return false
	}
	err := c.conn.WriteMessage(messageType, payload)
	if clearErr := c.conn.SetWriteDeadline(time.Time{}); clearErr != nil {
		slog.Debug("[DEBUG-WS] clearWriteDeadline failed (non-fatal)", "error", clearErr)
	}
	c.writeMu.Unlock()

	if err != nil {
		slog.Warn("[DEBUG-WS] write failed, closing connection", "what", what, "error", err)
		h.drop(c, "write error")
		return false
	}
	return true
}

// drop removes c from the hub and closes its connection.
func (h *Hub) drop(c *client, reason string) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	h.closeConn(c.conn, reason)
}

// closeConn tolerates double close; gorilla returns an error without side
// effects in that case.
func (h *Hub) closeConn(conn *websocket.Conn, reason string) {
	if closeErr := conn.Close(); closeErr != nil {
		slog.Debug("[DEBUG-WS] connection close", "reason", reason, "error", closeErr)
	}
}

// register admits c after sending the hello frame, so hello is always the
// first message a client sees.
func (h *Hub) register(c *client) error {
	h.mu.RLock()
	full := len(h.clients) >= h.opts.MaxClients
	h.mu.RUnlock()
	if full {
		return ErrTooManyClients
	}

	hello, err := json.Marshal(helloMsg{Type: "hello", Version: ProtocolVersion})
	if err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		return fmt.Errorf("wsserver: send hello: %w", err)
	}
	if err := c.conn.SetWriteDeadline(time.Time{}); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) >= h.opts.MaxClients {
		return ErrTooManyClients
	}
	h.clients[c] = struct{}{}
	return nil
}

// handleWS upgrades the request and runs the client's read pump.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[DEBUG-WS] upgrade failed", "error", err)
		return
	}

	conn.SetReadLimit(maxReadMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		slog.Warn("[DEBUG-WS] SetReadDeadline failed on new connection", "error", err)
		h.closeConn(conn, "initial SetReadDeadline failure")
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	c := &client{conn: conn, keys: make(map[string]bool)}
	if err := h.register(c); err != nil {
		slog.Warn("[DEBUG-WS] rejecting client", "remoteAddr", conn.RemoteAddr(), "error", err)
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many clients")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		h.closeConn(conn, "client limit")
		return
	}
	slog.Info("[DEBUG-WS] client connected", "remoteAddr", conn.RemoteAddr())

	pingDone := make(chan struct{})
	go h.pingLoop(c, pingDone)

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] wsserver handleWS recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
		close(pingDone)
		h.drop(c, "read pump exit")
		slog.Info("[DEBUG-WS] client disconnected", "remoteAddr", conn.RemoteAddr())
	}()

	for {
		msgType, msg, readErr := conn.ReadMessage()
		if readErr != nil {
			if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("[DEBUG-WS] read error", "error", readErr)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var sub subscribeMsg
		if jsonErr := json.Unmarshal(msg, &sub); jsonErr != nil {
			slog.Debug("[DEBUG-WS] invalid JSON from client", "error", jsonErr)
			h.sendError(c, fmt.Sprintf("invalid JSON: %s", jsonErr))
			continue
		}
		h.handleSubscription(c, sub)
	}
}

// pingLoop keeps idle connections verifiably alive.
func (h *Hub) pingLoop(c *client, done <-chan struct{}) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] wsserver pingLoop recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			h.drop(c, "pingLoop panic recovery")
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !h.write(c, websocket.PingMessage, nil, "ping") {
				return
			}
		}
	}
}

func (h *Hub) handleSubscription(c *client, msg subscribeMsg) {
	switch msg.Action {
	case subscribeAction, unsubscribeAction:
	default:
		slog.Debug("[DEBUG-WS] unknown action", "action", msg.Action)
		h.sendError(c, fmt.Sprintf("unknown action: %q", msg.Action))
		return
	}

	c.mu.Lock()
	skipped := 0
	for _, key := range msg.Keys {
		if key == "" {
			skipped++
			continue
		}
		if msg.Action == subscribeAction {
			c.keys[key] = true
		} else {
			delete(c.keys, key)
		}
	}
	c.mu.Unlock()

	slog.Debug("[DEBUG-WS] subscription updated", "action", msg.Action, "keys", len(msg.Keys)-skipped)
	if skipped > 0 {
		h.sendError(c, "empty key in "+msg.Action+" request")
	}
}

// sendError notifies the client of a rejected message.
func (h *Hub) sendError(c *client, message string) {
	payload, err := json.Marshal(errorMsg{Type: "error", Message: message})
	if err != nil {
		slog.Debug("[DEBUG-WS] failed to marshal error message", "error", err)
		return
	}
	h.write(c, websocket.TextMessage, payload, "error")
}
