package statusfeed

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
)

// writeDeadline bounds a single WebSocket write. A renderer that stalls longer
// than this is disconnected.
const writeDeadline = 5 * time.Second

// readDeadline is the maximum time the server waits for any read activity
// (including pong responses) before considering the connection dead.
const readDeadline = 90 * time.Second

// pingInterval is the interval between server-initiated WebSocket pings.
const pingInterval = 30 * time.Second

// maxReadMessageSize limits incoming client requests, which are tiny JSON
// objects.
const maxReadMessageSize = 4 * 1024

// defaultMaxClients caps concurrent renderers. An overlay and a tray icon
// are the expected pair; the rest is headroom for debugging tools.
const defaultMaxClients = 8

var wsUpgrader = websocket.Upgrader{
	// The server binds to loopback only; renderers may be browser sources
	// with arbitrary origins.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4 * 1024,
}

// HubOptions configures the status feed server.
type HubOptions struct {
	// Addr is the listen address. Use "127.0.0.1:0" for OS-assigned port.
	Addr string
	// MaxClients overrides defaultMaxClients when positive.
	MaxClients int
}

// client is one connected renderer. writeMu serializes writes on conn since
// gorilla/websocket does not support concurrent writers.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	// sent is the sequence of the newest status frame written; guarded by writeMu.
	sent uint64
}

// Hub fans status frames out to every connected renderer.
//
// mu protects clients, last and seq. It is never held during a network write;
// writers snapshot the client set and then take each client's writeMu.
// Status frames carry seq so a client never receives an older status after a
// newer one, whichever goroutine writes first.
//
// Write failure policy: any failed write disconnects that client only.
type Hub struct {
	opts HubOptions

	mu      sync.RWMutex
	clients map[*client]struct{}
	last    []byte // most recent status frame, replayed to new clients
	seq     uint64 // sequence of last

	listener net.Listener
	server   *http.Server
	url      string

	// closeOnce makes Stop idempotent. A stopped Hub cannot be restarted.
	closeOnce sync.Once
}

// NewHub creates a Hub with the given options.
// The hub is not started until Start is called.
func NewHub(opts HubOptions) *Hub {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	if opts.MaxClients <= 0 {
		opts.MaxClients = defaultMaxClients
	}
	return &Hub{
		opts:    opts,
		clients: make(map[*client]struct{}),
	}
}

// Start listens on the configured address and serves /ws and /status.
// When ctx is cancelled, active request handlers receive cancellation; the
// server itself must be stopped with Stop.
func (h *Hub) Start(ctx context.Context) error {
	if h.server != nil {
		return errors.New("statusfeed: already started")
	}

	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return fmt.Errorf("statusfeed: listen: %w", err)
	}
	h.listener = ln

	port := ln.Addr().(*net.TCPAddr).Port
	h.url = fmt.Sprintf("ws://127.0.0.1:%d/ws", port)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)
	mux.HandleFunc("GET /status", h.handleStatus)

	h.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if serveErr := h.server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("[DEBUG-WS] server error", "error", serveErr)
		}
	}()

	slog.Info("[DEBUG-WS] status feed started", "url", h.url)
	return nil
}

// Stop shuts down the HTTP server and closes every client connection.
// Safe to call multiple times.
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
				stopErr = fmt.Errorf("statusfeed: shutdown: %w", err)
			}
		}
		slog.Info("[DEBUG-WS] status feed stopped")
	})
	return stopErr
}

// URL returns the WebSocket URL (e.g. "ws://127.0.0.1:54321/ws"), or "" before Start.
func (h *Hub) URL() string {
	return h.url
}

// ClientCount returns the number of connected renderers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish records s as the current status and pushes it to every client.
func (h *Hub) Publish(s Snapshot) {
	frame, err := EncodeStatus(s)
	if err != nil {
		slog.Warn("[DEBUG-WS] failed to encode status", "error", err)
		return
	}

	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.last = frame
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.writeStatus(c, frame, seq, "publish")
	}
}

// lastFrame returns the replay frame, encoding an empty snapshot before the
// first Publish.
func (h *Hub) lastFrame() []byte {
	frame, _ := h.lastStatus()
	return frame
}

// lastStatus returns the replay frame together with its sequence.
func (h *Hub) lastStatus() ([]byte, uint64) {
	h.mu.RLock()
	frame, seq := h.last, h.seq
	h.mu.RUnlock()
	if frame != nil {
		return frame, seq
	}
	frame, _ = EncodeStatus(Snapshot{})
	return frame, seq
}

func (h *Hub) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(h.lastFrame()); err != nil {
		slog.Debug("[DEBUG-WS] status response write failed", "error", err)
	}
}

// write sends one text frame to c. A failure removes and closes c.
func (h *Hub) write(c *client, frame []byte, reason string) bool {
	c.writeMu.Lock()
	err := writeText(c.conn, frame)
	c.writeMu.Unlock()
	return h.afterWrite(c, err, reason)
}

// writeStatus is write for status frames. A frame older than the newest one
// already sent to c is skipped.
func (h *Hub) writeStatus(c *client, frame []byte, seq uint64, reason string) bool {
	c.writeMu.Lock()
	if seq < c.sent {
		c.writeMu.Unlock()
		slog.Debug("[DEBUG-WS] skipping superseded status frame", "reason", reason, "seq", seq, "sent", c.sent)
		return true
	}
	c.sent = seq
	err := writeText(c.conn, frame)
	c.writeMu.Unlock()
	return h.afterWrite(c, err, reason)
}

// sendStatus replays the current status to c.
func (h *Hub) sendStatus(c *client, reason string) bool {
	frame, seq := h.lastStatus()
	return h.writeStatus(c, frame, seq, reason)
}

func writeText(conn *websocket.Conn, frame []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return err
	}
	// Failure to clear is non-fatal: the next write sets a fresh deadline.
	if clearErr := conn.SetWriteDeadline(time.Time{}); clearErr != nil {
		slog.Debug("[DEBUG-WS] clear write deadline failed (non-fatal)", "error", clearErr)
	}
	return nil
}

func (h *Hub) afterWrite(c *client, err error, reason string) bool {
	if err != nil {
		slog.Warn("[DEBUG-WS] write failed, closing connection", "reason", reason, "error", err)
		h.remove(c)
		h.closeConn(c.conn, "write error in "+reason)
		return false
	}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// closeConn closes a WebSocket connection. Double-close is expected when a
// write failure and the read pump race; it is logged at Debug.
func (h *Hub) closeConn(conn *websocket.Conn, reason string) {
	if closeErr := conn.Close(); closeErr != nil {
		slog.Debug("[DEBUG-WS] connection close", "reason", reason, "error", closeErr)
	}
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	if h.ClientCount() >= h.opts.MaxClients {
		slog.Warn("[DEBUG-WS] client limit reached, rejecting", "remoteAddr", r.RemoteAddr, "max", h.opts.MaxClients)
		http.Error(w, "too many status feed clients", http.StatusServiceUnavailable)
		return
	}

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

	c := &client{conn: conn}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	slog.Info("[DEBUG-WS] client connected", "remoteAddr", conn.RemoteAddr())

	pingDone := make(chan struct{})
	go h.pingLoop(c, pingDone)

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] statusfeed handleWS recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
		close(pingDone)
		h.remove(c)
		h.closeConn(conn, "read pump exit")
		slog.Info("[DEBUG-WS] client disconnected")
	}()

	if !h.sendStatus(c, "initial status") {
		return
	}

	for {
		msgType, msg, readErr := conn.ReadMessage()
		if readErr != nil {
			if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("[DEBUG-WS] read error", "error", readErr)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var req clientMsg
		if jsonErr := json.Unmarshal(msg, &req); jsonErr != nil {
			slog.Debug("[DEBUG-WS] invalid JSON from client", "error", jsonErr)
			h.sendError(c, fmt.Sprintf("invalid JSON: %s", jsonErr))
			continue
		}
		switch req.Action {
		case actionStatus:
			h.sendStatus(c, "status request")
		default:
			slog.Debug("[DEBUG-WS] unknown action", "action", req.Action)
			h.sendError(c, fmt.Sprintf("unknown action %q", req.Action))
		}
	}
}

// pingLoop sends periodic pings so dead renderers are detected within
// readDeadline.
func (h *Hub) pingLoop(c *client, done <-chan struct{}) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] statusfeed pingLoop recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			h.remove(c)
			h.closeConn(c.conn, "pingLoop panic recovery")
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			pingErr := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline))
			c.writeMu.Unlock()
			if pingErr != nil {
				slog.Debug("[DEBUG-WS] ping failed, connection likely dead", "error", pingErr)
				h.remove(c)
				h.closeConn(c.conn, "ping failure")
				return
			}
		}
	}
}

func (h *Hub) sendError(c *client, message string) {
	payload, err := json.Marshal(errorMsg{Type: TypeError, Message: message})
	if err != nil {
		slog.Debug("[DEBUG-WS] failed to marshal error message", "error", err)
		return
	}
	h.write(c, payload, "sendError")
}
