package wsserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"aigcpanel/internal/bridge"
)

// writeDeadline is the maximum time allowed for a single WebSocket write to
// complete. If a WebView freezes longer than this, the connection is
// considered dead.
const writeDeadline = 5 * time.Second

// readDeadline is the maximum time the server waits for any read activity
// (including pong responses) before considering the connection dead.
// 90 seconds allows for ~3 missed pings (pingInterval=30s) before timeout.
const readDeadline = 90 * time.Second

// pingInterval is the interval between server-initiated WebSocket pings.
const pingInterval = 30 * time.Second

// maxReadMessageSize limits incoming bridge frames.
const maxReadMessageSize = 4 << 20

// wsUpgrader is shared; the Upgrader is stateless and safe for reuse.
var wsUpgrader = websocket.Upgrader{
	// CheckOrigin allows all origins because the server binds to 127.0.0.1
	// only and the only client is the application's own WebView.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 32 * 1024,
}

// ConnHandler serves one bridge connection until it ends.
// *bridge.Server satisfies it.
type ConnHandler interface {
	ServeConn(ctx context.Context, conn bridge.Conn) error
}

// HubOptions configures the WebSocket server.
type HubOptions struct {
	// Addr is the listen address. Use "127.0.0.1:0" for OS-assigned port.
	Addr string
	// Handler serves each accepted connection. Required.
	Handler ConnHandler
}

// Hub serves the bridge to the renderer over a single WebSocket connection
// and pushes events to it.
//
// Design: Single-connection model (desktop app = 1 WebView client).
// New connections replace existing ones to handle page reloads gracefully.
//
// Lock ordering (never acquire in reverse):
//
//	writeMu -> mu
//
// mu protects the current connection.
// writeMu serializes gorilla/websocket writes (not concurrency-safe).
//
// Write failure policy: any write failure disconnects the client via
// clearIfCurrent+closeConn. The client must reconnect.
type Hub struct {
	opts HubOptions

	mu   sync.RWMutex
	conn *websocket.Conn

	writeMu sync.Mutex

	listener net.Listener
	server   *http.Server
	url      string // "ws://127.0.0.1:<port>/ws", set after Start

	// closeOnce ensures Stop is idempotent. Once Stop has been called,
	// the Hub cannot be reused; create a new Hub instance instead.
	closeOnce sync.Once
}

// NewHub creates a Hub with the given options.
// The hub is not started until Start is called.
func NewHub(opts HubOptions) *Hub {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	return &Hub{opts: opts}
}

// Start begins listening on the configured address and serves WebSocket
// connections. ctx becomes the server's BaseContext and is passed on to the
// handler of every connection.
//
// Start must be called once during application startup.
func (h *Hub) Start(ctx context.Context) error {
	if h.server != nil {
		return fmt.Errorf("wsserver: already started")
	}
	if h.opts.Handler == nil {
		return fmt.Errorf("wsserver: handler required")
	}

	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return fmt.Errorf("wsserver: listen: %w", err)
	}
	h.listener = ln

	port := ln.Addr().(*net.TCPAddr).Port
	h.url = fmt.Sprintf("ws://127.0.0.1:%d/ws", port)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)

	h.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if serveErr := h.server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("[WS] server error", "error", serveErr)
		}
	}()

	slog.Info("[WS] server started", "url", h.url)
	return nil
}

// Stop shuts down the HTTP server and closes any active WebSocket connection.
// Safe to call multiple times.
func (h *Hub) Stop() error {
	var stopErr error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		conn := h.conn
		h.conn = nil
		h.mu.Unlock()

		if conn != nil {
			h.closeConn(conn, "hub stop")
		}

		if h.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.server.Shutdown(shutdownCtx); err != nil {
				stopErr = fmt.Errorf("wsserver: shutdown: %w", err)
			}
		}

		slog.Info("[WS] server stopped")
	})
	return stopErr
}

// URL returns the WebSocket URL for frontend connection
// (e.g. "ws://127.0.0.1:54321/ws"). Empty before Start.
func (h *Hub) URL() string {
	return h.url
}

// HasActiveConnection reports whether a WebSocket client is currently connected.
func (h *Hub) HasActiveConnection() bool {
	h.mu.RLock()
	active := h.conn != nil
	h.mu.RUnlock()
	return active
}

// Broadcast pushes an event to the connected client. Without a client the
// event is dropped and nil is returned.
func (h *Hub) Broadcast(event string, payload any) error {
	frame, err := bridge.EventFrame(event, payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conn := h.conn
	h.mu.RUnlock()
	if conn == nil {
		slog.Debug("[WS] broadcast skipped: no connection", "event", event)
		return nil
	}
	return h.write(conn, frame)
}

// clearIfCurrent clears the hub's connection only if conn is still the
// current one. Returns true if it was cleared.
func (h *Hub) clearIfCurrent(conn *websocket.Conn) bool {
	h.mu.Lock()
	isCurrent := h.conn == conn
	if isCurrent {
		h.conn = nil
	}
	h.mu.Unlock()
	return isCurrent
}

// closeConn closes a WebSocket connection. Closing an already closed
// connection returns an error that is only logged.
func (h *Hub) closeConn(conn *websocket.Conn, reason string) {
	if closeErr := conn.Close(); closeErr != nil {
		slog.Debug("[WS] connection close", "reason", reason, "error", closeErr)
	}
}

// write sends one text frame under writeMu with a deadline. Failures drop
// the connection per the write failure policy.
func (h *Hub) write(conn *websocket.Conn, frame []byte) error {
	h.writeMu.Lock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		h.writeMu.Unlock()
		slog.Warn("[WS] SetWriteDeadline failed, closing connection", "error", err)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "SetWriteDeadline failure")
		return fmt.Errorf("wsserver: %w", bridge.ErrClosed)
	}
	err := conn.WriteMessage(websocket.TextMessage, frame)
	if clearErr := conn.SetWriteDeadline(time.Time{}); clearErr != nil {
		slog.Debug("[WS] clear write deadline failed (non-fatal)", "error", clearErr)
	}
	h.writeMu.Unlock()

	if err != nil {
		slog.Warn("[WS] write failed, closing connection", "error", err)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "write error")
		return fmt.Errorf("wsserver: write: %w: %v", bridge.ErrClosed, err)
	}
	return nil
}

// handleWS upgrades HTTP to WebSocket and serves the bridge on it until the
// client goes away.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[WS] upgrade failed", "error", err)
		return
	}

	conn.SetReadLimit(maxReadMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		slog.Warn("[WS] SetReadDeadline failed on new connection", "error", err)
		h.closeConn(conn, "initial SetReadDeadline failure")
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	// Replace existing connection (page reload scenario).
	h.mu.Lock()
	oldConn := h.conn
	h.conn = conn
	h.mu.Unlock()
	if oldConn != nil {
		h.closeConn(oldConn, "replaced by new connection")
	}

	slog.Info("[WS] client connected", "remoteAddr", conn.RemoteAddr())

	pingDone := make(chan struct{})
	go h.pingLoop(conn, pingDone)

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[WS] handleWS recovered from panic",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
		close(pingDone)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "serve exit")
		slog.Info("[WS] client disconnected")
	}()

	if err := h.opts.Handler.ServeConn(r.Context(), &wsConn{hub: h, conn: conn}); err != nil {
		slog.Debug("[WS] connection ended with error", "error", err)
	}
}

// pingLoop sends periodic WebSocket pings to detect dead connections.
func (h *Hub) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[WS] pingLoop recovered from panic",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			h.clearIfCurrent(conn)
			h.closeConn(conn, "pingLoop panic recovery")
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			h.writeMu.Lock()
			pingErr := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline))
			h.writeMu.Unlock()

			if pingErr != nil {
				slog.Debug("[WS] ping failed, connection likely dead", "error", pingErr)
				h.clearIfCurrent(conn)
				h.closeConn(conn, "ping failure")
				return
			}
		}
	}
}

// wsConn adapts one WebSocket connection to bridge.Conn.
type wsConn struct {
	hub  *Hub
	conn *websocket.Conn
}

// ReadMessage returns the next text frame. Binary frames are skipped.
func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		msgType, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("[WS] read error", "error", err)
			}
			return nil, fmt.Errorf("%w: %v", bridge.ErrClosed, err)
		}
		if msgType != websocket.TextMessage {
			slog.Debug("[WS] ignoring non-text frame", "type", msgType)
			continue
		}
		return msg, nil
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	return c.hub.write(c.conn, data)
}

func (c *wsConn) Close() error {
	c.hub.clearIfCurrent(c.conn)
	return c.conn.Close()
}
