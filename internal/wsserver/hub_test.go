package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"aigcpanel/internal/bridge"
)

// testListenAddr lets the OS assign an ephemeral port per hub.
const testListenAddr = "127.0.0.1:0"

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// waitForCondition polls fn every 10ms until it returns true or the timeout
// expires.
func waitForCondition(t *testing.T, timeout time.Duration, fn func() bool) bool {
	t.Helper()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case <-ticker.C:
			if fn() {
				return true
			}
		case <-deadline.C:
			return false
		}
	}
}

func waitForConnection(t *testing.T, hub *Hub) {
	t.Helper()
	if !waitForCondition(t, 2*time.Second, hub.HasActiveConnection) {
		t.Fatal("timed out waiting for hub to register connection")
	}
}

func waitForNoConnection(t *testing.T, hub *Hub) {
	t.Helper()
	if !waitForCondition(t, 2*time.Second, func() bool { return !hub.HasActiveConnection() }) {
		t.Fatal("timed out waiting for hub to clear connection")
	}
}

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(hub.URL(), nil)
	if err != nil {
		t.Fatalf("failed to dial hub: %v", err)
	}
	return conn
}

func testServer(t *testing.T) *bridge.Server {
	t.Helper()
	reg := bridge.NewRegistry()
	err := reg.Expose("app", bridge.Tree{
		"echo": bridge.Func1(func(_ context.Context, s string) (string, error) {
			return s, nil
		}),
	})
	if err != nil {
		t.Fatalf("Expose() error = %v", err)
	}
	reg.MarkReady()
	return bridge.NewServer(reg)
}

// startHub creates and starts a Hub for testing, registering cleanup.
func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(HubOptions{Addr: testListenAddr, Handler: testServer(t)})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		if err := hub.Stop(); err != nil {
			t.Errorf("hub.Stop() returned error: %v", err)
		}
		cancel()
	})
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("hub.Start() returned error: %v", err)
	}
	return hub
}

func readFrame(t *testing.T, conn *websocket.Conn) bridge.Message {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline failed: %v", err)
	}
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage returned error: %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Fatalf("frame type = %d, want TextMessage", msgType)
	}
	var msg bridge.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode frame %q: %v", data, err)
	}
	return msg
}

// ---------------------------------------------------------------------------
// Lifecycle tests
// ---------------------------------------------------------------------------

func TestStartAndStop(t *testing.T) {
	hub := NewHub(HubOptions{Addr: testListenAddr, Handler: testServer(t)})
	if err := hub.Start(t.Context()); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
	if !strings.HasPrefix(hub.URL(), "ws://127.0.0.1:") {
		t.Fatalf("URL() = %q, want ws://127.0.0.1:<port>/ws", hub.URL())
	}
	if err := hub.Stop(); err != nil {
		t.Fatalf("Stop() returned error: %v", err)
	}
}

func TestStartRequiresHandler(t *testing.T) {
	hub := NewHub(HubOptions{Addr: testListenAddr})
	if err := hub.Start(t.Context()); err == nil {
		t.Fatal("Start() without handler should fail")
	}
}

func TestStartDoubleCallReturnsError(t *testing.T) {
	hub := startHub(t)
	if err := hub.Start(t.Context()); err == nil {
		t.Fatal("second Start() should return an error, got nil")
	}
}

func TestStopIdempotent(t *testing.T) {
	hub := NewHub(HubOptions{Addr: testListenAddr, Handler: testServer(t)})
	if err := hub.Start(t.Context()); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
	if err := hub.Stop(); err != nil {
		t.Fatalf("first Stop() returned error: %v", err)
	}
	if err := hub.Stop(); err != nil {
		t.Fatalf("second Stop() returned error: %v", err)
	}
}

func TestStartPortConflict(t *testing.T) {
	ln, err := net.Listen("tcp", testListenAddr)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	hub := NewHub(HubOptions{Addr: ln.Addr().String(), Handler: testServer(t)})
	if err := hub.Start(t.Context()); err == nil {
		_ = hub.Stop()
		t.Fatal("Start() on an occupied port should fail")
	}
}

func TestNewHubDefaultAddr(t *testing.T) {
	hub := NewHub(HubOptions{})
	if hub.opts.Addr != "127.0.0.1:0" {
		t.Fatalf("default Addr = %q, want 127.0.0.1:0", hub.opts.Addr)
	}
}

func TestContextCancelShutdown(t *testing.T) {
	hub := NewHub(HubOptions{Addr: testListenAddr, Handler: testServer(t)})
	ctx, cancel := context.WithCancel(context.Background())
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}

	conn := dialHub(t, hub)
	defer conn.Close()
	waitForConnection(t, hub)

	cancel()
	if err := hub.Stop(); err != nil {
		t.Fatalf("Stop() after cancel returned error: %v", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond)); err != nil {
		t.Fatalf("SetReadDeadline failed: %v", err)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected read to fail after context cancel + stop")
	}
}

// ---------------------------------------------------------------------------
// Connection tests
// ---------------------------------------------------------------------------

func TestCallOverWebSocket(t *testing.T) {
	hub := startHub(t)
	conn := dialHub(t, hub)
	defer conn.Close()

	args, err := bridge.EncodeArgs("hello")
	if err != nil {
		t.Fatalf("EncodeArgs() error = %v", err)
	}
	call, err := json.Marshal(bridge.Message{Kind: bridge.KindCall, ID: "c1", Path: "app.echo", Args: args})
	if err != nil {
		t.Fatalf("marshal call: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, call); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	msg := readFrame(t, conn)
	if msg.Kind != bridge.KindResult || msg.ID != "c1" {
		t.Fatalf("frame = %+v, want result for c1", msg)
	}
	if string(msg.Value) != `"hello"` {
		t.Fatalf("value = %s, want \"hello\"", msg.Value)
	}
}

func TestUnknownPathAnswersNotFound(t *testing.T) {
	hub := startHub(t)
	conn := dialHub(t, hub)
	defer conn.Close()

	call := `{"kind":"call","id":"c2","path":"nope.missing"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(call)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	msg := readFrame(t, conn)
	if msg.Error == nil || msg.Error.Code != bridge.CodeNotFound {
		t.Fatalf("frame = %+v, want not_found error", msg)
	}
}

func TestBinaryFramesAreIgnored(t *testing.T) {
	hub := startHub(t)
	conn := dialHub(t, hub)
	defer conn.Close()

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("WriteMessage(binary) error = %v", err)
	}
	call := `{"kind":"call","id":"c3","path":"app.echo","args":["after"]}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(call)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	msg := readFrame(t, conn)
	if msg.ID != "c3" || string(msg.Value) != `"after"` {
		t.Fatalf("frame = %+v, want echo result for c3", msg)
	}
}

func TestHasActiveConnection(t *testing.T) {
	hub := startHub(t)
	if hub.HasActiveConnection() {
		t.Fatal("HasActiveConnection() = true before any connection")
	}

	conn := dialHub(t, hub)
	waitForConnection(t, hub)

	if err := conn.Close(); err != nil {
		t.Logf("conn.Close() error: %v", err)
	}
	waitForNoConnection(t, hub)
}

func TestConnectionReplacement(t *testing.T) {
	hub := startHub(t)

	conn1 := dialHub(t, hub)
	defer conn1.Close()
	waitForConnection(t, hub)

	conn2 := dialHub(t, hub)
	defer conn2.Close()

	// The hub closes conn1 once conn2 is registered.
	if err := conn1.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline on conn1 failed: %v", err)
	}
	if _, _, err := conn1.ReadMessage(); err == nil {
		t.Fatal("expected conn1 to be closed by hub, but read succeeded")
	}
	waitForConnection(t, hub)

	if err := hub.Broadcast("page.show", map[string]string{"name": "main"}); err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}
	msg := readFrame(t, conn2)
	if msg.Kind != bridge.KindEvent || msg.Event != "page.show" {
		t.Fatalf("frame = %+v, want page.show event", msg)
	}
	if string(msg.Payload) != `{"name":"main"}` {
		t.Fatalf("payload = %s", msg.Payload)
	}
}

func TestBroadcastWithoutConnection(t *testing.T) {
	hub := startHub(t)
	if err := hub.Broadcast("anything", nil); err != nil {
		t.Fatalf("Broadcast() without client error = %v, want nil", err)
	}
}

func TestBroadcastRejectsUnencodablePayload(t *testing.T) {
	hub := startHub(t)
	if err := hub.Broadcast("bad", make(chan int)); err == nil {
		t.Fatal("Broadcast() with channel payload should fail")
	}
}

func TestWriteOnClosedConnectionReportsClosed(t *testing.T) {
	hub := startHub(t)
	conn := dialHub(t, hub)
	waitForConnection(t, hub)

	hub.mu.RLock()
	serverConn := hub.conn
	hub.mu.RUnlock()

	if err := conn.Close(); err != nil {
		t.Logf("conn.Close() error: %v", err)
	}
	waitForNoConnection(t, hub)

	// The serve loop has closed the server side by now.
	err := hub.write(serverConn, []byte(`{"kind":"event","event":"late"}`))
	if !errors.Is(err, bridge.ErrClosed) {
		t.Fatalf("write() error = %v, want ErrClosed", err)
	}
}
