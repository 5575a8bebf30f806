package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"aigcpanel/internal/testutil"
)

// startBridge serves reg on one end of a Pipe and returns a Client on the other.
func startBridge(t *testing.T, reg *Registry) (*Client, Conn) {
	t.Helper()
	clientConn, serverConn := Pipe()
	served := make(chan error, 1)
	go func() { served <- NewServer(reg).ServeConn(context.Background(), serverConn) }()

	client := NewClient(clientConn)
	t.Cleanup(func() {
		_ = client.Close()
		select {
		case err := <-served:
			if err != nil {
				t.Errorf("ServeConn() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("ServeConn() did not return after client close")
		}
	})
	return client, serverConn
}

func mustExpose(t *testing.T, reg *Registry, name string, tree Tree) {
	t.Helper()
	if err := reg.Expose(name, tree); err != nil {
		t.Fatalf("Expose(%q) error = %v", name, err)
	}
}

func TestConcurrentCallsResolveIndependently(t *testing.T) {
	reg := NewRegistry()
	mustExpose(t, reg, "math", Tree{
		"double": Func1(func(_ context.Context, n int) (int, error) {
			// Later calls finish first so results arrive out of order.
			time.Sleep(time.Duration(50-n) * time.Millisecond / 10)
			return n * 2, nil
		}),
	})
	reg.MarkReady()
	client, _ := startBridge(t, reg)

	const calls = 50
	var wg sync.WaitGroup
	errs := make(chan error, calls)
	for i := range calls {
		wg.Go(func() {
			var got int
			if err := client.Invoke(context.Background(), &got, "math.double", i); err != nil {
				errs <- fmt.Errorf("call %d: %w", i, err)
				return
			}
			if got != i*2 {
				errs <- fmt.Errorf("call %d resolved with %d, want %d", i, got, i*2)
			}
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if n := client.Outstanding(); n != 0 {
		t.Fatalf("Outstanding() = %d after all calls resolved", n)
	}
}

func TestFailingLeafRejectsWithoutBreakingServer(t *testing.T) {
	_ = testutil.CaptureLogBuffer(t, slog.LevelError)
	reg := NewRegistry()
	mustExpose(t, reg, "app", Tree{
		"fail": Func0(func(context.Context) (any, error) {
			return nil, errors.New("disk on fire")
		}),
		"explode": Handler(func(context.Context, Args) (any, error) {
			panic("kaboom")
		}),
		"ping": Func0(func(context.Context) (string, error) { return "pong", nil }),
	})
	reg.MarkReady()
	client, _ := startBridge(t, reg)
	ctx := context.Background()

	err := client.Invoke(ctx, nil, "app.fail")
	if err == nil || err.Error() != "disk on fire" {
		t.Fatalf("Invoke(app.fail) error = %v, want disk on fire", err)
	}
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("Invoke(app.fail) error = %v, want ErrInternal", err)
	}

	err = client.Invoke(ctx, nil, "app.explode")
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("Invoke(app.explode) error = %v, want panic message", err)
	}

	var pong string
	if err := client.Invoke(ctx, &pong, "app.ping"); err != nil || pong != "pong" {
		t.Fatalf("Invoke(app.ping) = %q, %v; want pong, nil", pong, err)
	}
}

func TestTypedHandlerErrorKeepsCode(t *testing.T) {
	reg := NewRegistry()
	mustExpose(t, reg, "file", Tree{
		"read": Func1(func(_ context.Context, path string) (string, error) {
			return "", fmt.Errorf("read %s: %w", path, ErrInvalidArgument)
		}),
	})
	reg.MarkReady()
	client, _ := startBridge(t, reg)

	err := client.Invoke(context.Background(), nil, "file.read", "../etc/passwd")
	var wireErr *Error
	if !errors.As(err, &wireErr) || wireErr.Code != CodeInvalidArgument {
		t.Fatalf("Invoke() error = %#v, want invalid_argument", err)
	}
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("errors.Is(%v, ErrInvalidArgument) = false", err)
	}
}

func TestReExposeOverwritesLeaves(t *testing.T) {
	logBuf := testutil.CaptureLogBuffer(t, slog.LevelWarn)
	reg := NewRegistry()
	mustExpose(t, reg, "svc", Tree{"old": Func0(func(context.Context) (int, error) { return 1, nil })})
	mustExpose(t, reg, "svc", Tree{"new": Func0(func(context.Context) (int, error) { return 2, nil })})
	reg.MarkReady()
	client, _ := startBridge(t, reg)

	err := client.Invoke(context.Background(), nil, "svc.old")
	if !errors.Is(err, ErrNotFound) || !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Invoke(svc.old) error = %v, want not found", err)
	}
	var got int
	if err := client.Invoke(context.Background(), &got, "svc.new"); err != nil || got != 2 {
		t.Fatalf("Invoke(svc.new) = %d, %v; want 2, nil", got, err)
	}
	if !strings.Contains(logBuf.String(), "namespace overwritten") {
		t.Fatalf("expected overwrite warning, got %q", logBuf.String())
	}
}

func TestUnknownPathsAreNotFound(t *testing.T) {
	reg := NewRegistry()
	mustExpose(t, reg, "app", Tree{"ping": Func0(func(context.Context) (string, error) { return "pong", nil })})
	reg.MarkReady()

	for _, path := range []string{"", "app", "app.", ".ping", "nope.ping", "app.pong"} {
		res := reg.Dispatch(context.Background(), Call{ID: "x", Path: path})
		if res.Err == nil || res.Err.Code != CodeNotFound {
			t.Fatalf("Dispatch(%q) = %+v, want not_found", path, res)
		}
		if res.ID != "x" {
			t.Fatalf("Dispatch(%q).ID = %q, want x", path, res.ID)
		}
	}
}

func TestCallsQueueUntilReady(t *testing.T) {
	reg := NewRegistry()
	mustExpose(t, reg, "app", Tree{"ping": Func0(func(context.Context) (string, error) { return "pong", nil })})
	client, _ := startBridge(t, reg)

	p := client.Go(context.Background(), "app.ping")
	select {
	case <-p.Done():
		t.Fatalf("call resolved before MarkReady: err=%v", p.Err())
	case <-time.After(50 * time.Millisecond):
	}

	reg.MarkReady()
	reg.MarkReady()
	var got string
	if err := p.Decode(&got); err != nil || got != "pong" {
		t.Fatalf("Decode() = %q, %v; want pong, nil", got, err)
	}
}

func TestDispatchNotReadyWhenContextEnds(t *testing.T) {
	reg := NewRegistry()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := reg.Dispatch(ctx, Call{ID: "1", Path: "app.ping"})
	if res.Err == nil || res.Err.Code != CodeNotReady {
		t.Fatalf("Dispatch() = %+v, want not_ready", res)
	}
	if !errors.Is(res.Err, ErrNotReady) {
		t.Fatalf("errors.Is(%v, ErrNotReady) = false", res.Err)
	}
}

func TestCloseRejectsOutstandingCalls(t *testing.T) {
	reg := NewRegistry()
	release := make(chan struct{})
	mustExpose(t, reg, "slow", Tree{"wait": Func0(func(context.Context) (bool, error) {
		<-release
		return true, nil
	})})
	reg.MarkReady()
	client, _ := startBridge(t, reg)
	defer close(release)

	p := client.Go(context.Background(), "slow.wait")
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := p.Wait(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Wait() error = %v, want ErrClosed", err)
	}

	late := client.Go(context.Background(), "slow.wait")
	if _, err := late.Wait(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Go() after Close error = %v, want ErrClosed", err)
	}
	select {
	case <-client.Done():
	default:
		t.Fatal("Done() not closed after Close")
	}
}

func TestCancelledContextAbandonsCall(t *testing.T) {
	reg := NewRegistry()
	release := make(chan struct{})
	finished := make(chan struct{})
	var finishOnce sync.Once
	mustExpose(t, reg, "slow", Tree{"wait": Func0(func(context.Context) (bool, error) {
		<-release
		finishOnce.Do(func() { close(finished) })
		return true, nil
	})})
	reg.MarkReady()
	client, _ := startBridge(t, reg)

	ctx, cancel := context.WithCancel(context.Background())
	p := client.Go(ctx, "slow.wait")
	cancel()
	if _, err := p.Wait(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait() error = %v, want context.Canceled", err)
	}
	if n := client.Outstanding(); n != 0 {
		t.Fatalf("Outstanding() = %d after cancel, want 0", n)
	}

	// The remote call still runs to completion.
	close(release)
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("abandoned call never completed on the serving side")
	}

	var got bool
	if err := client.Invoke(context.Background(), &got, "slow.wait"); err != nil {
		t.Fatalf("Invoke() after abandoned call error = %v", err)
	}
}

// frameLimitConn refuses writes over limit the way a framed transport does.
type frameLimitConn struct {
	Conn
	limit int
}

func (c frameLimitConn) WriteMessage(data []byte) error {
	if len(data) > c.limit {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrFrameTooLarge, len(data), c.limit)
	}
	return c.Conn.WriteMessage(data)
}

func TestOversizedResultBecomesInternalError(t *testing.T) {
	_ = testutil.CaptureLogBuffer(t, slog.LevelError)
	reg := NewRegistry()
	mustExpose(t, reg, "file", Tree{
		"big":   Func0(func(context.Context) (string, error) { return strings.Repeat("x", 4096), nil }),
		"small": Func0(func(context.Context) (string, error) { return "ok", nil }),
	})
	reg.MarkReady()
	clientConn, serverConn := Pipe()
	served := make(chan error, 1)
	go func() {
		served <- NewServer(reg).ServeConn(context.Background(), frameLimitConn{Conn: serverConn, limit: 1024})
	}()
	client := NewClient(clientConn)
	defer func() {
		_ = client.Close()
		if err := <-served; err != nil {
			t.Errorf("ServeConn() error = %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := client.Invoke(ctx, nil, "file.big")
	var wireErr *Error
	if !errors.As(err, &wireErr) || wireErr.Code != CodeInternal {
		t.Fatalf("Invoke(file.big) error = %#v, want internal", err)
	}
	if !strings.Contains(wireErr.Message, "file.big") {
		t.Fatalf("Invoke(file.big) message = %q, want it to name the path", wireErr.Message)
	}

	var got string
	if err := client.Invoke(ctx, &got, "file.small"); err != nil || got != "ok" {
		t.Fatalf("Invoke(file.small) = %q, %v; want ok, nil", got, err)
	}
}

func TestPreCancelledContextRejectsImmediately(t *testing.T) {
	reg := NewRegistry()
	reg.MarkReady()
	client, _ := startBridge(t, reg)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := client.Go(ctx, "app.ping")
	select {
	case <-p.Done():
	default:
		t.Fatal("Go() with a cancelled context did not resolve immediately")
	}
	if !errors.Is(p.Err(), context.Canceled) {
		t.Fatalf("Err() = %v, want context.Canceled", p.Err())
	}
}

func TestEventsReachSubscribers(t *testing.T) {
	reg := NewRegistry()
	reg.MarkReady()
	client, serverConn := startBridge(t, reg)

	got := make(chan string, 2)
	unsubscribe := client.OnEvent(func(event string, payload json.RawMessage) {
		got <- event + "=" + string(payload)
	})
	if err := WriteEvent(serverConn, "config:changed", map[string]string{"lang": "zh-CN"}); err != nil {
		t.Fatalf("WriteEvent() error = %v", err)
	}
	select {
	case msg := <-got:
		if msg != `config:changed={"lang":"zh-CN"}` {
			t.Fatalf("event = %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	unsubscribe()
	if err := WriteEvent(serverConn, "again", nil); err != nil {
		t.Fatalf("WriteEvent() error = %v", err)
	}
	// A call round trip orders the second event before we check.
	_ = client.Invoke(context.Background(), nil, "x.y")
	select {
	case msg := <-got:
		t.Fatalf("unsubscribed handler received %q", msg)
	default:
	}
}

func TestServerAnswersUnexpectedKindWithID(t *testing.T) {
	_ = testutil.CaptureLogBuffer(t, slog.LevelError)
	reg := NewRegistry()
	reg.MarkReady()
	clientConn, serverConn := Pipe()
	done := make(chan error, 1)
	go func() { done <- NewServer(reg).ServeConn(context.Background(), serverConn) }()

	for _, frame := range []string{`not json`, `{"kind":"call","path":"a.b"}`, `{"kind":"event","event":"x"}`} {
		if err := clientConn.WriteMessage([]byte(frame)); err != nil {
			t.Fatalf("WriteMessage(%q) error = %v", frame, err)
		}
	}
	if err := clientConn.WriteMessage([]byte(`{"kind":"bogus","id":"42"}`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	raw, err := clientConn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	msg, err := decodeMessage(raw)
	if err != nil {
		t.Fatalf("decodeMessage() error = %v", err)
	}
	if msg.Kind != KindResult || msg.ID != "42" || msg.Error == nil || msg.Error.Code != CodeInvalidArgument {
		t.Fatalf("reply = %+v, want invalid_argument result for id 42", msg)
	}

	_ = clientConn.Close()
	if err := <-done; err != nil {
		t.Fatalf("ServeConn() error = %v", err)
	}
}

func TestExposeRejectsInvalidTrees(t *testing.T) {
	var nilHandler Handler
	tests := []struct {
		name string
		ns   string
		tree Tree
	}{
		{name: "empty name", ns: " ", tree: Tree{}},
		{name: "dotted name", ns: "a.b", tree: Tree{}},
		{name: "unsupported leaf", ns: "app", tree: Tree{"x": 42}},
		{name: "nil handler", ns: "app", tree: Tree{"x": nilHandler}},
		{name: "dotted leaf", ns: "app", tree: Tree{"a.b": Func0(func(context.Context) (int, error) { return 0, nil })}},
		{name: "bad nested leaf", ns: "app", tree: Tree{"sub": map[string]any{"x": "nope"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			if err := reg.Expose(tt.ns, tt.tree); !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("Expose() error = %v, want ErrInvalidArgument", err)
			}
			if got := reg.Namespaces(); len(got) != 0 {
				t.Fatalf("Namespaces() = %v after failed Expose", got)
			}
		})
	}
}

func TestNestedTreesFlattenToDottedPaths(t *testing.T) {
	reg := NewRegistry()
	leaf := func(v string) Handler {
		return Func0(func(context.Context) (string, error) { return v, nil })
	}
	mustExpose(t, reg, "app", Tree{
		"window": Tree{"min": leaf("min"), "max": leaf("max")},
		"quit":   leaf("quit"),
		"raw": func(context.Context, Args) (any, error) {
			return "raw", nil
		},
		"info": map[string]any{"version": leaf("v")},
	})
	mustExpose(t, reg, "log", Tree{})
	reg.MarkReady()

	if got, want := strings.Join(reg.Namespaces(), ","), "app,log"; got != want {
		t.Fatalf("Namespaces() = %q, want %q", got, want)
	}
	if got, want := strings.Join(reg.Leaves("app"), ","), "info.version,quit,raw,window.max,window.min"; got != want {
		t.Fatalf("Leaves(app) = %q, want %q", got, want)
	}
	res := reg.Dispatch(context.Background(), Call{ID: "1", Path: "app.window.max"})
	if res.Err != nil || string(res.Value) != `"max"` {
		t.Fatalf("Dispatch(app.window.max) = %+v", res)
	}
}

func TestAdaptersDecodePositionalArgs(t *testing.T) {
	args, err := EncodeArgs("a", 2, []string{"x"})
	if err != nil {
		t.Fatalf("EncodeArgs() error = %v", err)
	}
	h := Func3(func(_ context.Context, s string, n int, list []string) (string, error) {
		return fmt.Sprintf("%s-%d-%v", s, n, list), nil
	})
	got, err := h(context.Background(), args)
	if err != nil || got != "a-2-[x]" {
		t.Fatalf("Func3 handler = %v, %v", got, err)
	}

	h2 := Func2(func(_ context.Context, s string, n int) (string, error) {
		return fmt.Sprintf("%q-%d", s, n), nil
	})
	got, err = h2(context.Background(), nil)
	if err != nil || got != `""-0` {
		t.Fatalf("Func2 with missing args = %v, %v; want zero values", got, err)
	}

	badArgs := Args{json.RawMessage(`"not a number"`)}
	h1 := Func1(func(_ context.Context, n int) (int, error) { return n, nil })
	if _, err := h1(context.Background(), badArgs); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Func1 with bad arg error = %v, want ErrInvalidArgument", err)
	}
}

func TestArgsRequire(t *testing.T) {
	args := Args{json.RawMessage(`null`), json.RawMessage(`"x"`)}
	var s string
	if err := args.Require(0, &s); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Require(null) error = %v", err)
	}
	if err := args.Require(2, &s); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Require(missing) error = %v", err)
	}
	if err := args.Require(1, &s); err != nil || s != "x" {
		t.Fatalf("Require(1) = %q, %v", s, err)
	}
	def := "default"
	if err := args.Decode(0, &def); err != nil || def != "default" {
		t.Fatalf("Decode(null) = %q, %v; want default kept", def, err)
	}
}

func TestToErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "not found", err: fmt.Errorf("x: %w", ErrNotFound), want: CodeNotFound},
		{name: "invalid", err: fmt.Errorf("x: %w", ErrInvalidArgument), want: CodeInvalidArgument},
		{name: "not ready", err: ErrNotReady, want: CodeNotReady},
		{name: "closed", err: ErrClosed, want: CodeClosed},
		{name: "plain", err: errors.New("boom"), want: CodeInternal},
		{name: "wrapped wire error", err: fmt.Errorf("ctx: %w", NewError(CodeNotReady, "later")), want: CodeNotReady},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToError(tt.err)
			if got.Code != tt.want {
				t.Fatalf("ToError(%v).Code = %q, want %q", tt.err, got.Code, tt.want)
			}
			if got.Message != tt.err.Error() {
				t.Fatalf("ToError(%v).Message = %q", tt.err, got.Message)
			}
		})
	}
	if ToError(nil) != nil {
		t.Fatal("ToError(nil) != nil")
	}
}

func TestPipeDrainsBeforeEOF(t *testing.T) {
	a, b := Pipe()
	if err := a.WriteMessage([]byte("one")); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	_ = a.Close()

	msg, err := b.ReadMessage()
	if err != nil || string(msg) != "one" {
		t.Fatalf("ReadMessage() = %q, %v; want one", msg, err)
	}
	if _, err := b.ReadMessage(); err == nil {
		t.Fatal("ReadMessage() after close and drain expected EOF")
	}
	if err := b.WriteMessage([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("WriteMessage() after close error = %v, want ErrClosed", err)
	}
}
