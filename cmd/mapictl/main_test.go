package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"aigcpanel/internal/appenv"
	"aigcpanel/internal/bridge"
	"aigcpanel/internal/mapi"
)

// NOT safe for t.Parallel(): these tests replace connectFn and run the shared
// rootCmd.

type fakeInstance struct {
	activated atomic.Int32
	reg       *bridge.Registry
}

func newFakeInstance(t *testing.T) *fakeInstance {
	t.Helper()
	f := &fakeInstance{reg: bridge.NewRegistry()}
	mustExpose := func(name string, tree bridge.Tree) {
		if err := f.reg.Expose(name, tree); err != nil {
			t.Fatalf("Expose(%s) error = %v", name, err)
		}
	}
	mustExpose("app", bridge.Tree{
		"activate": bridge.Func0(func(context.Context) (any, error) {
			f.activated.Add(1)
			return nil, nil
		}),
		"appEnv": bridge.Func0(func(context.Context) (appenv.Env, error) {
			return appenv.Env{AppRoot: "/opt/aigcpanel", AppData: "/data", UserData: "/data/AigcPanel"}, nil
		}),
	})
	mustExpose("demo", bridge.Tree{
		"echo": bridge.Func2(func(_ context.Context, s string, n int) (map[string]any, error) {
			return map[string]any{"s": s, "n": n}, nil
		}),
	})
	mustExpose("misc", bridge.Tree{
		"namespaces": bridge.Func0(func(context.Context) ([]string, error) {
			return f.reg.Namespaces(), nil
		}),
	})
	f.reg.MarkReady()

	server := bridge.NewServer(f.reg)
	orig := connectFn
	connectFn = func(ctx context.Context, _ string) (*mapi.Client, error) {
		clientEnd, serverEnd := bridge.Pipe()
		go func() { _ = server.ServeConn(context.Background(), serverEnd) }()
		return mapi.NewClient(bridge.NewClient(clientEnd)), nil
	}
	t.Cleanup(func() { connectFn = orig })
	return f
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--timeout", (5 * time.Second).String()}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseCallArgs(t *testing.T) {
	got, err := parseCallArgs([]string{"theme", `"quoted"`, "42", `{"a":1}`, "null", "not json{"})
	if err != nil {
		t.Fatalf("parseCallArgs() error = %v", err)
	}
	want := []string{`"theme"`, `"quoted"`, `42`, `{"a":1}`, `null`, `"not json{"`}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		raw, ok := got[i].(json.RawMessage)
		if !ok || string(raw) != want[i] {
			t.Fatalf("arg %d = %v, want %s", i, got[i], want[i])
		}
	}
}

func TestCallPrintsJSONResult(t *testing.T) {
	newFakeInstance(t)
	out, err := execute(t, "call", "demo.echo", "hello", "7")
	if err != nil {
		t.Fatalf("call error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output %q is not JSON: %v", out, err)
	}
	if got["s"] != "hello" || got["n"] != float64(7) {
		t.Fatalf("result = %v, want s=hello n=7", got)
	}
}

func TestCallReportsBridgeError(t *testing.T) {
	newFakeInstance(t)
	_, err := execute(t, "call", "demo.missing")
	var bErr *bridge.Error
	if !errors.As(err, &bErr) || bErr.Code != bridge.CodeNotFound {
		t.Fatalf("call error = %v, want not_found bridge error", err)
	}
}

func TestActivateAndEnv(t *testing.T) {
	f := newFakeInstance(t)
	if _, err := execute(t, "activate"); err != nil {
		t.Fatalf("activate error = %v", err)
	}
	if f.activated.Load() != 1 {
		t.Fatalf("activate calls = %d, want 1", f.activated.Load())
	}

	out, err := execute(t, "env")
	if err != nil {
		t.Fatalf("env error = %v", err)
	}
	if !strings.Contains(out, "userData=/data/AigcPanel") {
		t.Fatalf("env output = %q", out)
	}
}

func TestNamespacesListsPublished(t *testing.T) {
	newFakeInstance(t)
	out, err := execute(t, "namespaces")
	if err != nil {
		t.Fatalf("namespaces error = %v", err)
	}
	if got := strings.Fields(out); strings.Join(got, ",") != "app,demo,misc" {
		t.Fatalf("namespaces = %v, want app,demo,misc", got)
	}
}

func TestConnectionErrorIsExplained(t *testing.T) {
	orig := connectFn
	connectFn = func(context.Context, string) (*mapi.Client, error) {
		return nil, errors.New("boom")
	}
	t.Cleanup(func() {
		connectFn = orig
		endpointFlag = ""
	})

	_, err := execute(t, "--endpoint", "/tmp/aigcpanel-none.sock", "activate")
	if err == nil || !strings.Contains(err.Error(), "/tmp/aigcpanel-none.sock") {
		t.Fatalf("error = %v, want endpoint in message", err)
	}
}
