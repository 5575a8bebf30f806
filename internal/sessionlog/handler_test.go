package sessionlog

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

func newCapture() (*Ring, Sink) {
	ring := NewRing(16)
	return ring, ring.Add
}

func TestTeeHandlerCapturesAtOrAboveMinLevel(t *testing.T) {
	ring, sink := newCapture()
	logger := slog.New(NewTeeHandler(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}), slog.LevelWarn, sink))

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	got := ring.Recent(0)
	if len(got) != 2 {
		t.Fatalf("captured %d entries, want 2: %+v", len(got), got)
	}
	if got[0].Message != "warn" || got[0].Level != "WARN" {
		t.Fatalf("entry[0] = %+v, want WARN warn", got[0])
	}
	if got[1].Message != "error" || got[1].Level != "ERROR" {
		t.Fatalf("entry[1] = %+v, want ERROR error", got[1])
	}
}

func TestTeeHandlerDelegatesEveryRecord(t *testing.T) {
	var buf bytes.Buffer
	_, sink := newCapture()
	logger := slog.New(NewTeeHandler(slog.NewTextHandler(&buf, nil), slog.LevelError, sink))

	logger.Info("[bridge] visible in base")
	if !strings.Contains(buf.String(), "visible in base") {
		t.Fatalf("base output = %q, want info record", buf.String())
	}
}

func TestTeeHandlerAttrsAndGroups(t *testing.T) {
	ring, sink := newCapture()
	logger := slog.New(NewTeeHandler(slog.NewTextHandler(io.Discard, nil), slog.LevelWarn, sink))

	logger.With("component", "ipc").WithGroup("conn").With("id", 7).Warn("slow", "ms", 120)

	got := ring.Recent(1)
	if len(got) != 1 {
		t.Fatalf("captured %d entries, want 1", len(got))
	}
	e := got[0]
	if e.Source != "conn" {
		t.Fatalf("Source = %q, want conn", e.Source)
	}
	want := map[string]string{"component": "ipc", "conn.id": "7", "conn.ms": "120"}
	for k, v := range want {
		if e.Attrs[k] != v {
			t.Fatalf("Attrs[%q] = %q, want %q (attrs=%v)", k, e.Attrs[k], v, e.Attrs)
		}
	}
}

func TestTeeHandlerNestedGroupSource(t *testing.T) {
	ring, sink := newCapture()
	h := NewTeeHandler(slog.NewTextHandler(io.Discard, nil), slog.LevelWarn, sink)
	slog.New(h.WithGroup("app").WithGroup("bridge")).Error("failed")

	if got := ring.Recent(1)[0].Source; got != "app.bridge" {
		t.Fatalf("Source = %q, want app.bridge", got)
	}
}

func TestTeeHandlerEmptyGroupAndAttrsReturnReceiver(t *testing.T) {
	h := NewTeeHandler(slog.NewTextHandler(io.Discard, nil), slog.LevelWarn, nil)
	if h.WithGroup("") != slog.Handler(h) {
		t.Fatal("WithGroup(\"\") should return the receiver")
	}
	if h.WithAttrs(nil) != slog.Handler(h) {
		t.Fatal("WithAttrs(nil) should return the receiver")
	}
}

func TestTeeHandlerNilSink(t *testing.T) {
	h := NewTeeHandler(slog.NewTextHandler(io.Discard, nil), slog.LevelInfo, nil)
	if err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelError, "x", 0)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
}

type failingHandler struct{ slog.Handler }

var errBase = errors.New("base failed")

func (failingHandler) Handle(context.Context, slog.Record) error { return errBase }

func TestTeeHandlerBaseErrorStillCaptures(t *testing.T) {
	ring, sink := newCapture()
	h := NewTeeHandler(failingHandler{slog.NewTextHandler(io.Discard, nil)}, slog.LevelWarn, sink)

	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelError, "boom", 0))
	if !errors.Is(err, errBase) {
		t.Fatalf("Handle() error = %v, want base error", err)
	}
	if ring.Len() != 1 {
		t.Fatalf("ring.Len() = %d, want 1", ring.Len())
	}
}

func TestTeeHandlerSinkPanicWritesToStderr(t *testing.T) {
	origStderr := os.Stderr
	readPipe, writePipe, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe() error = %v", err)
	}
	os.Stderr = writePipe
	t.Cleanup(func() {
		os.Stderr = origStderr
		_ = readPipe.Close()
		_ = writePipe.Close()
	})

	h := NewTeeHandler(slog.NewTextHandler(io.Discard, nil), slog.LevelInfo, func(Entry) {
		panic("sink exploded")
	})
	if err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "x", 0)); err != nil {
		t.Fatalf("Handle() error = %v, want nil", err)
	}
	_ = writePipe.Close()

	out, readErr := io.ReadAll(readPipe)
	if readErr != nil {
		t.Fatalf("io.ReadAll(stderr) error = %v", readErr)
	}
	if !strings.Contains(string(out), "[session-log] sink panicked: sink exploded") {
		t.Fatalf("stderr = %q, want panic diagnostic", out)
	}
}
