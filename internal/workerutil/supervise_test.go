package workerutil

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"aigcpanel/internal/testutil"
)

func fastOptions() Options {
	return Options{InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestGoCleanExitRunsOnce(t *testing.T) {
	var calls atomic.Int32
	var exitErr error
	exited := false
	opts := fastOptions()
	opts.OnExit = func(_ string, err error) { exited, exitErr = true, err }

	var wg sync.WaitGroup
	Go(context.Background(), &wg, "clean", func(context.Context) error {
		calls.Add(1)
		return nil
	}, opts)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
	if !exited || exitErr != nil {
		t.Fatalf("OnExit called=%v err=%v, want called with nil", exited, exitErr)
	}
}

func TestGoErrorIsNotRestarted(t *testing.T) {
	logBuf := testutil.CaptureLogBuffer(t, slog.LevelWarn)
	boom := errors.New("listen failed")
	var calls atomic.Int32
	var exitErr error
	opts := fastOptions()
	opts.OnExit = func(_ string, err error) { exitErr = err }

	var wg sync.WaitGroup
	Go(context.Background(), &wg, "failing", func(context.Context) error {
		calls.Add(1)
		return boom
	}, opts)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
	if !errors.Is(exitErr, boom) {
		t.Fatalf("OnExit err = %v, want %v", exitErr, boom)
	}
	if !strings.Contains(logBuf.String(), "stopped with error") {
		t.Fatalf("expected error log, got %q", logBuf.String())
	}
}

func TestGoRestartsAfterPanic(t *testing.T) {
	testutil.CaptureLogBuffer(t, slog.LevelError)
	var calls atomic.Int32
	var panics []int
	var mu sync.Mutex
	opts := fastOptions()
	opts.OnPanic = func(_ string, attempt int) {
		mu.Lock()
		panics = append(panics, attempt)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	Go(context.Background(), &wg, "flaky", func(context.Context) error {
		if calls.Add(1) < 3 {
			panic("transient")
		}
		return nil
	}, opts)
	wg.Wait()

	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(panics) != 2 || panics[0] != 1 || panics[1] != 2 {
		t.Fatalf("OnPanic attempts = %v, want [1 2]", panics)
	}
}

func TestGoGivesUpAfterMaxRestarts(t *testing.T) {
	testutil.CaptureLogBuffer(t, slog.LevelError)
	var calls atomic.Int32
	var exitErr error
	opts := fastOptions()
	opts.MaxRestarts = 3
	opts.OnExit = func(_ string, err error) { exitErr = err }

	var wg sync.WaitGroup
	Go(context.Background(), &wg, "doomed", func(context.Context) error {
		calls.Add(1)
		panic("always")
	}, opts)
	wg.Wait()

	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
	if !errors.Is(exitErr, ErrGaveUp) {
		t.Fatalf("OnExit err = %v, want ErrGaveUp", exitErr)
	}
}

func TestGoStopsRestartingWhenContextCancelled(t *testing.T) {
	testutil.CaptureLogBuffer(t, slog.LevelError)
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	opts := Options{InitialBackoff: time.Hour}

	var wg sync.WaitGroup
	Go(ctx, &wg, "cancelled", func(context.Context) error {
		calls.Add(1)
		panic("once")
	}, opts)

	time.Sleep(20 * time.Millisecond)
	cancel()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel during backoff")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestWithDefaults(t *testing.T) {
	got := Options{}.withDefaults()
	if got.InitialBackoff != defaultInitialBackoff || got.MaxBackoff != defaultMaxBackoff || got.MaxRestarts != defaultMaxRestarts {
		t.Fatalf("withDefaults() = %+v", got)
	}

	swapped := Options{InitialBackoff: time.Second, MaxBackoff: time.Millisecond}.withDefaults()
	if swapped.MaxBackoff != time.Second {
		t.Fatalf("MaxBackoff = %v, want promoted to InitialBackoff", swapped.MaxBackoff)
	}
}

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		name    string
		current time.Duration
		max     time.Duration
		want    time.Duration
	}{
		{name: "doubles", current: 100 * time.Millisecond, max: time.Second, want: 200 * time.Millisecond},
		{name: "caps", current: 800 * time.Millisecond, max: time.Second, want: time.Second},
		{name: "at cap", current: time.Second, max: time.Second, want: time.Second},
		{name: "zero resets", current: 0, max: time.Second, want: defaultInitialBackoff},
		{name: "overflow", current: time.Duration(1 << 62), max: time.Duration(1<<63 - 1), want: time.Duration(1<<63 - 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextBackoff(tt.current, tt.max); got != tt.want {
				t.Fatalf("nextBackoff(%v, %v) = %v, want %v", tt.current, tt.max, got, tt.want)
			}
		})
	}
}
