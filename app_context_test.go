package main

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"aigcpanel/internal/config"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	state := newConfigState(filepath.Join(t.TempDir(), "config.yaml"), config.DefaultConfig())
	return NewApp(state, nil)
}

func TestRuntimeContextSetAndGet(t *testing.T) {
	app := newTestApp(t)
	if app.runtimeContext() != nil {
		t.Fatal("runtimeContext() should be nil before startup context is set")
	}

	want := context.Background()
	app.setRuntimeContext(want)
	if got := app.runtimeContext(); got != want {
		t.Fatalf("runtimeContext() = %v, want %v", got, want)
	}
}

func TestRequireRuntimeContextBeforeStartup(t *testing.T) {
	app := newTestApp(t)
	if _, err := app.requireRuntimeContext(); !errors.Is(err, errRuntimeNotReady) {
		t.Fatalf("requireRuntimeContext() error = %v, want errRuntimeNotReady", err)
	}
	app.setRuntimeContext(context.Background())
	if _, err := app.requireRuntimeContext(); err != nil {
		t.Fatalf("requireRuntimeContext() error = %v", err)
	}
}

func TestRuntimeContextConcurrentSetGet(t *testing.T) {
	app := newTestApp(t)

	const goroutines = 8
	const iterations = 200

	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := range goroutines {
		wg.Go(func() {
			<-start
			for j := range iterations {
				if (i+j)%2 == 0 {
					app.setRuntimeContext(context.Background())
				} else {
					app.setRuntimeContext(nil)
				}
			}
		})

		wg.Go(func() {
			<-start
			for range iterations {
				_ = app.runtimeContext()
			}
		})
	}

	close(start)
	wg.Wait()

	app.setRuntimeContext(context.Background())
	if app.runtimeContext() == nil {
		t.Fatal("runtimeContext() should return the last set non-nil context")
	}
}
