package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewWatcherRequiresArguments(t *testing.T) {
	if _, err := NewWatcher("", func(Config) {}); err == nil {
		t.Fatal("NewWatcher(\"\") expected error")
	}
	if _, err := NewWatcher(filepath.Join(t.TempDir(), "config.yaml"), nil); err == nil {
		t.Fatal("NewWatcher(nil onChange) expected error")
	}
}

func TestWatcherReloadsOnSave(t *testing.T) {
	path := newConfigPathForSaveTest(t, "config.yaml")
	if _, err := EnsureFile(path); err != nil {
		t.Fatalf("EnsureFile() error = %v", err)
	}

	changes := make(chan Config, 4)
	w, err := NewWatcher(path, func(cfg Config) { changes <- cfg }, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	// Give the watcher time to register the directory watch.
	time.Sleep(100 * time.Millisecond)

	cfg := DefaultConfig()
	cfg.Lang = "zh-CN"
	if _, err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	select {
	case got := <-changes:
		if got.Lang != "zh-CN" {
			t.Fatalf("reloaded lang = %q, want zh-CN", got.Lang)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the change")
	}

	w.Close()
	w.Close()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Close")
	}
}

func TestWatcherReportsParseErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	errs := make(chan error, 4)
	w, err := NewWatcher(path, func(Config) {
		t.Error("onChange called for a broken file")
	}, WithDebounce(20*time.Millisecond), WithErrorHandler(func(err error) { errs <- err }))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("shortcuts: ["), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	select {
	case <-errs:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the parse error")
	}
}

func TestWatcherRunFailsForMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "config.yaml")
	w, err := NewWatcher(path, func(Config) {})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if err := w.Run(context.Background()); err == nil {
		t.Fatal("Run() expected error for a missing directory")
	}
}
