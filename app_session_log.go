package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"aigcpanel/internal/sessionlog"
)

const (
	sessionLogDir      = "logs"
	sessionLogMaxFiles = 20
)

// sessionLogFile appends captured log entries to a JSONL file, one per run.
type sessionLogFile struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	enc    *json.Encoder
	closed bool
}

func openSessionLog(dir string, now time.Time) (*sessionLogFile, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	// The pid keeps sub-second restarts from sharing a file.
	name := fmt.Sprintf("session-%s-%d.jsonl", now.Format("20060102-150405"), os.Getpid())
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &sessionLogFile{path: path, file: f, enc: json.NewEncoder(f)}, nil
}

// Path returns the file being written.
func (l *sessionLogFile) Path() string { return l.path }

// Write appends e. Errors go to stderr; logging them through slog would feed
// back into this file.
func (l *sessionLogFile) Write(e sessionlog.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if err := l.enc.Encode(e); err != nil {
		fmt.Fprintf(os.Stderr, "[session-log] write failed: %v\n", err)
	}
}

// Close stops further writes. Safe to call more than once.
func (l *sessionLogFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

// cleanupOldSessionLogs removes the oldest session files beyond keep. The
// timestamp prefix makes name order match age order.
func cleanupOldSessionLogs(dir, current string, keep int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("[session-log] failed to read log directory for cleanup", "dir", dir, "error", err)
		return
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, "session-") && strings.HasSuffix(name, ".jsonl") {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	excess := len(names) - keep
	for _, name := range names {
		if excess <= 0 {
			break
		}
		if name == filepath.Base(current) {
			continue
		}
		target := filepath.Join(dir, name)
		if err := os.Remove(target); err != nil {
			slog.Warn("[session-log] failed to delete old log file", "path", target, "error", err)
			continue
		}
		excess--
	}
}

// recordLogEntry is the sink of the session tee handler.
func (a *App) recordLogEntry(e sessionlog.Entry) {
	a.logs.Add(e)
	if l := a.sessLog.Load(); l != nil {
		l.Write(e)
	}
}

// initSessionLog starts the per-run log file under userData. Non-fatal:
// without it entries still reach the in-memory ring.
func (a *App) initSessionLog(userData string) {
	dir := filepath.Join(userData, sessionLogDir)
	l, err := openSessionLog(dir, time.Now())
	if err != nil {
		slog.Warn("[session-log] disabled", "dir", dir, "error", err)
		return
	}
	a.sessLog.Store(l)
	cleanupOldSessionLogs(dir, l.Path(), sessionLogMaxFiles)
	slog.Info("[session-log] initialized", "path", l.Path())
}

func (a *App) closeSessionLog() {
	if l := a.sessLog.Swap(nil); l != nil {
		if err := l.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "[session-log] close failed: %v\n", err)
		}
	}
}
