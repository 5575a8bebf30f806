//go:build !windows

package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"
)

// ErrEndpointInUse is returned when another process already serves the socket.
var ErrEndpointInUse = errors.New("endpoint already in use")

// listenEndpoint listens on a unix socket readable only by the owner. A socket
// file left by a crashed process is removed; a live one is reported as in use.
func listenEndpoint(socketPath string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o700); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}
	if _, err := os.Stat(socketPath); err == nil {
		live, dialErr := net.DialTimeout("unix", socketPath, 500*time.Millisecond)
		if dialErr == nil {
			_ = live.Close()
			return nil, ErrEndpointInUse
		}
		slog.Debug("[ipc] removing stale socket", "path", socketPath, "error", dialErr)
		if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("set socket permissions: %w", err)
	}
	return listener, nil
}

func dialEndpoint(ctx context.Context, socketPath string) (net.Conn, error) {
	var dialer net.Dialer
	return dialer.DialContext(ctx, "unix", socketPath)
}

func cleanupEndpoint(socketPath string) {
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Debug("[ipc] failed to remove socket file", "path", socketPath, "error", err)
	}
}
