package ipc

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"time"

	"aigcpanel/internal/bridge"
)

const defaultDialTimeout = 3 * time.Second

// Dial connects to endpoint. An empty endpoint selects DefaultEndpoint. A ctx
// without deadline gets a short dial timeout.
func Dial(ctx context.Context, endpoint string) (*StreamConn, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultDialTimeout)
		defer cancel()
	}
	conn, err := dialEndpoint(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return NewStreamConn(conn), nil
}

// Connect dials endpoint and returns a bridge client over the connection.
func Connect(ctx context.Context, endpoint string) (*bridge.Client, error) {
	conn, err := Dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return bridge.NewClient(conn), nil
}

// IsConnectionError returns true when err indicates that no server is
// listening on the endpoint (dial/connect failures).
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial" || opErr.Op == "open"
	}
	return false
}
