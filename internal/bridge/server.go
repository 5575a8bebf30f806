package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Server serves a Registry on Conns.
type Server struct {
	reg *Registry
}

// NewServer creates a Server for reg.
func NewServer(reg *Registry) *Server {
	return &Server{reg: reg}
}

// Registry returns the served registry.
func (s *Server) Registry() *Registry { return s.reg }

// ServeConn reads calls from conn until it fails, dispatching each call on its
// own goroutine. It waits for in-flight calls before returning. A clean close
// by the peer returns nil.
//
// Calls are not cancelled when the connection drops: a call that reached the
// registry runs to completion and its result is discarded.
func (s *Server) ServeConn(ctx context.Context, conn Conn) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrClosed) {
				return nil
			}
			return fmt.Errorf("bridge: read: %w", err)
		}

		msg, err := decodeMessage(raw)
		if err != nil {
			slog.Warn("[bridge] dropping malformed frame", "error", err, "bytes", len(raw))
			continue
		}
		switch msg.Kind {
		case KindCall:
			if msg.ID == "" {
				slog.Warn("[bridge] dropping call without id", "path", msg.Path)
				continue
			}
			call := Call{ID: msg.ID, Path: msg.Path, Args: Args(msg.Args)}
			wg.Go(func() {
				res := s.reg.Dispatch(ctx, call)
				if err := writeCallResult(conn, call.Path, res); err != nil {
					slog.Debug("[bridge] result not delivered", "path", call.Path, "id", call.ID, "error", err)
				}
			})
		default:
			if msg.ID != "" {
				res := Result{ID: msg.ID, Err: NewError(CodeInvalidArgument, "unexpected message kind %q", msg.Kind)}
				if err := WriteResult(conn, res); err != nil {
					slog.Debug("[bridge] result not delivered", "id", msg.ID, "error", err)
				}
				continue
			}
			slog.Debug("[bridge] ignoring message", "kind", msg.Kind)
		}
	}
}

// writeCallResult sends res, replacing a result the transport refuses as
// oversized with an internal error under the same id so the caller is not
// left waiting.
func writeCallResult(conn Conn, path string, res Result) error {
	err := WriteResult(conn, res)
	if !errors.Is(err, ErrFrameTooLarge) {
		return err
	}
	slog.Warn("[bridge] result exceeds transport frame limit", "path", path, "id", res.ID, "error", err)
	return WriteResult(conn, Result{
		ID:  res.ID,
		Err: NewError(CodeInternal, "result of %s not delivered: %v", path, err),
	})
}

// WriteResult sends res on conn.
func WriteResult(conn Conn, res Result) error {
	raw, err := encodeMessage(res.Message())
	if err != nil {
		return err
	}
	return conn.WriteMessage(raw)
}

// WriteEvent sends an event message on conn.
func WriteEvent(conn Conn, event string, payload any) error {
	raw, err := EventFrame(event, payload)
	if err != nil {
		return err
	}
	return conn.WriteMessage(raw)
}

// EventFrame encodes an event message, for transports that fan one frame out
// to several connections.
func EventFrame(event string, payload any) ([]byte, error) {
	if event == "" {
		return nil, fmt.Errorf("%w: event name is empty", ErrInvalidArgument)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode event %s: %v", ErrInvalidArgument, event, err)
	}
	return encodeMessage(Message{Kind: KindEvent, Event: event, Payload: body})
}
