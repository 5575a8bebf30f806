package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// EventHandler receives events pushed by the registration side. Handlers run
// on the client's read goroutine and must not block.
type EventHandler func(event string, payload json.RawMessage)

// Client is the invocation side of a bridge connection.
type Client struct {
	conn Conn

	mu       sync.Mutex
	pending  map[string]*Pending
	closed   bool
	closeErr error

	eventMu  sync.RWMutex
	handlers []*eventSub

	closeOnce sync.Once
	done      chan struct{}
}

type eventSub struct {
	fn EventHandler
}

// NewClient starts reading results from conn.
func NewClient(conn Conn) *Client {
	c := &Client{
		conn:    conn,
		pending: make(map[string]*Pending),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Go sends a call for path and returns its Pending handle without waiting.
// When ctx ends before the result arrives the handle is rejected with the
// context error and a late result is dropped; the remote call still runs to
// completion.
func (c *Client) Go(ctx context.Context, path string, args ...any) *Pending {
	p := newPending(uuid.NewString(), path)

	encoded, err := EncodeArgs(args...)
	if err != nil {
		p.resolve(nil, err)
		return p
	}
	raw, err := encodeMessage(Message{Kind: KindCall, ID: p.id, Path: path, Args: encoded})
	if err != nil {
		p.resolve(nil, err)
		return p
	}

	if ctx != nil && ctx.Done() != nil {
		if err := ctx.Err(); err != nil {
			p.resolve(nil, err)
			return p
		}
		// Installed before the call is visible to readLoop so resolve never
		// races with the assignment.
		p.onResolve = context.AfterFunc(ctx, func() {
			if c.take(p.id) != nil {
				p.resolve(nil, ctx.Err())
			}
		})
	}

	c.mu.Lock()
	if c.closed {
		closeErr := c.closeErr
		c.mu.Unlock()
		p.resolve(nil, closeErr)
		return p
	}
	c.pending[p.id] = p
	c.mu.Unlock()

	if err := c.conn.WriteMessage(raw); err != nil {
		if c.take(p.id) != nil {
			p.resolve(nil, fmt.Errorf("%w: send %s: %v", ErrClosed, path, err))
		}
	}
	return p
}

// Invoke calls path and decodes the result into out (which may be nil).
func (c *Client) Invoke(ctx context.Context, out any, path string, args ...any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p := c.Go(ctx, path, args...)
	if _, err := p.Wait(ctx); err != nil {
		return err
	}
	return p.Decode(out)
}

// OnEvent subscribes fn to pushed events. The returned func unsubscribes.
func (c *Client) OnEvent(fn EventHandler) func() {
	if fn == nil {
		return func() {}
	}
	sub := &eventSub{fn: fn}
	c.eventMu.Lock()
	c.handlers = append(c.handlers, sub)
	c.eventMu.Unlock()
	return func() {
		c.eventMu.Lock()
		c.handlers = slices.DeleteFunc(c.handlers, func(s *eventSub) bool { return s == sub })
		c.eventMu.Unlock()
	}
}

// Outstanding returns the number of calls awaiting a result.
func (c *Client) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Done is closed when the client has shut down.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close closes the connection and rejects every outstanding call with
// ErrClosed. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	c.shutdown(ErrClosed)
	return err
}

func (c *Client) readLoop() {
	for {
		raw, err := c.conn.ReadMessage()
		if err != nil {
			slog.Debug("[bridge] client connection ended", "error", err)
			c.shutdown(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		msg, err := decodeMessage(raw)
		if err != nil {
			slog.Warn("[bridge] client dropping malformed frame", "error", err)
			continue
		}
		switch msg.Kind {
		case KindResult:
			p := c.take(msg.ID)
			if p == nil {
				slog.Debug("[bridge] dropping result for unknown call", "id", msg.ID)
				continue
			}
			if msg.Error != nil {
				p.resolve(nil, msg.Error)
			} else {
				p.resolve(msg.Value, nil)
			}
		case KindEvent:
			c.emit(msg.Event, msg.Payload)
		default:
			slog.Debug("[bridge] client ignoring message", "kind", msg.Kind)
		}
	}
}

func (c *Client) emit(event string, payload json.RawMessage) {
	c.eventMu.RLock()
	subs := slices.Clone(c.handlers)
	c.eventMu.RUnlock()
	for _, sub := range subs {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("[bridge] event handler panicked", "event", event, "panic", rec)
				}
			}()
			sub.fn(event, payload)
		}()
	}
}

func (c *Client) take(id string) *Pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return p
}

func (c *Client) shutdown(reason error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = reason
	outstanding := c.pending
	c.pending = make(map[string]*Pending)
	c.mu.Unlock()

	for _, p := range outstanding {
		p.resolve(nil, reason)
	}
	close(c.done)
}
