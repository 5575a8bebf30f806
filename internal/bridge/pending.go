package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Pending is the handle of one outstanding call. It resolves exactly once.
type Pending struct {
	id   string
	path string

	once  sync.Once
	done  chan struct{}
	value json.RawMessage
	err   error

	// onResolve releases the context watcher registered by Client.Go.
	onResolve func() bool
}

func newPending(id, path string) *Pending {
	return &Pending{id: id, path: path, done: make(chan struct{})}
}

// ID returns the call id.
func (p *Pending) ID() string { return p.id }

// Path returns the invoked path.
func (p *Pending) Path() string { return p.path }

// Done is closed once the call has resolved.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Err returns the rejection reason, or nil while pending or on success.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the call resolves or ctx ends. Giving up on ctx does not
// cancel the remote call.
func (p *Pending) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Decode waits for the call and unmarshals its value into out. A nil out only
// reports the call's error.
func (p *Pending) Decode(out any) error {
	<-p.done
	if p.err != nil {
		return p.err
	}
	if out == nil || isNull(p.value) {
		return nil
	}
	if err := json.Unmarshal(p.value, out); err != nil {
		return fmt.Errorf("bridge: decode result of %s: %w", p.path, err)
	}
	return nil
}

func (p *Pending) resolve(value json.RawMessage, err error) {
	p.once.Do(func() {
		p.value = value
		p.err = err
		close(p.done)
		if p.onResolve != nil {
			p.onResolve()
		}
	})
}
