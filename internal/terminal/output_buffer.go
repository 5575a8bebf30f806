package terminal

import (
	"sync"
	"time"
)

const (
	defaultFlushInterval = 50 * time.Millisecond
	defaultFlushBytes    = 16 * 1024
)

// OutputBuffer coalesces command output into fewer, larger events. Data is
// emitted when maxBytes accumulate, on the next tick after interval, or on
// Stop. Emission order matches write order.
type OutputBuffer struct {
	mu       sync.Mutex
	emitMu   sync.Mutex
	buf      []byte
	maxBytes int
	interval time.Duration
	emit     func([]byte)

	stopCh  chan struct{}
	started bool
	stopped bool
	done    chan struct{}
}

// NewOutputBuffer creates an OutputBuffer. Zero values pick defaults.
func NewOutputBuffer(interval time.Duration, maxBytes int, emit func([]byte)) *OutputBuffer {
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	if maxBytes <= 0 {
		maxBytes = defaultFlushBytes
	}
	if emit == nil {
		emit = func([]byte) {}
	}
	return &OutputBuffer{
		maxBytes: maxBytes,
		interval: interval,
		emit:     emit,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the periodic flush loop. Calling it twice is a no-op.
func (o *OutputBuffer) Start() {
	o.mu.Lock()
	if o.started || o.stopped {
		o.mu.Unlock()
		return
	}
	o.started = true
	o.mu.Unlock()

	go func() {
		defer close(o.done)
		ticker := time.NewTicker(o.interval)
		defer ticker.Stop()
		for {
			select {
			case <-o.stopCh:
				return
			case <-ticker.C:
				o.Flush()
			}
		}
	}()
}

// Write appends a copy of data.
func (o *OutputBuffer) Write(data []byte) {
	if len(data) == 0 {
		return
	}
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.buf = append(o.buf, data...)
	full := len(o.buf) >= o.maxBytes
	o.mu.Unlock()
	if full {
		o.Flush()
	}
}

// Flush emits pending data now.
func (o *OutputBuffer) Flush() {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	o.mu.Lock()
	pending := o.buf
	o.buf = nil
	o.mu.Unlock()
	if len(pending) > 0 {
		o.emit(pending)
	}
}

// Stop ends the loop and emits what is still pending. Idempotent.
func (o *OutputBuffer) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	started := o.started
	o.mu.Unlock()

	close(o.stopCh)
	if started {
		<-o.done
	}
	o.Flush()
}
