// Package workerutil runs long-lived background loops (transport accept
// loops, the config watcher) and restarts them after a panic.
package workerutil

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	defaultMaxRestarts    = 10
)

// Options configures Go. Zero fields take defaults.
type Options struct {
	// InitialBackoff is the delay before the first restart. It doubles on
	// every restart up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxRestarts bounds panics survived. 1 means run once.
	MaxRestarts int

	// OnPanic runs after each recovered panic with the 1-based attempt.
	OnPanic func(worker string, attempt int)
	// OnExit runs once when the worker stops for good. err is the worker's
	// own error, or ErrGaveUp after too many panics. It is nil on clean exit.
	OnExit func(worker string, err error)
}

// ErrGaveUp is passed to OnExit when a worker panicked MaxRestarts times.
var ErrGaveUp = errors.New("workerutil: worker exceeded restart limit")

func (o Options) withDefaults() Options {
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = defaultInitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = defaultMaxBackoff
	}
	if o.MaxBackoff < o.InitialBackoff {
		slog.Warn("[worker] MaxBackoff below InitialBackoff, using InitialBackoff",
			"initialBackoff", o.InitialBackoff, "maxBackoff", o.MaxBackoff)
		o.MaxBackoff = o.InitialBackoff
	}
	if o.MaxRestarts <= 0 {
		o.MaxRestarts = defaultMaxRestarts
	}
	return o
}

// Go runs fn on a goroutine tracked by wg. A panic in fn is logged and fn
// is restarted after a backoff. A returned error, or a cancelled ctx, ends
// the worker without restart.
func Go(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context) error, opts Options) {
	opts = opts.withDefaults()
	wg.Go(func() {
		err := supervise(ctx, name, fn, opts)
		if opts.OnExit != nil {
			opts.OnExit(name, err)
		}
	})
}

func supervise(ctx context.Context, name string, fn func(ctx context.Context) error, opts Options) error {
	delay := opts.InitialBackoff
	for attempt := 1; ; attempt++ {
		panicked, err := runOnce(ctx, name, fn)
		if !panicked {
			if err != nil {
				slog.Warn("[worker] stopped with error", "worker", name, "error", err)
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if opts.OnPanic != nil {
			opts.OnPanic(name, attempt)
		}
		if attempt >= opts.MaxRestarts {
			slog.Error("[worker] giving up after repeated panics", "worker", name, "restarts", opts.MaxRestarts)
			return ErrGaveUp
		}

		slog.Warn("[worker] restarting after panic", "worker", name, "delay", delay, "attempt", attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		delay = nextBackoff(delay, opts.MaxBackoff)
	}
}

func runOnce(ctx context.Context, name string, fn func(ctx context.Context) error) (panicked bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[worker] recovered from panic",
				"worker", name,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			panicked, err = true, nil
		}
	}()
	return false, fn(ctx)
}

// nextBackoff doubles current, capped at maxBackoff and guarded against
// overflow.
func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	if current <= 0 {
		return defaultInitialBackoff
	}
	next := current * 2
	if next > maxBackoff || next < current {
		return maxBackoff
	}
	return next
}
