package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
)

// Handler is a leaf of a namespace tree. Handlers run on their own goroutine
// per call and may block; a returned value is JSON-encoded into the result.
type Handler func(ctx context.Context, args Args) (any, error)

// Tree is a namespace body. Values are Handler, a func with Handler's
// signature, or a nested Tree / map[string]any.
type Tree map[string]any

// Registry owns the published namespaces of one process.
//
// A namespace is replaced wholesale on Expose and never edited in place, so a
// Lookup racing an Expose sees either the old tree or the new one. Two
// concurrent Expose calls for the same name are unordered: the last writer
// wins and callers must not rely on which.
type Registry struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]Handler

	readyOnce sync.Once
	ready     chan struct{}
}

// NewRegistry creates an empty, not-yet-ready Registry.
func NewRegistry() *Registry {
	return &Registry{
		namespaces: make(map[string]map[string]Handler),
		ready:      make(chan struct{}),
	}
}

// Expose publishes tree under name, replacing any earlier tree. Leaf paths are
// the dot-joined keys below name.
func (r *Registry) Expose(name string, tree Tree) error {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, ".") {
		return fmt.Errorf("%w: namespace name %q", ErrInvalidArgument, name)
	}
	leaves := make(map[string]Handler)
	if err := flatten("", tree, leaves); err != nil {
		return fmt.Errorf("expose %s: %w", name, err)
	}

	r.mu.Lock()
	_, existed := r.namespaces[name]
	r.namespaces[name] = leaves
	r.mu.Unlock()

	if existed {
		slog.Warn("[bridge] namespace overwritten, concurrent re-exposure is unordered", "namespace", name)
	}
	slog.Debug("[bridge] namespace exposed", "namespace", name, "leaves", len(leaves))
	return nil
}

// Lookup resolves "namespace.leaf.path" to its handler.
func (r *Registry) Lookup(path string) (Handler, error) {
	ns, leaf, ok := strings.Cut(path, ".")
	if !ok || ns == "" || leaf == "" {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, path)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	leaves, ok := r.namespaces[ns]
	if !ok {
		return nil, fmt.Errorf("%w: namespace %q", ErrNotFound, ns)
	}
	h, ok := leaves[leaf]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, path)
	}
	return h, nil
}

// Namespaces returns the published namespace names, sorted.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.namespaces))
}

// Leaves returns the sorted leaf paths of ns, without the namespace prefix.
func (r *Registry) Leaves(ns string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.namespaces[ns]))
}

// MarkReady releases calls queued by Dispatch. Idempotent.
func (r *Registry) MarkReady() {
	r.readyOnce.Do(func() { close(r.ready) })
}

// Ready is closed once MarkReady has been called.
func (r *Registry) Ready() <-chan struct{} {
	return r.ready
}

// Dispatch runs call and always returns a Result for call.ID.
//
// Calls arriving before MarkReady wait for it; if ctx ends first the result is
// a not_ready error. Handler errors and panics are serialized into the result
// and never propagate.
func (r *Registry) Dispatch(ctx context.Context, call Call) Result {
	select {
	case <-r.ready:
	case <-ctx.Done():
		return Result{ID: call.ID, Err: ToError(fmt.Errorf("%w: %s: %v", ErrNotReady, call.Path, ctx.Err()))}
	}

	h, err := r.Lookup(call.Path)
	if err != nil {
		return Result{ID: call.ID, Err: ToError(err)}
	}

	value, err := invokeHandler(ctx, call, h)
	if err != nil {
		slog.Debug("[bridge] call failed", "path", call.Path, "id", call.ID, "error", err)
		return Result{ID: call.ID, Err: ToError(err)}
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return Result{ID: call.ID, Err: NewError(CodeInternal, "encode result of %s: %v", call.Path, err)}
	}
	return Result{ID: call.ID, Value: raw}
}

func invokeHandler(ctx context.Context, call Call, h Handler) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[bridge] handler panicked",
				"path", call.Path,
				"id", call.ID,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			value = nil
			err = NewError(CodeInternal, "%s: panic: %v", call.Path, rec)
		}
	}()
	return h(ctx, call.Args)
}

func flatten(prefix string, tree map[string]any, out map[string]Handler) error {
	for key, value := range tree {
		if key == "" || strings.Contains(key, ".") {
			return fmt.Errorf("%w: leaf name %q", ErrInvalidArgument, key)
		}
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		switch v := value.(type) {
		case Handler:
			if v == nil {
				return fmt.Errorf("%w: nil handler at %q", ErrInvalidArgument, path)
			}
			out[path] = v
		case func(context.Context, Args) (any, error):
			if v == nil {
				return fmt.Errorf("%w: nil handler at %q", ErrInvalidArgument, path)
			}
			out[path] = v
		case Tree:
			if err := flatten(path, v, out); err != nil {
				return err
			}
		case map[string]any:
			if err := flatten(path, v, out); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unsupported value %T at %q", ErrInvalidArgument, value, path)
		}
	}
	return nil
}
