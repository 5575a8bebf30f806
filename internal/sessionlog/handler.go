// Package sessionlog keeps the most recent warning and error records of the
// running process so the renderer can show them (log.recent).
package sessionlog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"slices"
)

// Sink receives every record the TeeHandler captures.
type Sink func(Entry)

// TeeHandler forwards every record to base and passes records at or above
// minLevel to sink. Handler attributes and groups are kept on the captured
// entry: attributes keyed by their dotted group path, the group path itself
// as Entry.Source.
type TeeHandler struct {
	base     slog.Handler
	sink     Sink
	minLevel slog.Level
	group    string
	attrs    []slog.Attr
}

// NewTeeHandler wraps base. A nil sink only delegates.
func NewTeeHandler(base slog.Handler, minLevel slog.Level, sink Sink) *TeeHandler {
	return &TeeHandler{base: base, sink: sink, minLevel: minLevel}
}

// Enabled defers to base; minLevel only gates capture.
func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle forwards to base, then captures. Capture does not depend on the
// base handler succeeding; the base error is returned.
func (h *TeeHandler) Handle(ctx context.Context, record slog.Record) error {
	err := h.base.Handle(ctx, record)
	if h.sink != nil && record.Level >= h.minLevel {
		h.capture(record)
	}
	return err
}

func (h *TeeHandler) capture(record slog.Record) {
	defer func() {
		if r := recover(); r != nil {
			// stderr, not slog: logging here would re-enter this handler.
			fmt.Fprintf(os.Stderr, "[session-log] sink panicked: %v\n%s\n", r, debug.Stack())
		}
	}()

	entry := Entry{
		Time:    record.Time,
		Level:   record.Level.String(),
		Message: record.Message,
		Source:  h.group,
	}
	if len(h.attrs) > 0 || record.NumAttrs() > 0 {
		entry.Attrs = make(map[string]string, len(h.attrs)+record.NumAttrs())
		for _, a := range h.attrs {
			addAttr(entry.Attrs, "", a)
		}
		prefix := h.group
		record.Attrs(func(a slog.Attr) bool {
			addAttr(entry.Attrs, prefix, a)
			return true
		})
	}
	h.sink(entry)
}

func addAttr(dst map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, child := range a.Value.Group() {
			addAttr(dst, key, child)
		}
		return
	}
	dst[key] = a.Value.String()
}

// WithAttrs applies attrs to base and remembers them for captured entries.
func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	next.base = h.base.WithAttrs(attrs)
	next.attrs = slices.Clone(h.attrs)
	for _, a := range attrs {
		if h.group != "" {
			a = slog.Attr{Key: h.group, Value: slog.GroupValue(a)}
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

// WithGroup nests subsequent attributes under name.
func (h *TeeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.base = h.base.WithGroup(name)
	if h.group != "" {
		next.group = h.group + "." + name
	} else {
		next.group = name
	}
	return &next
}
