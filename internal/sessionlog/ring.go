package sessionlog

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of entries a Ring keeps when none is given.
const DefaultCapacity = 500

// Entry is one captured log record.
type Entry struct {
	Time    time.Time         `json:"time"`
	Level   string            `json:"level"`
	Message string            `json:"message"`
	Source  string            `json:"source,omitempty"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// Ring is a fixed-size, concurrency-safe buffer of the latest entries.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// NewRing creates a ring holding up to capacity entries.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{entries: make([]Entry, capacity)}
}

// Add stores e, evicting the oldest entry when full. It has the Sink
// signature.
func (r *Ring) Add(e Entry) {
	r.mu.Lock()
	r.entries[r.next] = e
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// Len returns the number of stored entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.entries)
	}
	return r.next
}

// Recent returns up to limit entries, oldest first. limit <= 0 returns all.
func (r *Ring) Recent(limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.entries)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	start := r.next - limit
	if start < 0 {
		start += len(r.entries)
	}
	for i := range limit {
		out = append(out, r.entries[(start+i)%len(r.entries)])
	}
	return out
}

// Clear drops every entry.
func (r *Ring) Clear() {
	r.mu.Lock()
	clear(r.entries)
	r.next = 0
	r.full = false
	r.mu.Unlock()
}
