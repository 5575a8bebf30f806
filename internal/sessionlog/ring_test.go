package sessionlog

import (
	"fmt"
	"sync"
	"testing"
)

func fill(r *Ring, n int) {
	for i := range n {
		r.Add(Entry{Message: fmt.Sprintf("m%d", i)})
	}
}

func messages(entries []Entry) string {
	out := ""
	for i, e := range entries {
		if i > 0 {
			out += ","
		}
		out += e.Message
	}
	return out
}

func TestRingRecent(t *testing.T) {
	tests := []struct {
		name  string
		cap   int
		added int
		limit int
		want  string
	}{
		{name: "empty", cap: 3, added: 0, limit: 0, want: ""},
		{name: "partial all", cap: 3, added: 2, limit: 0, want: "m0,m1"},
		{name: "partial limited", cap: 3, added: 2, limit: 1, want: "m1"},
		{name: "wrapped all", cap: 3, added: 5, limit: 0, want: "m2,m3,m4"},
		{name: "wrapped limited", cap: 3, added: 5, limit: 2, want: "m3,m4"},
		{name: "limit above len", cap: 3, added: 4, limit: 10, want: "m1,m2,m3"},
		{name: "exactly full", cap: 3, added: 3, limit: 0, want: "m0,m1,m2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRing(tt.cap)
			fill(r, tt.added)
			if got := messages(r.Recent(tt.limit)); got != tt.want {
				t.Fatalf("Recent(%d) = %q, want %q", tt.limit, got, tt.want)
			}
		})
	}
}

func TestRingDefaultCapacityAndClear(t *testing.T) {
	r := NewRing(0)
	fill(r, DefaultCapacity+5)
	if r.Len() != DefaultCapacity {
		t.Fatalf("Len() = %d, want %d", r.Len(), DefaultCapacity)
	}
	r.Clear()
	if r.Len() != 0 || len(r.Recent(0)) != 0 {
		t.Fatal("Clear() left entries behind")
	}
}

func TestRingConcurrentAdd(t *testing.T) {
	r := NewRing(64)
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() { fill(r, 100) })
	}
	wg.Wait()
	if r.Len() != 64 {
		t.Fatalf("Len() = %d, want 64", r.Len())
	}
}
