// Package chord recognizes ordered sequences of discrete input chords
// (for example pressing the same accelerator three times in a row) and runs
// the command bound to the longest matching sequence.
package chord

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"
)

// DefaultExpiry is the rolling window applied to a fed token when no binding
// supplied its own window.
const DefaultExpiry = 1000 * time.Millisecond

// keySeparator joins sequence tokens into a lookup key. Tokens containing it
// are rejected at registration.
const keySeparator = "\x1f"

// ErrInvalidArgument is returned for malformed registrations.
var ErrInvalidArgument = errors.New("chord: invalid argument")

// Token identifies one discrete chord, typically a normalized accelerator
// such as "CommandOrControl+Shift+H".
type Token string

// Command is the action bound to a chord sequence.
type Command interface {
	Run()
}

// CommandFunc adapts a plain function to Command.
type CommandFunc func()

// Run calls f.
func (f CommandFunc) Run() { f() }

type binding struct {
	sequence []Token
	command  Command
	expire   time.Duration
	// seq orders registrations; a token's window comes from the binding
	// registered last among those that mention it.
	seq uint64
}

type historyEntry struct {
	token  Token
	expiry time.Time
}

// Option configures a Recognizer.
type Option func(*Recognizer)

// WithClock replaces time.Now. Used by tests to drive expiry deterministically.
func WithClock(now func() time.Time) Option {
	return func(r *Recognizer) {
		if now != nil {
			r.now = now
		}
	}
}

// WithDefaultExpiry overrides DefaultExpiry for tokens no binding mentions.
func WithDefaultExpiry(d time.Duration) Option {
	return func(r *Recognizer) {
		if d > 0 {
			r.defaultExpiry = d
		}
	}
}

// Recognizer keeps a short rolling history of fed tokens and fires at most
// one command per Feed.
//
// Each history entry carries its own expiry, computed when the token was fed
// from the window recorded for that token at registration time. Pruning
// compares every entry against the current time, so an older token keeps
// participating in matches until its own window elapses.
//
// Register and Unregister replace bindings wholesale (last write wins).
// Concurrent re-registration of the same sequence is unordered.
type Recognizer struct {
	mu            sync.Mutex
	now           func() time.Time
	defaultExpiry time.Duration
	bindings      map[string]binding
	windows       map[Token]time.Duration
	history       []historyEntry
	maxLen        int
	nextSeq       uint64
}

// New creates an empty Recognizer.
func New(opts ...Option) *Recognizer {
	r := &Recognizer{
		now:           time.Now,
		defaultExpiry: DefaultExpiry,
		bindings:      make(map[string]binding),
		windows:       make(map[Token]time.Duration),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds cmd to sequence. expire <= 0 selects the default window.
// Registering an existing sequence overwrites the previous command.
func (r *Recognizer) Register(sequence []Token, cmd Command, expire time.Duration) error {
	if len(sequence) == 0 {
		return fmt.Errorf("%w: sequence is empty", ErrInvalidArgument)
	}
	if cmd == nil {
		return fmt.Errorf("%w: command is required", ErrInvalidArgument)
	}
	for i, token := range sequence {
		if strings.TrimSpace(string(token)) == "" {
			return fmt.Errorf("%w: token %d is empty", ErrInvalidArgument, i)
		}
		if strings.Contains(string(token), keySeparator) {
			return fmt.Errorf("%w: token %q contains a reserved character", ErrInvalidArgument, token)
		}
	}
	if expire <= 0 {
		expire = r.defaultExpiry
	}

	key := joinKey(sequence)
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bindings[key]; exists {
		slog.Warn("[chord] binding overwritten", "sequence", formatSequence(sequence))
	}
	r.nextSeq++
	r.bindings[key] = binding{
		sequence: slices.Clone(sequence),
		command:  cmd,
		expire:   expire,
		seq:      r.nextSeq,
	}
	for _, token := range sequence {
		r.windows[token] = expire
	}
	r.recomputeMaxLenLocked()
	return nil
}

// Unregister removes the binding for sequence. Unknown sequences are ignored.
func (r *Recognizer) Unregister(sequence []Token) {
	if len(sequence) == 0 {
		return
	}
	key := joinKey(sequence)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bindings[key]; !ok {
		return
	}
	delete(r.bindings, key)
	r.rebuildWindowsLocked()
	r.recomputeMaxLenLocked()
}

// Feed records token and runs the command bound to the longest suffix of the
// unexpired history, if any. It reports whether a command ran.
func (r *Recognizer) Feed(token Token) bool {
	r.mu.Lock()
	now := r.now()
	window, ok := r.windows[token]
	if !ok {
		window = r.defaultExpiry
	}
	r.history = append(r.history, historyEntry{token: token, expiry: now.Add(window)})
	r.pruneLocked(now)

	cmd, sequence := r.matchLocked()
	r.mu.Unlock()

	if cmd == nil {
		return false
	}
	slog.Debug("[chord] sequence matched", "sequence", formatSequence(sequence))
	runCommand(cmd, sequence)
	return true
}

// Reset drops the rolling history.
func (r *Recognizer) Reset() {
	r.mu.Lock()
	r.history = nil
	r.mu.Unlock()
}

// Bindings returns the registered sequences sorted by their joined form.
func (r *Recognizer) Bindings() [][]Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.bindings))
	for key := range r.bindings {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	out := make([][]Token, 0, len(keys))
	for _, key := range keys {
		out = append(out, slices.Clone(r.bindings[key].sequence))
	}
	return out
}

// pruneLocked keeps entries whose expiry is strictly after now. History is
// also capped to the longest registered sequence since nothing older can
// ever be part of a match.
func (r *Recognizer) pruneLocked(now time.Time) {
	kept := r.history[:0]
	for _, entry := range r.history {
		if entry.expiry.After(now) {
			kept = append(kept, entry)
		}
	}
	clear(r.history[len(kept):])
	r.history = kept

	if r.maxLen > 0 && len(r.history) > r.maxLen {
		drop := len(r.history) - r.maxLen
		r.history = slices.Delete(r.history, 0, drop)
	}
}

// matchLocked tries suffixes of the history from the longest to the shortest
// and returns the first bound command.
func (r *Recognizer) matchLocked() (Command, []Token) {
	tokens := make([]Token, len(r.history))
	for i, entry := range r.history {
		tokens[i] = entry.token
	}
	for i := range tokens {
		suffix := tokens[i:]
		if b, ok := r.bindings[joinKey(suffix)]; ok {
			return b.command, b.sequence
		}
	}
	return nil, nil
}

// rebuildWindowsLocked replays the surviving bindings in registration order
// so each token keeps the window Register last gave it.
func (r *Recognizer) rebuildWindowsLocked() {
	clear(r.windows)
	ordered := slices.SortedFunc(maps.Values(r.bindings), func(a, b binding) int {
		return cmp.Compare(a.seq, b.seq)
	})
	for _, b := range ordered {
		for _, token := range b.sequence {
			r.windows[token] = b.expire
		}
	}
}

func (r *Recognizer) recomputeMaxLenLocked() {
	r.maxLen = 0
	for _, b := range r.bindings {
		r.maxLen = max(r.maxLen, len(b.sequence))
	}
}

func runCommand(cmd Command, sequence []Token) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[chord] command panicked",
				"sequence", formatSequence(sequence),
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
	}()
	cmd.Run()
}

func joinKey(sequence []Token) string {
	parts := make([]string, len(sequence))
	for i, token := range sequence {
		parts[i] = string(token)
	}
	return strings.Join(parts, keySeparator)
}

func formatSequence(sequence []Token) string {
	parts := make([]string, len(sequence))
	for i, token := range sequence {
		parts[i] = string(token)
	}
	return strings.Join(parts, " ")
}
