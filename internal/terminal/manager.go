package terminal

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Events emitted by Manager.
const (
	EventOutput = "app.spawnShell.output"
	EventExit   = "app.spawnShell.exit"
)

// ErrUnknownSession is returned for ids that are not (or no longer) running.
var ErrUnknownSession = errors.New("terminal: unknown session")

// OutputEvent carries a chunk of command output.
type OutputEvent struct {
	ID     string `json:"id"`
	Stream string `json:"stream"`
	Data   string `json:"data"`
}

// ExitEvent reports the end of a spawned command.
type ExitEvent struct {
	ID    string `json:"id"`
	Code  int    `json:"code"`
	Error string `json:"error,omitempty"`
}

// Session describes a running command.
type Session struct {
	ID  string `json:"id"`
	PID int    `json:"pid"`
	PTY bool   `json:"pty"`
}

// Manager owns the commands started through app.spawnShell. Output and exit
// notifications go to emit, which must be safe for concurrent use.
type Manager struct {
	emit  func(event string, payload any)
	start func(Config) (*Terminal, error)

	mu       sync.Mutex
	sessions map[string]*Terminal
	wg       sync.WaitGroup
}

// NewManager creates a Manager.
func NewManager(emit func(event string, payload any)) *Manager {
	if emit == nil {
		emit = func(string, any) {}
	}
	return &Manager{emit: emit, start: Start, sessions: make(map[string]*Terminal)}
}

// Spawn starts cfg and streams its output until it exits.
func (m *Manager) Spawn(cfg Config) (Session, error) {
	term, err := m.start(cfg)
	if err != nil {
		return Session{}, fmt.Errorf("spawn %q: %w", cfg.Command, err)
	}
	id := uuid.NewString()
	m.mu.Lock()
	m.sessions[id] = term
	m.mu.Unlock()

	sess := Session{ID: id, PID: term.PID(), PTY: term.IsPTY()}
	slog.Info("[terminal] command spawned", "id", id, "pid", sess.PID, "pty", sess.PTY)

	m.wg.Go(func() { m.run(id, term) })
	return sess, nil
}

func (m *Manager) run(id string, term *Terminal) {
	stdout := NewOutputBuffer(0, 0, func(b []byte) {
		m.emit(EventOutput, OutputEvent{ID: id, Stream: "stdout", Data: string(b)})
	})
	stderr := NewOutputBuffer(0, 0, func(b []byte) {
		m.emit(EventOutput, OutputEvent{ID: id, Stream: "stderr", Data: string(b)})
	})
	stdout.Start()
	stderr.Start()

	term.ReadLoop(func(stream string, data []byte) {
		if stream == "stderr" {
			stderr.Write(data)
			return
		}
		stdout.Write(data)
	})
	stdout.Stop()
	stderr.Stop()

	code, err := term.Wait()
	if closeErr := term.Close(); closeErr != nil {
		slog.Debug("[terminal] close after exit", "id", id, "error", closeErr)
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	ev := ExitEvent{ID: id, Code: code}
	if err != nil {
		ev.Error = err.Error()
	}
	slog.Info("[terminal] command exited", "id", id, "code", code)
	m.emit(EventExit, ev)
}

func (m *Manager) lookup(id string) (*Terminal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	term, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSession, id)
	}
	return term, nil
}

// Write sends input to session id.
func (m *Manager) Write(id string, data []byte) error {
	term, err := m.lookup(id)
	if err != nil {
		return err
	}
	_, err = term.Write(data)
	return err
}

// Kill terminates session id. Its exit event still follows.
func (m *Manager) Kill(id string) error {
	term, err := m.lookup(id)
	if err != nil {
		return err
	}
	return term.Close()
}

// IDs returns the running session ids, sorted.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// CloseAll kills every session and waits for their exit events.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	terms := make([]*Terminal, 0, len(m.sessions))
	for _, term := range m.sessions {
		terms = append(terms, term)
	}
	m.mu.Unlock()

	var errs []error
	for _, term := range terms {
		if err := term.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.wg.Wait()
	return errors.Join(errs...)
}
