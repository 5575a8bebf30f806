//go:build !windows && !darwin

package hotkeys

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
)

// Manager tracks global shortcut registrations. On this platform bindings
// are validated and recorded but no OS-level hotkey is installed, so
// callbacks never fire.
type Manager struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewManager creates a new hotkey manager.
func NewManager() *Manager {
	return &Manager{active: make(map[string]struct{})}
}

// Register validates spec and records it. Registering an active spec is a no-op.
func (m *Manager) Register(spec string, onTrigger func()) error {
	if onTrigger == nil {
		return errors.New("onTrigger callback is required")
	}
	binding, err := ParseBinding(spec)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.active[binding.Normalized()]; exists {
		return nil
	}
	slog.Warn("[hotkey] global hotkeys are not supported on this platform; binding validated but will never fire",
		"binding", binding.Normalized())
	m.active[binding.Normalized()] = struct{}{}
	return nil
}

// Unregister forgets spec. Unknown specs are ignored.
func (m *Manager) Unregister(spec string) error {
	binding, err := ParseBinding(spec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.active, binding.Normalized())
	m.mu.Unlock()
	return nil
}

// UnregisterAll forgets every binding.
func (m *Manager) UnregisterAll() error {
	m.mu.Lock()
	clear(m.active)
	m.mu.Unlock()
	return nil
}

// Active returns the normalized bindings currently registered, sorted.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.active))
	for name := range m.active {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
