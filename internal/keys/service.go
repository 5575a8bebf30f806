// Package keys wires global shortcuts to the chord recognizer for the
// lifetime of a window-focus session: shortcuts are grabbed while the main
// window has focus and released on blur.
package keys

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"aigcpanel/internal/chord"
	"aigcpanel/internal/config"
	"aigcpanel/internal/hotkeys"
)

// ErrUnknownCommand is returned by Ready when a configured chord names a
// command missing from the command table.
var ErrUnknownCommand = errors.New("keys: unknown command")

// Registrar is the global shortcut layer. Register of an active spec and
// Unregister of an unknown spec must both succeed.
type Registrar interface {
	Register(spec string, onTrigger func()) error
	Unregister(spec string) error
	UnregisterAll() error
}

// Service owns the focus-scoped key map.
type Service struct {
	registrar  Registrar
	recognizer *chord.Recognizer
	cfg        config.ShortcutConfig

	mu      sync.Mutex
	keyMap  []string // normalized accelerators fed to the recognizer
	focused bool
}

// NewService creates a Service. cfg is copied.
func NewService(registrar Registrar, recognizer *chord.Recognizer, cfg config.ShortcutConfig) *Service {
	return &Service{
		registrar:  registrar,
		recognizer: recognizer,
		cfg:        config.CloneShortcuts(cfg),
	}
}

// Ready registers every configured chord, resolving command names through
// commands. Every distinct accelerator that appears in a chord joins the key
// map grabbed on Focus.
func (s *Service) Ready(commands map[string]chord.Command) error {
	var errs []error
	keySet := map[string]struct{}{}
	for _, c := range s.cfg.Chords {
		cmd, ok := commands[c.Command]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownCommand, c.Command))
			continue
		}
		sequence := make([]chord.Token, 0, len(c.Keys))
		var parseErr error
		for _, spec := range c.Keys {
			b, err := hotkeys.ParseBinding(spec)
			if err != nil {
				parseErr = fmt.Errorf("chord %q: %w", c.Command, err)
				break
			}
			sequence = append(sequence, chord.Token(b.Normalized()))
		}
		if parseErr != nil {
			errs = append(errs, parseErr)
			continue
		}
		expire := time.Duration(c.ExpireMS) * time.Millisecond
		if err := s.recognizer.Register(sequence, cmd, expire); err != nil {
			errs = append(errs, fmt.Errorf("chord %q: %w", c.Command, err))
			continue
		}
		for _, token := range sequence {
			keySet[string(token)] = struct{}{}
		}
		slog.Debug("[keys] chord registered", "command", c.Command, "keys", c.Keys, "expireMs", c.ExpireMS)
	}

	keyMap := make([]string, 0, len(keySet))
	for key := range keySet {
		keyMap = append(keyMap, key)
	}
	slices.Sort(keyMap)

	s.mu.Lock()
	s.keyMap = keyMap
	s.mu.Unlock()
	return errors.Join(errs...)
}

// KeyMap returns the accelerators grabbed while focused.
func (s *Service) KeyMap() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.keyMap)
}

// Focus grabs every key of the key map. Calling it while already focused
// re-registers, which the Registrar treats as a no-op.
func (s *Service) Focus() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, key := range s.keyMap {
		token := chord.Token(key)
		if err := s.registrar.Register(key, func() { s.recognizer.Feed(token) }); err != nil {
			slog.Warn("[keys] shortcut registration failed", "key", key, "error", err)
			errs = append(errs, err)
		}
	}
	s.focused = true
	return errors.Join(errs...)
}

// Blur releases the key map and drops the chord history so presses from an
// earlier focus session cannot complete a sequence later.
func (s *Service) Blur() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, key := range s.keyMap {
		if err := s.registrar.Unregister(key); err != nil {
			errs = append(errs, err)
		}
	}
	s.focused = false
	s.recognizer.Reset()
	return errors.Join(errs...)
}

// Focused reports whether the key map is currently grabbed.
func (s *Service) Focused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focused
}

// Destroy releases every global shortcut held by the registrar.
func (s *Service) Destroy() error {
	s.mu.Lock()
	s.focused = false
	s.mu.Unlock()
	return s.registrar.UnregisterAll()
}
