//go:build darwin

package hotkeys

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.design/x/hotkey"
)

var darwinKeyByName = map[string]hotkey.Key{
	"SPACE": hotkey.KeySpace, "TAB": hotkey.KeyTab, "ENTER": hotkey.KeyReturn,
	"ESC": hotkey.KeyEscape, "DELETE": hotkey.KeyDelete,
	"LEFT": hotkey.KeyLeft, "RIGHT": hotkey.KeyRight, "UP": hotkey.KeyUp, "DOWN": hotkey.KeyDown,
	"A": hotkey.KeyA, "B": hotkey.KeyB, "C": hotkey.KeyC, "D": hotkey.KeyD, "E": hotkey.KeyE,
	"F": hotkey.KeyF, "G": hotkey.KeyG, "H": hotkey.KeyH, "I": hotkey.KeyI, "J": hotkey.KeyJ,
	"K": hotkey.KeyK, "L": hotkey.KeyL, "M": hotkey.KeyM, "N": hotkey.KeyN, "O": hotkey.KeyO,
	"P": hotkey.KeyP, "Q": hotkey.KeyQ, "R": hotkey.KeyR, "S": hotkey.KeyS, "T": hotkey.KeyT,
	"U": hotkey.KeyU, "V": hotkey.KeyV, "W": hotkey.KeyW, "X": hotkey.KeyX, "Y": hotkey.KeyY,
	"Z": hotkey.KeyZ,
	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3, "4": hotkey.Key4,
	"5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7, "8": hotkey.Key8, "9": hotkey.Key9,
	"F1": hotkey.KeyF1, "F2": hotkey.KeyF2, "F3": hotkey.KeyF3, "F4": hotkey.KeyF4,
	"F5": hotkey.KeyF5, "F6": hotkey.KeyF6, "F7": hotkey.KeyF7, "F8": hotkey.KeyF8,
	"F9": hotkey.KeyF9, "F10": hotkey.KeyF10, "F11": hotkey.KeyF11, "F12": hotkey.KeyF12,
	"F13": hotkey.KeyF13, "F14": hotkey.KeyF14, "F15": hotkey.KeyF15, "F16": hotkey.KeyF16,
	"F17": hotkey.KeyF17, "F18": hotkey.KeyF18, "F19": hotkey.KeyF19, "F20": hotkey.KeyF20,
}

type activeHotkey struct {
	hk     *hotkey.Hotkey
	stopCh chan struct{}
	doneCh chan struct{}
}

// Manager owns the process's global shortcut registrations.
type Manager struct {
	mu     sync.Mutex
	active map[string]*activeHotkey
}

// NewManager creates a new hotkey manager.
func NewManager() *Manager {
	return &Manager{active: make(map[string]*activeHotkey)}
}

// Register binds onTrigger to spec. Registering an active spec is a no-op.
func (m *Manager) Register(spec string, onTrigger func()) error {
	if onTrigger == nil {
		return errors.New("onTrigger callback is required")
	}
	binding, err := ParseBinding(spec)
	if err != nil {
		return err
	}
	key, ok := darwinKeyByName[binding.Key()]
	if !ok {
		return fmt.Errorf("no macOS key code for %q", binding.Key())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.active[binding.Normalized()]; exists {
		return nil
	}

	hk := hotkey.New(darwinModifiers(binding.Modifiers()), key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("register hotkey %q failed: %w", binding.Normalized(), err)
	}
	ah := &activeHotkey{hk: hk, stopCh: make(chan struct{}), doneCh: make(chan struct{})}
	m.active[binding.Normalized()] = ah
	go listen(ah, onTrigger)
	return nil
}

// Unregister releases spec. Unknown specs are ignored.
func (m *Manager) Unregister(spec string) error {
	binding, err := ParseBinding(spec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ah, ok := m.active[binding.Normalized()]
	if !ok {
		return nil
	}
	delete(m.active, binding.Normalized())
	return stopListener(ah)
}

// UnregisterAll releases every active binding.
func (m *Manager) UnregisterAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for name, ah := range m.active {
		delete(m.active, name)
		errs = append(errs, stopListener(ah))
	}
	return errors.Join(errs...)
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

func listen(ah *activeHotkey, onTrigger func()) {
	defer close(ah.doneCh)
	for {
		select {
		case <-ah.stopCh:
			return
		case _, ok := <-ah.hk.Keydown():
			if !ok {
				return
			}
			go onTrigger()
		}
	}
}

func stopListener(ah *activeHotkey) error {
	close(ah.stopCh)
	<-ah.doneCh
	if err := ah.hk.Unregister(); err != nil {
		slog.Warn("[hotkey] unregister failed", "error", err)
		return err
	}
	return nil
}

func darwinModifiers(mods Modifier) []hotkey.Modifier {
	out := make([]hotkey.Modifier, 0, 4)
	if mods&ModCtrl != 0 {
		out = append(out, hotkey.ModCtrl)
	}
	if mods&ModShift != 0 {
		out = append(out, hotkey.ModShift)
	}
	if mods&ModAlt != 0 {
		out = append(out, hotkey.ModOption)
	}
	if mods&ModSuper != 0 {
		out = append(out, hotkey.ModCmd)
	}
	return out
}
