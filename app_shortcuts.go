package main

import (
	"errors"
	"log/slog"

	"aigcpanel/internal/chord"
	"aigcpanel/internal/keys"
	"aigcpanel/internal/mapi"
)

// shortcutFocus adapts the key service to mapi.FocusTarget. Before the
// service exists focus changes are ignored.
type shortcutFocus struct {
	app *App
}

var _ mapi.FocusTarget = shortcutFocus{}

func (f shortcutFocus) Focus() error {
	if f.app.shortcuts == nil {
		return nil
	}
	return f.app.shortcuts.Focus()
}

func (f shortcutFocus) Blur() error {
	if f.app.shortcuts == nil {
		return nil
	}
	return f.app.shortcuts.Blur()
}

// shortcutCommands is the command table chords may name.
func (a *App) shortcutCommands() map[string]chord.Command {
	return map[string]chord.Command{
		keys.CommandToggleDevTools: chord.CommandFunc(func() {
			slog.Info("[keys] toggling devtools overlay")
			a.emitRuntimeEvent(eventDevToolsToggle, nil)
		}),
	}
}

// configureShortcuts builds the key service from the configured chords.
// Chords that fail to register are reported and skipped; the rest stay
// usable.
func (a *App) configureShortcuts() error {
	cfg := a.config.Snapshot()
	svc := keys.NewService(a.hotkeys, a.recognizer, cfg.Shortcuts)
	err := svc.Ready(a.shortcutCommands())
	a.shortcuts = svc
	if err != nil {
		slog.Warn("[keys] some shortcuts were not registered", "error", err)
	}
	slog.Debug("[keys] key map ready", "keys", svc.KeyMap())
	return err
}

// releaseShortcuts drops every global shortcut. Used on shutdown.
func (a *App) releaseShortcuts() error {
	var errs []error
	if a.shortcuts != nil {
		errs = append(errs, a.shortcuts.Destroy())
	} else if a.hotkeys != nil {
		errs = append(errs, a.hotkeys.UnregisterAll())
	}
	return errors.Join(errs...)
}
