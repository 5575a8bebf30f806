// Package mapi defines the namespaces the application exposes over the
// bridge (app, log, config, storage, db, file, event, ui, updater,
// statistics, page, lang, user, misc, ffmpeg) and a typed client for
// calling them from another process.
package mapi

import (
	"errors"
	"net/http"
	"os/exec"
	"time"

	"aigcpanel/internal/appenv"
	"aigcpanel/internal/config"
	"aigcpanel/internal/lang"
	"aigcpanel/internal/sessionlog"
	"aigcpanel/internal/store"
	"aigcpanel/internal/terminal"
)

// Window performs native window operations. Names identify windows;
// "main" is the application window.
type Window interface {
	Quit()
	Activate()
	Minimise()
	ToggleMaximise()
	SetSize(width, height int)
	Show(name string) error
	Hide(name string) error
	Close(name string) error
	OpenURL(url string) error
}

// Emitter delivers events. Emit reaches the application window; Broadcast
// also reaches bridge clients connected from outside it.
type Emitter interface {
	Emit(event string, payload any)
	Broadcast(event string, payload any)
}

// ConfigStore is the live, persisted configuration.
type ConfigStore interface {
	Snapshot() config.Config
	// Update applies fn to a copy, persists it and makes it current.
	Update(fn func(*config.Config) error) (config.Config, error)
}

// FocusTarget follows the application window's focus.
type FocusTarget interface {
	Focus() error
	Blur() error
}

// Deps are the services behind the namespaces.
type Deps struct {
	Window    Window
	Events    Emitter
	Config    ConfigStore
	Env       *appenv.Readiness
	Store     *store.Store
	Lang      *lang.Bundle
	Logs      *sessionlog.Ring
	Terminals *terminal.Manager
	Focus     FocusTarget
	Pages     *Pages

	// HTTP is used by updater.check. Defaults to a client with a 15s timeout.
	HTTP *http.Client
	// LookPath locates ffmpeg when the config does not name it.
	LookPath func(file string) (string, error)
	// ShellTimeout bounds app.shell. Defaults to 5 minutes.
	ShellTimeout time.Duration
}

const defaultShellTimeout = 5 * time.Minute

func (d *Deps) validate() error {
	var missing []error
	if d.Window == nil {
		missing = append(missing, errors.New("window"))
	}
	if d.Events == nil {
		missing = append(missing, errors.New("events"))
	}
	if d.Config == nil {
		missing = append(missing, errors.New("config"))
	}
	if d.Env == nil {
		missing = append(missing, errors.New("env"))
	}
	if d.Store == nil {
		missing = append(missing, errors.New("store"))
	}
	if d.Focus == nil {
		missing = append(missing, errors.New("focus"))
	}
	if len(missing) > 0 {
		return errors.Join(append([]error{errors.New("mapi: missing dependencies")}, missing...)...)
	}

	if d.Lang == nil {
		d.Lang = lang.Default()
	}
	if d.Logs == nil {
		d.Logs = sessionlog.NewRing(0)
	}
	if d.Terminals == nil {
		d.Terminals = terminal.NewManager(d.Events.Emit)
	}
	if d.Pages == nil {
		d.Pages = NewPages()
	}
	if d.HTTP == nil {
		d.HTTP = &http.Client{Timeout: 15 * time.Second}
	}
	if d.LookPath == nil {
		d.LookPath = exec.LookPath
	}
	if d.ShellTimeout <= 0 {
		d.ShellTimeout = defaultShellTimeout
	}
	return nil
}
