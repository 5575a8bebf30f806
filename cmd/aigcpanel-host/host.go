package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"aigcpanel/internal/bridge"
	"aigcpanel/internal/config"
	"aigcpanel/internal/mapi"
)

// hostWindow stands in for the application window. Quit and closing the
// main window stop the host; everything else only logs.
type hostWindow struct {
	quit context.CancelFunc
}

var _ mapi.Window = hostWindow{}

func (w hostWindow) Quit() { w.quit() }

func (hostWindow) Activate()       { slog.Debug("[window] activate ignored without a window") }
func (hostWindow) Minimise()       {}
func (hostWindow) ToggleMaximise() {}

func (hostWindow) SetSize(width, height int) {
	slog.Debug("[window] setSize ignored without a window", "width", width, "height", height)
}

func (hostWindow) Show(name string) error { return checkHostWindow(name) }
func (hostWindow) Hide(name string) error { return checkHostWindow(name) }

func (w hostWindow) Close(name string) error {
	if err := checkHostWindow(name); err != nil {
		return err
	}
	w.quit()
	return nil
}

func (hostWindow) OpenURL(url string) error {
	return fmt.Errorf("%w: no browser available to open %s", bridge.ErrNotReady, url)
}

func checkHostWindow(name string) error {
	if name != mapi.MainPage {
		return fmt.Errorf("%w: unknown window %q", bridge.ErrInvalidArgument, name)
	}
	return nil
}

// hostEvents logs events; there is no window to deliver them to.
type hostEvents struct{}

func (hostEvents) Emit(event string, payload any) {
	slog.Debug("[EVENT] emit", "event", event, "payload", payload)
}

func (e hostEvents) Broadcast(event string, payload any) { e.Emit(event, payload) }

type noFocus struct{}

func (noFocus) Focus() error { return nil }
func (noFocus) Blur() error  { return nil }

// hostConfig persists config updates to path.
type hostConfig struct {
	path string
	mu   sync.Mutex
	cfg  config.Config
}

func newHostConfig(path string, cfg config.Config) *hostConfig {
	return &hostConfig{path: path, cfg: config.Clone(cfg)}
}

func (c *hostConfig) Snapshot() config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return config.Clone(c.cfg)
}

func (c *hostConfig) Update(fn func(*config.Config) error) (config.Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := config.Clone(c.cfg)
	if err := fn(&next); err != nil {
		return config.Config{}, err
	}
	saved, err := config.Save(c.path, next)
	if err != nil {
		return config.Config{}, err
	}
	c.cfg = saved
	return config.Clone(saved), nil
}
