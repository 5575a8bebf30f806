package main

import (
	"fmt"
	"log/slog"

	"aigcpanel/internal/bridge"
	"aigcpanel/internal/mapi"
)

// windowOps drives the native window through the Wails runtime. Only the
// main window exists, so any other name is rejected.
type windowOps struct {
	app *App
}

var _ mapi.Window = windowOps{}

func checkWindowName(name string) error {
	if name != mapi.MainPage {
		return fmt.Errorf("%w: unknown window %q", bridge.ErrInvalidArgument, name)
	}
	return nil
}

func (w windowOps) Quit() {
	ctx := w.app.runtimeContext()
	if ctx == nil {
		slog.Warn("[window] quit dropped because runtime context is nil")
		return
	}
	runtimeQuitFn(ctx)
}

// Activate shows and raises the window. Used when a second instance asks the
// first to come forward.
func (w windowOps) Activate() {
	ctx := w.app.runtimeContext()
	if ctx == nil {
		slog.Warn("[window] activate dropped because runtime context is nil")
		return
	}
	runtimeWindowShowFn(ctx)
	runtimeWindowUnminimiseFn(ctx)
	runtimeWindowSetAlwaysOnTopFn(ctx, true)
	runtimeWindowSetAlwaysOnTopFn(ctx, false)
}

func (w windowOps) Minimise() {
	if ctx := w.app.runtimeContext(); ctx != nil {
		runtimeWindowMinimiseFn(ctx)
	}
}

func (w windowOps) ToggleMaximise() {
	if ctx := w.app.runtimeContext(); ctx != nil {
		runtimeWindowToggleMaximiseFn(ctx)
	}
}

func (w windowOps) SetSize(width, height int) {
	if ctx := w.app.runtimeContext(); ctx != nil {
		runtimeWindowSetSizeFn(ctx, width, height)
	}
}

func (w windowOps) Show(name string) error {
	if err := checkWindowName(name); err != nil {
		return err
	}
	ctx, err := w.app.requireRuntimeContext()
	if err != nil {
		return err
	}
	runtimeWindowShowFn(ctx)
	return nil
}

func (w windowOps) Hide(name string) error {
	if err := checkWindowName(name); err != nil {
		return err
	}
	ctx, err := w.app.requireRuntimeContext()
	if err != nil {
		return err
	}
	runtimeWindowHideFn(ctx)
	return nil
}

// Close on the main window quits the application.
func (w windowOps) Close(name string) error {
	if err := checkWindowName(name); err != nil {
		return err
	}
	ctx, err := w.app.requireRuntimeContext()
	if err != nil {
		return err
	}
	runtimeQuitFn(ctx)
	return nil
}

func (w windowOps) OpenURL(url string) error {
	ctx, err := w.app.requireRuntimeContext()
	if err != nil {
		return err
	}
	runtimeBrowserOpenURLFn(ctx, url)
	return nil
}
