package main

import (
	"context"
	"log/slog"

	"aigcpanel/internal/mapi"
)

// Events emitted by the application itself.
const (
	eventStartupWarning = "app:startup-warning"
	eventWorkerPanic    = "app:worker-panic"
	eventDevToolsToggle = "ui.devtools.toggle"
)

// emitRuntimeEvent emits via the app context and delegates to emitRuntimeEventWithContext.
func (a *App) emitRuntimeEvent(name string, payload any) {
	a.emitRuntimeEventWithContext(a.runtimeContext(), name, payload)
}

// emitRuntimeEventWithContext emits a runtime event only when ctx is non-nil.
// Prefer this helper for best-effort contexts that may not be initialized yet.
func (a *App) emitRuntimeEventWithContext(ctx context.Context, name string, payload any) {
	if ctx == nil {
		slog.Warn("[EVENT] runtime event dropped because app context is nil", "event", name)
		return
	}
	runtimeEventsEmitFn(ctx, name, payload)
}

// broadcastEvent emits to the window and pushes the same event to the
// websocket client, if one is connected.
func (a *App) broadcastEvent(name string, payload any) {
	a.emitRuntimeEvent(name, payload)
	if a.wsHub == nil {
		return
	}
	if err := a.wsHub.Broadcast(name, payload); err != nil {
		slog.Debug("[EVENT] websocket broadcast failed", "event", name, "error", err)
	}
}

// appEvents adapts App to mapi.Emitter.
type appEvents struct {
	app *App
}

var _ mapi.Emitter = appEvents{}

func (e appEvents) Emit(event string, payload any)      { e.app.emitRuntimeEvent(event, payload) }
func (e appEvents) Broadcast(event string, payload any) { e.app.broadcastEvent(event, payload) }
