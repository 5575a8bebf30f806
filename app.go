package main

import (
	"context"
	"sync"
	"sync/atomic"

	"aigcpanel/internal/appenv"
	"aigcpanel/internal/bridge"
	"aigcpanel/internal/chord"
	"aigcpanel/internal/hotkeys"
	"aigcpanel/internal/ipc"
	"aigcpanel/internal/keys"
	"aigcpanel/internal/lang"
	"aigcpanel/internal/mapi"
	"aigcpanel/internal/sessionlog"
	"aigcpanel/internal/store"
	"aigcpanel/internal/terminal"
	"aigcpanel/internal/wsserver"
)

// appName names the per-user data directory and the window title.
const appName = "AigcPanel"

// App is the Wails-bound application service.
type App struct {
	// Runtime context lifecycle.
	ctx   context.Context
	ctxMu sync.RWMutex

	// config is the live configuration. Lock ordering lives inside
	// configState (saveMu -> mu).
	config *configState

	// Readiness and the bridge registry are created by NewApp so handlers can
	// be exposed before startup publishes the environment.
	env      *appenv.Readiness
	registry *bridge.Registry
	server   *bridge.Server
	pages    *mapi.Pages

	// Backend services, set once during startup.
	store     *store.Store
	lang      *lang.Bundle
	logs      *sessionlog.Ring
	sessLog   atomic.Pointer[sessionLogFile]
	terminals *terminal.Manager
	ipcServer *ipc.Server
	// wsHub is nil if the websocket server failed to start.
	wsHub *wsserver.Hub

	// Shortcuts: the registrar backs the focus-scoped key service.
	hotkeys    *hotkeys.Manager
	recognizer *chord.Recognizer
	shortcuts  *keys.Service

	shuttingDown atomic.Bool

	// Background worker cancellation/waits. bgCtx ends on shutdown.
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// NewApp creates the app service. logs receives the records teed from the
// default logger.
func NewApp(cfg *configState, logs *sessionlog.Ring) *App {
	if logs == nil {
		logs = sessionlog.NewRing(0)
	}
	reg := bridge.NewRegistry()
	return &App{
		config:     cfg,
		env:        appenv.NewReadiness(),
		registry:   reg,
		server:     bridge.NewServer(reg),
		pages:      mapi.NewPages(),
		lang:       lang.Default(),
		logs:       logs,
		hotkeys:    hotkeys.NewManager(),
		recognizer: chord.New(),
	}
}
