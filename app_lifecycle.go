package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"aigcpanel/internal/appenv"
	"aigcpanel/internal/bridge"
	"aigcpanel/internal/config"
	"aigcpanel/internal/ipc"
	"aigcpanel/internal/lang"
	"aigcpanel/internal/mapi"
	"aigcpanel/internal/store"
	"aigcpanel/internal/terminal"
	"aigcpanel/internal/workerutil"
	"aigcpanel/internal/wsserver"
)

type appRuntimeLogger interface {
	Warningf(context.Context, string, ...any)
	Infof(context.Context, string, ...any)
	Errorf(context.Context, string, ...any)
}

type wailsRuntimeLogger struct{}

func formatRuntimeLogMessage(message string, args ...any) string {
	if len(args) == 0 {
		return message
	}
	return fmt.Sprintf(message, args...)
}

func (wailsRuntimeLogger) Warningf(ctx context.Context, message string, args ...any) {
	if ctx == nil {
		slog.Warn(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogWarningf(ctx, message, args...)
}

func (wailsRuntimeLogger) Infof(ctx context.Context, message string, args ...any) {
	if ctx == nil {
		slog.Info(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogInfof(ctx, message, args...)
}

func (wailsRuntimeLogger) Errorf(ctx context.Context, message string, args ...any) {
	if ctx == nil {
		slog.Error(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogErrorf(ctx, message, args...)
}

var (
	runtimeEventsEmitFn                            = runtime.EventsEmit
	runtimeLogger                 appRuntimeLogger = wailsRuntimeLogger{}
	runtimeWindowShowFn                            = runtime.WindowShow
	runtimeWindowHideFn                            = runtime.WindowHide
	runtimeWindowUnminimiseFn                      = runtime.WindowUnminimise
	runtimeWindowSetAlwaysOnTopFn                  = runtime.WindowSetAlwaysOnTop
	runtimeWindowMinimiseFn                        = runtime.WindowMinimise
	runtimeWindowToggleMaximiseFn                  = runtime.WindowToggleMaximise
	runtimeWindowSetSizeFn                         = runtime.WindowSetSize
	runtimeQuitFn                                  = runtime.Quit
	runtimeBrowserOpenURLFn                        = runtime.BrowserOpenURL
	resolveEnvFn                                   = appenv.Resolve
)

const (
	shutdownWaitTimeout = 10 * time.Second
	// mainWindowFallbackDelay shows the window even if the frontend never
	// reports the main page ready, so a broken page is still visible.
	mainWindowFallbackDelay = 15 * time.Second

	eventUpdateAvailable = "updater.available"
)

var startupWarnings struct {
	mu       sync.Mutex
	messages []string
}

func addStartupWarning(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	startupWarnings.mu.Lock()
	startupWarnings.messages = append(startupWarnings.messages, trimmed)
	startupWarnings.mu.Unlock()
}

func consumeStartupWarnings() string {
	startupWarnings.mu.Lock()
	defer startupWarnings.mu.Unlock()
	if len(startupWarnings.messages) == 0 {
		return ""
	}
	message := strings.Join(startupWarnings.messages, "\n")
	startupWarnings.messages = nil
	return message
}

// loadConfigState reads the config file, creating it on first run. A file
// that cannot be loaded is reported and replaced by defaults in memory.
func loadConfigState(path string) *configState {
	for _, message := range config.ConsumeDefaultPathWarnings() {
		addStartupWarning(message)
	}
	cfg, err := config.EnsureFile(path)
	if err != nil {
		cfg = config.DefaultConfig()
		addStartupWarning("Failed to load config file at startup. Running with defaults. Error: " + err.Error())
		slog.Warn("[WARN-CONFIG] failed to load config", "path", path, "error", err)
	}
	return newConfigState(path, cfg)
}

// fallbackEnv is used when the real directories cannot be resolved, so
// handlers waiting on the environment are still released.
func fallbackEnv() appenv.Env {
	root := "."
	if exe, err := os.Executable(); err == nil {
		root = filepath.Dir(exe)
	}
	tmp := os.TempDir()
	return appenv.Env{AppRoot: root, AppData: tmp, UserData: filepath.Join(tmp, appName)}
}

func (a *App) startup(ctx context.Context) {
	setConsoleUTF8()
	a.setRuntimeContext(ctx)

	bgCtx, cancel := context.WithCancel(ctx)
	a.bgCtx, a.bgCancel = bgCtx, cancel

	env, err := resolveEnvFn(appName)
	if err != nil {
		runtimeLogger.Errorf(ctx, "environment resolution failed: %v", err)
		addStartupWarning("Failed to resolve the user data directory. Data is kept in a temporary directory. Error: " + err.Error())
		env = fallbackEnv()
		if mkErr := os.MkdirAll(env.UserData, 0o700); mkErr != nil {
			runtimeLogger.Errorf(ctx, "fallback user data dir: %v", mkErr)
		}
	}
	a.initSessionLog(env.UserData)
	a.openStore(ctx, env)
	a.loadLangPacks(env)
	a.terminals = terminal.NewManager(a.broadcastEvent)

	if err := a.exposeAPI(); err != nil {
		runtimeLogger.Errorf(ctx, "bridge namespaces failed: %v", err)
		addStartupWarning("Failed to publish the application API. Error: " + err.Error())
	}
	if err := a.configureShortcuts(); err != nil {
		addStartupWarning("Some keyboard shortcuts are unavailable. Error: " + err.Error())
	}

	// Calls that arrived early are released only once the environment is
	// published.
	a.env.Set(env)
	a.registry.MarkReady()

	a.startIPCServer(ctx)
	a.startWebSocketHub(bgCtx)
	a.startConfigWatcher(bgCtx)
	a.checkUpdateAtLaunch(bgCtx)

	if a.store != nil {
		if err := a.store.Tick(ctx, "app.launch", nil); err != nil {
			slog.Debug("[store] launch tick failed", "error", err)
		}
	}
	a.flushStartupWarnings()
}

// domReady arms the fallback that shows the window when the main page
// never reports ready.
func (a *App) domReady(ctx context.Context) {
	done := ctx.Done()
	if a.bgCtx != nil {
		done = a.bgCtx.Done()
	}
	a.bgWG.Go(func() {
		timer := time.NewTimer(mainWindowFallbackDelay)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			if a.pages.MarkReady(mapi.MainPage) {
				slog.Warn("[page] main page did not report ready, showing window")
				runtimeWindowShowFn(ctx)
			}
		}
	})
}

func (a *App) shutdown(_ context.Context) {
	a.shuttingDown.Store(true)
	logCtx := a.runtimeContext()

	if err := a.releaseShortcuts(); err != nil {
		runtimeLogger.Warningf(logCtx, "shortcut release failed: %v", err)
	}
	if a.bgCancel != nil {
		a.bgCancel()
	}
	if a.terminals != nil {
		if err := a.terminals.CloseAll(); err != nil {
			runtimeLogger.Warningf(logCtx, "terminal shutdown failed: %v", err)
		}
	}
	if a.ipcServer != nil {
		if err := a.ipcServer.Stop(); err != nil {
			runtimeLogger.Warningf(logCtx, "ipc server stop failed: %v", err)
		}
	}
	if a.wsHub != nil {
		if err := a.wsHub.Stop(); err != nil {
			runtimeLogger.Warningf(logCtx, "websocket server stop failed: %v", err)
		}
	}
	if !waitWithTimeout(a.bgWG.Wait, shutdownWaitTimeout) {
		runtimeLogger.Warningf(logCtx, "timed out waiting for background workers during shutdown")
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			runtimeLogger.Warningf(logCtx, "store close failed: %v", err)
		}
	}
	a.closeSessionLog()
	a.setRuntimeContext(nil)
}

// openStore opens the sqlite database under userData. When that fails an
// in-memory database keeps the storage namespaces working for this run.
func (a *App) openStore(ctx context.Context, env appenv.Env) {
	path := filepath.Join(env.UserData, "data", "aigcpanel.db")
	st, err := store.Open(path)
	if err != nil {
		runtimeLogger.Errorf(ctx, "store open failed: %v", err)
		addStartupWarning("Failed to open the local database. Changes will not be kept after exit. Error: " + err.Error())
		st, err = store.Open(":memory:")
		if err != nil {
			runtimeLogger.Errorf(ctx, "in-memory store failed: %v", err)
			return
		}
	}
	a.store = st
}

// loadLangPacks overlays packs found in <userData>/lang on the built-in ones.
func (a *App) loadLangPacks(env appenv.Env) {
	bundle, err := lang.Load(filepath.Join(env.UserData, "lang"))
	if err != nil {
		slog.Warn("[lang] using built-in language packs", "error", err)
		return
	}
	a.lang = bundle
}

func (a *App) exposeAPI() error {
	if a.store == nil {
		return errors.New("store is unavailable")
	}
	return mapi.Expose(a.registry, mapi.Deps{
		Window:    windowOps{app: a},
		Events:    appEvents{app: a},
		Config:    a.config,
		Env:       a.env,
		Store:     a.store,
		Lang:      a.lang,
		Logs:      a.logs,
		Terminals: a.terminals,
		Focus:     shortcutFocus{app: a},
		Pages:     a.pages,
	})
}

func (a *App) startIPCServer(ctx context.Context) {
	endpoint := ""
	if name := a.config.Snapshot().Bridge.PipeName; name != "" {
		endpoint = ipc.EndpointForName(name)
	}
	server := ipc.NewServer(endpoint, a.server)
	if err := server.Start(); err != nil {
		runtimeLogger.Errorf(ctx, "ipc server failed: %v", err)
		addStartupWarning("Failed to start the IPC server. Other processes cannot reach the application. Error: " + err.Error())
		return
	}
	a.ipcServer = server
	runtimeLogger.Infof(ctx, "ipc server listening: %s", server.Endpoint())
}

func (a *App) startWebSocketHub(ctx context.Context) {
	port := a.config.Snapshot().Bridge.WebSocketPort
	hub := wsserver.NewHub(wsserver.HubOptions{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: a.server,
	})
	if err := hub.Start(ctx); err != nil {
		slog.Warn("[WS] websocket server unavailable", "error", err)
		return
	}
	a.wsHub = hub
}

func (a *App) workerOptions() workerutil.Options {
	return workerutil.Options{
		OnPanic: func(worker string, attempt int) {
			if a.shuttingDown.Load() {
				return
			}
			a.emitRuntimeEvent(eventWorkerPanic, map[string]any{"worker": worker, "attempt": attempt})
		},
	}
}

// startConfigWatcher reloads the config when the file changes on disk and
// tells every client.
func (a *App) startConfigWatcher(ctx context.Context) {
	watcher, err := config.NewWatcher(a.config.Path(), func(cfg config.Config) {
		a.config.replace(cfg)
		a.broadcastEvent(mapi.EventConfigChanged, cfg)
	})
	if err != nil {
		slog.Warn("[WARN-CONFIG] config watcher unavailable", "error", err)
		return
	}
	workerutil.Go(ctx, &a.bgWG, "config-watcher", watcher.Run, a.workerOptions())
}

// checkUpdateAtLaunch runs updater.check in the background when enabled and
// announces a newer release.
func (a *App) checkUpdateAtLaunch(ctx context.Context) {
	if !a.config.Snapshot().CheckUpdateAtLaunch {
		return
	}
	workerutil.Go(ctx, &a.bgWG, "update-check", func(ctx context.Context) error {
		res := a.registry.Dispatch(ctx, bridge.Call{Path: "updater.check"})
		if res.Err != nil {
			slog.Info("[updater] launch check failed", "code", res.Err.Code, "error", res.Err.Message)
			return nil
		}
		var info mapi.UpdateInfo
		if err := json.Unmarshal(res.Value, &info); err != nil {
			return fmt.Errorf("decode update info: %w", err)
		}
		if info.HasUpdate && ctx.Err() == nil {
			a.broadcastEvent(eventUpdateAvailable, info)
		}
		return nil
	}, a.workerOptions())
}

func (a *App) flushStartupWarnings() {
	message := consumeStartupWarnings()
	if message == "" {
		return
	}
	a.emitRuntimeEvent(eventStartupWarning, message)
}

func waitWithTimeout(waitFn func(), timeout time.Duration) bool {
	// The waiting goroutine may outlive timeout when waitFn blocks; this is
	// only used on the way out of the process.
	done := make(chan struct{})
	go func() {
		waitFn()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
