package main

import (
	"context"
	"embed"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"aigcpanel/internal/config"
	"aigcpanel/internal/ipc"
	"aigcpanel/internal/mapi"
	"aigcpanel/internal/sessionlog"
	"aigcpanel/internal/singleinstance"
)

//go:embed all:frontend/dist
var assets embed.FS

const (
	activateTimeout = 3 * time.Second
	logRingCapacity = 1000
)

func main() {
	// Single-instance check before any Wails initialization. A second launch
	// only asks the running instance to raise its window.
	lock, err := singleinstance.TryLock(singleinstance.DefaultName())
	if errors.Is(err, singleinstance.ErrAlreadyRunning) {
		slog.Info("[DEBUG-SINGLE] another instance is already running, signaling activation")
		if actErr := activateRunningInstance(); actErr != nil {
			slog.Warn("[DEBUG-SINGLE] failed to signal existing instance", "error", actErr)
		}
		return
	}
	if err != nil {
		slog.Warn("[DEBUG-SINGLE] lock creation failed, proceeding without single-instance guard", "error", err)
	}
	if lock != nil {
		defer func() {
			if releaseErr := lock.Release(); releaseErr != nil {
				slog.Warn("[DEBUG-SINGLE] lock release failed", "error", releaseErr)
			}
		}()
	}

	logs := sessionlog.NewRing(logRingCapacity)
	cfgState := loadConfigState(config.DefaultPath())
	app := NewApp(cfgState, logs)
	slog.SetDefault(slog.New(sessionlog.NewTeeHandler(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.LevelInfo,
		app.recordLogEntry,
	)))

	cfg := cfgState.Snapshot()
	err = wails.Run(&options.App{
		Title:     appName,
		Width:     cfg.Window.Width,
		Height:    cfg.Window.Height,
		MinWidth:  cfg.Window.MinWidth,
		MinHeight: cfg.Window.MinHeight,
		// The window stays hidden until the main page reports ready.
		StartHidden: true,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 255, G: 255, B: 255, A: 1},
		OnStartup:        app.startup,
		OnDomReady:       app.domReady,
		OnShutdown:       app.shutdown,
		Bind: []any{
			app,
		},
	})
	if err != nil {
		slog.Error("[DEBUG-SINGLE] wails run failed", "error", err)
	}
}

// activateRunningInstance calls app.activate on the instance holding the
// lock through its IPC endpoint.
func activateRunningInstance() error {
	ctx, cancel := context.WithTimeout(context.Background(), activateTimeout)
	defer cancel()

	endpoint := ""
	if path := config.DefaultPath(); path != "" {
		if cfg, err := config.Load(path); err == nil && cfg.Bridge.PipeName != "" {
			endpoint = ipc.EndpointForName(cfg.Bridge.PipeName)
		}
	}
	if endpoint == "" {
		endpoint = ipc.DefaultEndpoint()
	}
	bc, err := ipc.Connect(ctx, endpoint)
	if err != nil {
		return err
	}
	client := mapi.NewClient(bc)
	defer client.Close()
	return client.App.Activate(ctx)
}
