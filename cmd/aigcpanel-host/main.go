// Command aigcpanel-host serves the bridge namespaces over the IPC endpoint
// without a window, for scripting and automated checks.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"aigcpanel/internal/appenv"
	"aigcpanel/internal/bridge"
	"aigcpanel/internal/config"
	"aigcpanel/internal/ipc"
	"aigcpanel/internal/lang"
	"aigcpanel/internal/mapi"
	"aigcpanel/internal/sessionlog"
	"aigcpanel/internal/store"
	"aigcpanel/internal/terminal"
)

const appName = "AigcPanel"

var (
	endpointFlag string
	verboseFlag  bool
)

var rootCmd = &cobra.Command{
	Use:           "aigcpanel-host",
	Short:         "Serve the AigcPanel bridge without a window",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx)
	},
}

func init() {
	rootCmd.Flags().StringVar(&endpointFlag, "endpoint", "", "pipe or socket path (default: from config or per-user endpoint)")
	rootCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "log at debug level")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "aigcpanel-host:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	level := slog.LevelInfo
	if verboseFlag {
		level = slog.LevelDebug
	}
	logs := sessionlog.NewRing(sessionlog.DefaultCapacity)
	slog.SetDefault(slog.New(sessionlog.NewTeeHandler(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
		slog.LevelInfo,
		logs.Add,
	)))

	path := config.DefaultPath()
	cfg, err := config.EnsureFile(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfgStore := newHostConfig(path, cfg)

	env, err := appenv.Resolve(appName)
	if err != nil {
		return fmt.Errorf("resolve environment: %w", err)
	}
	st, err := store.Open(filepath.Join(env.UserData, "data", "aigcpanel.db"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	bundle, err := lang.Load(filepath.Join(env.UserData, "lang"))
	if err != nil {
		slog.Warn("[lang] using built-in language packs", "error", err)
		bundle = lang.Default()
	}

	ctx, quit := context.WithCancel(ctx)
	defer quit()

	events := hostEvents{}
	terminals := terminal.NewManager(events.Broadcast)
	defer terminals.CloseAll()

	readiness := appenv.NewReadiness()
	reg := bridge.NewRegistry()
	if err := mapi.Expose(reg, mapi.Deps{
		Window:    hostWindow{quit: quit},
		Events:    events,
		Config:    cfgStore,
		Env:       readiness,
		Store:     st,
		Lang:      bundle,
		Logs:      logs,
		Terminals: terminals,
		Focus:     noFocus{},
		Pages:     mapi.NewPages(),
	}); err != nil {
		return err
	}
	readiness.Set(env)
	reg.MarkReady()

	endpoint := endpointFlag
	if endpoint == "" && cfg.Bridge.PipeName != "" {
		endpoint = ipc.EndpointForName(cfg.Bridge.PipeName)
	}
	server := ipc.NewServer(endpoint, bridge.NewServer(reg))
	if err := server.Start(); err != nil {
		return fmt.Errorf("start ipc server: %w", err)
	}
	slog.Info("[ipc] host listening", "endpoint", server.Endpoint())

	<-ctx.Done()
	slog.Info("[ipc] host shutting down")
	if err := server.Stop(); err != nil {
		slog.Warn("[ipc] failed to stop server cleanly", "error", err)
	}
	return nil
}
