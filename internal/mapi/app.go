package mapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"aigcpanel/internal/appenv"
	"aigcpanel/internal/bridge"
	"aigcpanel/internal/config"
	"aigcpanel/internal/terminal"
)

// goosFn and goarchFn are replaced in tests.
var (
	goosFn   = func() string { return runtime.GOOS }
	goarchFn = func() string { return runtime.GOARCH }
)

// PlatformName returns "win", "osx" or "linux"; other systems report GOOS.
func PlatformName() string {
	switch goos := goosFn(); goos {
	case "windows":
		return "win"
	case "darwin":
		return "osx"
	default:
		return goos
	}
}

// PlatformArch returns "x64", "arm64" or "ia32"; other architectures
// report GOARCH.
func PlatformArch() string {
	switch arch := goarchFn(); arch {
	case "amd64":
		return "x64"
	case "386":
		return "ia32"
	default:
		return arch
	}
}

// AppInfo is returned by app.info.
type AppInfo struct {
	config.AppInfo
	Platform string `json:"platform"`
	Arch     string `json:"arch"`
}

// SpawnOptions configures app.spawnShell.
type SpawnOptions struct {
	Cwd  string            `json:"cwd"`
	Env  map[string]string `json:"env"`
	PTY  bool              `json:"pty"`
	Cols int               `json:"cols"`
	Rows int               `json:"rows"`
}

func (o SpawnOptions) config(command string) terminal.Config {
	cfg := terminal.Config{
		Command: command,
		Dir:     o.Cwd,
		PTY:     o.PTY,
		Columns: o.Cols,
		Rows:    o.Rows,
	}
	for k, v := range o.Env {
		cfg.Env = append(cfg.Env, k+"="+v)
	}
	return cfg
}

const (
	defaultPortStart = 40000
	maxPort          = 65535
)

// listenFn is replaced in tests.
var listenFn = net.Listen

func appTree(d *Deps) bridge.Tree {
	return bridge.Tree{
		"quit": bridge.Func0(func(context.Context) (any, error) {
			d.Window.Quit()
			return nil, nil
		}),
		"activate": bridge.Func0(func(context.Context) (any, error) {
			d.Window.Activate()
			return nil, nil
		}),
		"platformName": bridge.Func0(func(context.Context) (string, error) {
			return PlatformName(), nil
		}),
		"platformArch": bridge.Func0(func(context.Context) (string, error) {
			return PlatformArch(), nil
		}),
		"isPlatform": bridge.Func1(func(_ context.Context, name string) (bool, error) {
			return PlatformName() == name, nil
		}),
		"windowMin": bridge.Func0(func(context.Context) (any, error) {
			d.Window.Minimise()
			return nil, nil
		}),
		"windowMax": bridge.Func0(func(context.Context) (any, error) {
			d.Window.ToggleMaximise()
			return nil, nil
		}),
		"windowSetSize": bridge.Func2(func(_ context.Context, width, height int) (any, error) {
			if width <= 0 || height <= 0 {
				return nil, invalidArgument("window size %dx%d", width, height)
			}
			d.Window.SetSize(width, height)
			return nil, nil
		}),
		"windowHide": bridge.Func1(func(_ context.Context, name string) (any, error) {
			return nil, d.Window.Hide(windowName(name))
		}),
		"windowClose": bridge.Func1(func(_ context.Context, name string) (any, error) {
			return nil, d.Window.Close(windowName(name))
		}),
		"openExternalWeb": bridge.Func1(func(_ context.Context, raw string) (any, error) {
			if err := checkExternalURL(raw); err != nil {
				return nil, err
			}
			return nil, d.Window.OpenURL(raw)
		}),
		"resourcePathResolve": bridge.Func1(func(ctx context.Context, p string) (string, error) {
			env, err := d.Env.Wait(ctx)
			if err != nil {
				return "", err
			}
			return env.ResourcePath(p)
		}),
		"extraPathResolve": bridge.Func1(func(ctx context.Context, p string) (string, error) {
			env, err := d.Env.Wait(ctx)
			if err != nil {
				return "", err
			}
			return env.ExtraPath(p)
		}),
		"appEnv": bridge.Func0(func(ctx context.Context) (appenv.Env, error) {
			return d.Env.Wait(ctx)
		}),
		"shell": bridge.Func2(func(ctx context.Context, command string, opts SpawnOptions) (terminal.Result, error) {
			ctx, cancel := context.WithTimeout(ctx, d.ShellTimeout)
			defer cancel()
			res, err := terminal.RunShell(ctx, opts.config(command))
			return res, classifyCommand(err)
		}),
		"spawnShell": bridge.Func2(func(_ context.Context, command string, opts SpawnOptions) (terminal.Session, error) {
			sess, err := d.Terminals.Spawn(opts.config(command))
			return sess, classifyCommand(err)
		}),
		"spawnShellWrite": bridge.Func2(func(_ context.Context, id, data string) (any, error) {
			return nil, classify(d.Terminals.Write(id, []byte(data)))
		}),
		"spawnShellKill": bridge.Func1(func(_ context.Context, id string) (any, error) {
			return nil, classify(d.Terminals.Kill(id))
		}),
		"availablePort": bridge.Func1(func(_ context.Context, start int) (int, error) {
			return availablePort(start)
		}),
		"fixExecutable": bridge.Func1(func(_ context.Context, path string) (any, error) {
			return nil, fixExecutable(path)
		}),
		"info": bridge.Func0(func(context.Context) (AppInfo, error) {
			return AppInfo{AppInfo: d.Config.Snapshot().App, Platform: PlatformName(), Arch: PlatformArch()}, nil
		}),
	}
}

func windowName(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return "main"
	}
	return name
}

func checkExternalURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return invalidArgument("url %q: %v", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalidArgument("url %q: only http and https links can be opened", raw)
	}
	return nil
}

// classifyCommand treats a command that could not start as bad input.
func classifyCommand(err error) error {
	if err == nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", bridge.ErrInvalidArgument, err)
}

// availablePort returns the first port at or above start that accepts a
// loopback listener.
func availablePort(start int) (int, error) {
	if start <= 0 {
		start = defaultPortStart
	}
	if start > maxPort {
		return 0, invalidArgument("start port %d out of range", start)
	}
	for port := start; port <= maxPort; port++ {
		ln, err := listenFn("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err != nil {
			continue
		}
		if closeErr := ln.Close(); closeErr != nil {
			return 0, fmt.Errorf("release candidate port %d: %w", port, closeErr)
		}
		return port, nil
	}
	return 0, fmt.Errorf("no free port at or above %d", start)
}

// fixExecutable adds execute permission for the owner, group and others
// that may read the file. Windows has no execute bit, so it only checks
// the file exists.
func fixExecutable(path string) error {
	if strings.TrimSpace(path) == "" || !filepath.IsAbs(path) {
		return invalidArgument("path %q must be absolute", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return invalidArgument("%v", err)
	}
	if info.IsDir() {
		return invalidArgument("%s is a directory", path)
	}
	if goosFn() == "windows" {
		return nil
	}
	mode := info.Mode().Perm()
	// Mirror each read bit into the matching execute bit.
	mode |= (mode & 0o444) >> 2
	if mode == info.Mode().Perm() {
		return nil
	}
	return os.Chmod(path, mode)
}
