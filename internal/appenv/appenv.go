// Package appenv publishes the application's resolved directories once at
// startup and lets handlers wait for them.
package appenv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"aigcpanel/internal/bridge"
)

// Env is the environment produced by startup initialization.
type Env struct {
	AppRoot  string `json:"appRoot"`
	AppData  string `json:"appData"`
	UserData string `json:"userData"`
	IsInit   bool   `json:"isInit"`
}

// Readiness holds Env once it has been produced. The zero value is not
// usable; call NewReadiness.
type Readiness struct {
	once  sync.Once
	ready chan struct{}
	env   Env
}

// NewReadiness creates an unset Readiness.
func NewReadiness() *Readiness {
	return &Readiness{ready: make(chan struct{})}
}

// Set publishes env. Only the first call has an effect; later calls are
// logged and ignored so the cached environment never changes under readers.
func (r *Readiness) Set(env Env) {
	set := false
	r.once.Do(func() {
		r.env = env
		close(r.ready)
		set = true
	})
	if !set {
		slog.Warn("[appenv] environment already set, ignoring update")
	}
}

// Wait blocks until Set has been called or ctx ends. On ctx end the error
// wraps both bridge.ErrNotReady and the context error.
func (r *Readiness) Wait(ctx context.Context) (Env, error) {
	select {
	case <-r.ready:
		return r.env, nil
	case <-ctx.Done():
		return Env{}, fmt.Errorf("%w: environment: %w", bridge.ErrNotReady, ctx.Err())
	}
}

// Current returns the environment without blocking.
func (r *Readiness) Current() (Env, bool) {
	select {
	case <-r.ready:
		return r.env, true
	default:
		return Env{}, false
	}
}

// Done is closed once the environment is set.
func (r *Readiness) Done() <-chan struct{} { return r.ready }

var (
	userConfigDirFn = os.UserConfigDir
	executableFn    = os.Executable
	mkdirAllFn      = os.MkdirAll
)

// Resolve derives the environment for appName. AppRoot comes from APP_ROOT
// when set, otherwise from the executable's directory. UserData is created if
// missing; IsInit reports whether it already existed.
func Resolve(appName string) (Env, error) {
	appName = strings.TrimSpace(appName)
	if appName == "" {
		return Env{}, errors.New("appenv: app name required")
	}

	appData, err := userConfigDirFn()
	if err != nil {
		return Env{}, fmt.Errorf("appenv: resolve app data dir: %w", err)
	}

	appRoot := strings.TrimSpace(os.Getenv("APP_ROOT"))
	if appRoot == "" {
		exe, exeErr := executableFn()
		if exeErr != nil {
			return Env{}, fmt.Errorf("appenv: resolve executable: %w", exeErr)
		}
		appRoot = filepath.Dir(exe)
	}
	appRoot, err = filepath.Abs(appRoot)
	if err != nil {
		return Env{}, fmt.Errorf("appenv: resolve app root: %w", err)
	}

	userData := filepath.Join(appData, appName)
	_, statErr := os.Stat(userData)
	existed := statErr == nil
	if err := mkdirAllFn(userData, 0o700); err != nil {
		return Env{}, fmt.Errorf("appenv: create user data dir: %w", err)
	}

	env := Env{
		AppRoot:  appRoot,
		AppData:  appData,
		UserData: userData,
		IsInit:   existed,
	}
	slog.Debug("[appenv] environment resolved",
		"appRoot", env.AppRoot, "appData", env.AppData, "userData", env.UserData, "isInit", env.IsInit)
	return env, nil
}

// ResourcePath joins rel under <AppRoot>/resources, rejecting escapes.
func (e Env) ResourcePath(rel string) (string, error) {
	return joinWithin(filepath.Join(e.AppRoot, "resources"), rel)
}

// ExtraPath joins rel under <AppRoot>/resources/extra, rejecting escapes.
func (e Env) ExtraPath(rel string) (string, error) {
	return joinWithin(filepath.Join(e.AppRoot, "resources", "extra"), rel)
}

// UserDataPath joins rel under UserData, rejecting escapes.
func (e Env) UserDataPath(rel string) (string, error) {
	return joinWithin(e.UserData, rel)
}

func joinWithin(base, rel string) (string, error) {
	if strings.ContainsRune(rel, 0) {
		return "", fmt.Errorf("%w: path contains NUL", bridge.ErrInvalidArgument)
	}
	if filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", fmt.Errorf("%w: path %q must be relative", bridge.ErrInvalidArgument, rel)
	}
	joined := filepath.Join(base, rel)
	relToBase, err := filepath.Rel(base, joined)
	if err != nil || relToBase == ".." || strings.HasPrefix(relToBase, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path %q escapes %s", bridge.ErrInvalidArgument, rel, base)
	}
	return joined, nil
}
