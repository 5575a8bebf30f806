package mapi

import (
	"context"
	"encoding/json"

	"aigcpanel/internal/appenv"
	"aigcpanel/internal/bridge"
	"aigcpanel/internal/config"
	"aigcpanel/internal/sessionlog"
	"aigcpanel/internal/terminal"
)

// Client calls the namespaces from outside the registering process.
type Client struct {
	bc *bridge.Client

	App     AppClient
	Log     LogClient
	Config  ConfigClient
	Storage StorageClient
}

// NewClient wraps bc.
func NewClient(bc *bridge.Client) *Client {
	return &Client{
		bc:      bc,
		App:     AppClient{bc},
		Log:     LogClient{bc},
		Config:  ConfigClient{bc},
		Storage: StorageClient{bc},
	}
}

// Bridge returns the underlying bridge client for paths without a wrapper.
func (c *Client) Bridge() *bridge.Client { return c.bc }

// Namespaces lists the namespaces published by the other side.
func (c *Client) Namespaces(ctx context.Context) ([]string, error) {
	var out []string
	err := c.bc.Invoke(ctx, &out, "misc.namespaces")
	return out, err
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.bc.Close() }

// AppClient wraps the app namespace.
type AppClient struct{ bc *bridge.Client }

// Quit asks the application to exit.
func (a AppClient) Quit(ctx context.Context) error {
	return a.bc.Invoke(ctx, nil, "app.quit")
}

// Activate shows and focuses the main window.
func (a AppClient) Activate(ctx context.Context) error {
	return a.bc.Invoke(ctx, nil, "app.activate")
}

// PlatformName returns the host platform: "win", "osx" or "linux".
func (a AppClient) PlatformName(ctx context.Context) (string, error) {
	var out string
	err := a.bc.Invoke(ctx, &out, "app.platformName")
	return out, err
}

// Env returns the resolved application directories.
func (a AppClient) Env(ctx context.Context) (appenv.Env, error) {
	var out appenv.Env
	err := a.bc.Invoke(ctx, &out, "app.appEnv")
	return out, err
}

// Info reports the running application's name, version and platform.
func (a AppClient) Info(ctx context.Context) (AppInfo, error) {
	var out AppInfo
	err := a.bc.Invoke(ctx, &out, "app.info")
	return out, err
}

// Shell runs command to completion on the other side and returns its output.
func (a AppClient) Shell(ctx context.Context, command string, opts SpawnOptions) (terminal.Result, error) {
	var out terminal.Result
	err := a.bc.Invoke(ctx, &out, "app.shell", command, opts)
	return out, err
}

// AvailablePort returns the first free TCP port at or above start.
func (a AppClient) AvailablePort(ctx context.Context, start int) (int, error) {
	var out int
	err := a.bc.Invoke(ctx, &out, "app.availablePort", start)
	return out, err
}

// LogClient wraps the log namespace.
type LogClient struct{ bc *bridge.Client }

// Info appends an info entry to the session log.
func (l LogClient) Info(ctx context.Context, label string, data any) error {
	return l.bc.Invoke(ctx, nil, "log.info", label, data)
}

// Error appends an error entry to the session log.
func (l LogClient) Error(ctx context.Context, label string, data any) error {
	return l.bc.Invoke(ctx, nil, "log.error", label, data)
}

// Recent returns up to limit of the newest session log entries.
func (l LogClient) Recent(ctx context.Context, limit int) ([]sessionlog.Entry, error) {
	var out []sessionlog.Entry
	err := l.bc.Invoke(ctx, &out, "log.recent", limit)
	return out, err
}

// ConfigClient wraps the config namespace.
type ConfigClient struct{ bc *bridge.Client }

// Get decodes the setting at key into out, which is left untouched when
// the setting is absent.
func (c ConfigClient) Get(ctx context.Context, key string, out any) error {
	return c.bc.Invoke(ctx, out, "config.get", key, nil)
}

// Set stores value at key. A nil value deletes the key.
func (c ConfigClient) Set(ctx context.Context, key string, value any) error {
	return c.bc.Invoke(ctx, nil, "config.set", key, value)
}

// All returns every user setting keyed by its dotted path.
func (c ConfigClient) All(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.bc.Invoke(ctx, &out, "config.all")
	return out, err
}

// App returns the static application metadata from the config file.
func (c ConfigClient) App(ctx context.Context) (config.AppInfo, error) {
	var out config.AppInfo
	err := c.bc.Invoke(ctx, &out, "config.app")
	return out, err
}

// StorageClient wraps the storage namespace.
type StorageClient struct{ bc *bridge.Client }

// Get returns the raw stored value, or nil when key is absent.
func (s StorageClient) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var out json.RawMessage
	err := s.bc.Invoke(ctx, &out, "storage.get", key, nil)
	if string(out) == "null" {
		out = nil
	}
	return out, err
}

// Set stores value under key.
func (s StorageClient) Set(ctx context.Context, key string, value any) error {
	return s.bc.Invoke(ctx, nil, "storage.set", key, value)
}

// Remove deletes key. Missing keys are not an error.
func (s StorageClient) Remove(ctx context.Context, key string) error {
	return s.bc.Invoke(ctx, nil, "storage.remove", key)
}

// Keys lists the stored keys.
func (s StorageClient) Keys(ctx context.Context) ([]string, error) {
	var out []string
	err := s.bc.Invoke(ctx, &out, "storage.keys")
	return out, err
}
