package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"aigcpanel/internal/bridge"
)

// Invoke dispatches a bridge call made by the window's frontend through the
// Wails binding. Failures carry the error code as a prefix
// ("invalid_argument: ...") so the frontend can branch on it.
func (a *App) Invoke(path string, args []json.RawMessage) (json.RawMessage, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%s: path is required", bridge.CodeInvalidArgument)
	}
	ctx := a.runtimeContext()
	if ctx == nil {
		ctx = context.Background()
	}
	res := a.registry.Dispatch(ctx, bridge.Call{ID: uuid.NewString(), Path: path, Args: bridge.Args(args)})
	if res.Err != nil {
		return nil, fmt.Errorf("%s: %s", res.Err.Code, res.Err.Message)
	}
	return res.Value, nil
}

// GetBridgeURL returns the websocket URL serving the bridge, or "" when the
// websocket server is unavailable.
func (a *App) GetBridgeURL() string {
	if a.wsHub == nil {
		return ""
	}
	return a.wsHub.URL()
}

// GetBridgeEndpoint returns the pipe or socket path other processes connect
// to, or "" when the IPC server is unavailable.
func (a *App) GetBridgeEndpoint() string {
	if a.ipcServer == nil {
		return ""
	}
	return a.ipcServer.Endpoint()
}

// GetNamespaces lists the published bridge namespaces.
func (a *App) GetNamespaces() []string {
	return a.registry.Namespaces()
}
