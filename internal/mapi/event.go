package mapi

import (
	"context"
	"encoding/json"
	"strings"

	"aigcpanel/internal/bridge"
	"aigcpanel/internal/config"
)

// Events emitted by the ui namespace.
const (
	EventToast = "ui.toast"
	EventTheme = "ui.theme"
)

// Toast is the payload of EventToast.
type Toast struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

var toastTypes = map[string]bool{"info": true, "success": true, "warning": true, "error": true}

var themes = map[string]bool{"light": true, "dark": true, "auto": true}

func eventName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalidArgument("event name is required")
	}
	return name, nil
}

func eventTree(d *Deps) bridge.Tree {
	return bridge.Tree{
		"send": bridge.Func2(func(_ context.Context, name string, payload json.RawMessage) (any, error) {
			name, err := eventName(name)
			if err != nil {
				return nil, err
			}
			d.Events.Emit(name, payload)
			return nil, nil
		}),
		"broadcast": bridge.Func2(func(_ context.Context, name string, payload json.RawMessage) (any, error) {
			name, err := eventName(name)
			if err != nil {
				return nil, err
			}
			d.Events.Broadcast(name, payload)
			return nil, nil
		}),
	}
}

func uiTree(d *Deps) bridge.Tree {
	return bridge.Tree{
		"toast": bridge.Func2(func(_ context.Context, message, kind string) (any, error) {
			if strings.TrimSpace(message) == "" {
				return nil, invalidArgument("toast message is required")
			}
			if kind == "" {
				kind = "info"
			}
			if !toastTypes[kind] {
				return nil, invalidArgument("toast type %q", kind)
			}
			d.Events.Emit(EventToast, Toast{Message: message, Type: kind})
			return nil, nil
		}),
		"theme": bridge.Func0(func(context.Context) (string, error) {
			return d.Config.Snapshot().Theme, nil
		}),
		"setTheme": bridge.Func1(func(_ context.Context, theme string) (any, error) {
			if !themes[theme] {
				return nil, invalidArgument("theme %q must be light, dark or auto", theme)
			}
			if _, err := d.Config.Update(func(c *config.Config) error {
				c.Theme = theme
				return nil
			}); err != nil {
				return nil, err
			}
			d.Events.Broadcast(EventTheme, theme)
			return nil, nil
		}),
	}
}
