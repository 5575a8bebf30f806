package mapi

import (
	"context"
	"encoding/json"
	"strings"

	"aigcpanel/internal/bridge"
	"aigcpanel/internal/config"
)

// EventConfigChanged is emitted with the full config after every change.
const EventConfigChanged = "config:changed"

func configTree(d *Deps) bridge.Tree {
	return bridge.Tree{
		"get": bridge.Func2(func(_ context.Context, key string, fallback any) (any, error) {
			key = strings.TrimSpace(key)
			if key == "" {
				return nil, invalidArgument("config key is required")
			}
			if v, ok := d.Config.Snapshot().Settings[key]; ok && v != nil {
				return v, nil
			}
			return fallback, nil
		}),
		"set": bridge.Func2(func(_ context.Context, key string, value json.RawMessage) (any, error) {
			key = strings.TrimSpace(key)
			if key == "" {
				return nil, invalidArgument("config key is required")
			}
			var decoded any
			if len(value) > 0 {
				if err := json.Unmarshal(value, &decoded); err != nil {
					return nil, invalidArgument("config value for %q: %v", key, err)
				}
			}
			cfg, err := d.Config.Update(func(c *config.Config) error {
				if decoded == nil {
					delete(c.Settings, key)
					return nil
				}
				if c.Settings == nil {
					c.Settings = make(map[string]any)
				}
				c.Settings[key] = decoded
				return nil
			})
			if err != nil {
				return nil, err
			}
			d.Events.Emit(EventConfigChanged, cfg)
			return nil, nil
		}),
		"all": bridge.Func0(func(context.Context) (map[string]any, error) {
			settings := config.Clone(d.Config.Snapshot()).Settings
			if settings == nil {
				settings = map[string]any{}
			}
			return settings, nil
		}),
		"app": bridge.Func0(func(context.Context) (config.AppInfo, error) {
			return d.Config.Snapshot().App, nil
		}),
	}
}
