package mapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"aigcpanel/internal/bridge"
	"aigcpanel/internal/sessionlog"
)

const (
	logDirName        = "logs"
	defaultRecentLogs = 100
)

// rendererLog forwards one renderer log call to slog. data is kept as raw
// JSON so arbitrary values survive the trip.
func rendererLog(level slog.Level) bridge.Handler {
	return bridge.Func2(func(ctx context.Context, label string, data json.RawMessage) (any, error) {
		label = strings.TrimSpace(label)
		if label == "" {
			label = "-"
		}
		attrs := []any{"label", label}
		if len(data) > 0 && string(data) != "null" {
			attrs = append(attrs, "data", string(data))
		}
		slog.Log(ctx, level, "[renderer] "+label, attrs...)
		return nil, nil
	})
}

func logTree(d *Deps) bridge.Tree {
	return bridge.Tree{
		"info":  rendererLog(slog.LevelInfo),
		"warn":  rendererLog(slog.LevelWarn),
		"error": rendererLog(slog.LevelError),
		"debug": rendererLog(slog.LevelDebug),
		"root": bridge.Func0(func(ctx context.Context) (string, error) {
			env, err := d.Env.Wait(ctx)
			if err != nil {
				return "", err
			}
			return env.UserDataPath(logDirName)
		}),
		"recent": bridge.Func1(func(_ context.Context, limit int) ([]sessionlog.Entry, error) {
			if limit <= 0 {
				limit = defaultRecentLogs
			}
			return d.Logs.Recent(limit), nil
		}),
	}
}
