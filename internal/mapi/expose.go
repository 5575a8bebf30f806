package mapi

import (
	"errors"
	"fmt"

	"aigcpanel/internal/bridge"
	"aigcpanel/internal/store"
	"aigcpanel/internal/terminal"
)

// Namespaces lists every namespace Expose publishes, in publication order.
var Namespaces = []string{
	"app", "log", "config", "storage", "db", "file", "event", "ui",
	"updater", "statistics", "page", "lang", "user", "misc", "ffmpeg",
}

// Expose publishes every namespace on reg. It does not mark reg ready;
// the caller does that once the environment is initialized.
func Expose(reg *bridge.Registry, deps Deps) error {
	if reg == nil {
		return errors.New("mapi: registry is required")
	}
	if err := deps.validate(); err != nil {
		return err
	}
	trees := map[string]bridge.Tree{
		"app":        appTree(&deps),
		"log":        logTree(&deps),
		"config":     configTree(&deps),
		"storage":    storageTree(&deps),
		"db":         dbTree(&deps),
		"file":       fileTree(&deps),
		"event":      eventTree(&deps),
		"ui":         uiTree(&deps),
		"updater":    updaterTree(&deps),
		"statistics": statisticsTree(&deps),
		"page":       pageTree(&deps),
		"lang":       langTree(&deps),
		"user":       userTree(&deps),
		"misc":       miscTree(reg),
		"ffmpeg":     ffmpegTree(&deps),
	}
	for _, name := range Namespaces {
		if err := reg.Expose(name, trees[name]); err != nil {
			return fmt.Errorf("mapi: expose %s: %w", name, err)
		}
	}
	return nil
}

// classify maps package sentinels onto bridge error codes.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrInvalidArgument),
		errors.Is(err, terminal.ErrUnknownSession),
		errors.Is(err, terminal.ErrClosed):
		return fmt.Errorf("%w: %v", bridge.ErrInvalidArgument, err)
	default:
		return err
	}
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", bridge.ErrInvalidArgument, fmt.Sprintf(format, args...))
}
