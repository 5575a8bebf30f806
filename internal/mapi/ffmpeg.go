package mapi

import (
	"context"
	"fmt"
	"strings"

	"aigcpanel/internal/bridge"
	"aigcpanel/internal/terminal"
)

// FFmpegVersion is returned by ffmpeg.version.
type FFmpegVersion struct {
	Path    string `json:"path"`
	Version string `json:"version"`
}

// ffmpegPath returns the configured binary, falling back to a PATH lookup.
func ffmpegPath(d *Deps) (string, error) {
	if p := d.Config.Snapshot().FFmpegPath; p != "" {
		return p, nil
	}
	p, err := d.LookPath("ffmpeg")
	if err != nil {
		return "", invalidArgument("ffmpeg not found: %v", err)
	}
	return p, nil
}

func ffmpegTree(d *Deps) bridge.Tree {
	run := func(ctx context.Context, args ...string) (string, terminal.Result, error) {
		path, err := ffmpegPath(d)
		if err != nil {
			return "", terminal.Result{}, err
		}
		ctx, cancel := context.WithTimeout(ctx, d.ShellTimeout)
		defer cancel()
		res, err := terminal.Run(ctx, path, args...)
		return path, res, classifyCommand(err)
	}
	return bridge.Tree{
		"version": bridge.Func0(func(ctx context.Context) (FFmpegVersion, error) {
			path, res, err := run(ctx, "-hide_banner", "-version")
			if err != nil {
				return FFmpegVersion{}, err
			}
			if res.Code != 0 {
				return FFmpegVersion{}, fmt.Errorf("ffmpeg -version exited with %d: %s", res.Code, strings.TrimSpace(res.Stderr))
			}
			return FFmpegVersion{Path: path, Version: parseFFmpegVersion(res.Stdout)}, nil
		}),
		"run": bridge.Func1(func(ctx context.Context, args []string) (terminal.Result, error) {
			if len(args) == 0 {
				return terminal.Result{}, invalidArgument("ffmpeg arguments are required")
			}
			_, res, err := run(ctx, args...)
			return res, err
		}),
	}
}

// parseFFmpegVersion extracts "6.1.1" from "ffmpeg version 6.1.1 Copyright ...".
func parseFFmpegVersion(output string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(output), "\n")
	fields := strings.Fields(first)
	for i := 0; i+1 < len(fields); i++ {
		if fields[i] == "version" {
			return fields[i+1]
		}
	}
	return strings.TrimSpace(first)
}
