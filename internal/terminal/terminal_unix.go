//go:build !windows

package terminal

import (
	"errors"
	"log/slog"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// Start launches cfg.Command. With cfg.PTY the command gets a pseudo
// terminal; pipe mode is used when none is available.
func Start(cfg Config) (*Terminal, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	cmd := newCommand(cfg)
	if !cfg.PTY {
		return startPipeMode(cmd)
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(cfg.Columns),
		Rows: uint16(cfg.Rows),
	})
	if err == nil {
		return &Terminal{cmd: cmd, ptmx: ptmx}, nil
	}
	if !errors.Is(err, pty.ErrUnsupported) {
		return nil, err
	}
	slog.Warn("[terminal] pty unsupported, falling back to pipes", "error", err)
	return startPipeMode(newCommand(cfg))
}

func shellCommand(command string) *exec.Cmd {
	return exec.Command(defaultShell(), "-c", command)
}

func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

func resizePtmx(ptmx *os.File, cols, rows int) error {
	return pty.Setsize(ptmx, &pty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	})
}
