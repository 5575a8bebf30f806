//go:build windows

package terminal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
)

// Start launches cfg.Command through cmd.exe over pipes. PTY requests are
// served in pipe mode.
func Start(cfg Config) (*Terminal, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	if cfg.PTY {
		slog.Debug("[terminal] pty requested, using pipe mode on windows")
	}
	return startPipeMode(newCommand(cfg))
}

// shellCommand passes command verbatim; cmd.exe does its own parsing.
func shellCommand(command string) *exec.Cmd {
	cmd := exec.Command(defaultShell())
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CmdLine: fmt.Sprintf(`/d /s /c "%s"`, command),
	}
	return cmd
}

func defaultShell() string {
	if comspec := os.Getenv("ComSpec"); comspec != "" {
		return comspec
	}
	return "cmd.exe"
}

func resizePtmx(_ *os.File, _, _ int) error {
	return errors.New("pty resize unsupported on windows")
}
