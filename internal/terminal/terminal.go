// Package terminal runs shell commands for app.shell and app.spawnShell,
// either attached to a PTY (creack/pty, unix only) or over plain pipes.
package terminal

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"aigcpanel/internal/procutil"
)

const (
	defaultCols = 120
	defaultRows = 40
)

// ErrClosed is returned by Write and Resize after Close.
var ErrClosed = errors.New("terminal closed")

// Config describes one shell command.
type Config struct {
	// Command is a shell command line, run through the platform shell.
	Command string
	Dir     string
	// Env is appended to the current environment as KEY=VALUE pairs.
	Env []string
	// PTY requests a pseudo terminal. Ignored where none is available.
	PTY     bool
	Columns int
	Rows    int
}

// Terminal wraps one running command.
type Terminal struct {
	mu       sync.RWMutex
	cmd      *exec.Cmd
	ptmx     *os.File       // PTY master, nil in pipe mode
	stdin    io.WriteCloser // pipe mode
	stdout   io.ReadCloser  // pipe mode
	stderr   io.ReadCloser  // pipe mode
	closed   bool
	closeErr error

	waitOnce sync.Once
	exitCode int
	waitErr  error
}

func (cfg Config) validate() (Config, error) {
	cfg.Command = strings.TrimSpace(cfg.Command)
	if cfg.Command == "" {
		return cfg, errors.New("command is required")
	}
	if cfg.Columns <= 0 {
		cfg.Columns = defaultCols
	}
	if cfg.Rows <= 0 {
		cfg.Rows = defaultRows
	}
	return cfg, nil
}

func newCommand(cfg Config) *exec.Cmd {
	cmd := shellCommand(cfg.Command)
	cmd.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	return procutil.Quiet(cmd)
}

// startPipeMode starts cmd with stdin/stdout/stderr pipes.
func startPipeMode(cmd *exec.Cmd) (*Terminal, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, err
	}
	return &Terminal{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}, nil
}
