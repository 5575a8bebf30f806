package terminal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"aigcpanel/internal/procutil"
)

// maxCapturedOutput bounds each captured stream of Run and RunShell.
const maxCapturedOutput = 4 << 20

// Result is the outcome of a command run to completion.
type Result struct {
	Code      int    `json:"code"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	Truncated bool   `json:"truncated,omitempty"`
}

// RunShell runs cfg.Command through the platform shell and waits for it.
// A non-zero exit is reported in Result.Code, not as an error. ctx ending
// kills the command.
func RunShell(ctx context.Context, cfg Config) (Result, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return Result{}, err
	}
	return run(ctx, newCommand(cfg))
}

// Run executes name with args directly, without a shell.
func Run(ctx context.Context, name string, args ...string) (Result, error) {
	if name == "" {
		return Result{}, errors.New("executable is required")
	}
	return run(ctx, procutil.Command(name, args...))
}

func run(ctx context.Context, cmd *exec.Cmd) (Result, error) {
	stdout := &cappedBuffer{limit: maxCapturedOutput}
	stderr := &cappedBuffer{limit: maxCapturedOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	stop := context.AfterFunc(ctx, func() {
		// The process may already have exited.
		_ = cmd.Process.Kill()
	})
	waitErr := cmd.Wait()
	stop()

	res := Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.truncated || stderr.truncated,
	}
	if ctx.Err() != nil {
		res.Code = -1
		return res, ctx.Err()
	}
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
	case errors.As(waitErr, &exitErr):
		res.Code = exitErr.ExitCode()
	default:
		return res, waitErr
	}
	return res, nil
}

// cappedBuffer keeps the first limit bytes written and discards the rest.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
