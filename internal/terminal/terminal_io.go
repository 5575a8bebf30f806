package terminal

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
)

// PID returns the process id, or 0 before start.
func (t *Terminal) PID() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.cmd == nil || t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}

// IsPTY reports whether the command runs on a pseudo terminal.
func (t *Terminal) IsPTY() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ptmx != nil
}

// IsClosed reports whether Close has been called.
func (t *Terminal) IsClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

// Write sends input to the command.
func (t *Terminal) Write(data []byte) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return 0, ErrClosed
	}
	if t.ptmx != nil {
		return t.ptmx.Write(data)
	}
	if t.stdin == nil {
		return 0, errors.New("terminal stdin unavailable")
	}
	return t.stdin.Write(normalizePipeInput(data))
}

// Resize updates the PTY window size. Pipe mode ignores it.
func (t *Terminal) Resize(cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return errors.New("invalid size")
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return ErrClosed
	}
	if t.ptmx != nil {
		return resizePtmx(t.ptmx, cols, rows)
	}
	return nil
}

// ReadLoop delivers output to onData until the command's output ends.
// stream is "stdout" or "stderr"; a PTY merges both into "stdout".
// onData must consume data before returning; the buffer is reused.
func (t *Terminal) ReadLoop(onData func(stream string, data []byte)) {
	if onData == nil {
		return
	}
	t.mu.RLock()
	file := t.ptmx
	stdout := t.stdout
	stderr := t.stderr
	t.mu.RUnlock()

	if file != nil {
		readSource(file, func(b []byte) { onData("stdout", b) })
		return
	}

	var wg sync.WaitGroup
	if stdout != nil {
		wg.Go(func() { readSource(stdout, func(b []byte) { onData("stdout", b) }) })
	}
	if stderr != nil {
		wg.Go(func() { readSource(stderr, func(b []byte) { onData("stderr", b) }) })
	}
	wg.Wait()
}

func readSource(reader io.Reader, onData func([]byte)) {
	buf := make([]byte, 32*1024)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			onData(buf[:n])
		}
		if err != nil {
			// A PTY master reports EIO once the child side closes.
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				slog.Debug("[terminal] output ended", "error", err)
			}
			return
		}
	}
}

// Wait blocks until the command exits and returns its exit code. A command
// killed by Close reports -1. Safe to call more than once.
func (t *Terminal) Wait() (int, error) {
	t.waitOnce.Do(func() {
		err := t.cmd.Wait()
		var exitErr *exec.ExitError
		switch {
		case err == nil:
			t.exitCode = 0
		case errors.As(err, &exitErr):
			t.exitCode = exitErr.ExitCode()
		default:
			t.exitCode = -1
			t.waitErr = err
		}
	})
	return t.exitCode, t.waitErr
}

// normalizePipeInput turns lone CR into CRLF for shells reading a pipe.
func normalizePipeInput(data []byte) []byte {
	hasCR := false
	for _, b := range data {
		if b == '\r' {
			hasCR = true
			break
		}
	}
	if !hasCR {
		return data
	}

	out := make([]byte, 0, len(data)+8)
	for i, b := range data {
		out = append(out, b)
		if b == '\r' && (i+1 >= len(data) || data[i+1] != '\n') {
			out = append(out, '\n')
		}
	}
	return out
}

// Close kills the command and releases its streams. Idempotent.
func (t *Terminal) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return t.closeErr
	}
	t.closed = true

	if t.cmd != nil && t.cmd.Process != nil {
		if err := t.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			slog.Debug("[terminal] kill during close failed", "error", err)
		}
	}
	var errs []error
	for _, c := range []io.Closer{t.stdin, t.stdout, t.stderr} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if t.ptmx != nil {
		if err := t.ptmx.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	t.closeErr = errors.Join(errs...)
	return t.closeErr
}
