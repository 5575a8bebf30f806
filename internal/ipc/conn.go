package ipc

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"aigcpanel/internal/bridge"
)

const (
	// MaxFrameBytes bounds one newline-delimited frame in either direction.
	MaxFrameBytes     = 4 << 20
	frameWriteTimeout = 15 * time.Second
)

// ErrFrameTooLarge is returned by WriteMessage for data over MaxFrameBytes.
// Nothing is written and the connection stays usable.
var ErrFrameTooLarge = bridge.ErrFrameTooLarge

// StreamConn frames bridge messages as newline-delimited JSON over a stream.
// JSON encoding escapes newlines, so a frame never contains the delimiter.
type StreamConn struct {
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex
}

// NewStreamConn wraps conn.
func NewStreamConn(conn net.Conn) *StreamConn {
	return &StreamConn{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, MaxFrameBytes+1),
	}
}

// ReadMessage returns the next frame without its delimiter.
func (c *StreamConn) ReadMessage() ([]byte, error) {
	raw, err := readDelimitedFrame(c.reader, MaxFrameBytes)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return bytes.TrimRight(out, "\r\n"), nil
}

// WriteMessage writes data followed by the delimiter. Safe for concurrent use.
func (c *StreamConn) WriteMessage(data []byte) error {
	if len(data) > MaxFrameBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrFrameTooLarge, len(data), MaxFrameBytes)
	}
	if bytes.IndexByte(data, '\n') >= 0 {
		return errors.New("frame contains a newline")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(frameWriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	frame := make([]byte, 0, len(data)+1)
	frame = append(frame, data...)
	frame = append(frame, '\n')
	if _, err := c.conn.Write(frame); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying connection.
func (c *StreamConn) Close() error {
	return c.conn.Close()
}

// readDelimitedFrame reads one frame. A final frame without delimiter is
// returned as-is; an empty stream returns io.EOF.
func readDelimitedFrame(reader *bufio.Reader, maxBytes int) ([]byte, error) {
	raw, err := reader.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("frame exceeds %d bytes", maxBytes)
	}
	if errors.Is(err, io.EOF) {
		if len(raw) == 0 {
			return nil, io.EOF
		}
		return raw, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}
