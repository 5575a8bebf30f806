package bridge

import (
	"io"
	"sync"
)

// Conn is a message-oriented, bidirectional connection. ReadMessage is called
// from a single goroutine; WriteMessage must be safe for concurrent use.
// ReadMessage returns io.EOF (or an error wrapping it) once the peer is gone.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// pipeBuffer is the number of in-flight frames a Pipe direction holds before
// WriteMessage blocks.
const pipeBuffer = 64

type pipeConn struct {
	recv <-chan []byte
	send chan<- []byte
	// done is shared by both ends.
	done chan struct{}
	once *sync.Once
}

// Pipe returns two connected in-memory Conns. Closing either end closes both.
func Pipe() (Conn, Conn) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	done := make(chan struct{})
	once := &sync.Once{}
	a := &pipeConn{recv: ba, send: ab, done: done, once: once}
	b := &pipeConn{recv: ab, send: ba, done: done, once: once}
	return a, b
}

func (p *pipeConn) ReadMessage() ([]byte, error) {
	select {
	case msg := <-p.recv:
		return msg, nil
	default:
	}
	select {
	case msg := <-p.recv:
		return msg, nil
	case <-p.done:
		// Drain frames written before the close.
		select {
		case msg := <-p.recv:
			return msg, nil
		default:
			return nil, io.EOF
		}
	}
}

func (p *pipeConn) WriteMessage(data []byte) error {
	frame := make([]byte, len(data))
	copy(frame, data)
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.send <- frame:
		return nil
	case <-p.done:
		return ErrClosed
	}
}

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
