// Package bridge carries calls from an invoking process to the process that
// owns a tree of named handlers, and carries results and events back.
//
// The registration side publishes namespaces on a Registry and serves them on
// any Conn with a Server. The invocation side uses a Client, which returns a
// Pending handle per call and correlates results by call id.
package bridge

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates wire messages.
type Kind string

const (
	KindCall   Kind = "call"
	KindResult Kind = "result"
	KindEvent  Kind = "event"
)

// Message is the single JSON envelope exchanged on a Conn.
type Message struct {
	Kind    Kind              `json:"kind"`
	ID      string            `json:"id,omitempty"`
	Path    string            `json:"path,omitempty"`
	Args    []json.RawMessage `json:"args,omitempty"`
	Value   json.RawMessage   `json:"value,omitempty"`
	Error   *Error            `json:"error,omitempty"`
	Event   string            `json:"event,omitempty"`
	Payload json.RawMessage   `json:"payload,omitempty"`
}

// Call is one decoded invocation.
type Call struct {
	ID   string
	Path string
	Args Args
}

// Result answers the Call with the same ID. Exactly one of Value or Err is set.
type Result struct {
	ID    string
	Value json.RawMessage
	Err   *Error
}

// Message converts r to its wire form.
func (r Result) Message() Message {
	return Message{Kind: KindResult, ID: r.ID, Value: r.Value, Error: r.Err}
}

// Args holds the positional JSON arguments of a call.
type Args []json.RawMessage

// Len returns the number of arguments supplied.
func (a Args) Len() int { return len(a) }

// Decode unmarshals argument i into out. A missing or null argument leaves out
// untouched, so callers can pre-fill defaults.
func (a Args) Decode(i int, out any) error {
	if i < 0 || i >= len(a) || isNull(a[i]) {
		return nil
	}
	if err := json.Unmarshal(a[i], out); err != nil {
		return fmt.Errorf("%w: argument %d: %v", ErrInvalidArgument, i, err)
	}
	return nil
}

// Require is Decode that fails when argument i is absent or null.
func (a Args) Require(i int, out any) error {
	if i < 0 || i >= len(a) || isNull(a[i]) {
		return fmt.Errorf("%w: argument %d is required", ErrInvalidArgument, i)
	}
	return a.Decode(i, out)
}

// EncodeArgs marshals values into positional arguments.
func EncodeArgs(values ...any) (Args, error) {
	out := make(Args, len(values))
	for i, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: encode argument %d: %v", ErrInvalidArgument, i, err)
		}
		out[i] = raw
	}
	return out, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func decodeMessage(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: malformed message: %v", ErrInvalidArgument, err)
	}
	return msg, nil
}

func encodeMessage(msg Message) ([]byte, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("bridge: encode %s message: %w", msg.Kind, err)
	}
	return raw, nil
}
