// Package channel defines the push-channel abstraction the connection state
// machine drives. Transports (WebSocket, NATS) live in subpackages and only
// need to report lifecycle through a Handler; they never decide when to
// reconnect.
package channel

import (
	"encoding/json"
	"fmt"
)

// CloseReason says who closed a channel.
type CloseReason int

const (
	// CloseRemote means the server or the network ended the session.
	CloseRemote CloseReason = iota
	// CloseLocal means Close was called on our side.
	CloseLocal
)

// String returns the reason name.
func (r CloseReason) String() string {
	if r == CloseLocal {
		return "local"
	}
	return "remote"
}

// Handler receives lifecycle and inbound events for one channel.
// Transports call it from their own goroutines, never from inside Dial.
type Handler interface {
	OnOpen()
	OnClose(reason CloseReason, err error)
	OnError(err error)
	OnEvent(name string, data []byte)
}

// Channel is one live (or opening) push connection.
type Channel interface {
	// Emit sends a named command. payload is JSON-encoded; nil sends null.
	Emit(event string, payload any) error
	// Close tears the connection down. It is safe to call more than once.
	Close() error
}

// Dialer opens channels. Dial must return without waiting on the network;
// the outcome is reported later through h.OnOpen or h.OnError.
type Dialer interface {
	Dial(h Handler) (Channel, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(h Handler) (Channel, error)

// Dial calls f(h).
func (f DialerFunc) Dial(h Handler) (Channel, error) {
	return f(h)
}

// Envelope is the framing used by transports that multiplex named events
// over a single stream.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeEnvelope frames payload under the given event name.
func EncodeEnvelope(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// DecodeEnvelope parses a framed message.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing event name")
	}
	return env, nil
}
