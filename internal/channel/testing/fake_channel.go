// Package testing provides test doubles for the channel package.
package testing

import (
	"encoding/json"
	"sync"

	"github.com/rileyhilliard/instsync/internal/channel"
)

// Emitted records one outbound command.
type Emitted struct {
	Event   string
	Payload any
}

// FakeChannel is a channel.Channel driven by the test. Lifecycle methods call
// the handler synchronously on the calling goroutine.
type FakeChannel struct {
	mu      sync.Mutex
	handler channel.Handler
	emitted []Emitted
	closed  bool

	// EmitErr, when set, is returned from every Emit.
	EmitErr error
}

// Emit records the command.
func (c *FakeChannel) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.EmitErr != nil {
		return c.EmitErr
	}
	c.emitted = append(c.emitted, Emitted{Event: event, Payload: payload})
	return nil
}

// Close marks the channel closed. Like a real transport closing on request,
// it reports nothing back to the handler.
func (c *FakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *FakeChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Emitted returns the commands sent so far.
func (c *FakeChannel) Emitted() []Emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Emitted, len(c.emitted))
	copy(out, c.emitted)
	return out
}

// EmittedEvents returns just the event names sent so far.
func (c *FakeChannel) EmittedEvents() []string {
	var names []string
	for _, e := range c.Emitted() {
		names = append(names, e.Event)
	}
	return names
}

// Handler returns the handler passed to Dial, for reporting lifecycle the
// helpers below don't cover.
func (c *FakeChannel) Handler() channel.Handler {
	return c.handler
}

// Open reports a successful connection.
func (c *FakeChannel) Open() {
	c.handler.OnOpen()
}

// Drop reports an unexpected remote close.
func (c *FakeChannel) Drop(err error) {
	c.handler.OnClose(channel.CloseRemote, err)
}

// Fail reports a transport error (connect failure or mid-session error).
func (c *FakeChannel) Fail(err error) {
	c.handler.OnError(err)
}

// Deliver sends an inbound event. payload is JSON-encoded unless it is
// already a []byte or string, which are delivered verbatim.
func (c *FakeChannel) Deliver(event string, payload any) {
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	default:
		var err error
		data, err = json.Marshal(p)
		if err != nil {
			panic(err)
		}
	}
	c.handler.OnEvent(event, data)
}

// FakeDialer hands out FakeChannels and records every dial.
type FakeDialer struct {
	mu       sync.Mutex
	channels []*FakeChannel

	// DialErr, when set, makes Dial fail synchronously.
	DialErr error
}

// NewFakeDialer creates a dialer that succeeds by default.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{}
}

// Dial records the handler and returns a new FakeChannel.
func (d *FakeDialer) Dial(h channel.Handler) (channel.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	ch := &FakeChannel{handler: h}
	d.channels = append(d.channels, ch)
	return ch, nil
}

// Dials returns how many channels have been handed out.
func (d *FakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.channels)
}

// Last returns the most recently dialed channel, or nil.
func (d *FakeDialer) Last() *FakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.channels) == 0 {
		return nil
	}
	return d.channels[len(d.channels)-1]
}

// Channel returns the i-th dialed channel.
func (d *FakeDialer) Channel(i int) *FakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channels[i]
}
