// Package natschan is a NATS transport for the push channel. The backend
// publishes events on <prefix>.events.<name> and listens for commands on
// <prefix>.commands.<name>.
package natschan

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rileyhilliard/instsync/internal/channel"
	"github.com/rileyhilliard/instsync/internal/logger"
)

// DefaultPrefix is the subject root used when none is configured.
const DefaultPrefix = "instances"

// Dialer opens NATS-backed channels.
type Dialer struct {
	url     string
	prefix  string
	timeout time.Duration
	log     logger.Logger
}

// New creates a Dialer. An empty prefix falls back to DefaultPrefix.
func New(url, prefix string, timeout time.Duration) *Dialer {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dialer{url: url, prefix: prefix, timeout: timeout, log: logger.NewEnvLogger("[nats]")}
}

// EventSubject is the wildcard subscription for inbound events.
func EventSubject(prefix string) string {
	return prefix + ".events.>"
}

// CommandSubject is where a named command is published.
func CommandSubject(prefix, command string) string {
	return prefix + ".commands." + command
}

// EventName extracts the event name from an inbound subject.
func EventName(prefix, subject string) (string, bool) {
	root := prefix + ".events."
	if !strings.HasPrefix(subject, root) {
		return "", false
	}
	name := strings.TrimPrefix(subject, root)
	if name == "" {
		return "", false
	}
	return name, true
}

// Dial connects in the background. NATS's own reconnect is turned off so the
// caller's state machine decides when to retry.
func (d *Dialer) Dial(h channel.Handler) (channel.Channel, error) {
	c := &natsChannel{handler: h, prefix: d.prefix, log: d.log}
	go c.run(d)
	return c, nil
}

type natsChannel struct {
	handler channel.Handler
	prefix  string
	log     logger.Logger

	mu     sync.Mutex
	conn   *nats.Conn
	closed bool
	ended  sync.Once
}

func (c *natsChannel) run(d *Dialer) {
	conn, err := nats.Connect(d.url,
		nats.Name("instsync"),
		nats.NoReconnect(),
		nats.Timeout(d.timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.remoteEnd(err)
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.remoteEnd(nil)
		}),
	)
	if err != nil {
		if !c.isClosed() {
			c.handler.OnError(fmt.Errorf("connect %s: %w", d.url, err))
		}
		return
	}

	_, err = conn.Subscribe(EventSubject(c.prefix), func(msg *nats.Msg) {
		name, ok := EventName(c.prefix, msg.Subject)
		if !ok {
			c.log.Warn("ignoring message on %s", msg.Subject)
			return
		}
		c.handler.OnEvent(name, msg.Data)
	})
	if err != nil {
		conn.Close()
		if !c.isClosed() {
			c.handler.OnError(fmt.Errorf("subscribe %s: %w", EventSubject(c.prefix), err))
		}
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	c.log.Debug("connected to %s, subscribed to %s", d.url, EventSubject(c.prefix))
	c.handler.OnOpen()
}

// remoteEnd reports the end of the session once, unless we closed it ourselves.
func (c *natsChannel) remoteEnd(err error) {
	if c.isClosed() {
		return
	}
	c.mu.Lock()
	opened := c.conn != nil
	c.mu.Unlock()
	if !opened {
		return
	}
	c.ended.Do(func() {
		c.handler.OnClose(channel.CloseRemote, err)
	})
}

func (c *natsChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Emit publishes the JSON-encoded payload on the command subject.
func (c *natsChannel) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("emit %s: channel closed", event)
	}
	if c.conn == nil {
		return fmt.Errorf("emit %s: channel not open", event)
	}
	if err := c.conn.Publish(CommandSubject(c.prefix, event), data); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// Close drains nothing and closes the connection. The handler is not called.
func (c *natsChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	return nil
}
