// Package wschan is a WebSocket transport for the push channel. Each frame is a
// JSON text message of the form {"event": name, "data": payload}.
package wschan

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rileyhilliard/instsync/internal/channel"
	"github.com/rileyhilliard/instsync/internal/logger"
)

const (
	defaultDialTimeout = 30 * time.Second
	writeTimeout       = 10 * time.Second
)

// Option configures a Dialer.
type Option func(*Dialer)

// WithDialTimeout bounds how long the handshake may take.
func WithDialTimeout(d time.Duration) Option {
	return func(dl *Dialer) {
		if d > 0 {
			dl.timeout = d
		}
	}
}

// WithHeader adds request headers to the handshake.
func WithHeader(h http.Header) Option {
	return func(dl *Dialer) { dl.header = h }
}

// WithLogger sets the logger used for dropped frames.
func WithLogger(l logger.Logger) Option {
	return func(dl *Dialer) { dl.log = l }
}

// Dialer opens WebSocket channels to a fixed URL.
type Dialer struct {
	url     string
	timeout time.Duration
	header  http.Header
	log     logger.Logger
	ws      *websocket.Dialer
}

// New creates a Dialer for a ws:// or wss:// URL.
func New(rawURL string, opts ...Option) (*Dialer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse push url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("push url %q: scheme must be ws or wss", rawURL)
	}
	d := &Dialer{
		url:     rawURL,
		timeout: defaultDialTimeout,
		log:     logger.NewEnvLogger("[ws]"),
		ws:      &websocket.Dialer{Proxy: http.ProxyFromEnvironment},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.ws.HandshakeTimeout = d.timeout
	return d, nil
}

// Dial starts the handshake in the background and returns immediately.
func (d *Dialer) Dial(h channel.Handler) (channel.Channel, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &wsChannel{handler: h, cancel: cancel, log: d.log}
	go c.run(ctx, d)
	return c, nil
}

type wsChannel struct {
	handler channel.Handler
	cancel  context.CancelFunc
	log     logger.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (c *wsChannel) run(ctx context.Context, d *Dialer) {
	dialCtx, cancel := context.WithTimeout(ctx, d.timeout)
	conn, _, err := d.ws.DialContext(dialCtx, d.url, d.header)
	cancel()
	if err != nil {
		if c.isClosed() {
			return
		}
		c.handler.OnError(fmt.Errorf("dial %s: %w", d.url, err))
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	c.handler.OnOpen()
	c.readLoop(conn)
}

func (c *wsChannel) readLoop(conn *websocket.Conn) {
	for {
		kind, frame, err := conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.handler.OnClose(channel.CloseRemote, nil)
			} else {
				c.handler.OnClose(channel.CloseRemote, err)
			}
			_ = conn.Close()
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		env, err := channel.DecodeEnvelope(frame)
		if err != nil {
			c.log.Warn("dropping frame: %v", err)
			continue
		}
		c.handler.OnEvent(env.Event, env.Data)
	}
}

func (c *wsChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Emit writes one envelope frame. It fails until the handshake completes.
func (c *wsChannel) Emit(event string, payload any) error {
	frame, err := channel.EncodeEnvelope(event, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("emit %s: channel closed", event)
	}
	if c.conn == nil {
		return fmt.Errorf("emit %s: channel not open", event)
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// Close sends a close frame if connected and releases the socket. The
// handler is not called for a local close.
func (c *wsChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()
	if c.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}
