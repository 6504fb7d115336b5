package conn

import (
	"sync"
	"time"

	"github.com/rileyhilliard/instsync/internal/channel"
	"github.com/rileyhilliard/instsync/internal/clock"
	"github.com/rileyhilliard/instsync/internal/logger"
)

// EventFunc receives inbound events from the live channel.
type EventFunc func(name string, data []byte)

// Option configures a Machine.
type Option func(*Machine)

// WithPolicy overrides DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(m *Machine) { m.policy = p }
}

// WithClock sets the clock used for retry timers.
func WithClock(c clock.Clock) Option {
	return func(m *Machine) { m.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Machine) { m.log = l }
}

// WithEvents sets the receiver for inbound events.
func WithEvents(fn EventFunc) Option {
	return func(m *Machine) { m.events = fn }
}

// Machine maintains at most one live push channel and recovers from drops.
//
// All transitions are serialized under one mutex. Each dial gets a
// generation number and each scheduled timer a sequence number; callbacks
// carrying an outdated number are dropped, so neither a stale channel nor a
// stale timer can act on the current connection.
//
// Observers are called outside the lock, in transition order, on whichever
// goroutine caused the transition.
type Machine struct {
	dialer channel.Dialer
	policy Policy
	clock  clock.Clock
	log    logger.Logger
	events EventFunc

	mu       sync.Mutex
	state    State
	attempt  int
	gaveUp   bool
	lastErr  error
	since    time.Time
	ch       channel.Channel
	gen      uint64
	timer    clock.Timer
	timerSeq uint64
	closed   bool
	subs     []subscriber
	nextSub  int
	queue    []Info

	notifyMu sync.Mutex
}

// New creates a Machine in the Disconnected state. It does not dial until
// Connect is called.
func New(d channel.Dialer, opts ...Option) *Machine {
	m := &Machine{
		dialer: d,
		policy: DefaultPolicy(),
		clock:  clock.Real(),
		log:    logger.NewEnvLogger("[conn]"),
		events: func(string, []byte) {},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.since = m.clock.Now()
	return m
}

// Info returns the current connection snapshot.
func (m *Machine) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.infoLocked()
}

// Subscribe registers fn for every state change. The returned function
// removes it.
func (m *Machine) Subscribe(fn func(Info)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// Connect dials if no channel is open or opening. While a retry is pending it
// dials immediately and keeps the attempt count.
func (m *Machine) Connect() {
	m.mu.Lock()
	switch {
	case m.closed:
	case m.state == Connected, m.state == Connecting:
		m.log.Debug("connect ignored: already %s", m.state)
	default:
		m.cancelTimerLocked()
		m.gaveUp = false
		m.dialLocked()
	}
	m.mu.Unlock()
	m.flush()
}

// Disconnect closes the channel, cancels any pending retry and resets the
// attempt counter. It is the only way to stop automatic reconnection.
func (m *Machine) Disconnect() {
	m.mu.Lock()
	ch := m.disconnectLocked()
	m.mu.Unlock()
	closeQuietly(ch)
	m.flush()
}

// Reconnect disconnects and dials again after the policy's ManualDelay.
// It is the way back from a give-up.
func (m *Machine) Reconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	ch := m.disconnectLocked()
	m.log.Info("manual reconnect in %s", m.policy.ManualDelay)
	m.scheduleLocked(m.policy.ManualDelay, m.dialLocked)
	m.mu.Unlock()
	closeQuietly(ch)
	m.flush()
}

// Close tears the machine down. No transition happens after Close.
func (m *Machine) Close() {
	m.mu.Lock()
	ch := m.disconnectLocked()
	m.closed = true
	m.mu.Unlock()
	closeQuietly(ch)
	m.flush()
}

// Emit sends a command on the live channel.
func (m *Machine) Emit(event string, payload any) error {
	m.mu.Lock()
	if m.state != Connected || m.ch == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	ch := m.ch
	m.mu.Unlock()
	return ch.Emit(event, payload)
}

func (m *Machine) infoLocked() Info {
	return Info{
		State:       m.state,
		Attempt:     m.attempt,
		MaxAttempts: m.policy.MaxAttempts,
		GaveUp:      m.gaveUp,
		LastError:   m.lastErr,
		Since:       m.since,
	}
}

func (m *Machine) setStateLocked(s State) {
	if s != m.state {
		m.since = m.clock.Now()
	}
	m.state = s
	m.queue = append(m.queue, m.infoLocked())
}

func (m *Machine) dialLocked() {
	if m.closed {
		return
	}
	m.gen++
	m.setStateLocked(Connecting)
	ch, err := m.dialer.Dial(&link{m: m, gen: m.gen})
	if err != nil {
		m.lostLocked(err)
		return
	}
	m.ch = ch
}

// lostLocked handles a failed dial or a dropped session and applies the
// reconnection policy. The caller must close the returned channel.
func (m *Machine) lostLocked(err error) channel.Channel {
	ch := m.ch
	m.ch = nil
	m.gen++
	if err != nil {
		m.lastErr = err
	}

	if m.attempt >= m.policy.MaxAttempts {
		m.gaveUp = true
		m.setStateLocked(Disconnected)
		m.log.Warn("giving up after %d reconnect attempts", m.attempt)
		return ch
	}

	m.setStateLocked(Disconnected)
	delay := m.policy.Delay(m.attempt)
	m.attempt++
	m.setStateLocked(Reconnecting)
	m.log.Info("reconnect attempt %d/%d in %s", m.attempt, m.policy.MaxAttempts, delay)
	m.scheduleLocked(delay, m.dialLocked)
	return ch
}

func (m *Machine) disconnectLocked() channel.Channel {
	if m.closed {
		return nil
	}
	m.cancelTimerLocked()
	ch := m.ch
	m.ch = nil
	m.gen++
	wasIdle := m.state == Disconnected && m.attempt == 0 && !m.gaveUp
	m.attempt = 0
	m.gaveUp = false
	if !wasIdle {
		m.setStateLocked(Disconnected)
	}
	return ch
}

func (m *Machine) scheduleLocked(d time.Duration, fn func()) {
	m.cancelTimerLocked()
	seq := m.timerSeq
	m.timer = m.clock.AfterFunc(d, func() {
		m.mu.Lock()
		if m.closed || seq != m.timerSeq {
			m.mu.Unlock()
			return
		}
		m.timer = nil
		fn()
		m.mu.Unlock()
		m.flush()
	})
}

func (m *Machine) cancelTimerLocked() {
	m.timerSeq++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) opened(gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.gen || m.state != Connecting {
		m.mu.Unlock()
		return
	}
	m.attempt = 0
	m.gaveUp = false
	m.lastErr = nil
	m.setStateLocked(Connected)
	ch := m.ch
	m.mu.Unlock()

	m.log.Info("connected")
	m.flush()
	if err := ch.Emit(channel.CommandGetInstancesStatus, nil); err != nil {
		m.log.Warn("request snapshot: %v", err)
	}
}

func (m *Machine) ended(gen uint64, reason channel.CloseReason, err error) {
	m.mu.Lock()
	if m.closed || gen != m.gen || (m.state != Connected && m.state != Connecting) {
		m.mu.Unlock()
		return
	}
	var ch channel.Channel
	if reason == channel.CloseLocal {
		ch = m.disconnectLocked()
	} else {
		m.log.Warn("channel dropped: %v", errOrNil(err))
		ch = m.lostLocked(err)
	}
	m.mu.Unlock()
	closeQuietly(ch)
	m.flush()
}

func (m *Machine) failed(gen uint64, err error) {
	m.mu.Lock()
	if m.closed || gen != m.gen || (m.state != Connected && m.state != Connecting) {
		m.mu.Unlock()
		return
	}
	m.log.Warn("transport error: %v", err)
	ch := m.lostLocked(err)
	m.mu.Unlock()
	closeQuietly(ch)
	m.flush()
}

func (m *Machine) event(gen uint64, name string, data []byte) {
	m.mu.Lock()
	current := !m.closed && gen == m.gen
	m.mu.Unlock()
	if !current {
		m.log.Debug("dropping %s from stale channel", name)
		return
	}
	m.events(name, data)
}

// flush delivers queued notifications. Only one goroutine delivers at a time;
// anything queued meanwhile is picked up before it lets go.
func (m *Machine) flush() {
	for {
		if !m.notifyMu.TryLock() {
			return
		}
		for {
			m.mu.Lock()
			batch := m.queue
			m.queue = nil
			subs := make([]subscriber, len(m.subs))
			copy(subs, m.subs)
			m.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, info := range batch {
				for _, s := range subs {
					s.fn(info)
				}
			}
		}
		m.notifyMu.Unlock()

		m.mu.Lock()
		empty := len(m.queue) == 0
		m.mu.Unlock()
		if empty {
			return
		}
	}
}

type subscriber struct {
	id int
	fn func(Info)
}

// link binds one dial's callbacks to its generation.
type link struct {
	m   *Machine
	gen uint64
}

func (l *link) OnOpen()                                { l.m.opened(l.gen) }
func (l *link) OnClose(r channel.CloseReason, e error) { l.m.ended(l.gen, r, e) }
func (l *link) OnError(err error)                      { l.m.failed(l.gen, err) }
func (l *link) OnEvent(name string, data []byte)       { l.m.event(l.gen, name, data) }

func closeQuietly(ch channel.Channel) {
	if ch != nil {
		_ = ch.Close()
	}
}

func errOrNil(err error) any {
	if err == nil {
		return "closed by server"
	}
	return err
}
