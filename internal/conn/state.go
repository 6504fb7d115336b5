// Package conn owns the push-channel connection lifecycle: the state machine
// and its exponential-backoff reconnection policy.
//
// States:
//   - Disconnected: no channel. Either never connected, explicitly
//     disconnected, or the retry ceiling was reached (Info.GaveUp).
//   - Connecting: a dial is in flight.
//   - Connected: the channel is open.
//   - Reconnecting: a retry is scheduled; Info.Attempt says which one.
package conn

import (
	"errors"
	"time"
)

// ErrNotConnected is returned by Emit when no channel is open.
var ErrNotConnected = errors.New("push channel not connected")

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Policy controls automatic and manual reconnect timing.
type Policy struct {
	// Base is the delay before the first retry. Retry n waits Base * 2^n.
	Base time.Duration
	// MaxAttempts is the retry ceiling. Once reached, the machine gives up.
	MaxAttempts int
	// ManualDelay is the pause between Reconnect's disconnect and its dial.
	ManualDelay time.Duration
}

// DefaultPolicy returns 1s base, 5 attempts, 1s manual delay.
func DefaultPolicy() Policy {
	return Policy{Base: time.Second, MaxAttempts: 5, ManualDelay: time.Second}
}

// Delay returns the wait before retry n (zero-based).
func (p Policy) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	return p.Base << uint(n)
}

// Info is an observable snapshot of the machine.
type Info struct {
	State       State
	Attempt     int
	MaxAttempts int
	// GaveUp is set when automatic recovery stopped at the retry ceiling.
	GaveUp    bool
	LastError error
	// Since is when State last changed.
	Since time.Time
}

// Connected reports whether the channel is open.
func (i Info) Connected() bool {
	return i.State == Connected
}

// Reconnecting reports whether a retry is scheduled.
func (i Info) Reconnecting() bool {
	return i.State == Reconnecting
}

// CanReconnect reports whether automatic retries remain.
func (i Info) CanReconnect() bool {
	return i.Attempt < i.MaxAttempts
}
