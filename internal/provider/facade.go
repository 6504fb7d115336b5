package provider

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rileyhilliard/instsync/internal/channel"
	"github.com/rileyhilliard/instsync/internal/conn"
	"github.com/rileyhilliard/instsync/internal/instance"
	"github.com/rileyhilliard/instsync/internal/store"
)

// UpdateKind says what an Update is about.
type UpdateKind int

const (
	UpdateStore UpdateKind = iota
	UpdateConnection
)

// Update is delivered to subscribers after a store mutation or a connection
// state change.
type Update struct {
	Kind   UpdateKind
	Change store.Change
	Conn   conn.Info
}

// ConnectionInfo is the connection snapshot plus when data last changed.
type ConnectionInfo struct {
	conn.Info
	LastUpdate time.Time
}

// Consumer is the read and command surface for UI code.
type Consumer interface {
	GetInstance(id instance.ID) (instance.Record, bool)
	Instances() []instance.Record
	IsOnline(id instance.ID) bool
	IsMonitoring(id instance.ID) bool
	LastCheck(id instance.ID) (time.Time, bool)
	StatusStats() instance.Stats
	ConnectionInfo() ConnectionInfo

	RefreshInstance(id instance.ID) *Result
	RefreshAll() *Result
	ToggleMonitoring(id instance.ID, enabled bool) *Result
	Reconnect()

	Subscribe(fn func(Update)) (unsubscribe func())
}

var _ Consumer = (*Provider)(nil)

// GetInstance returns a copy of the record for id.
func (p *Provider) GetInstance(id instance.ID) (instance.Record, bool) {
	return p.store.Get(id)
}

// Instances returns all records in first-seen order.
func (p *Provider) Instances() []instance.Record {
	return p.store.List()
}

// IsOnline reports whether id is known and running.
func (p *Provider) IsOnline(id instance.ID) bool {
	r, ok := p.store.Get(id)
	return ok && r.Online()
}

// IsMonitoring reports whether health polling is enabled for id.
func (p *Provider) IsMonitoring(id instance.ID) bool {
	r, ok := p.store.Get(id)
	return ok && r.IsMonitoring
}

// LastCheck returns the last health observation time for id.
func (p *Provider) LastCheck(id instance.ID) (time.Time, bool) {
	r, ok := p.store.Get(id)
	if !ok || r.LastCheckTime == nil {
		return time.Time{}, false
	}
	return *r.LastCheckTime, true
}

// StatusStats counts records by status.
func (p *Provider) StatusStats() instance.Stats {
	return p.store.Stats()
}

// ConnectionInfo returns the connection snapshot.
func (p *Provider) ConnectionInfo() ConnectionInfo {
	return ConnectionInfo{Info: p.machine.Info(), LastUpdate: p.store.LastUpdate()}
}

// Reconnect forces a disconnect followed by a delayed connect.
func (p *Provider) Reconnect() {
	p.machine.Reconnect()
}

// Subscribe registers fn for store and connection updates. fn runs on the
// goroutine that caused the update and must not block.
func (p *Provider) Subscribe(fn func(Update)) (unsubscribe func()) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return func() {
		p.subMu.Lock()
		defer p.subMu.Unlock()
		delete(p.subs, id)
	}
}

// RefreshInstance asks for a fresh check of one instance. Over push the
// result completes on the server's update_response; without push it
// completes once the record has been fetched and stored.
func (p *Provider) RefreshInstance(id instance.ID) *Result {
	if p.machine.Info().Connected() {
		r := p.acks.add(ackRefreshOne, channel.CommandRequestUpdate, id)
		if p.emit(r, channel.CommandRequestUpdate, channel.RequestUpdatePayload{InstanceID: wireID(id)}) {
			return r
		}
	}
	return p.pull(channel.CommandRequestUpdate, func(ctx context.Context) error {
		rec, err := p.registry.Get(ctx, id)
		if err != nil {
			return err
		}
		p.store.ApplyCreate(rec)
		return nil
	})
}

// RefreshAll asks for a full snapshot. Over push it completes when the
// snapshot arrives; without push it runs a pull.
func (p *Provider) RefreshAll() *Result {
	if p.machine.Info().Connected() {
		r := p.acks.add(ackRefreshAll, channel.CommandRequestUpdate, "")
		if p.emit(r, channel.CommandRequestUpdate, channel.RequestUpdatePayload{InstanceID: nil}) {
			return r
		}
	}
	return p.pull(channel.CommandRequestUpdate, p.poller.Poll)
}

// ToggleMonitoring enables or disables health polling for id. It needs the
// push channel; while disconnected the Result fails with ErrNotConnected and
// nothing changes.
func (p *Provider) ToggleMonitoring(id instance.ID, enabled bool) *Result {
	if !p.machine.Info().Connected() {
		return failedResult(newCommandID(), channel.CommandToggleMonitoring, PathPush, ErrNotConnected)
	}
	r := p.acks.add(ackToggle, channel.CommandToggleMonitoring, id)
	payload := channel.ToggleMonitoringPayload{InstanceID: wireID(id), IsMonitoring: enabled}
	if !p.emit(r, channel.CommandToggleMonitoring, payload) {
		p.acks.cancel(r, ErrNotConnected)
	}
	return r
}

// emit sends a command whose ack is already registered. It returns false,
// with the ack withdrawn, if the channel was not connected. Other send
// errors fail the Result.
func (p *Provider) emit(r *Result, command string, payload any) bool {
	err := p.machine.Emit(command, payload)
	switch {
	case err == nil:
		p.log.Debug("%s %s sent", command, r.ID)
		// The channel may have dropped between the check and the send.
		if !p.machine.Info().Connected() {
			p.acks.cancel(r, ErrDisconnected)
		}
		return true
	case errors.Is(err, conn.ErrNotConnected):
		p.acks.cancel(r, ErrNotConnected)
		return false
	default:
		p.acks.cancel(r, err)
		return true
	}
}

// pull runs fn in the background and completes the Result with its error.
func (p *Provider) pull(command string, fn func(ctx context.Context) error) *Result {
	r := newResult(newCommandID(), command, PathPull)
	ok := p.spawn(func(ctx context.Context) {
		err := fn(ctx)
		if err != nil {
			p.log.Warn("pull %s failed: %v", r.ID, err)
		}
		r.complete(err, "")
	})
	if !ok {
		r.complete(ErrClosed, "")
	}
	return r
}

// wireID sends numeric ids as numbers, which is what the backend expects.
// Only ids in canonical decimal form convert, so "007" or "+7" round-trip.
func wireID(id instance.ID) any {
	if n, err := strconv.Atoi(string(id)); err == nil && strconv.Itoa(n) == string(id) {
		return n
	}
	return string(id)
}
