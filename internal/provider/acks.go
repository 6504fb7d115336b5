package provider

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rileyhilliard/instsync/internal/clock"
	"github.com/rileyhilliard/instsync/internal/instance"
	"github.com/rileyhilliard/instsync/internal/logger"
)

type ackKind int

const (
	ackRefreshOne ackKind = iota
	ackRefreshAll
	ackToggle
)

type pendingAck struct {
	kind   ackKind
	target instance.ID
	result *Result
	timer  clock.Timer
}

// ackTable matches server acknowledgements to outstanding push commands,
// oldest first.
type ackTable struct {
	clock   clock.Clock
	timeout time.Duration
	log     logger.Logger

	mu      sync.Mutex
	pending []*pendingAck
}

func newAckTable(c clock.Clock, timeout time.Duration, log logger.Logger) *ackTable {
	return &ackTable{clock: c, timeout: timeout, log: log}
}

func newCommandID() string {
	return uuid.NewString()
}

// add registers a pending push command and returns its Result.
func (t *ackTable) add(kind ackKind, command string, target instance.ID) *Result {
	a := &pendingAck{kind: kind, target: target, result: newResult(newCommandID(), command, PathPush)}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, a)
	if t.timeout > 0 {
		a.timer = t.clock.AfterFunc(t.timeout, func() {
			if t.remove(a) {
				t.log.Warn("%s %s: no ack after %s", command, a.result.ID, t.timeout)
				a.result.complete(ErrAckTimeout, "")
			}
		})
	}
	return a.result
}

// cancel drops a pending command that never made it onto the wire.
func (t *ackTable) cancel(r *Result, err error) {
	t.mu.Lock()
	var found *pendingAck
	for _, a := range t.pending {
		if a.result == r {
			found = a
			break
		}
	}
	t.mu.Unlock()
	if found != nil && t.remove(found) {
		t.finish(found, err, "")
	}
}

// resolve completes the command of the given kind for target, falling back
// to the oldest of that kind when target is empty or unmatched.
func (t *ackTable) resolve(kind ackKind, target instance.ID, err error, message string) bool {
	a := t.take(func(a *pendingAck) bool { return a.kind == kind && target != "" && a.target == target })
	if a == nil {
		a = t.take(func(a *pendingAck) bool { return a.kind == kind })
	}
	if a == nil {
		return false
	}
	t.finish(a, err, message)
	return true
}

// resolveAll completes every pending command of the given kind.
func (t *ackTable) resolveAll(kind ackKind, err error, message string) int {
	n := 0
	for {
		a := t.take(func(a *pendingAck) bool { return a.kind == kind })
		if a == nil {
			return n
		}
		t.finish(a, err, message)
		n++
	}
}

// failOldest fails the oldest pending command among kinds.
func (t *ackTable) failOldest(err error, message string, kinds ...ackKind) bool {
	a := t.take(func(a *pendingAck) bool {
		for _, k := range kinds {
			if a.kind == k {
				return true
			}
		}
		return false
	})
	if a == nil {
		return false
	}
	t.finish(a, err, message)
	return true
}

// failAll fails every pending command.
func (t *ackTable) failAll(err error) int {
	t.mu.Lock()
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()
	for _, a := range pending {
		t.finish(a, err, "")
	}
	return len(pending)
}

func (t *ackTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func (t *ackTable) take(match func(*pendingAck) bool) *pendingAck {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, a := range t.pending {
		if match(a) {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			return a
		}
	}
	return nil
}

func (t *ackTable) remove(target *pendingAck) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, a := range t.pending {
		if a == target {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (t *ackTable) finish(a *pendingAck, err error, message string) {
	if a.timer != nil {
		a.timer.Stop()
	}
	if a.result.complete(err, message) {
		if err != nil {
			t.log.Debug("%s %s failed: %v", a.result.Command, a.result.ID, err)
		} else {
			t.log.Debug("%s %s acknowledged", a.result.Command, a.result.ID)
		}
	}
}
