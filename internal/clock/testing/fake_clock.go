// Package testing provides a manually advanced clock for deterministic timer tests.
package testing

import (
	"sort"
	"sync"
	"time"

	"github.com/rileyhilliard/instsync/internal/clock"
)

// FakeClock is a clock.Clock whose time only moves when Advance is called.
// Due callbacks run synchronously on the goroutine calling Advance, in
// deadline order (ties in scheduling order).
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *FakeClock
	deadline time.Time
	seq      int
	fn       func()
	stopped  bool
	fired    bool
}

// NewFakeClock creates a fake clock starting at a fixed instant.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules f to run once the clock has advanced by d.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), seq: c.seq, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward by d, firing every callback that falls due.
// Callbacks scheduled by a firing callback also run if they fall within d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.deadline
		next.fired = true
		c.removeLocked(next)
		fn := next.fn
		c.mu.Unlock()

		fn()
	}
}

// Pending returns the delays until each live timer fires, soonest first.
func (c *FakeClock) Pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, 0, len(c.timers))
	for _, t := range c.sortedLocked() {
		out = append(out, t.deadline.Sub(c.now))
	}
	return out
}

// PendingCount returns the number of live timers.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *FakeClock) nextDueLocked(target time.Time) *fakeTimer {
	sorted := c.sortedLocked()
	if len(sorted) == 0 || sorted[0].deadline.After(target) {
		return nil
	}
	return sorted[0]
}

func (c *FakeClock) sortedLocked() []*fakeTimer {
	sorted := make([]*fakeTimer, len(c.timers))
	copy(sorted, c.timers)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].deadline.Equal(sorted[j].deadline) {
			return sorted[i].seq < sorted[j].seq
		}
		return sorted[i].deadline.Before(sorted[j].deadline)
	})
	return sorted
}

func (c *FakeClock) removeLocked(t *fakeTimer) {
	for i, other := range c.timers {
		if other == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return
		}
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.clock.removeLocked(t)
	return true
}
