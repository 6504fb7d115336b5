package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rileyhilliard/instsync/internal/clock"
	"github.com/rileyhilliard/instsync/internal/instance"
	"github.com/rileyhilliard/instsync/internal/logger"
	"golang.org/x/sync/semaphore"
)

// DefaultInterval is how often the poller pulls while push is down.
const DefaultInterval = 10 * time.Second

// Source returns a full instance list.
type Source interface {
	List(ctx context.Context) ([]instance.Record, error)
}

// Sink receives full snapshots.
type Sink interface {
	ApplySnapshot(records []instance.Record)
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval sets the polling period.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithPollerClock sets the clock used for the polling timer.
func WithPollerClock(c clock.Clock) PollerOption {
	return func(p *Poller) { p.clock = c }
}

// WithPollerLogger sets the logger.
func WithPollerLogger(l logger.Logger) PollerOption {
	return func(p *Poller) { p.log = l }
}

// WithGate sets a check run after each fetch. When it returns false the
// snapshot is discarded instead of applied.
func WithGate(allow func() bool) PollerOption {
	return func(p *Poller) { p.allow = allow }
}

// Poller pulls snapshots on a fixed interval while started. At most one
// fetch is outstanding at a time, so snapshots are applied in the order
// they were requested.
type Poller struct {
	src      Source
	dst      Sink
	interval time.Duration
	clock    clock.Clock
	log      logger.Logger
	allow    func() bool
	sem      *semaphore.Weighted

	mu      sync.Mutex
	running bool
	seq     uint64
	timer   clock.Timer
	cancel  context.CancelFunc
}

// NewPoller creates a stopped poller.
func NewPoller(src Source, dst Sink, opts ...PollerOption) *Poller {
	p := &Poller{
		src:      src,
		dst:      dst,
		interval: DefaultInterval,
		clock:    clock.Real(),
		log:      logger.NewEnvLogger("[poll]"),
		allow:    func() bool { return true },
		sem:      semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins periodic polling. The first pull happens one interval from
// now. Calling Start on a running poller does nothing.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.log.Debug("polling every %s", p.interval)
	p.scheduleLocked()
}

// Stop cancels the next tick and a tick's fetch in flight. A manual Poll is
// left to finish under its caller's context.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	p.seq++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.cancel != nil {
		p.cancel()
	}
}

// Running reports whether periodic polling is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Poll fetches once now, waiting for any outstanding fetch to finish first.
func (p *Poller) Poll(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return p.fetch(ctx)
}

func (p *Poller) scheduleLocked() {
	p.seq++
	seq := p.seq
	p.timer = p.clock.AfterFunc(p.interval, func() { p.tick(seq) })
}

func (p *Poller) tick(seq uint64) {
	p.mu.Lock()
	if !p.running || seq != p.seq {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.mu.Unlock()

	if p.sem.TryAcquire(1) {
		if err := p.tickFetch(seq); err != nil && !errors.Is(err, context.Canceled) {
			p.log.Warn("pull failed: %v", err)
		}
		p.sem.Release(1)
	} else {
		p.log.Debug("skipping tick: previous pull still outstanding")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running && seq == p.seq {
		p.scheduleLocked()
	}
}

// tickFetch runs a periodic pull that Stop can cancel.
func (p *Poller) tickFetch(seq uint64) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.mu.Lock()
	if !p.running || seq != p.seq {
		p.mu.Unlock()
		return nil
	}
	p.cancel = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.cancel = nil
		p.mu.Unlock()
	}()
	return p.fetch(ctx)
}

// fetch runs one pull. The caller holds the semaphore.
func (p *Poller) fetch(ctx context.Context) error {
	records, err := p.src.List(ctx)
	if err != nil {
		return err
	}
	if !p.allow() {
		p.log.Debug("discarding pulled snapshot of %d: push channel is live", len(records))
		return nil
	}
	p.dst.ApplySnapshot(records)
	return nil
}
