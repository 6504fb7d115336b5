// Package provider owns the instance-status core for one session: a single
// Store, the push connection, and the degraded-mode poller. UI code talks to
// it through the Consumer interface.
package provider

import (
	"context"
	"sync"
	"time"

	"github.com/rileyhilliard/instsync/internal/channel"
	"github.com/rileyhilliard/instsync/internal/clock"
	"github.com/rileyhilliard/instsync/internal/conn"
	ierrors "github.com/rileyhilliard/instsync/internal/errors"
	"github.com/rileyhilliard/instsync/internal/instance"
	"github.com/rileyhilliard/instsync/internal/logger"
	"github.com/rileyhilliard/instsync/internal/registry"
	"github.com/rileyhilliard/instsync/internal/store"
)

// DefaultAckTimeout bounds how long a push command waits for its ack.
const DefaultAckTimeout = 30 * time.Second

// Registry is the pull source.
type Registry interface {
	List(ctx context.Context) ([]instance.Record, error)
	Get(ctx context.Context, id instance.ID) (instance.Record, error)
}

// Options wires a Provider to its collaborators.
type Options struct {
	Dialer   channel.Dialer
	Registry Registry

	// Policy defaults to conn.DefaultPolicy().
	Policy *conn.Policy
	// PollInterval defaults to registry.DefaultInterval.
	PollInterval time.Duration
	// AckTimeout defaults to DefaultAckTimeout. Negative disables it.
	AckTimeout time.Duration

	Clock  clock.Clock
	Logger logger.Logger
}

// Provider is the owner of the shared status core. Create one per session
// with New, call Start, and Close it on teardown.
type Provider struct {
	store    *store.Store
	machine  *conn.Machine
	poller   *registry.Poller
	registry Registry
	acks     *ackTable
	log      logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
	unsubs  []func()

	subMu   sync.Mutex
	subs    map[int]func(Update)
	nextSub int
}

// New builds a stopped Provider.
func New(opts Options) (*Provider, error) {
	if opts.Dialer == nil {
		return nil, ierrors.New(ierrors.ErrConfig, "No push transport configured", "Set push.url in your config")
	}
	if opts.Registry == nil {
		return nil, ierrors.New(ierrors.ErrConfig, "No pull endpoint configured", "Set pull.url in your config")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewEnvLogger("[provider]")
	}
	policy := conn.DefaultPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	ackTimeout := opts.AckTimeout
	if ackTimeout == 0 {
		ackTimeout = DefaultAckTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Provider{
		registry: opts.Registry,
		acks:     newAckTable(opts.Clock, ackTimeout, opts.Logger),
		log:      opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[int]func(Update)),
	}
	p.store = store.New(store.WithClock(opts.Clock), store.WithLogger(opts.Logger))
	p.machine = conn.New(opts.Dialer,
		conn.WithPolicy(policy),
		conn.WithClock(opts.Clock),
		conn.WithLogger(opts.Logger),
		conn.WithEvents(p.dispatch),
	)
	p.poller = registry.NewPoller(opts.Registry, p.store,
		registry.WithInterval(opts.PollInterval),
		registry.WithPollerClock(opts.Clock),
		registry.WithPollerLogger(opts.Logger),
		registry.WithGate(func() bool { return !p.machine.Info().Connected() }),
	)

	p.unsubs = append(p.unsubs,
		p.machine.Subscribe(p.onConnection),
		p.store.Subscribe(func(c store.Change) {
			p.publish(Update{Kind: UpdateStore, Change: c})
		}),
	)
	return p, nil
}

// Start connects the push channel and runs the cold-start pull. A failed
// pull is logged, not returned; the poller keeps trying while push is down.
func (p *Provider) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	p.machine.Connect()
	if err := p.poller.Poll(ctx); err != nil {
		p.log.Warn("cold-start pull failed: %v", err)
	}
	return nil
}

// Close disconnects, stops polling and fails every pending command. It is
// safe to call more than once.
func (p *Provider) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	unsubs := p.unsubs
	p.unsubs = nil
	p.mu.Unlock()

	if n := p.acks.failAll(ErrClosed); n > 0 {
		p.log.Debug("failed %d pending commands on close", n)
	}
	p.cancel()
	p.poller.Stop()
	p.machine.Close()
	for _, fn := range unsubs {
		fn()
	}
	p.wg.Wait()
}

// WaitConnected blocks until the push channel is open, automatic recovery
// gives up, or ctx ends.
func (p *Provider) WaitConnected(ctx context.Context) error {
	updates := make(chan conn.Info, 16)
	unsubscribe := p.machine.Subscribe(func(i conn.Info) {
		select {
		case updates <- i:
		default:
		}
	})
	defer unsubscribe()

	check := func(i conn.Info) (bool, error) {
		switch {
		case i.Connected():
			return true, nil
		case i.GaveUp:
			return true, ierrors.WrapWithCode(i.LastError, ierrors.ErrTransport,
				"Could not reach the push channel",
				"Check push.url, or run with --debug for transport logs")
		}
		return false, nil
	}
	if done, err := check(p.machine.Info()); done {
		return err
	}
	for {
		select {
		case i := <-updates:
			if done, err := check(i); done {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Provider) onConnection(info conn.Info) {
	if info.Connected() {
		p.poller.Stop()
	} else {
		if n := p.acks.failAll(ErrDisconnected); n > 0 {
			p.log.Warn("%d pending commands lost to disconnect", n)
		}
		if p.running() {
			p.poller.Start()
		}
	}
	p.publish(Update{Kind: UpdateConnection, Conn: info})
}

// running reports whether Start was called and Close was not.
func (p *Provider) running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started && !p.closed
}

// publish fans an update out to consumers.
func (p *Provider) publish(u Update) {
	p.subMu.Lock()
	fns := make([]func(Update), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.subMu.Unlock()
	for _, fn := range fns {
		fn(u)
	}
}

// spawn runs fn on a goroutine tied to the provider's lifetime. It returns
// false once the provider is closed.
func (p *Provider) spawn(fn func(ctx context.Context)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn(p.ctx)
	}()
	return true
}
