package cli

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rileyhilliard/instsync/internal/channel"
	"github.com/rileyhilliard/instsync/internal/channel/natschan"
	"github.com/rileyhilliard/instsync/internal/channel/wschan"
	"github.com/rileyhilliard/instsync/internal/config"
	"github.com/rileyhilliard/instsync/internal/conn"
	"github.com/rileyhilliard/instsync/internal/errors"
	"github.com/rileyhilliard/instsync/internal/logger"
	"github.com/rileyhilliard/instsync/internal/provider"
	"github.com/rileyhilliard/instsync/internal/registry"
	"github.com/rileyhilliard/instsync/internal/ui"
	"golang.org/x/term"
)

// loadConfig finds, loads and validates the config named by --config, or
// the defaults when there is none.
func loadConfig() (*config.Config, error) {
	cfg, path, err := config.LoadOrDefault(Config())
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if path == "" {
		logger.Default().Debug("no config file found, using defaults and INSTSYNC_* environment")
	} else {
		logger.Default().Debug("using config %s", path)
	}
	return cfg, nil
}

// newDialer builds the push transport selected by push.transport.
func newDialer(cfg config.PushConfig) (channel.Dialer, error) {
	switch cfg.Transport {
	case config.TransportNATS:
		return natschan.New(cfg.URL, cfg.SubjectPrefix, cfg.DialTimeout), nil
	case config.TransportWebSocket, "":
		d, err := wschan.New(cfg.URL,
			wschan.WithDialTimeout(cfg.DialTimeout),
			wschan.WithLogger(logger.NewEnvLogger("[ws]")))
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Can't use push.url "+cfg.URL,
				"Use a ws:// or wss:// URL for the websocket transport")
		}
		return d, nil
	default:
		return nil, errors.New(errors.ErrConfig,
			"Unknown push transport: "+cfg.Transport,
			"Set push.transport to websocket or nats")
	}
}

// providerOptions maps the config onto provider.Options.
func providerOptions(cfg *config.Config) (provider.Options, error) {
	dialer, err := newDialer(cfg.Push)
	if err != nil {
		return provider.Options{}, err
	}

	ackTimeout := cfg.Push.AckTimeout
	if ackTimeout == 0 {
		ackTimeout = -1
	}

	return provider.Options{
		Dialer: dialer,
		Registry: registry.NewClient(cfg.Pull.URL, cfg.Pull.Path, cfg.Pull.Timeout).
			WithLogger(logger.NewEnvLogger("[pull]")),
		Policy: &conn.Policy{
			Base:        cfg.Reconnect.BaseDelay,
			MaxAttempts: cfg.Reconnect.MaxAttempts,
			ManualDelay: cfg.Reconnect.ManualDelay,
		},
		PollInterval: cfg.Pull.Interval,
		AckTimeout:   ackTimeout,
		Logger:       logger.NewEnvLogger("[provider]"),
	}, nil
}

// openProvider builds and starts a provider. Start connects in the
// background and runs the cold-start pull before returning.
func openProvider(ctx context.Context, cfg *config.Config) (*provider.Provider, error) {
	opts, err := providerOptions(cfg)
	if err != nil {
		return nil, err
	}
	p, err := provider.New(opts)
	if err != nil {
		return nil, err
	}
	if err := p.Start(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// waitForPush waits up to timeout for the push channel. A spinner runs on
// stderr while it waits, when stderr is a terminal.
func waitForPush(ctx context.Context, p *provider.Provider, timeout time.Duration) error {
	var out io.Writer = io.Discard
	if !machineMode && term.IsTerminal(int(os.Stderr.Fd())) {
		out = os.Stderr
	}
	sp := ui.NewSpinner("Connecting to push channel", out)
	sp.Start()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := p.WaitConnected(ctx)
	if err != nil {
		sp.Fail()
		return err
	}
	sp.Stop()
	return nil
}
