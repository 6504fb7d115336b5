package cli

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rileyhilliard/instsync/internal/errors"
	"github.com/rileyhilliard/instsync/internal/logger"
	"github.com/rileyhilliard/instsync/internal/monitor"
	"github.com/rileyhilliard/instsync/internal/provider"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"dashboard", "w"},
	Short:   "Live dashboard of instance status",
	Long: `Open a full-screen dashboard that updates as status events arrive.

While the push channel is down the dashboard keeps itself current by polling
the REST API, and switches back to push as soon as the channel recovers.

Logs are written to log.file (if set) so they don't tear the screen.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchCommand(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func watchCommand(ctx context.Context) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New(errors.ErrConfig,
			"watch needs an interactive terminal",
			"Use 'instsync status' (or --json) when piping output")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	closer := logger.SetupFile(cfg.Log.File)
	defer closer.Close()

	opts, err := providerOptions(cfg)
	if err != nil {
		return err
	}
	p, err := provider.New(opts)
	if err != nil {
		return err
	}
	defer p.Close()

	bridge := monitor.NewBridge(p)
	defer bridge.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	startCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Start blocks on the cold-start pull; the dashboard renders meanwhile.
	go func() {
		if err := p.Start(startCtx); err != nil {
			logger.Default().Warn("start: %v", err)
		}
	}()

	program := tea.NewProgram(monitor.NewModel(p, bridge), tea.WithAltScreen())
	_, err = program.Run()
	return err
}
