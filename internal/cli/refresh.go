package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rileyhilliard/instsync/internal/config"
	"github.com/rileyhilliard/instsync/internal/errors"
	"github.com/rileyhilliard/instsync/internal/instance"
	"github.com/rileyhilliard/instsync/internal/provider"
	"github.com/rileyhilliard/instsync/internal/registry"
	"github.com/spf13/cobra"
)

// commandFlags are shared by the commands that send something to the server.
type commandFlags struct {
	Connect time.Duration
	Timeout time.Duration
}

func addCommandFlags(cmd *cobra.Command, f *commandFlags) {
	cmd.Flags().DurationVar(&f.Connect, "connect-timeout", 5*time.Second, "how long to wait for the push channel")
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 30*time.Second, "how long to wait for the result")
}

var refreshFlags commandFlags

var refreshCmd = &cobra.Command{
	Use:   "refresh [id]",
	Short: "Ask for a fresh check of one or all instances",
	Long: `Ask the server to re-check an instance (or all of them) and print the result.

When the push channel is up the request goes over it and completes on the
server's reply. Otherwise instsync reads the record straight from the REST API.

Examples:
  instsync refresh
  instsync refresh 42`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		var id instance.ID
		if len(args) == 1 {
			id = instance.ID(args[0])
		}
		return runRefresh(cmd.Context(), cfg, id, refreshFlags, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
	addCommandFlags(refreshCmd, &refreshFlags)
}

// CommandOutput is the --json shape of refresh and toggle.
type CommandOutput struct {
	Command  string           `json:"command"`
	Path     provider.Path    `json:"path"`
	Message  string           `json:"message,omitempty"`
	Instance *instance.Record `json:"instance,omitempty"`
	Stats    *instance.Stats  `json:"stats,omitempty"`
}

func runRefresh(ctx context.Context, cfg *config.Config, id instance.ID, f commandFlags, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := openProvider(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	// Push is preferred but not required.
	_ = waitForPush(ctx, p, f.Connect)

	var r *provider.Result
	if id == "" {
		r = p.RefreshAll()
	} else {
		r = p.RefreshInstance(id)
	}

	waitCtx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()
	if err := r.Wait(waitCtx); err != nil {
		return commandFailed("refresh", err)
	}

	out := CommandOutput{Command: r.Command, Path: r.Path, Message: r.Message()}
	if id == "" {
		stats := p.StatusStats()
		out.Stats = &stats
	} else {
		rec, ok := p.GetInstance(id)
		if !ok {
			return errors.New(errors.ErrCommand,
				fmt.Sprintf("Instance %s not found", id),
				"Run 'instsync status' to list known instances")
		}
		out.Instance = &rec
	}

	if machineMode {
		return WriteJSONSuccess(w, out)
	}
	if out.Instance != nil {
		fmt.Fprintf(w, "✓ %s is %s (via %s)\n", describe(*out.Instance), out.Instance.Status.Normalize(), out.Path)
	} else {
		fmt.Fprintf(w, "✓ refreshed %d instances, %d running, %d error (via %s)\n",
			out.Stats.Total, out.Stats.Running, out.Stats.Error, out.Path)
	}
	if out.Message != "" {
		fmt.Fprintf(w, "  %s\n", out.Message)
	}
	return nil
}

// commandFailed wraps a Result error for display.
func commandFailed(what string, err error) error {
	suggestion := "Run with --debug to see transport and pull logs"
	switch {
	case errors.IsCode(err, errors.ErrPull):
		return err
	case isErr(err, registry.ErrNotFound):
		return errors.WrapWithCode(err, errors.ErrCommand,
			"Instance not found",
			"Run 'instsync status' to list known instances")
	case isErr(err, provider.ErrNotConnected), isErr(err, provider.ErrDisconnected):
		suggestion = "The push channel isn't up. Check push.url or try again"
	case isErr(err, provider.ErrAckTimeout), isErr(err, context.DeadlineExceeded):
		suggestion = "The server didn't answer in time. Try a longer --timeout"
	}
	return errors.WrapWithCode(err, errors.ErrCommand, "Couldn't "+what, suggestion)
}

func describe(r instance.Record) string {
	if r.InstanceName == "" {
		return string(r.ID)
	}
	return fmt.Sprintf("%s (%s)", r.InstanceName, r.ID)
}
