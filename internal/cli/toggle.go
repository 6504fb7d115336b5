package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/rileyhilliard/instsync/internal/config"
	"github.com/rileyhilliard/instsync/internal/errors"
	"github.com/rileyhilliard/instsync/internal/instance"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	toggleFlags commandFlags
	toggleYes   bool
)

var toggleCmd = &cobra.Command{
	Use:   "toggle <id> on|off",
	Short: "Enable or disable health monitoring for an instance",
	Long: `Turn the server's health polling for one instance on or off.

This needs the push channel; it fails rather than falling back to the REST API.
Turning monitoring off asks for confirmation unless --yes is given or stdin
isn't a terminal.

Examples:
  instsync toggle 42 on
  instsync toggle 42 off --yes`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		enabled, err := parseOnOff(args[1])
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		id := instance.ID(args[0])
		if !enabled && !toggleYes && !machineMode && term.IsTerminal(int(os.Stdin.Fd())) {
			ok, err := confirmDisable(id)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}
		}
		return runToggle(cmd.Context(), cfg, id, enabled, toggleFlags, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(toggleCmd)
	addCommandFlags(toggleCmd, &toggleFlags)
	toggleCmd.Flags().BoolVarP(&toggleYes, "yes", "y", false, "don't ask before disabling")
}

// parseOnOff accepts on/off and the usual synonyms.
func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "enable", "enabled", "yes", "1":
		return true, nil
	case "off", "false", "disable", "disabled", "no", "0":
		return false, nil
	}
	return false, errors.New(errors.ErrConfig,
		fmt.Sprintf("'%s' isn't on or off", s),
		"Use 'instsync toggle <id> on' or 'instsync toggle <id> off'")
}

func confirmDisable(id instance.ID) (bool, error) {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Stop health monitoring for instance %s?", id)).
				Description("Its status will no longer update until monitoring is turned back on.").
				Affirmative("Disable").
				Negative("Keep").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		if stderrors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to get user input",
			"Pass --yes to skip the confirmation")
	}
	return ok, nil
}

func runToggle(ctx context.Context, cfg *config.Config, id instance.ID, enabled bool, f commandFlags, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := openProvider(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := waitForPush(ctx, p, f.Connect); err != nil {
		if errors.IsCode(err, errors.ErrTransport) {
			return err
		}
		return errors.WrapWithCode(err, errors.ErrTransport,
			"Push channel not connected",
			"Toggling monitoring needs the push channel. Check push.url or try a longer --connect-timeout")
	}

	r := p.ToggleMonitoring(id, enabled)
	waitCtx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()
	if err := r.Wait(waitCtx); err != nil {
		return commandFailed("toggle monitoring", err)
	}

	out := CommandOutput{Command: r.Command, Path: r.Path, Message: r.Message()}
	if rec, ok := p.GetInstance(id); ok {
		out.Instance = &rec
	}
	if machineMode {
		return WriteJSONSuccess(w, out)
	}

	name := string(id)
	if out.Instance != nil {
		name = describe(*out.Instance)
	}
	fmt.Fprintf(w, "✓ monitoring %s for %s\n", onOff(enabled), name)
	if out.Message != "" {
		fmt.Fprintf(w, "  %s\n", out.Message)
	}
	return nil
}

func isErr(err, target error) bool {
	return stderrors.Is(err, target)
}
