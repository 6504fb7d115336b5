package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/rileyhilliard/instsync/internal/config"
	"github.com/rileyhilliard/instsync/internal/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// InitOptions holds options for the init command.
type InitOptions struct {
	Transport      string
	PushURL        string
	PullURL        string
	Global         bool
	Overwrite      bool
	NonInteractive bool
}

var initOpts InitOptions

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a .instsync.yaml configuration",
	Long: `Write a config file with the push and pull endpoints.

Prompts for the endpoints when run in a terminal; flags pre-fill or replace
the prompts.

Examples:
  instsync init
  instsync init --push-url wss://status.example.com/ws --pull-url https://status.example.com
  instsync init --transport nats --push-url nats://broker:4222 --yes
  instsync init --global`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := initOpts
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			opts.NonInteractive = true
		}
		return Init(opts, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initOpts.Transport, "transport", "", "push transport: websocket or nats")
	initCmd.Flags().StringVar(&initOpts.PushURL, "push-url", "", "push channel URL (ws://, wss:// or nats://)")
	initCmd.Flags().StringVar(&initOpts.PullURL, "pull-url", "", "REST API base URL")
	initCmd.Flags().BoolVar(&initOpts.Global, "global", false, "write ~/.config/instsync/config.yaml instead")
	initCmd.Flags().BoolVar(&initOpts.Overwrite, "force", false, "overwrite an existing config")
	initCmd.Flags().BoolVarP(&initOpts.NonInteractive, "yes", "y", false, "don't prompt, use flags and defaults")
}

// Init writes a new config file.
func Init(opts InitOptions, w io.Writer) error {
	path, err := initPath(opts.Global)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil && !opts.Overwrite {
		if opts.NonInteractive {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Config file already exists: %s", path),
				"Use --force to overwrite")
		}
		var overwrite bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Config file '%s' already exists. Overwrite?", path)).
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to get user input",
				"Try running with --force to overwrite")
		}
		if !overwrite {
			fmt.Fprintln(w, "Cancelled.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	applyInitFlags(cfg, opts)

	if !opts.NonInteractive {
		if err := promptEndpoints(cfg); err != nil {
			return err
		}
	}

	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.Save(cfg, path, true); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't write config",
			"Check you can write to "+filepath.Dir(path))
	}

	fmt.Fprintf(w, "✓ wrote %s\n", path)
	fmt.Fprintln(w, "  Run 'instsync status' to check the endpoints, or 'instsync watch' for the dashboard.")
	return nil
}

func initPath(global bool) (string, error) {
	if !global {
		return filepath.Join(".", config.ConfigFileName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine home directory",
			"Write a project config instead (drop --global)")
	}
	return filepath.Join(home, config.GlobalConfigDir, config.GlobalConfigFile), nil
}

// applyInitFlags overlays flag values on the defaults. Picking nats without
// a URL switches the default URL to match.
func applyInitFlags(cfg *config.Config, opts InitOptions) {
	if t := strings.ToLower(strings.TrimSpace(opts.Transport)); t != "" {
		cfg.Push.Transport = t
		if t == config.TransportNATS && opts.PushURL == "" {
			cfg.Push.URL = "nats://localhost:4222"
		}
	}
	if opts.PushURL != "" {
		cfg.Push.URL = opts.PushURL
	}
	if opts.PullURL != "" {
		cfg.Pull.URL = strings.TrimRight(opts.PullURL, "/")
	}
}

func promptEndpoints(cfg *config.Config) error {
	transport := cfg.Push.Transport
	pushURL := cfg.Push.URL
	pullURL := cfg.Pull.URL

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Push transport").
				Description("How status events reach instsync").
				Options(
					huh.NewOption("WebSocket", config.TransportWebSocket),
					huh.NewOption("NATS", config.TransportNATS),
				).
				Value(&transport),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Push URL").
				Description("ws://, wss:// for WebSocket, nats:// for NATS").
				Value(&pushURL).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("push URL is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("REST API base URL").
				Description("Used for the initial snapshot and while push is down").
				Value(&pullURL).
				Validate(func(s string) error {
					if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
						return fmt.Errorf("must start with http:// or https://")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to get user input",
			"Pass --yes with --push-url and --pull-url to skip the prompts")
	}

	cfg.Push.Transport = transport
	cfg.Push.URL = strings.TrimSpace(pushURL)
	cfg.Pull.URL = strings.TrimRight(strings.TrimSpace(pullURL), "/")
	return nil
}
