package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/rileyhilliard/instsync/internal/errors"
	"github.com/rileyhilliard/instsync/internal/logger"
	"github.com/spf13/cobra"
)

// Global flags
var (
	cfgFile   string
	debugMode bool
)

var rootCmd = &cobra.Command{
	Use:   "instsync",
	Short: "Live status for your managed database instances",
	Long: `instsync keeps a local, always-current view of every managed database
instance. It listens on a push channel (WebSocket or NATS) for status events
and falls back to polling the REST API whenever the channel is down.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetDebug(debugMode)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .instsync.yaml, searched upward)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "log connection and pull activity")
	rootCmd.PersistentFlags().BoolVar(&machineMode, "json", false, "machine-readable JSON output")
}

// Config returns the --config flag value.
func Config() string {
	return cfgFile
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	if code, ok := errors.GetExitCode(err); ok {
		os.Exit(code)
	}

	if machineMode {
		_ = WriteJSONFromError(os.Stdout, err)
		os.Exit(1)
	}

	if isUnknownCommandError(err) {
		fmt.Fprintln(os.Stderr, err)
		if name := extractUnknownCommand(err); name != "" {
			fmt.Fprintf(os.Stderr, "Run 'instsync --help' to see what '%s' could have been.\n", name)
		}
		os.Exit(1)
	}

	fmt.Fprint(os.Stderr, err.Error())
	if !strings.HasSuffix(err.Error(), "\n") {
		fmt.Fprintln(os.Stderr)
	}
	os.Exit(1)
}

// isUnknownCommandError checks if the error is cobra's unknown command or flag error.
func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "unknown flag")
}

// extractUnknownCommand pulls the quoted command name out of cobra's error.
func extractUnknownCommand(err error) string {
	msg := err.Error()
	start := strings.Index(msg, `"`)
	if start == -1 {
		return ""
	}
	end := strings.Index(msg[start+1:], `"`)
	if end == -1 {
		return ""
	}
	return msg[start+1 : start+1+end]
}
