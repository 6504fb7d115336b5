package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version information set via ldflags at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// versionShort controls whether to show short or full version output
var versionShort bool

// VersionOutput is the --json shape of the version command.
type VersionOutput struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
	OSArch  string `json:"os_arch"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of instsync.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printVersion(cmd)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print only the version number")
}

func printVersion(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	if machineMode {
		return WriteJSONSuccess(out, VersionOutput{
			Version: version,
			Commit:  commit,
			Date:    date,
			Go:      runtime.Version(),
			OSArch:  runtime.GOOS + "/" + runtime.GOARCH,
		})
	}
	if versionShort {
		fmt.Fprintln(out, version)
		return nil
	}

	fmt.Fprintf(out, "instsync %s\n", formatVersion(version))
	fmt.Fprintf(out, "commit: %s\n", commit)
	fmt.Fprintf(out, "built: %s\n", date)
	fmt.Fprintf(out, "go: %s\n", runtime.Version())
	fmt.Fprintf(out, "os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	return nil
}

// formatVersion ensures version has a 'v' prefix for display
func formatVersion(v string) string {
	if v == "" || v == "dev" {
		return v
	}
	if v[0] != 'v' {
		return "v" + v
	}
	return v
}

// SetVersionInfo sets the version information (called from main).
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

// GetVersion returns the current version string.
func GetVersion() string {
	return version
}
