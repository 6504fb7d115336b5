package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rileyhilliard/instsync/internal/config"
	"github.com/rileyhilliard/instsync/internal/instance"
	"github.com/rileyhilliard/instsync/internal/provider"
	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"
)

var statusWait time.Duration

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the status of every instance",
	Long: `Print one line per managed instance plus a summary.

The snapshot comes from the REST API. With --wait, instsync also waits for
the push channel and asks it for a fresh snapshot before printing.

Examples:
  instsync status
  instsync status --wait 5s
  instsync status --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runStatus(cmd.Context(), cfg, statusWait, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().DurationVar(&statusWait, "wait", 0, "wait up to this long for a push snapshot (0 prints the pull snapshot)")
}

// StatusOutput is the --json shape of the status command.
type StatusOutput struct {
	Instances  []instance.Record `json:"instances"`
	Stats      instance.Stats    `json:"stats"`
	Connection ConnectionOutput  `json:"connection"`
}

// ConnectionOutput describes the push channel at print time.
type ConnectionOutput struct {
	State       string `json:"state"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	GaveUp      bool   `json:"gave_up"`
	LastError   string `json:"last_error,omitempty"`
}

func runStatus(ctx context.Context, cfg *config.Config, wait time.Duration, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := openProvider(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	if wait > 0 {
		if err := waitForPush(ctx, p, wait); err == nil {
			waitCtx, cancel := context.WithTimeout(ctx, wait)
			_ = p.RefreshAll().Wait(waitCtx)
			cancel()
		}
	}

	return writeStatus(w, snapshot(p), time.Now())
}

// snapshot captures what status prints.
func snapshot(c provider.Consumer) StatusOutput {
	info := c.ConnectionInfo()
	out := StatusOutput{
		Instances: c.Instances(),
		Stats:     c.StatusStats(),
		Connection: ConnectionOutput{
			State:       info.State.String(),
			Attempt:     info.Attempt,
			MaxAttempts: info.MaxAttempts,
			GaveUp:      info.GaveUp,
		},
	}
	if info.LastError != nil {
		out.Connection.LastError = info.LastError.Error()
	}
	if out.Instances == nil {
		out.Instances = []instance.Record{}
	}
	return out
}

func writeStatus(w io.Writer, s StatusOutput, now time.Time) error {
	if machineMode {
		return WriteJSONSuccess(w, s)
	}

	if len(s.Instances) == 0 {
		fmt.Fprintln(w, "No instances.")
	} else {
		lines := []string{"ID | NAME | ADDRESS | TYPE | STATUS | MONITORING | CPU | MEM | LAST CHECK"}
		for _, r := range s.Instances {
			lines = append(lines, strings.Join([]string{
				string(r.ID),
				dash(r.InstanceName),
				dash(r.Address()),
				dash(r.DBType),
				string(r.Status.Normalize()),
				onOff(r.IsMonitoring),
				strconv.Itoa(r.CPUUsage) + "%",
				strconv.Itoa(r.MemoryUsage) + "%",
				lastCheck(r, now),
			}, " | "))
		}
		fmt.Fprintln(w, columnize.SimpleFormat(lines))
	}

	fmt.Fprintf(w, "\n%d instances, %d running, %d error. Push channel: %s\n",
		s.Stats.Total, s.Stats.Running, s.Stats.Error, describeConnection(s.Connection))
	return nil
}

func describeConnection(c ConnectionOutput) string {
	switch {
	case c.State == "reconnecting":
		return fmt.Sprintf("reconnecting (%d/%d)", c.Attempt, c.MaxAttempts)
	case c.GaveUp:
		return "gave up after " + strconv.Itoa(c.MaxAttempts) + " retries"
	default:
		return c.State
	}
}

func lastCheck(r instance.Record, now time.Time) string {
	if r.LastCheckTime == nil {
		return "never"
	}
	return humanize.RelTime(*r.LastCheckTime, now, "ago", "from now")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
