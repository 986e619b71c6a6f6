package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/api"
	"github.com/wardenhq/warden/internal/cliutil"
)

func newStatusCmd(ctx *context) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Display the daemon, its managed processes and replication positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := ctx.client()
			if err != nil {
				return err
			}
			report, err := cl.Status(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			renderStatus(cmd.OutOrStdout(), report, cliutil.NewPainter())
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the raw status report as JSON")
	return cmd
}

func renderStatus(out io.Writer, report *api.StatusReport, paint cliutil.Painter) {
	fmt.Fprintf(out, "Daemon: %s (%s, version %s, pid %d)\n",
		report.Daemon, report.Mode, report.Version, report.SupervisorPID)
	fmt.Fprintf(out, "Timelines: current=%s replayed=%s received=%s\n",
		cliutil.FormatTimeline(report.Timelines.Current),
		cliutil.FormatTimeline(report.Timelines.LastReplayed),
		cliutil.FormatTimeline(report.Timelines.LastReceived))
	fmt.Fprintln(out)

	if len(report.Workers) == 0 {
		fmt.Fprintln(out, "(no managed processes)")
	} else {
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tROLE\tPID\tSTATE\tCPU\tMEM\tRESTARTS\tAGE")
		now := time.Now()
		for _, ws := range report.Workers {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%d\t%s\n",
				ws.Name, ws.Role, ws.PID,
				paint.State(cliutil.FormatAlive(ws.Alive)),
				cliutil.FormatCPU(ws.CPUPercent),
				cliutil.FormatBytes(ws.RSSBytes),
				ws.Restarts,
				cliutil.FormatAge(ws.StartedAt, now))
		}
		w.Flush()
	}

	fmt.Fprintf(out, "\nGenerated at %s\n", report.GeneratedAt.Format(time.RFC3339))
}
