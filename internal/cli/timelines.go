package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/cliutil"
)

func newTimelinesCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timelines",
		Short: "Show the daemon's replication timeline positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := ctx.client()
			if err != nil {
				return err
			}
			report, err := cl.Timelines(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "current\t%s\n", cliutil.FormatTimeline(report.Current))
			fmt.Fprintf(w, "last replayed\t%s\n", cliutil.FormatTimeline(report.LastReplayed))
			fmt.Fprintf(w, "last received\t%s\n", cliutil.FormatTimeline(report.LastReceived))
			return w.Flush()
		},
	}
	return cmd
}
