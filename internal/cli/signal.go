package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/cliutil"
)

func newSignalCmd(ctx *context) *cobra.Command {
	var sigName string

	cmd := &cobra.Command{
		Use:   "signal <pid> [pid...]",
		Short: "Send an OS signal to daemon-managed processes",
		Long: `Send an OS signal to one or more processes managed by the daemon,
addressed by pid. A pid the daemon does not manage is reported as a warning
and does not fail the command; delivery to the remaining pids continues.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pids := make([]int, 0, len(args))
			for _, raw := range args {
				pid, err := strconv.Atoi(raw)
				if err != nil || pid <= 0 {
					return fmt.Errorf("invalid pid %q", raw)
				}
				pids = append(pids, pid)
			}

			cl, err := ctx.client()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			paint := cliutil.NewPainter()
			missed := 0
			for _, pid := range pids {
				result, err := cl.Signal(cmd.Context(), pid, sigName)
				if err != nil {
					return err
				}
				if result.Delivered {
					fmt.Fprintf(out, "%s signal %d delivered to pid %d\n",
						paint.Good("ok:"), result.Signal, result.PID)
				} else {
					missed++
					fmt.Fprintf(out, "%s %s\n", paint.Warn("warning:"), result.Diagnostic)
				}
			}
			if missed > 0 {
				fmt.Fprintf(out, "%d of %d signals were not delivered\n", missed, len(pids))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&sigName, "signal", "s", "TERM", "Signal to send, by name or number")
	return cmd
}
