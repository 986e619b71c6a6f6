package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/client"
)

func newPromoteCmd(ctx *context) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Promote a standby daemon onto a new timeline",
		Long: `Promote a standby daemon: its journal switches to a fresh timeline, the
follower stops, and the configured workers start. The daemon stops replaying
its former primary's history permanently.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := confirm(cmd, "end standby mode and start this daemon's workers")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "cancelled")
					return nil
				}
			}
			cl, err := ctx.client()
			if err != nil {
				return err
			}
			result, err := cl.Promote(cmd.Context())
			if err != nil {
				if client.IsCode(err, "not_standby") {
					return fmt.Errorf("daemon is not a standby: %w", err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "promoted to timeline %d\n", result.Timeline)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}
