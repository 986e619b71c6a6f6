package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/cliutil"
)

func newJournalCmd(ctx *context) *cobra.Command {
	var (
		after   uint64
		limit   int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List the daemon's journal records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := ctx.client()
			if err != nil {
				return err
			}
			page, err := cl.JournalRecords(cmd.Context(), after, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				for _, rec := range page.Records {
					cliutil.EncodeRecord(enc, cmd.ErrOrStderr(), rec)
				}
				return nil
			}

			if len(page.Records) == 0 {
				fmt.Fprintln(out, "(no records)")
				return nil
			}
			for _, rec := range page.Records {
				fmt.Fprintln(out, cliutil.RecordLine(rec))
			}
			fmt.Fprintf(out, "\nnext cursor: %d\n", page.Next)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&after, "after", 0, "List records with sequence numbers greater than this")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of records to fetch")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit records as JSON lines")
	return cmd
}
