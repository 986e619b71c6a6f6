package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newPanicCmd(ctx *context) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "panic",
		Short: "Abort the daemon and every managed process, as a real crash would",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := confirm(cmd, "abort the daemon and all managed processes")
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
			if err := cl.InducePanic(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "panic requested; the daemon is going down")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func newFatalCmd(ctx *context) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "fatal",
		Short: "Inject a fatal error that severs one control connection",
		Long: `Inject a fatal error into the daemon's control surface. The daemon drops
exactly the connection carrying this request and keeps serving everything
else; use it to test how clients handle an abruptly terminated session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := confirm(cmd, "sever one control connection")
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
			if err := cl.InduceFatal(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "fatal injected; the daemon severed this connection and keeps running")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func confirm(cmd *cobra.Command, action string) (bool, error) {
	fmt.Fprintf(cmd.OutOrStdout(), "This will %s. Continue? [y/N] ", action)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
