// Package cli implements the warden command line interface: the serve
// command that runs the daemon, and the operator commands that talk to a
// running daemon over its control API.
package cli

import (
	stdcontext "context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/client"
	"github.com/wardenhq/warden/internal/config"
)

// Version is stamped by the release build; "dev" otherwise.
var Version = "dev"

const (
	defaultConfigFile = "warden.yaml"
	defaultAPIURL     = "http://127.0.0.1:7878"
	defaultAPITimeout = 10 * time.Second

	envAPIURL = "WARDEN_API"
	envToken  = "WARDEN_TOKEN"
)

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	var (
		configFile string
		apiURL     string
		token      string
	)

	root := &cobra.Command{
		Use:   "warden",
		Short: "Process supervision daemon with crash injection and journal replication",
	}

	root.PersistentFlags().
		StringVarP(&configFile, "config", "c", defaultConfigFile, "Path to the daemon configuration")
	root.PersistentFlags().
		StringVar(&apiURL, "api", "", "Control API address (defaults to $"+envAPIURL+" or "+defaultAPIURL+")")
	root.PersistentFlags().
		StringVar(&token, "token", "", "Bearer token for the control API (defaults to $"+envToken+")")

	ctx := &context{configFile: &configFile, apiURL: &apiURL, token: &token}
	root.AddCommand(newServeCmd(ctx))
	root.AddCommand(newStatusCmd(ctx))
	root.AddCommand(newSignalCmd(ctx))
	root.AddCommand(newPanicCmd(ctx))
	root.AddCommand(newFatalCmd(ctx))
	root.AddCommand(newTimelinesCmd(ctx))
	root.AddCommand(newJournalCmd(ctx))
	root.AddCommand(newPromoteCmd(ctx))
	root.AddCommand(newConfigCmd(ctx))
	root.AddCommand(newVersionCmd())

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type context struct {
	configFile *string
	apiURL     *string
	token      *string
}

func (c *context) loadConfig() (*config.Config, error) {
	return config.Load(*c.configFile)
}

func (c *context) client() (*client.Client, error) {
	return client.New(client.Config{
		BaseURL: c.baseURL(),
		Token:   c.bearerToken(),
		Timeout: defaultAPITimeout,
	})
}

func (c *context) baseURL() string {
	if *c.apiURL != "" {
		return *c.apiURL
	}
	if env := os.Getenv(envAPIURL); env != "" {
		return env
	}
	return defaultAPIURL
}

func (c *context) bearerToken() string {
	if *c.token != "" {
		return *c.token
	}
	return os.Getenv(envToken)
}
