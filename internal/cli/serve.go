package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/daemon"
	"github.com/wardenhq/warden/internal/metrics"
)

func newServeCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon: supervised workers, journal and control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}

			logger := newLogger(cmd.ErrOrStderr(), cfg.Daemon.Log)
			slog.SetDefault(logger)
			metrics.EmitBuildInfo()

			d, err := daemon.New(cfg, daemon.Options{Logger: logger, Version: Version})
			if err != nil {
				return err
			}
			return d.Run(cmd.Context())
		},
	}
	return cmd
}

// newLogger builds the daemon logger from the daemon.log configuration.
// Level and format default to info/text; Validate has already rejected
// anything outside the supported sets.
func newLogger(w io.Writer, spec config.LogSpec) *slog.Logger {
	var level slog.Level
	switch spec.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if spec.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
