package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ryosukesatoh/group-digest/internal/config"
)

// cli holds what every command needs once flags are parsed.
type cli struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "group-digest",
		Short: "Summarize what is new in a group and deliver the digest",
		Long: `group-digest turns posts captured from a group page (as text or
screenshots) into a short markdown digest of what is new since the last one.

Commands:
  serve     Accept captures over HTTP from the browser extension
  run       Summarize a single capture file
  schedule  Process the inbox directory on a cron schedule`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			c.cfg = cfg
			c.logger = logger
			return nil
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "config.yaml", "path to config file")

	root.AddCommand(newServeCmd(c), newRunCmd(c), newScheduleCmd(c))
	return root
}

// newLogger builds the process logger from the log section.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("config: invalid log level %q: %w", cfg.Level, err)
	}
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}
