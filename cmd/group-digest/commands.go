package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ryosukesatoh/group-digest/internal/fetcher"
	"github.com/ryosukesatoh/group-digest/internal/runner"
	"github.com/ryosukesatoh/group-digest/internal/server"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API used by the browser extension.

Routes:
  POST /api/summarize  summarize a capture and deliver the digest
  GET  /health         check the novelty store
  GET  /metrics        Prometheus metrics
  GET  /digests/       latest digests (web publisher only)`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, c)
		},
	}
}

func runServe(ctx context.Context, c *cli) error {
	a, err := buildApp(c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var opts []server.Option
	opts = append(opts, server.WithLogger(c.logger))
	if a.web != nil {
		opts = append(opts, server.WithDigests(a.web.Handler()))
	}
	srv := server.New(c.cfg.Server, a.runner, a.store, opts...)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gCtx.Done()
		c.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newRunCmd(c *cli) *cobra.Command {
	var (
		file     string
		provider string
		style    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Summarize one capture file and print the outcome",
		Long: `Summarize one capture file and deliver the digest.

A capture is a JSON document:
  {"groupName": "...", "posts": [...], "screenshots": ["data:image/png;base64,..."]}

The outcome is printed as JSON. The command fails when the run fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read capture: %w", err)
			}
			var capture fetcher.Capture
			if err := json.Unmarshal(data, &capture); err != nil {
				return fmt.Errorf("decode capture %s: %w", file, err)
			}
			if provider != "" {
				capture.Provider = provider
			}
			if style != "" {
				capture.Style = style
			}

			req, err := runner.NewRequest(&capture)
			if err != nil {
				return err
			}

			a, err := buildApp(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			out := a.runner.Run(cmd.Context(), req)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			if out.Failure != nil {
				return out.Failure
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "capture file to summarize")
	cmd.Flags().StringVar(&provider, "provider", "", "summarizer backend for this run (anthropic, openai)")
	cmd.Flags().StringVar(&style, "style", "", "digest style for this run (list, overview)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newScheduleCmd(c *cli) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Process the inbox directory on the configured cron schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runSchedule(ctx, c, once)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "process the inbox once and exit")
	return cmd
}

func runSchedule(ctx context.Context, c *cli, once bool) error {
	f, err := fetcher.New(c.cfg)
	if err != nil {
		return err
	}

	a, err := buildApp(c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	processInbox := func() {
		if _, err := a.runner.RunInbox(ctx, f); err != nil {
			c.logger.Error("inbox run failed", slog.String("error", err.Error()))
		}
	}

	// Single-run mode: process the inbox once and exit
	if once {
		_, err := a.runner.RunInbox(ctx, f)
		return err
	}

	if a.web != nil {
		if err := a.web.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.web.Shutdown(shutdownCtx); err != nil {
				c.logger.Error("web server shutdown error", slog.String("error", err.Error()))
			}
		}()
	}

	if c.cfg.RunOnStart {
		c.logger.Info("running initial inbox pass")
		processInbox()
	}

	sched := cron.New()
	if _, err := sched.AddFunc(c.cfg.Schedule, func() {
		c.logger.Info("cron triggered, processing inbox")
		processInbox()
	}); err != nil {
		return fmt.Errorf("failed to set up cron schedule %q: %w", c.cfg.Schedule, err)
	}
	sched.Start()
	c.logger.Info("scheduled inbox processing", slog.String("schedule", c.cfg.Schedule))

	<-ctx.Done()
	c.logger.Info("shutting down scheduler")
	<-sched.Stop().Done()
	return nil
}
