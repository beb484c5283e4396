package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/efyoos/bellhop/internal/scheduler"
	"github.com/efyoos/bellhop/internal/server"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the heartbeat scheduler",
		Long:  "Serves request intake, the WhatsApp webhook and the alert API, and runs the heartbeat and alert escalation on their configured schedules.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags, noScheduler)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "only serve HTTP; heartbeats come from POST /heartbeat")
	return cmd
}

func runServe(cmd *cobra.Command, flags *rootFlags, noScheduler bool) error {
	logger := newLogger(cmd.ErrOrStderr(), flags)
	cfg, gormDB, err := connectFromConfig(flags.configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, gormDB, logger)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(ctx, server.Opts{
			DB:          a.db,
			Store:       a.store,
			Engine:      a.engine,
			Replies:     a.replies,
			Server:      cfg.Server,
			VerifyToken: cfg.WhatsApp.VerifyToken,
			MaxRetries:  cfg.Dispatch.MaxRetries,
			Logger:      logger,
			Out:         cmd.OutOrStdout(),
		})
	})
	if !noScheduler {
		sched, err := scheduler.New(logger,
			scheduler.Job{
				Name:     "heartbeat",
				Schedule: cfg.Dispatch.HeartbeatSchedule,
				Run: func(ctx context.Context) error {
					_, err := a.engine.Heartbeat(ctx)
					return err
				},
			},
			scheduler.Job{
				Name:     "escalate",
				Schedule: cfg.Dispatch.EscalationSchedule,
				Run: func(ctx context.Context) error {
					_, err := a.raiser.Escalate(ctx, cfg.Dispatch.EscalateAfter())
					return err
				},
			},
		)
		if err != nil {
			return err
		}
		g.Go(func() error { return sched.Run(ctx) })
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
