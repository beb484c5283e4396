package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHeartbeatCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat",
		Short: "Run one dispatch sweep",
		Long:  "Recovers timed-out assignments, then claims, classifies and assigns pending requests once.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd.ErrOrStderr(), flags)
			cfg, gormDB, err := connectFromConfig(flags.configPath)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, gormDB, logger)
			if err != nil {
				return err
			}

			r, err := a.engine.Heartbeat(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Processed %d: %d assigned, %d failed (%d retrying, %d dead-lettered, %d conflicts)\n",
				r.Processed, r.Successful, r.Failed, r.Retried, r.DeadLettered, r.Conflicts)
			fmt.Fprintf(out, "Timeouts %d: %d reassigned, %d requeued\n", r.Timeouts, r.Reassigned, r.Requeued)
			fmt.Fprintf(out, "Took %dms\n", r.DurationMS)
			return nil
		},
	}
}

func newEscalateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "escalate",
		Short: "Re-send alerts left unacknowledged",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd.ErrOrStderr(), flags)
			cfg, gormDB, err := connectFromConfig(flags.configPath)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, gormDB, logger)
			if err != nil {
				return err
			}
			n, err := a.raiser.Escalate(cmd.Context(), cfg.Dispatch.EscalateAfter())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Escalated %d alert(s)\n", n)
			return nil
		},
	}
}
