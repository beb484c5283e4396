package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/efyoos/bellhop/internal/models"
	"github.com/efyoos/bellhop/internal/store"
)

func newAlertsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List and close operational alerts",
	}
	cmd.AddCommand(newAlertsListCmd(flags))
	cmd.AddCommand(newAlertCloseCmd(flags, "ack", "Acknowledge an alert", (*store.Store).AcknowledgeAlert))
	cmd.AddCommand(newAlertCloseCmd(flags, "resolve", "Resolve an alert", (*store.Store).ResolveAlert))
	return cmd
}

func newAlertsListCmd(flags *rootFlags) *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(flags.configPath)
			if err != nil {
				return err
			}
			alerts, err := store.New(gormDB).ListAlerts(cmd.Context(), status, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(alerts) == 0 {
				fmt.Fprintln(out, "No alerts found.")
				return nil
			}
			now := time.Now()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tSEVERITY\tSTATUS\tHOTEL\tAGE\tMESSAGE")
			for _, a := range alerts {
				hotel := "-"
				if a.HotelID != nil {
					hotel = *a.HotelID
				}
				state := a.Status
				if a.EscalatedAt != nil && a.Status == models.AlertActive {
					state += " (escalated)"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					a.ID, a.AlertType, a.Severity, state, hotel, formatAge(a.CreatedAt, now), truncate(a.Message, textWidth(out, 80)))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (active, acknowledged, resolved)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

type closeAlertFunc func(s *store.Store, ctx context.Context, id uint) (*models.OperationalAlert, error)

func newAlertCloseCmd(flags *rootFlags, use, short string, closeAlert closeAlertFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			_, gormDB, err := connectFromConfig(flags.configPath)
			if err != nil {
				return err
			}
			a, err := closeAlert(store.New(gormDB), cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Alert #%d is now %s\n", a.ID, a.Status)
			return nil
		},
	}
}
