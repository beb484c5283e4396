package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/efyoos/bellhop/internal/store"
	"github.com/efyoos/bellhop/internal/task"
)

func newTasksCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect guest requests",
	}
	cmd.AddCommand(newTasksListCmd(flags))
	cmd.AddCommand(newTasksShowCmd(flags))
	cmd.AddCommand(newTasksFailedCmd(flags))
	return cmd
}

func newTasksListCmd(flags *rootFlags) *cobra.Command {
	var filters task.ListFilters

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests, highest priority first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTasksList(cmd, flags.configPath, filters)
		},
	}
	cmd.Flags().StringVar(&filters.HotelID, "hotel", "", "filter by hotel ID")
	cmd.Flags().StringVar(&filters.Status, "status", "", "filter by status")
	cmd.Flags().IntVar(&filters.Limit, "limit", 50, "maximum rows")
	return cmd
}

func runTasksList(cmd *cobra.Command, configPath string, filters task.ListFilters) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	tasks, err := task.List(cmd.Context(), gormDB, filters)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No requests found.")
		return nil
	}

	width := textWidth(out, 72)
	now := time.Now()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCODE\tHOTEL\tROOM\tSTATUS\tCATEGORY\tURGENCY\tAGE\tREQUEST")
	for _, t := range tasks {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.ShortCode, t.HotelID, t.RoomNumber, t.Status,
			orDash(t.CategoryOrEmpty()), t.Urgency, formatAge(t.CreatedAt, now), truncate(t.RequestText, width))
	}
	return w.Flush()
}

func newTasksShowCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one request and its lifecycle history",
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
			t, err := task.Get(cmd.Context(), gormDB, id)
			if err != nil {
				return err
			}
			events, err := store.New(gormDB).Events(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Request #%d (%s)\n", t.ID, t.ShortCode)
			fmt.Fprintf(out, "  Hotel:    %s  Room: %s\n", t.HotelID, t.RoomNumber)
			fmt.Fprintf(out, "  Status:   %s (v%d)\n", t.Status, t.AssignmentVersion)
			fmt.Fprintf(out, "  Category: %s  Urgency: %s  Priority: %d\n", orDash(t.CategoryOrEmpty()), t.Urgency, t.Priority)
			if t.AssignedTo != nil {
				fmt.Fprintf(out, "  Staff:    %d\n", *t.AssignedTo)
			}
			if t.RetryCount > 0 {
				fmt.Fprintf(out, "  Retries:  %d/%d  Last error: %s\n", t.RetryCount, t.MaxRetries, t.LastError)
			}
			fmt.Fprintf(out, "  Request:  %s\n", t.RequestText)

			if len(events) > 0 {
				fmt.Fprintln(out, "\nHistory:")
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				for _, e := range events {
					fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", e.CreatedAt.Format(time.DateTime), e.EventType, e.Actor, e.Notes)
				}
				return w.Flush()
			}
			return nil
		},
	}
}

func newTasksFailedCmd(flags *rootFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List dead-lettered requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(flags.configPath)
			if err != nil {
				return err
			}
			jobs, err := store.New(gormDB).FailedJobs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No failed requests.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TASK\tHOTEL\tRETRIES\tFAILED\tREASON")
			for _, j := range jobs {
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n",
					j.TaskID, j.HotelID, j.RetryCount, j.FailedAt.Format(time.DateTime), truncate(j.Reason, textWidth(out, 50)))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func parseID(s string) (uint, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return uint(n), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
