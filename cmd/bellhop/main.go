package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

type rootFlags struct {
	configPath string
	logJSON    bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:          "bellhop",
		Short:        "Bellhop: hotel guest request dispatch",
		Long:         "Bellhop classifies guest requests, assigns them to staff over WhatsApp and tracks them to completion.",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "bellhop.yaml", "path to Bellhop config file")
	cmd.PersistentFlags().BoolVar(&flags.logJSON, "log-json", false, "log as JSON instead of text")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newHeartbeatCmd(flags))
	cmd.AddCommand(newEscalateCmd(flags))
	cmd.AddCommand(newDBCmd(flags))
	cmd.AddCommand(newTasksCmd(flags))
	cmd.AddCommand(newAlertsCmd(flags))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bellhop %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

// newLogger builds the process logger and installs it as the slog default.
func newLogger(w io.Writer, flags *rootFlags) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(flags.logLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if flags.logJSON {
		h = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()
	os.Exit(execute(newRootCmd()))
}
