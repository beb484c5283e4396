package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/efyoos/bellhop/internal/config"
	"github.com/efyoos/bellhop/internal/db"
)

func newDBCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}
	cmd.AddCommand(newDBInitCmd(flags))
	cmd.AddCommand(newDBMigrateCmd(flags))
	return cmd
}

func newDBInitCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the Bellhop database",
		Long:  "Creates the database when the driver supports it, migrates all tables and seeds hotel staff and admins from the config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, flags.configPath)
		},
	}
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Fprintf(out, "Loaded config for %d hotel(s) from %s\n", len(cfg.Hotels), configPath)

	if err := db.CreateDatabase(cfg.Database); err != nil {
		return err
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to %s database: %w", cfg.Database.Driver, err)
	}
	fmt.Fprintf(out, "Connected to %s database %s\n", cfg.Database.Driver, cfg.Database.Name)

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	staff, admins, err := db.SeedHotels(gormDB, cfg.Hotels)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d staff and %d admin(s)\n", staff, admins)
	fmt.Fprintln(out, "Bellhop database initialized successfully")
	return nil
}

func newDBMigrateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations without seeding",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(flags.configPath)
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(gormDB); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d tables\n", len(db.AllModels()))
			return nil
		},
	}
}
