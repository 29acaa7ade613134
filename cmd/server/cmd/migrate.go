package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Togather-Foundation/places/internal/config"
	"github.com/Togather-Foundation/places/internal/storage/postgres"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
	Long: `Apply or roll back schema migrations embedded in the binary.

Examples:
  # Apply all pending migrations
  server migrate up

  # Roll back the last migration
  server migrate down 1

  # Show the applied version
  server migrate version

  # Install or upgrade River's job tables
  server migrate river`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadDatabaseConfig()
		if err != nil {
			return err
		}
		if err := postgres.MigrateUp(cfg.Database.URL); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back migrations (default 1 step)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, err := parseSteps(args)
		if err != nil {
			return err
		}
		cfg, err := loadDatabaseConfig()
		if err != nil {
			return err
		}
		if err := postgres.MigrateDown(cfg.Database.URL, steps); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadDatabaseConfig()
		if err != nil {
			return err
		}
		version, dirty, err := postgres.MigrateVersion(cfg.Database.URL)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "version: %d\n", version)
		if dirty {
			fmt.Fprintln(out, "state:   dirty (fix the failed migration, then force the version)")
		}
		return nil
	},
}

var migrateRiverCmd = &cobra.Command{
	Use:   "river",
	Short: "Install or upgrade River's job tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadDatabaseConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(commandContext(cmd), time.Minute)
		defer cancel()
		pool, err := postgres.Open(ctx, cfg.Database.URL, postgres.PoolConfig{MaxConns: 2})
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.MigrateRiver(ctx, pool); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "river migrations applied")
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd, migrateRiverCmd)
}

func parseSteps(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}
	steps, err := strconv.Atoi(args[0])
	if err != nil || steps <= 0 {
		return 0, fmt.Errorf("steps must be a positive integer, got %q", args[0])
	}
	return steps, nil
}

// loadDatabaseConfig loads config for commands that only need PostgreSQL,
// so a missing JWT secret does not block schema work.
func loadDatabaseConfig() (config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}
	if cfg.Storage.Driver != config.DriverPostgres {
		return config.Config{}, fmt.Errorf("storage driver %q has no schema; use %q", cfg.Storage.Driver, config.DriverPostgres)
	}
	if cfg.Database.URL == "" {
		return config.Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
