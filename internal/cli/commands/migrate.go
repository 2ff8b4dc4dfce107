package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fieldledger/fieldledger/internal/cli/ui"
	"github.com/fieldledger/fieldledger/internal/db/migrations"
)

// NewMigrateCommand creates the migrate command
func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long: `Apply and manage the embedded database migrations.

Available subcommands:
  up       - Apply all pending migrations
  down     - Roll back migrations (default 1)
  version  - Show the applied version
  force    - Set the version without running migrations`,
	}

	cmd.AddCommand(newMigrateUpCommand())
	cmd.AddCommand(newMigrateDownCommand())
	cmd.AddCommand(newMigrateVersionCommand())
	cmd.AddCommand(newMigrateForceCommand())

	return cmd
}

func withRunner(fn func(r *migrations.Runner) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	runner, err := migrations.NewRunner(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer runner.Close()
	return fn(runner)
}

func newMigrateUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(func(r *migrations.Runner) error {
				ui.Info(cmd.OutOrStdout(), "Applying migrations...")
				if err := r.Up(); err != nil {
					return err
				}
				return printVersion(cmd, r)
			})
		},
	}
}

func newMigrateDownCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := parseSteps(args)
			if err != nil {
				return err
			}
			return withRunner(func(r *migrations.Runner) error {
				ui.Info(cmd.OutOrStdout(), "Rolling back %d migration(s)...", steps)
				if err := r.Down(steps); err != nil {
					return err
				}
				return printVersion(cmd, r)
			})
		},
	}
}

func newMigrateVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the applied migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(func(r *migrations.Runner) error {
				return printVersion(cmd, r)
			})
		},
	}
}

func newMigrateForceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Set the migration version and clear the dirty flag",
		Long: `Record a migration version without running any SQL.

Use this to recover from a failed migration after repairing the schema by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil || version < -1 {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return withRunner(func(r *migrations.Runner) error {
				if err := r.Force(version); err != nil {
					return err
				}
				ui.Success(cmd.OutOrStdout(), "Forced version %d", version)
				return nil
			})
		},
	}
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

func printVersion(cmd *cobra.Command, r *migrations.Runner) error {
	status, err := r.Version()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	ui.Field(out, "Schema version", status.Version)
	if status.Dirty {
		ui.Warn(out, "Database is dirty; repair the schema and run 'fieldledger migrate force %d'", status.Version)
	}
	return nil
}
