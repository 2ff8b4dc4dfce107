package commands

import (
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fieldledger/fieldledger/internal/cli/ui"
	"github.com/fieldledger/fieldledger/internal/config"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

var configPath string

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fieldledger",
		Short: "FieldLedger back office for independent trades businesses",
		Long: color.CyanString(`FieldLedger - back office for independent trades businesses

Serves the FieldLedger API and web app, runs background jobs and
provides operator tooling.

Configuration is read from fieldledger.yaml, .env and FIELDLEDGER_*
environment variables.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewMigrateCommand())
	rootCmd.AddCommand(NewAdminCommand())
	rootCmd.AddCommand(NewReportCommand())
	rootCmd.AddCommand(NewRoutesCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the FieldLedger version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			out := cmd.OutOrStdout()
			ui.Field(out, "FieldLedger version", Version)
			ui.Field(out, "Git commit", GitCommit)
			ui.Field(out, "Build date", BuildDate)
			ui.Field(out, "Go version", goVer)
		},
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		ui.Error(rootCmd.ErrOrStderr(), "%v", err)
		return err
	}
	return nil
}
