package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fieldledger/fieldledger/internal/app"
	"github.com/fieldledger/fieldledger/internal/cli/ui"
	"github.com/fieldledger/fieldledger/internal/config"
	"github.com/fieldledger/fieldledger/internal/db/migrations"
	"github.com/fieldledger/fieldledger/internal/logging"
)

var serveMigrate bool

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and job workers",
		Long: `Start the FieldLedger API, web app and background job workers.

The server shuts down gracefully on SIGINT or SIGTERM: it stops accepting
connections, lets in-flight requests and jobs finish, then closes redis and
the database.`,
		RunE: runServe,
	}

	cmd.Flags().BoolVar(&serveMigrate, "migrate", false, "Apply pending migrations before serving")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if serveMigrate {
		if err := migrateUp(cfg); err != nil {
			return err
		}
		ui.Success(cmd.OutOrStdout(), "Migrations applied")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("starting fieldledger",
		zap.String("version", Version),
		zap.String("environment", cfg.App.Environment),
		zap.String("address", cfg.Server.Address))

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Environment: cfg.App.Environment,
		Level:       cfg.App.LogLevel,
		ServiceName: cfg.App.Name,
	})
}

func migrateUp(cfg *config.Config) error {
	runner, err := migrations.NewRunner(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer runner.Close()
	return runner.Up()
}
