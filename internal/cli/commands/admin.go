package commands

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fieldledger/fieldledger/internal/accounts"
	"github.com/fieldledger/fieldledger/internal/cli/ui"
	"github.com/fieldledger/fieldledger/internal/config"
	"github.com/fieldledger/fieldledger/internal/db"
	"github.com/fieldledger/fieldledger/internal/db/transaction"
	"github.com/fieldledger/fieldledger/internal/web/auth"
)

var (
	adminEmail    string
	adminPassword string
)

// NewAdminCommand creates the admin command
func NewAdminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrator account management",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create an administrator account",
		Long: `Create an administrator account.

Missing --email or --password values are prompted for interactively.`,
		Args: cobra.NoArgs,
		RunE: runAdminCreate,
	}
	create.Flags().StringVar(&adminEmail, "email", "", "Administrator email address")
	create.Flags().StringVar(&adminPassword, "password", "", "Administrator password")

	cmd.AddCommand(create)
	return cmd
}

func runAdminCreate(cmd *cobra.Command, args []string) error {
	email, password := adminEmail, adminPassword
	if err := promptCredentials(&email, &password); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	conn, err := openDB(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	svc := accounts.NewService(
		accounts.NewRepository(conn),
		transaction.NewManager(conn),
		auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		cfg.Billing.TrialDays,
		logger,
	)

	a, err := svc.CreateAdmin(cmd.Context(), email, password)
	if errors.Is(err, accounts.ErrEmailTaken) {
		return errors.New("an account with that email already exists")
	}
	if err != nil {
		return err
	}

	ui.Success(cmd.OutOrStdout(), "Created administrator %s", a.Email)
	ui.Field(cmd.OutOrStdout(), "Account ID", a.ID)
	logger.Info("administrator created", zap.String("account_id", a.ID.String()))
	return nil
}

// promptCredentials asks for whichever of email and password is empty
func promptCredentials(email, password *string) error {
	if strings.TrimSpace(*email) == "" {
		prompt := &survey.Input{Message: "Administrator email:"}
		if err := survey.AskOne(prompt, email, survey.WithValidator(survey.ComposeValidators(survey.Required, validateEmail))); err != nil {
			return err
		}
	}

	if *password == "" {
		prompt := &survey.Password{Message: "Password:"}
		if err := survey.AskOne(prompt, password, survey.WithValidator(validatePassword)); err != nil {
			return err
		}

		var confirm string
		if err := survey.AskOne(&survey.Password{Message: "Confirm password:"}, &confirm); err != nil {
			return err
		}
		if confirm != *password {
			return errors.New("passwords do not match")
		}
	}
	return nil
}

func validateEmail(ans interface{}) error {
	s, _ := ans.(string)
	if !strings.Contains(s, "@") {
		return errors.New("enter a valid email address")
	}
	return nil
}

func validatePassword(ans interface{}) error {
	s, _ := ans.(string)
	return auth.ValidatePassword(s)
}

func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	return db.Open(ctx, cfg.Database.URL, db.PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1})
}
