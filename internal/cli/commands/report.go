package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fieldledger/fieldledger/internal/cli/ui"
	"github.com/fieldledger/fieldledger/internal/clients"
	"github.com/fieldledger/fieldledger/internal/mileage"
)

var (
	reportAccount string
	reportYear    int
)

// NewReportCommand creates the report command
func NewReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print account reports",
	}

	mileageCmd := &cobra.Command{
		Use:   "mileage",
		Short: "Print an account's mileage summary for a tax year",
		Args:  cobra.NoArgs,
		RunE:  runMileageReport,
	}
	mileageCmd.Flags().StringVar(&reportAccount, "account", "", "Account ID (required)")
	mileageCmd.Flags().IntVar(&reportYear, "year", time.Now().Year(), "Tax year")
	mileageCmd.MarkFlagRequired("account")

	cmd.AddCommand(mileageCmd)
	return cmd
}

func runMileageReport(cmd *cobra.Command, args []string) error {
	accountID, err := uuid.Parse(reportAccount)
	if err != nil {
		return fmt.Errorf("invalid account id %q", reportAccount)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	conn, err := openDB(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	svc := mileage.NewService(mileage.NewRepository(conn), clients.NewRepository(conn), mileage.RateTable(cfg.MileageRates()))
	summary, err := svc.YearSummary(cmd.Context(), accountID, reportYear)
	if err != nil {
		return err
	}
	return renderMileage(cmd.OutOrStdout(), summary)
}

func renderMileage(w io.Writer, s mileage.YearSummary) error {
	ui.Field(w, "Tax year", s.Year)
	if s.RateKnown {
		ui.Field(w, "Rate", fmt.Sprintf("$%.4f/mi", float64(s.Rate)/10000))
	} else {
		ui.Warn(w, "No mileage rate configured for %d; deductions are zero", s.Year)
	}

	rows := make([][]string, 0, len(s.Months)+1)
	for _, m := range s.Months {
		rows = append(rows, []string{
			m.Month.String(),
			fmt.Sprintf("%d", m.Trips),
			fmt.Sprintf("%.1f", m.BusinessMiles),
			m.Deduction.Format(),
		})
	}
	rows = append(rows, []string{
		"Total",
		fmt.Sprintf("%d", s.Trips),
		fmt.Sprintf("%.1f", s.BusinessMiles),
		s.Deduction.Format(),
	})

	return ui.Table(w, []string{"Month", "Trips", "Business miles", "Deduction"}, rows)
}
