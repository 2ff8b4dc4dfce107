package commands

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fieldledger/fieldledger/internal/app"
	"github.com/fieldledger/fieldledger/internal/cli/ui"
	"github.com/fieldledger/fieldledger/internal/web/router"
)

// NewRoutesCommand creates the routes command
func NewRoutesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List the HTTP routes",
		Long:  "List every HTTP route with its path parameters and whether it requires a token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return renderRoutes(cmd.OutOrStdout(), app.Routes(cfg))
		},
	}
}

func renderRoutes(w io.Writer, routes []router.RouteInfo) error {
	rows := make([][]string, 0, len(routes))
	for _, r := range routes {
		auth := "public"
		if r.Protected {
			auth = "token"
		}
		rows = append(rows, []string{r.Method, r.Pattern, strings.Join(r.Parameters, ", "), auth})
	}
	return ui.Table(w, []string{"Method", "Pattern", "Params", "Auth"}, rows)
}
