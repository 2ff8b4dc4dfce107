package commands

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldledger/fieldledger/internal/mileage"
	"github.com/fieldledger/fieldledger/internal/money"
	"github.com/fieldledger/fieldledger/internal/web/router"
)

func init() {
	color.NoColor = true
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	if cmd.Use != "fieldledger" {
		t.Errorf("expected Use to be 'fieldledger', got %s", cmd.Use)
	}

	if cmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	if cmd.PersistentFlags().Lookup("config") == nil {
		t.Error("expected --config flag to be registered")
	}

	expectedCommands := []string{"version", "serve", "migrate", "admin", "report", "routes"}
	for _, expected := range expectedCommands {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected command %s to be registered", expected)
		}
	}
}

func TestMigrateSubcommands(t *testing.T) {
	cmd := NewMigrateCommand()

	names := []string{}
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"up", "down", "version", "force"}, names)
}

func TestVersionCommand(t *testing.T) {
	Version = "1.2.3-test"
	GitCommit = "abc123"
	BuildDate = "2025-01-01"
	GoVersion = "go1.23"

	cmd := NewVersionCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.Run(cmd, nil)

	assert.Contains(t, out.String(), "FieldLedger version: 1.2.3-test")
	assert.Contains(t, out.String(), "Git commit: abc123")
	assert.Contains(t, out.String(), "Go version: go1.23")
}

func TestParseSteps(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    int
		wantErr bool
	}{
		{"default", nil, 1, false},
		{"explicit", []string{"3"}, 3, false},
		{"zero", []string{"0"}, 0, true},
		{"negative", []string{"-2"}, 0, true},
		{"not a number", []string{"all"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSteps(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestForceRejectsBadVersion(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"migrate", "force", "latest"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid version")
}

func TestReportMileageRequiresAccount(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"report", "mileage", "--account", "not-a-uuid"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid account id")
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validateEmail("owner@example.com"))
	assert.Error(t, validateEmail("owner"))
	assert.Error(t, validatePassword("short"))
}

func TestRenderMileage(t *testing.T) {
	summary := mileage.YearSummary{
		Year:          2024,
		Trips:         3,
		BusinessMiles: 120.5,
		Rate:          6700,
		RateKnown:     true,
		Deduction:     money.Cents(8074),
		Months: []mileage.MonthSummary{
			{Month: time.January, Trips: 2, BusinessMiles: 100, Deduction: 6700},
			{Month: time.March, Trips: 1, BusinessMiles: 20.5, Deduction: 1374},
		},
	}

	var out bytes.Buffer
	require.NoError(t, renderMileage(&out, summary))

	text := out.String()
	assert.Contains(t, text, "Tax year: 2024")
	assert.Contains(t, text, "$0.6700/mi")
	assert.Contains(t, text, "January")
	assert.Contains(t, text, "120.5")
	assert.Contains(t, text, "$80.74")
}

func TestRenderMileageWithoutRate(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, renderMileage(&out, mileage.YearSummary{Year: 2030}))
	assert.Contains(t, out.String(), "No mileage rate configured for 2030")
}

func TestRenderRoutes(t *testing.T) {
	routes := []router.RouteInfo{
		{Method: "GET", Pattern: "/healthz"},
		{Method: "GET", Pattern: "/api/clients/{id}", Parameters: []string{"id"}, Protected: true},
	}

	var out bytes.Buffer
	require.NoError(t, renderRoutes(&out, routes))

	text := out.String()
	assert.Contains(t, text, "/api/clients/{id}")
	assert.Contains(t, text, "public")
	assert.Contains(t, text, "token")
}
