package appstate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fieldledger/fieldledger/internal/features"
)

func TestNavigate(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		flags    []string
		path     string
		allowed  bool
		redirect string
		reason   string
	}{
		{name: "install sees install", state: Install, path: "/install", allowed: true},
		{name: "install sent to install", state: Install, path: "/clients", redirect: InstallPath, reason: ReasonOnboarding},
		{name: "install unknown path", state: Install, path: "/nowhere", redirect: InstallPath, reason: ReasonOnboarding},
		{name: "install may open settings", state: Install, path: "/settings", allowed: true},
		{name: "setup sees setup", state: SetupIncomplete, path: "/setup", allowed: true},
		{name: "setup sent to setup", state: SetupIncomplete, path: "/invoices/new", redirect: SetupPath, reason: ReasonSetup},
		{name: "setup unknown path", state: SetupIncomplete, path: "/nowhere", redirect: SetupPath, reason: ReasonSetup},
		{name: "setup can reach billing", state: SetupIncomplete, path: "/billing", allowed: true},
		{name: "base dashboard", state: Base, path: "/dashboard", allowed: true},
		{name: "base nested client route", state: Base, path: "/clients/42/edit", allowed: true},
		{name: "base materials paywalled", state: Base, path: "/materials", redirect: UpgradePath, reason: ReasonUpgrade},
		{name: "base mileage paywalled", state: Base, path: "/mileage", redirect: UpgradePath, reason: ReasonUpgrade},
		{name: "base on install gate", state: Base, path: "/install", redirect: DashboardPath, reason: ReasonForbidden},
		{name: "base upgrade page", state: Base, path: "/upgrade", allowed: true},
		{name: "trial mileage reports", state: Trial, path: "/mileage/reports", allowed: true},
		{name: "paid mileage", state: Paid, path: "/mileage", allowed: true},
		{name: "paid mileage reports without flag", state: Paid, path: "/mileage/reports", redirect: UpgradePath, reason: ReasonUpgrade},
		{name: "paid mileage reports with flag", state: Paid, flags: []string{features.MileagePro}, path: "/mileage/reports/2025", allowed: true},
		{name: "paid financial reports with flag", state: Paid, flags: []string{features.FinancialPro}, path: "/reports", allowed: true},
		{name: "paid admin", state: Paid, path: "/admin", redirect: DashboardPath, reason: ReasonForbidden},
		{name: "paid unknown", state: Paid, path: "/teleport", redirect: DashboardPath, reason: ReasonUnknown},
		{name: "paid on setup gate", state: Paid, path: "/setup", redirect: DashboardPath, reason: ReasonForbidden},
		{name: "preview admin", state: AdminPreview, path: "/admin/accounts", allowed: true},
		{name: "normalises case and slash", state: Base, path: "/Clients/", allowed: true},
		{name: "ignores query string", state: Base, path: "/quotes?status=draft", allowed: true},
		{name: "prefix must be a segment", state: Base, path: "/clientsx", redirect: DashboardPath, reason: ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Navigate(tt.state, tt.flags, tt.path)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.redirect, d.RedirectTo)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestRouteFeature(t *testing.T) {
	f, ok := RouteFeature("/mileage/reports")
	assert.True(t, ok)
	assert.Equal(t, MileagePro, f)

	f, ok = RouteFeature("/mileage/trips")
	assert.True(t, ok)
	assert.Equal(t, Mileage, f)

	_, ok = RouteFeature("/")
	assert.False(t, ok)
}
