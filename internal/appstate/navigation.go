package appstate

import (
	"net/url"
	"path"
	"strings"
)

// Gate pages
const (
	InstallPath   = "/install"
	SetupPath     = "/setup"
	UpgradePath   = "/upgrade"
	DashboardPath = "/dashboard"
)

// Reasons attached to a redirect
const (
	ReasonOnboarding = "onboarding_required"
	ReasonSetup      = "setup_required"
	ReasonUpgrade    = "upgrade_required"
	ReasonForbidden  = "forbidden"
	ReasonUnknown    = "unknown_route"
)

// Decision is the outcome of a navigation check
type Decision struct {
	Allowed    bool   `json:"allowed"`
	Path       string `json:"path"`
	RedirectTo string `json:"redirect_to,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// routes maps SPA route prefixes to the feature guarding them. The longest
// matching prefix wins.
var routes = map[string]Feature{
	"/dashboard":       Dashboard,
	"/clients":         Clients,
	"/quotes":          Quotes,
	"/invoices":        Invoices,
	"/schedule":        Schedule,
	"/materials":       Materials,
	"/mileage":         Mileage,
	"/mileage/reports": MileagePro,
	"/reports":         FinancialReports,
	"/referrals":       Referrals,
	"/settings":        Settings,
	"/billing":         Billing,
	"/admin":           Admin,
}

// gates are pages that belong to one or more states rather than a feature
var gates = map[string][]State{
	InstallPath: {Install},
	SetupPath:   {SetupIncomplete},
	UpgradePath: {Base, Trial, Paid, AdminPreview},
}

// RouteFeature returns the feature guarding p
func RouteFeature(p string) (Feature, bool) {
	p = normalize(p)
	best := ""
	for prefix := range routes {
		if (p == prefix || strings.HasPrefix(p, prefix+"/")) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return "", false
	}
	return routes[best], true
}

// Navigate decides whether an account may open the SPA route p, and where to
// send it if not
func Navigate(state State, flags []string, p string) Decision {
	p = normalize(p)
	d := Decision{Path: p}

	if owners, ok := gates[p]; ok {
		for _, s := range owners {
			if s == state {
				d.Allowed = true
				return d
			}
		}
		return redirect(d, home(state), ReasonForbidden)
	}

	feature, known := RouteFeature(p)
	if known && Allows(state, feature, flags) {
		d.Allowed = true
		return d
	}

	switch {
	case state == Install:
		return redirect(d, InstallPath, ReasonOnboarding)
	case state == SetupIncomplete:
		return redirect(d, SetupPath, ReasonSetup)
	case !known:
		return redirect(d, DashboardPath, ReasonUnknown)
	case feature == Admin:
		return redirect(d, DashboardPath, ReasonForbidden)
	default:
		return redirect(d, UpgradePath, ReasonUpgrade)
	}
}

func redirect(d Decision, to, reason string) Decision {
	d.Allowed = false
	d.RedirectTo = to
	d.Reason = reason
	return d
}

// home is where a state lands when it opens a page it has no business on
func home(state State) string {
	switch state {
	case Install:
		return InstallPath
	case SetupIncomplete:
		return SetupPath
	default:
		return DashboardPath
	}
}

func normalize(p string) string {
	if u, err := url.Parse(p); err == nil {
		p = u.Path
	}
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
