// Package api exposes the HTTP surface the single-page app talks to.
package api

import (
	"context"
	"io/fs"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fieldledger/fieldledger/internal/appstate"
	"github.com/fieldledger/fieldledger/internal/metrics"
	"github.com/fieldledger/fieldledger/internal/web/middleware"
	"github.com/fieldledger/fieldledger/internal/web/profiling"
	"github.com/fieldledger/fieldledger/internal/web/ratelimit"
	"github.com/fieldledger/fieldledger/internal/web/response"
	"github.com/fieldledger/fieldledger/internal/web/router"
	"github.com/fieldledger/fieldledger/internal/web/static"
	"github.com/fieldledger/fieldledger/internal/web/websocket"
)

// Config holds transport settings
type Config struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	// AuthLimiter throttles signup and login. Nil disables throttling.
	AuthLimiter ratelimit.Limiter
	// Static is the built SPA. Nil serves the API only.
	Static    fs.FS
	Profiling profiling.Config
	WebSocket websocket.Config
}

// Services are the collaborators behind the handlers
type Services struct {
	Accounts  AccountService
	AppState  StateService
	Features  FlagEvaluator
	Clients   ClientService
	Materials MaterialService
	Quotes    QuoteService
	Invoices  InvoiceService
	Schedule  ScheduleService
	Mileage   MileageService
	Reports   ReportService
	Referrals ReferralService
	Billing   BillingService
	Tokens    middleware.TokenValidator
	Hub       *websocket.Hub
	DB        Pinger
}

// API holds the handlers
type API struct {
	svc    Services
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates the API
func New(svc Services, cfg Config, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{svc: svc, cfg: cfg, logger: logger, now: time.Now}
}

// Router builds the route tree
func (a *API) Router() *router.Router {
	r := router.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logging(a.logger),
		middleware.Recovery(a.logger),
		metrics.Instrument,
		middleware.CORS(a.cfg.AllowedOrigins),
	)

	r.Get("/healthz", a.health)
	r.Handle("/metrics", metrics.Handler())
	if a.svc.Hub != nil {
		ws := middleware.NewChain(
			middleware.AuthWithConfig(middleware.AuthConfig{Tokens: a.svc.Tokens, QueryParam: "token"}),
		).Then(websocket.NewHandler(a.svc.Hub, a.cfg.WebSocket))
		r.Handle("/ws", ws)
	}

	r.Route("/api", func(api *router.Router) {
		if a.cfg.RequestTimeout > 0 {
			api.Use(middleware.Timeout(a.cfg.RequestTimeout))
		}

		api.Post("/webhooks/billing", a.billingWebhook)

		api.Route("/auth", func(ar *router.Router) {
			if a.cfg.AuthLimiter != nil {
				ar.Use(middleware.RateLimit(a.cfg.AuthLimiter, a.logger))
			}
			ar.Post("/signup", a.signup)
			ar.Post("/login", a.login)
		})

		api.Protected(func(p *router.Router) {
			p.Use(middleware.Auth(a.svc.Tokens))

			p.Get("/me", a.me)
			p.Post("/me/onboarding", a.completeOnboarding)
			p.Patch("/me/setup", a.updateSetup)
			p.Get("/appstate", a.appState)
			p.Get("/appstate/navigate", a.navigate)
			p.Get("/features", a.features)

			p.Route("/clients", a.clientRoutes)
			p.Route("/materials", a.materialRoutes)
			p.Route("/quotes", a.quoteRoutes)
			p.Route("/invoices", a.invoiceRoutes)
			p.Route("/schedule", a.scheduleRoutes)
			p.Route("/mileage", a.mileageRoutes)
			p.Route("/reports", a.reportRoutes)
			p.Route("/referrals", a.referralRoutes)
			p.Route("/billing", a.billingRoutes)
			p.Route("/admin", a.adminRoutes)
		})
	})

	if a.cfg.Static != nil {
		r.NotFound(static.SPA(static.DefaultConfig(a.cfg.Static)).ServeHTTP)
	}
	return r
}

func (a *API) gate(feature appstate.Feature) middleware.Middleware {
	return a.svc.AppState.RequireFeature(feature)
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if a.svc.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.svc.DB.PingContext(ctx); err != nil {
			a.logger.Warn("health check failed", zap.Error(err))
			status["status"] = "unavailable"
			status["database"] = "unreachable"
			response.RenderJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	response.RenderOK(w, status)
}
