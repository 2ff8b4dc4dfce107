// Package app assembles the FieldLedger server from configuration: storage,
// domain services, background jobs and the HTTP transport.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fieldledger/fieldledger/internal/accounts"
	"github.com/fieldledger/fieldledger/internal/api"
	"github.com/fieldledger/fieldledger/internal/appstate"
	"github.com/fieldledger/fieldledger/internal/billing"
	"github.com/fieldledger/fieldledger/internal/clients"
	"github.com/fieldledger/fieldledger/internal/config"
	"github.com/fieldledger/fieldledger/internal/db"
	"github.com/fieldledger/fieldledger/internal/db/transaction"
	"github.com/fieldledger/fieldledger/internal/features"
	"github.com/fieldledger/fieldledger/internal/invoices"
	"github.com/fieldledger/fieldledger/internal/materials"
	"github.com/fieldledger/fieldledger/internal/mileage"
	"github.com/fieldledger/fieldledger/internal/money"
	"github.com/fieldledger/fieldledger/internal/quotes"
	"github.com/fieldledger/fieldledger/internal/referral"
	"github.com/fieldledger/fieldledger/internal/reports"
	"github.com/fieldledger/fieldledger/internal/schedule"
	"github.com/fieldledger/fieldledger/internal/web/auth"
	"github.com/fieldledger/fieldledger/internal/web/cache"
	"github.com/fieldledger/fieldledger/internal/web/jobs"
	"github.com/fieldledger/fieldledger/internal/web/profiling"
	"github.com/fieldledger/fieldledger/internal/web/ratelimit"
	"github.com/fieldledger/fieldledger/internal/web/router"
	"github.com/fieldledger/fieldledger/internal/web/server"
	"github.com/fieldledger/fieldledger/internal/web/websocket"
)

const gatewayTimeout = 10 * time.Second

// App is a fully wired FieldLedger instance
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sql.DB
	redis  *redis.Client
	cache  cache.Cache

	Accounts  *accounts.Service
	AppState  *appstate.Service
	Clients   *clients.Service
	Invoices  *invoices.Service
	Quotes    *quotes.Service
	Mileage   *mileage.Service
	Referrals *referral.Service
	Billing   *billing.Service
	Hub       *websocket.Hub

	queue     *jobs.Queue
	pool      *jobs.WorkerPool
	scheduler *jobs.Scheduler
	limiter   ratelimit.Limiter
	api       *api.API
}

// Open connects to the configured database and redis server and builds the app
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	conn, err := db.Open(ctx, cfg.Database.URL, db.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			conn.Close()
			rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	a, err := Build(cfg, conn, rdb, logger)
	if err != nil {
		conn.Close()
		if rdb != nil {
			rdb.Close()
		}
		return nil, err
	}
	return a, nil
}

// Build wires services over an open database and an optional redis client
func Build(cfg *config.Config, conn *sql.DB, rdb *redis.Client, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{cfg: cfg, logger: logger, db: conn, redis: rdb}

	if rdb != nil {
		a.cache = cache.NewRedisCache(rdb, cache.DefaultConfig())
	} else {
		a.cache = cache.NewMemoryCache(cache.DefaultConfig())
	}

	limiter, err := newAuthLimiter(cfg, rdb)
	if err != nil {
		return nil, err
	}
	a.limiter = limiter

	catalog, err := billing.NewCatalog(cfg.Billing.Prices)
	if err != nil {
		return nil, fmt.Errorf("invalid billing prices: %w", err)
	}

	txm := transaction.NewManager(conn)
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	accountRepo := accounts.NewRepository(conn)

	a.Hub = websocket.NewHub(logger.Named("websocket"))
	a.AppState = appstate.NewService(accountRepo, a.cache,
		appstate.Policy{PastDueGrace: time.Duration(cfg.Billing.GraceDays) * 24 * time.Hour},
		appstate.Limits{Clients: cfg.Limits.BaseClients, InvoicesPerMonth: cfg.Limits.BaseInvoicesPerMonth},
		logger.Named("appstate"))
	listener := &stateListener{state: a.AppState, hub: a.Hub, logger: logger}

	evaluator, err := features.Register(features.NewProvider(accountRepo))
	if err != nil {
		return nil, fmt.Errorf("failed to register feature provider: %w", err)
	}

	a.queue = jobs.NewQueue(conn)
	dispatcher := jobs.NewDispatcher(a.queue, cfg.Jobs.Queue)

	gateway := billing.NewGateway(billing.GatewayConfig{
		BaseURL:    cfg.Billing.ProviderURL,
		APIKey:     cfg.Billing.APIKey,
		Timeout:    gatewayTimeout,
		MaxRetries: 3,
	}, logger.Named("gateway"))

	a.Referrals = referral.NewService(referral.NewRepository(conn), txm, dispatcher, gateway, referral.Policy{
		RewardBps:       money.BasisPoints(cfg.Referral.RewardBps),
		CapBps:          money.BasisPoints(cfg.Referral.CapBps),
		CommissionBps:   money.BasisPoints(cfg.Referral.CommissionBps),
		PayoutThreshold: money.Cents(cfg.Referral.PayoutThreshold),
		HoldPeriod:      cfg.Referral.HoldPeriod,
	}, logger.Named("referral"))

	a.Accounts = accounts.NewService(accountRepo, txm, tokens, cfg.Billing.TrialDays, logger.Named("accounts"))
	a.Accounts.SetReferralLinker(a.Referrals)
	a.Accounts.SetChangeListener(listener)

	a.Billing = billing.NewService(billing.NewRepository(conn), accountRepo, txm, gateway, a.Referrals, catalog, billing.Config{
		WebhookSecret: cfg.Billing.WebhookSecret,
		SuccessURL:    cfg.Billing.SuccessURL,
		CancelURL:     cfg.Billing.CancelURL,
	}, logger.Named("billing"))
	a.Billing.SetChangeListener(listener)

	a.Clients = clients.NewService(clients.NewRepository(conn), a.AppState)
	a.Invoices = invoices.NewService(invoices.NewRepository(conn), txm, a.Clients, a.AppState, hubNotifier{hub: a.Hub, logger: logger}, logger.Named("invoices"))
	a.Quotes = quotes.NewService(quotes.NewRepository(conn), txm, a.Clients, a.Invoices, logger.Named("quotes"))
	a.Mileage = mileage.NewService(mileage.NewRepository(conn), a.Clients, mileage.RateTable(cfg.MileageRates()))

	a.pool = jobs.NewWorkerPool(a.queue, jobs.PoolConfig{
		Queue:        cfg.Jobs.Queue,
		Workers:      cfg.Jobs.Workers,
		PollInterval: cfg.Jobs.PollInterval,
		JobTimeout:   time.Minute,
	}, logger.Named("jobs"))
	a.registerHandlers()

	a.scheduler = jobs.NewScheduler(a.queue, logger.Named("scheduler"))
	if err := a.registerSchedules(); err != nil {
		return nil, err
	}

	a.api = api.New(api.Services{
		Accounts:  a.Accounts,
		AppState:  a.AppState,
		Features:  evaluator,
		Clients:   a.Clients,
		Materials: materials.NewService(materials.NewRepository(conn)),
		Quotes:    a.Quotes,
		Invoices:  a.Invoices,
		Schedule:  schedule.NewService(schedule.NewRepository(conn), txm, a.Clients),
		Mileage:   a.Mileage,
		Reports:   reports.NewService(reports.NewRepository(conn), a.Mileage, a.Referrals, logger.Named("reports")),
		Referrals: a.Referrals,
		Billing:   a.Billing,
		Tokens:    tokens,
		Hub:       a.Hub,
		DB:        conn,
	}, apiConfig(cfg, a.limiter), logger)

	return a, nil
}

func newAuthLimiter(cfg *config.Config, rdb *redis.Client) (ratelimit.Limiter, error) {
	if cfg.Server.AuthRateLimit <= 0 {
		return nil, nil
	}
	if rdb != nil {
		l, err := ratelimit.NewRedisLimiter(rdb, ratelimit.RedisConfig{
			Limit:  cfg.Server.AuthRateLimit,
			Window: time.Minute,
			Prefix: "fieldledger:ratelimit:auth:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		return l, nil
	}
	l, err := ratelimit.NewMemoryLimiter(ratelimit.MemoryConfig{
		Limit:           cfg.Server.AuthRateLimit,
		Window:          time.Minute,
		CleanupInterval: 5 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}
	return l, nil
}

func apiConfig(cfg *config.Config, limiter ratelimit.Limiter) api.Config {
	ws := websocket.DefaultConfig()
	ws.AllowedOrigins = cfg.Server.AllowedOrigins

	c := api.Config{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		AuthLimiter:    limiter,
		Profiling:      profiling.Config{Enabled: cfg.IsDevelopment(), Path: profiling.DefaultConfig().Path},
		WebSocket:      ws,
	}
	if cfg.Server.StaticDir != "" {
		c.Static = os.DirFS(cfg.Server.StaticDir)
	}
	return c
}

// Handler returns the HTTP handler
func (a *App) Handler() *router.Router {
	return a.api.Router()
}

// Run serves HTTP and processes jobs until ctx is cancelled, then shuts
// everything down in order
func (a *App) Run(ctx context.Context) error {
	srv, err := server.New(server.Config{
		Address:      a.cfg.Server.Address,
		Handler:      a.Handler(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	})
	if err != nil {
		return err
	}

	go a.Hub.Run()
	a.pool.Start(ctx)
	a.scheduler.Start()

	gs := server.NewGracefulShutdown(srv, a.cfg.Server.ShutdownTimeout, a.logger)
	gs.RegisterHook("scheduler", func(ctx context.Context) error {
		a.scheduler.Stop()
		return nil
	})
	gs.RegisterHook("workers", func(ctx context.Context) error {
		a.pool.Stop()
		return nil
	})
	gs.RegisterHook("websocket", func(ctx context.Context) error {
		a.Hub.Shutdown()
		return nil
	})
	gs.RegisterHook("storage", func(ctx context.Context) error {
		return a.Close()
	})

	return gs.Run(ctx)
}

// Close releases the cache, limiter, redis and database connections
func (a *App) Close() error {
	if c, ok := a.cache.(interface{ Close() error }); ok {
		c.Close()
	}
	if l, ok := a.limiter.(interface{ Close() error }); ok {
		l.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	return a.db.Close()
}

// Routes lists the HTTP routes without touching storage
func Routes(cfg *config.Config) []router.RouteInfo {
	svc := api.Services{
		AppState: appstate.NewService(nil, nil, appstate.DefaultPolicy(), appstate.DefaultLimits(), nil),
		Hub:      websocket.NewHub(nil),
	}
	return api.New(svc, apiConfig(cfg, nil), nil).Router().Routes()
}
