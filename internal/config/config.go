package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/fieldledger/fieldledger/internal/money"
)

// Config represents the FieldLedger configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Billing  BillingConfig  `mapstructure:"billing"`
	Referral ReferralConfig `mapstructure:"referral"`
	Mileage  MileageConfig  `mapstructure:"mileage"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Limits   LimitsConfig   `mapstructure:"limits"`
}

// AppConfig holds process-wide settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	StaticDir       string        `mapstructure:"static_dir"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	AuthRateLimit   int           `mapstructure:"auth_rate_limit"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig represents redis configuration. An empty Addr disables redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a redis server is configured
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// AuthConfig represents token settings
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// BillingConfig configures the payment provider and plans
type BillingConfig struct {
	ProviderURL   string           `mapstructure:"provider_url"`
	APIKey        string           `mapstructure:"api_key"`
	WebhookSecret string           `mapstructure:"webhook_secret"`
	SuccessURL    string           `mapstructure:"success_url"`
	CancelURL     string           `mapstructure:"cancel_url"`
	TrialDays     int              `mapstructure:"trial_days"`
	GraceDays     int              `mapstructure:"grace_days"`
	Prices        map[string]int64 `mapstructure:"prices"`
}

// ReferralConfig configures referral rewards and affiliate commissions
type ReferralConfig struct {
	RewardBps       int           `mapstructure:"reward_bps"`
	CapBps          int           `mapstructure:"cap_bps"`
	CommissionBps   int           `mapstructure:"commission_bps"`
	PayoutThreshold int64         `mapstructure:"payout_threshold"`
	HoldPeriod      time.Duration `mapstructure:"hold_period"`
}

// MileageConfig holds the per-year mileage rate table in hundredths of a cent per mile
type MileageConfig struct {
	Rates map[string]int64 `mapstructure:"rates"`
}

// JobsConfig configures background processing
type JobsConfig struct {
	Workers             int           `mapstructure:"workers"`
	Queue               string        `mapstructure:"queue"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	OverdueSweepSpec    string        `mapstructure:"overdue_sweep_spec"`
	CommissionSweepSpec string        `mapstructure:"commission_sweep_spec"`
	PurgeSpec           string        `mapstructure:"purge_spec"`
	Retention           time.Duration `mapstructure:"retention"`
}

// LimitsConfig holds base-tier quotas
type LimitsConfig struct {
	BaseClients          int `mapstructure:"base_clients"`
	BaseInvoicesPerMonth int `mapstructure:"base_invoices_per_month"`
}

// Load reads configuration from fieldledger.yaml, .env and FIELDLEDGER_* variables
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fieldledger")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/fieldledger")
	}

	v.SetEnvPrefix("FIELDLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path == "" && os.IsNotExist(err)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if url := os.Getenv("DATABASE_URL"); url != "" && cfg.Database.URL == "" {
		cfg.Database.URL = url
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fieldledger")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.auth_rate_limit", 20)

	v.SetDefault("database.url", "postgres://localhost:5432/fieldledger?sslmode=disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("billing.provider_url", "https://api.stripe.com")
	v.SetDefault("billing.trial_days", 14)
	v.SetDefault("billing.grace_days", 7)
	v.SetDefault("billing.prices", map[string]int64{
		"monthly":       2900,
		"annual":        29000,
		"mileage_pro":   900,
		"financial_pro": 1900,
	})

	v.SetDefault("referral.reward_bps", 2000)
	v.SetDefault("referral.cap_bps", 5000)
	v.SetDefault("referral.commission_bps", 1000)
	v.SetDefault("referral.payout_threshold", 5000)
	v.SetDefault("referral.hold_period", 30*24*time.Hour)

	v.SetDefault("mileage.rates", map[string]int64{
		"2023": 6550,
		"2024": 6700,
		"2025": 7000,
	})

	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.queue", "default")
	v.SetDefault("jobs.poll_interval", time.Second)
	v.SetDefault("jobs.overdue_sweep_spec", "15 2 * * *")
	v.SetDefault("jobs.commission_sweep_spec", "30 3 * * *")
	v.SetDefault("jobs.purge_spec", "0 4 * * 0")
	v.SetDefault("jobs.retention", 14*24*time.Hour)

	v.SetDefault("limits.base_clients", 10)
	v.SetDefault("limits.base_invoices_per_month", 5)
}

// IsDevelopment reports whether the app runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		if !c.IsDevelopment() {
			return fmt.Errorf("auth.jwt_secret is required outside development")
		}
		c.Auth.JWTSecret = "development-secret"
	}

	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive, got %s", c.Auth.TokenTTL)
	}

	for name, d := range map[string]time.Duration{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.request_timeout":  c.Server.RequestTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"jobs.poll_interval":      c.Jobs.PollInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	for name, bps := range map[string]int{
		"referral.reward_bps":     c.Referral.RewardBps,
		"referral.cap_bps":        c.Referral.CapBps,
		"referral.commission_bps": c.Referral.CommissionBps,
	} {
		if !money.BasisPoints(bps).Valid() {
			return fmt.Errorf("%s must be between 0 and 10000, got %d", name, bps)
		}
	}

	for year := range c.Mileage.Rates {
		if _, err := strconv.Atoi(year); err != nil {
			return fmt.Errorf("mileage.rates key %q is not a year", year)
		}
	}

	if c.Jobs.Workers < 0 {
		return fmt.Errorf("jobs.workers must not be negative")
	}

	return nil
}

// MileageRates converts the configured rate table to integer years
func (c *Config) MileageRates() map[int]int64 {
	rates := make(map[int]int64, len(c.Mileage.Rates))
	for year, rate := range c.Mileage.Rates {
		y, err := strconv.Atoi(year)
		if err != nil {
			continue
		}
		rates[y] = rate
	}
	return rates
}
