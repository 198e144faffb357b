// Package config defines the top-level configuration for tradeloop and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// BacktestDateLayout is the layout of BACKTEST_START.
const BacktestDateLayout = "2006-01-02"

// Config is the root configuration structure. Fields are populated from a
// TOML or YAML file and then overridden by environment variables.
type Config struct {
	RunMode   string          `toml:"run_mode" yaml:"run_mode"`
	Execute   bool            `toml:"execute" yaml:"execute"`
	Backtest  BacktestConfig  `toml:"backtest" yaml:"backtest"`
	Risk      RiskConfig      `toml:"risk" yaml:"risk"`
	Trading   TradingConfig   `toml:"trading" yaml:"trading"`
	Alpaca    AlpacaConfig    `toml:"alpaca" yaml:"alpaca"`
	RateLimit RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
	Redis     RedisConfig     `toml:"redis" yaml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres" yaml:"postgres"`
	SQLite    SQLiteConfig    `toml:"sqlite" yaml:"sqlite"`
	S3        S3Config        `toml:"s3" yaml:"s3"`
	Report    ReportConfig    `toml:"report" yaml:"report"`
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Notify    NotifyConfig    `toml:"notify" yaml:"notify"`
	LogLevel  string          `toml:"log_level" yaml:"log_level"`
}

// BacktestConfig bounds and steps the historical cursor.
type BacktestConfig struct {
	Enabled     bool    `toml:"enabled" yaml:"enabled"`
	Start       string  `toml:"start" yaml:"start"`
	Days        int     `toml:"days" yaml:"days"`
	StepMinutes int     `toml:"step_minutes" yaml:"step_minutes"`
	InitialCash float64 `toml:"initial_cash" yaml:"initial_cash"`
}

// RiskConfig holds the risk envelope. It is read once at startup.
type RiskConfig struct {
	MaxSharesPerTrade   int     `toml:"max_shares_per_trade" yaml:"max_shares_per_trade"`
	RiskMaxShares       int     `toml:"risk_max_shares" yaml:"risk_max_shares"`
	MaxPositionPercent  float64 `toml:"max_position_percent" yaml:"max_position_percent"`
	BuyCooldownSeconds  int     `toml:"buy_cooldown_seconds" yaml:"buy_cooldown_seconds"`
	SellCooldownMinutes int     `toml:"sell_cooldown_minutes" yaml:"sell_cooldown_minutes"`
	PriceMoveBypassPct  float64 `toml:"price_move_bypass_pct" yaml:"price_move_bypass_pct"`
	BlockReentry        bool    `toml:"block_reentry" yaml:"block_reentry"`
}

// TradingConfig holds the symbol universe and decision-loop parameters.
type TradingConfig struct {
	Symbols         []string           `toml:"symbols" yaml:"symbols"`
	OrderQty        int                `toml:"order_qty" yaml:"order_qty"`
	LoopIntervalSec int                `toml:"loop_interval_sec" yaml:"loop_interval_sec"`
	RoleTimeout     duration           `toml:"role_timeout" yaml:"role_timeout"`
	BrokerTimeout   duration           `toml:"broker_timeout" yaml:"broker_timeout"`
	QuoteTTL        duration           `toml:"quote_ttl" yaml:"quote_ttl"`
	Workers         int                `toml:"workers" yaml:"workers"`
	OpenOrderGuard  bool               `toml:"open_order_guard" yaml:"open_order_guard"`
	ForceVeto       string             `toml:"force_veto" yaml:"force_veto"`
	TakeProfitPct   float64            `toml:"take_profit_pct" yaml:"take_profit_pct"`
	StopLossPct     float64            `toml:"stop_loss_pct" yaml:"stop_loss_pct"`
	FairValues      map[string]float64 `toml:"fair_values" yaml:"fair_values"`
	MockPrices      map[string]float64 `toml:"mock_prices" yaml:"mock_prices"`
	MockCash        float64            `toml:"mock_cash" yaml:"mock_cash"`
}

// AlpacaConfig holds Alpaca trading and market-data API settings.
type AlpacaConfig struct {
	KeyID     string `toml:"key_id" yaml:"key_id"`
	SecretKey string `toml:"secret_key" yaml:"secret_key"`
	BaseURL   string `toml:"base_url" yaml:"base_url"`
	DataURL   string `toml:"data_url" yaml:"data_url"`
	Feed      string `toml:"feed" yaml:"feed"`
	// Stream enables the trade websocket in live mode; quotes fall back to
	// REST when a streamed price is older than the quote TTL.
	Stream    bool   `toml:"stream" yaml:"stream"`
	StreamURL string `toml:"stream_url" yaml:"stream_url"`
}

// StreamEndpoint is the websocket URL for the configured data feed.
func (a AlpacaConfig) StreamEndpoint() string {
	return strings.TrimRight(a.StreamURL, "/") + "/" + a.Feed
}

// RateLimitConfig holds per-key request budgets for broker and data calls.
type RateLimitConfig struct {
	PerSecond int `toml:"per_second" yaml:"per_second"`
	PerHour   int `toml:"per_hour" yaml:"per_hour"`
	PerDay    int `toml:"per_day" yaml:"per_day"`
}

// Windows returns the configured budgets, skipping disabled (zero) ones.
func (r RateLimitConfig) Windows() []domain.RateWindow {
	var out []domain.RateWindow
	for _, w := range []domain.RateWindow{
		{Limit: r.PerSecond, Period: time.Second},
		{Limit: r.PerHour, Period: time.Hour},
		{Limit: r.PerDay, Period: 24 * time.Hour},
	} {
		if w.Limit > 0 {
			out = append(out, w)
		}
	}
	return out
}

// RedisConfig holds Redis connection parameters. When disabled, caches and
// rate limits are kept in process.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled" yaml:"enabled"`
	Addr       string   `toml:"addr" yaml:"addr"`
	Password   string   `toml:"password" yaml:"password"`
	DB         int      `toml:"db" yaml:"db"`
	PoolSize   int      `toml:"pool_size" yaml:"pool_size"`
	MaxRetries int      `toml:"max_retries" yaml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled" yaml:"tls_enabled"`
	BarTTL     duration `toml:"bar_ttl" yaml:"bar_ttl"`
	LockTTL    duration `toml:"lock_ttl" yaml:"lock_ttl"`
}

// PostgresConfig holds PostgreSQL journal connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled" yaml:"enabled"`
	DSN           string `toml:"dsn" yaml:"dsn"`
	Host          string `toml:"host" yaml:"host"`
	Port          int    `toml:"port" yaml:"port"`
	Database      string `toml:"database" yaml:"database"`
	User          string `toml:"user" yaml:"user"`
	Password      string `toml:"password" yaml:"password"`
	SSLMode       string `toml:"ssl_mode" yaml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns" yaml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns" yaml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations" yaml:"run_migrations"`
}

// SQLiteConfig holds the local journal path. An empty path disables it.
type SQLiteConfig struct {
	Path string `toml:"path" yaml:"path"`
}

// S3Config holds S3-compatible object storage parameters for report archiving.
type S3Config struct {
	Enabled        bool   `toml:"enabled" yaml:"enabled"`
	Endpoint       string `toml:"endpoint" yaml:"endpoint"`
	Region         string `toml:"region" yaml:"region"`
	Bucket         string `toml:"bucket" yaml:"bucket"`
	Prefix         string `toml:"prefix" yaml:"prefix"`
	AccessKey      string `toml:"access_key" yaml:"access_key"`
	SecretKey      string `toml:"secret_key" yaml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl" yaml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style" yaml:"force_path_style"`
}

// ReportConfig holds local report output locations.
type ReportConfig struct {
	CSVPath    string `toml:"csv_path" yaml:"csv_path"`
	SummaryDir string `toml:"summary_dir" yaml:"summary_dir"`
}

// ServerConfig holds HTTP status server parameters.
type ServerConfig struct {
	Enabled           bool     `toml:"enabled" yaml:"enabled"`
	Port              int      `toml:"port" yaml:"port"`
	APIKey            string   `toml:"api_key" yaml:"api_key"`
	CORSOrigins       []string `toml:"cors_origins" yaml:"cors_origins"`
	RequestsPerMinute int      `toml:"requests_per_minute" yaml:"requests_per_minute"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token" yaml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id" yaml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url" yaml:"discord_webhook_url"`
	Events            []string `toml:"events" yaml:"events"`
}

// duration is a wrapper around time.Duration that decodes from strings like
// "5s" in both TOML and YAML.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with sensible defaults.
func Defaults() Config {
	return Config{
		RunMode: "mock",
		Execute: false,
		Backtest: BacktestConfig{
			Enabled:     false,
			Start:       "2025-11-03",
			Days:        5,
			StepMinutes: 60,
			InitialCash: 100000,
		},
		Risk: RiskConfig{
			MaxSharesPerTrade:   10,
			RiskMaxShares:       5,
			MaxPositionPercent:  20,
			BuyCooldownSeconds:  60,
			SellCooldownMinutes: 120,
			PriceMoveBypassPct:  0,
			BlockReentry:        true,
		},
		Trading: TradingConfig{
			Symbols:         []string{"PLTR", "NFLX", "PLTK"},
			OrderQty:        1,
			LoopIntervalSec: 5,
			RoleTimeout:     duration{2 * time.Second},
			BrokerTimeout:   duration{10 * time.Second},
			QuoteTTL:        duration{5 * time.Second},
			Workers:         4,
			OpenOrderGuard:  true,
			TakeProfitPct:   0.05,
			StopLossPct:     -0.03,
			FairValues: map[string]float64{
				"PLTR": 95,
				"NFLX": 190,
				"PLTK": 18,
			},
			MockPrices: map[string]float64{
				"PLTR": 100,
				"NFLX": 200,
				"PLTK": 20,
			},
			MockCash: 10000,
		},
		Alpaca: AlpacaConfig{
			BaseURL: "https://paper-api.alpaca.markets",
			DataURL: "https://data.alpaca.markets",
			Feed:      "iex",
			StreamURL: "wss://stream.data.alpaca.markets/v2",
		},
		RateLimit: RateLimitConfig{
			PerSecond: 3,
			PerHour:   1000,
			PerDay:    5000,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			BarTTL:     duration{24 * time.Hour},
			LockTTL:    duration{time.Minute},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "tradeloop",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		SQLite: SQLiteConfig{
			Path: "tradeloop.db",
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tradeloop-reports",
			Prefix:         "backtests",
			ForcePathStyle: true,
		},
		Report: ReportConfig{
			CSVPath:    "portfolio_timeseries.csv",
			SummaryDir: "reports",
		},
		Server: ServerConfig{
			Enabled:           false,
			Port:              8080,
			RequestsPerMinute: 120,
		},
		Notify: NotifyConfig{
			Events: []string{"order_submitted", "order_rejected", "backtest_finished", "error"},
		},
		LogLevel: "info",
	}
}

// validRunModes enumerates the accepted values for Config.RunMode.
var validRunModes = map[string]bool{
	"mock":   true,
	"alpaca": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validForcedVetoes enumerates RISK_FORCE_VETO values.
var validForcedVetoes = map[string]bool{
	"":                   true,
	"market_closed":      true,
	"symbol_not_allowed": true,
	"insufficient_cash":  true,
}

// Mode returns the temporal mode selected by the configuration.
func (c *Config) Mode() domain.Mode {
	if c.Backtest.Enabled {
		return domain.ModeBacktest
	}
	return domain.ModeLive
}

// BacktestStart parses Backtest.Start as a UTC calendar date.
func (c *Config) BacktestStart() (time.Time, error) {
	t, err := time.ParseInLocation(BacktestDateLayout, strings.TrimSpace(c.Backtest.Start), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("backtest: start %q: %w", c.Backtest.Start, err)
	}
	return t, nil
}

// LoopInterval is the live wall-clock tick spacing.
func (c *Config) LoopInterval() time.Duration {
	return time.Duration(c.Trading.LoopIntervalSec) * time.Second
}

// Validate checks Config for invalid or missing values and returns a
// *domain.ConfigError describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validRunModes[strings.ToLower(c.RunMode)] {
		errs = append(errs, fmt.Sprintf("unknown run_mode %q (valid: mock, alpaca)", c.RunMode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Backtest
	if c.Backtest.Enabled {
		if _, err := c.BacktestStart(); err != nil {
			errs = append(errs, fmt.Sprintf("backtest: start must be YYYY-MM-DD, got %q", c.Backtest.Start))
		}
		if c.Backtest.Days < 1 {
			errs = append(errs, "backtest: days must be >= 1")
		}
		if c.Backtest.StepMinutes < 1 {
			errs = append(errs, "backtest: step_minutes must be >= 1")
		}
		if c.Backtest.InitialCash <= 0 {
			errs = append(errs, "backtest: initial_cash must be > 0")
		}
	}

	// Risk
	if c.Risk.MaxSharesPerTrade < 1 {
		errs = append(errs, "risk: max_shares_per_trade must be >= 1")
	}
	if c.Risk.RiskMaxShares < 1 {
		errs = append(errs, "risk: risk_max_shares must be >= 1")
	}
	if c.Risk.MaxPositionPercent <= 0 || c.Risk.MaxPositionPercent > 100 {
		errs = append(errs, fmt.Sprintf("risk: max_position_percent must be in (0, 100], got %g", c.Risk.MaxPositionPercent))
	}
	if c.Risk.BuyCooldownSeconds < 0 {
		errs = append(errs, "risk: buy_cooldown_seconds must be >= 0")
	}
	if c.Risk.SellCooldownMinutes < 0 {
		errs = append(errs, "risk: sell_cooldown_minutes must be >= 0")
	}
	if c.Risk.PriceMoveBypassPct < 0 {
		errs = append(errs, "risk: price_move_bypass_pct must be >= 0")
	}

	// Trading
	if len(c.Trading.Symbols) == 0 {
		errs = append(errs, "trading: symbols must not be empty")
	}
	if c.Trading.OrderQty < 1 {
		errs = append(errs, "trading: order_qty must be >= 1")
	}
	if !c.Backtest.Enabled && c.Trading.LoopIntervalSec < 1 {
		errs = append(errs, "trading: loop_interval_sec must be >= 1")
	}
	if c.Trading.RoleTimeout.Duration <= 0 {
		errs = append(errs, "trading: role_timeout must be > 0")
	}
	if c.Trading.BrokerTimeout.Duration <= 0 {
		errs = append(errs, "trading: broker_timeout must be > 0")
	}
	if c.Trading.Workers < 1 {
		errs = append(errs, "trading: workers must be >= 1")
	}
	if !validForcedVetoes[strings.ToLower(c.Trading.ForceVeto)] {
		errs = append(errs, fmt.Sprintf("trading: unknown force_veto %q", c.Trading.ForceVeto))
	}

	// Alpaca
	if strings.ToLower(c.RunMode) == "alpaca" {
		if c.Alpaca.KeyID == "" || c.Alpaca.SecretKey == "" {
			errs = append(errs, "alpaca: key_id and secret_key are required for run_mode alpaca")
		}
		if c.Alpaca.BaseURL == "" || c.Alpaca.DataURL == "" {
			errs = append(errs, "alpaca: base_url and data_url must not be empty")
		}
		if c.Alpaca.Stream && c.Alpaca.StreamURL == "" {
			errs = append(errs, "alpaca: stream_url must not be empty when stream is enabled")
		}
	}

	// Rate limits
	if c.RateLimit.PerSecond < 1 || c.RateLimit.PerHour < 1 || c.RateLimit.PerDay < 1 {
		errs = append(errs, "rate_limit: per_second, per_hour and per_day must be >= 1")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.Enabled && c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RequestsPerMinute < 0 {
			errs = append(errs, "server: requests_per_minute must be >= 0")
		}
	}

	if len(errs) > 0 {
		return &domain.ConfigError{Problems: errs}
	}
	return nil
}
