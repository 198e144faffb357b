package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads a TOML or YAML configuration file at path (chosen by extension),
// merges it on top of the built-in defaults, applies environment variable
// overrides, and returns the final Config. An empty path skips the file. The
// returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	cfg.RunMode = strings.ToLower(strings.TrimSpace(cfg.RunMode))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.Trading.ForceVeto = strings.ToLower(strings.TrimSpace(cfg.Trading.ForceVeto))
	for i, s := range cfg.Trading.Symbols {
		cfg.Trading.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}

	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config: decode %s: %w", path, err)
		}
	default:
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("config: %s: %w", path, err)
			}
			return fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	return nil
}

// applyEnvOverrides reads well-known environment variables and overwrites the
// corresponding Config fields when a variable is set (i.e. not empty). Trading
// knobs use bare names (EXECUTE, RISK_MAX_SHARES, ...); infrastructure uses
// the TRADELOOP_* prefix.
func applyEnvOverrides(cfg *Config) {
	// ── Run selection ──
	setStr(&cfg.RunMode, "RUN_MODE")
	setBool(&cfg.Execute, "EXECUTE")
	setBool(&cfg.Backtest.Enabled, "BACKTEST")

	// ── Backtest ──
	setStr(&cfg.Backtest.Start, "BACKTEST_START")
	setInt(&cfg.Backtest.Days, "BACKTEST_DAYS")
	setInt(&cfg.Backtest.StepMinutes, "BACKTEST_STEP_MIN")
	setFloat64(&cfg.Backtest.InitialCash, "BACKTEST_INITIAL_CASH")

	// ── Risk ──
	setInt(&cfg.Risk.MaxSharesPerTrade, "MAX_SHARES_PER_TRADE")
	setInt(&cfg.Risk.RiskMaxShares, "RISK_MAX_SHARES")
	setFloat64(&cfg.Risk.MaxPositionPercent, "MAX_POSITION_PERCENT")
	setInt(&cfg.Risk.BuyCooldownSeconds, "BUY_COOLDOWN_SECONDS")
	setInt(&cfg.Risk.SellCooldownMinutes, "SELL_COOLDOWN_MIN")
	setFloat64(&cfg.Risk.PriceMoveBypassPct, "PRICE_MOVE_BYPASS_PCT")
	setBool(&cfg.Risk.BlockReentry, "SELL_COOLDOWN_BLOCKS_BUY")

	// ── Trading ──
	setStringSlice(&cfg.Trading.Symbols, "SYMBOLS")
	setInt(&cfg.Trading.OrderQty, "ORDER_QTY")
	setInt(&cfg.Trading.LoopIntervalSec, "LOOP_INTERVAL_SEC")
	setBool(&cfg.Trading.OpenOrderGuard, "ENABLE_OPEN_ORDER_GUARD")
	setStr(&cfg.Trading.ForceVeto, "RISK_FORCE_VETO")
	setDuration(&cfg.Trading.RoleTimeout, "TRADELOOP_ROLE_TIMEOUT")
	setDuration(&cfg.Trading.BrokerTimeout, "TRADELOOP_BROKER_TIMEOUT")
	setDuration(&cfg.Trading.QuoteTTL, "TRADELOOP_QUOTE_TTL")
	setInt(&cfg.Trading.Workers, "TRADELOOP_WORKERS")
	setFloatMap(&cfg.Trading.FairValues, "TRADELOOP_FAIR_VALUES")

	// ── Alpaca ──
	setStr(&cfg.Alpaca.KeyID, "APCA_API_KEY_ID") // SDK-style aliases, overridden below
	setStr(&cfg.Alpaca.SecretKey, "APCA_API_SECRET_KEY")
	setStr(&cfg.Alpaca.BaseURL, "APCA_API_BASE_URL")
	setStr(&cfg.Alpaca.KeyID, "ALPACA_API_KEY_ID")
	setStr(&cfg.Alpaca.SecretKey, "ALPACA_API_SECRET_KEY")
	setStr(&cfg.Alpaca.BaseURL, "ALPACA_BASE_URL")
	setStr(&cfg.Alpaca.DataURL, "ALPACA_DATA_URL")
	setStr(&cfg.Alpaca.Feed, "ALPACA_DATA_FEED")
	setBool(&cfg.Alpaca.Stream, "ALPACA_STREAM")
	setStr(&cfg.Alpaca.StreamURL, "ALPACA_STREAM_URL")

	// ── Rate limits ──
	setInt(&cfg.RateLimit.PerSecond, "TRADELOOP_RATE_LIMIT_PER_SECOND")
	setInt(&cfg.RateLimit.PerHour, "TRADELOOP_RATE_LIMIT_PER_HOUR")
	setInt(&cfg.RateLimit.PerDay, "TRADELOOP_RATE_LIMIT_PER_DAY")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "TRADELOOP_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "TRADELOOP_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "TRADELOOP_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADELOOP_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADELOOP_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADELOOP_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADELOOP_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADELOOP_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRADELOOP_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRADELOOP_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRADELOOP_POSTGRES_RUN_MIGRATIONS")

	// ── SQLite ──
	setStr(&cfg.SQLite.Path, "TRADELOOP_SQLITE_PATH")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TRADELOOP_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TRADELOOP_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADELOOP_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADELOOP_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADELOOP_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADELOOP_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADELOOP_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.BarTTL, "TRADELOOP_REDIS_BAR_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TRADELOOP_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TRADELOOP_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADELOOP_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADELOOP_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "TRADELOOP_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "TRADELOOP_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADELOOP_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADELOOP_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADELOOP_S3_FORCE_PATH_STYLE")

	// ── Report ──
	setStr(&cfg.Report.CSVPath, "TRADELOOP_REPORT_CSV_PATH")
	setStr(&cfg.Report.SummaryDir, "TRADELOOP_REPORT_SUMMARY_DIR")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRADELOOP_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRADELOOP_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "TRADELOOP_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADELOOP_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RequestsPerMinute, "TRADELOOP_SERVER_REQUESTS_PER_MINUTE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADELOOP_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADELOOP_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADELOOP_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADELOOP_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

// setFloatMap parses "PLTR=95,NFLX=190" and merges it into dst.
func setFloatMap(dst *map[string]float64, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if *dst == nil {
		*dst = make(map[string]float64)
	}
	for _, pair := range strings.Split(v, ",") {
		k, val, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			continue
		}
		(*dst)[strings.ToUpper(strings.TrimSpace(k))] = f
	}
}
