package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/tradeloop/internal/blob/s3"
	"github.com/alanyoungcy/tradeloop/internal/cache/memory"
	"github.com/alanyoungcy/tradeloop/internal/cache/redis"
	"github.com/alanyoungcy/tradeloop/internal/config"
	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/notify"
	"github.com/alanyoungcy/tradeloop/internal/server/handler"
	"github.com/alanyoungcy/tradeloop/internal/store/postgres"
	"github.com/alanyoungcy/tradeloop/internal/store/sqlite"
)

// Dependencies bundles the infrastructure a run needs. It is constructed by
// Wire and torn down by the returned cleanup function. Optional pieces are
// nil when not configured.
type Dependencies struct {
	// Journal is SQLite by default, Postgres when enabled, nil when both are
	// off.
	Journal domain.Journal

	// Caches and coordination: Redis when enabled, in-process otherwise.
	BarCache    domain.BarCache
	RateLimiter domain.RateLimiter
	APILimiter  domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	Archiver *s3blob.Archiver
	Notifier *notify.Notifier

	// Health probes for /api/health.
	Checks map[string]handler.CheckFunc
}

// Wire constructs the concrete implementations selected by cfg and returns
// them with a cleanup function releasing them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Checks: map[string]handler.CheckFunc{}}

	// --- Journal ---
	switch {
	case cfg.Postgres.Enabled:
		pg, err := postgres.New(ctx, postgres.FromConfig(cfg.Postgres))
		if err != nil {
			return fail(&domain.ConnectivityError{Source: "postgres", Err: err})
		}
		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				pg.Close()
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		j := postgres.NewJournal(pg)
		deps.Journal = j
		closers = append(closers, func() { _ = j.Close() })
		deps.Checks["postgres"] = func(ctx context.Context) error { return pg.Pool().Ping(ctx) }
	case cfg.SQLite.Path != "":
		j, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return fail(fmt.Errorf("wire: sqlite: %w", err))
		}
		deps.Journal = j
		closers = append(closers, func() { _ = j.Close() })
	}

	// --- Caches, limits, locks, bus ---
	windows := cfg.RateLimit.Windows()
	var apiWindows []domain.RateWindow
	if cfg.Server.RequestsPerMinute > 0 {
		apiWindows = []domain.RateWindow{{Limit: cfg.Server.RequestsPerMinute, Period: time.Minute}}
	}

	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.FromConfig(cfg.Redis))
		if err != nil {
			return fail(&domain.ConnectivityError{Source: "redis", Err: err})
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.BarCache = redis.NewBarCache(rc, cfg.Redis.BarTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(rc, windows)
		deps.LockManager = redis.NewLockManager(rc)
		deps.SignalBus = redis.NewSignalBus(rc)
		if apiWindows != nil {
			deps.APILimiter = redis.NewRateLimiter(rc, apiWindows)
		}
		deps.Checks["redis"] = rc.Ping
	} else {
		deps.BarCache = memory.NewBarCache()
		deps.RateLimiter = memory.NewRateLimiter(windows)
		deps.LockManager = memory.NewLockManager()
		deps.SignalBus = memory.NewBus()
		if apiWindows != nil {
			deps.APILimiter = memory.NewRateLimiter(apiWindows)
		}
	}

	// --- S3 report archive ---
	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.FromConfig(cfg.S3))
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(sc), cfg.S3.Prefix, logger)
		if deps.Journal != nil {
			deps.Archiver.SetAuditStore(deps.Journal)
		}
		deps.Checks["s3"] = sc.Health
	}

	// --- Notifications ---
	deps.Notifier = notify.FromConfig(cfg.Notify, logger)

	return deps, cleanup, nil
}
