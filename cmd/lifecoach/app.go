package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/lifecoach/pkg/billing"
	"github.com/dmitrymomot/lifecoach/pkg/clientip"
	"github.com/dmitrymomot/lifecoach/pkg/config"
	"github.com/dmitrymomot/lifecoach/pkg/entitlement"
	"github.com/dmitrymomot/lifecoach/pkg/httpserver"
	"github.com/dmitrymomot/lifecoach/pkg/lock"
	"github.com/dmitrymomot/lifecoach/pkg/logger"
	"github.com/dmitrymomot/lifecoach/pkg/pg"
	"github.com/dmitrymomot/lifecoach/pkg/ratelimiter"
	"github.com/dmitrymomot/lifecoach/pkg/redis"
	"github.com/dmitrymomot/lifecoach/pkg/requestid"
	"github.com/dmitrymomot/lifecoach/svc/payments"
	"github.com/dmitrymomot/lifecoach/svc/payments/pgstore"
)

const serviceName = "lifecoach"

// Backends for the sweeper lock, selected by LOCK_BACKEND.
const (
	lockAuto     = "auto" // Redis when configured, else Postgres
	lockRedis    = "redis"
	lockPostgres = "postgres"
	lockMemory   = "memory" // single instance only
)

type appConfig struct {
	Env string `env:"APP_ENV" envDefault:"development"`

	LockBackend string `env:"LOCK_BACKEND" envDefault:"auto"`

	// Empty means clientip.DefaultHeaders.
	TrustedProxyHeaders []string `env:"TRUSTED_PROXY_HEADERS" envSeparator:","`

	HTTP      httpserver.Config
	Postgres  pg.Config
	Redis     redis.Config
	Stripe    billing.StripeConfig // checked when the processor is built, so migrate runs without keys
	Payments  payments.Config
	RateLimit ratelimiter.Config
}

// Validate implements config.Validator.
func (c *appConfig) Validate() error {
	switch c.LockBackend {
	case lockAuto, lockRedis, lockPostgres, lockMemory:
	default:
		return fmt.Errorf("LOCK_BACKEND must be one of auto, redis, postgres, memory, got %q", c.LockBackend)
	}
	if err := c.Payments.Validate(); err != nil {
		return err
	}
	return c.RateLimit.Validate()
}

// app holds the wired dependencies shared by all commands.
type app struct {
	cfg      appConfig
	log      *slog.Logger
	pool     *pgxpool.Pool
	redis    *goredis.Client // nil when REDIS_URL is unset
	registry *prometheus.Registry
	store    *pgstore.Store
	catalog  entitlement.Catalog
}

func loadApp(ctx context.Context) (*app, error) {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(
		logger.WithEnvironment(cfg.Env, serviceName),
		logger.WithContextExtractors(requestid.LoggerExtractor(), clientip.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	pool, err := pg.Connect(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		pool:     pool,
		registry: prometheus.NewRegistry(),
		store:    pgstore.New(pool),
		catalog:  entitlement.NewCatalog(cfg.Payments.Prices),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if cfg.Redis.Enabled() {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = client
	}
	return a, nil
}

func (a *app) Close() error {
	var err error
	if a.redis != nil {
		err = a.redis.Close()
	}
	a.pool.Close()
	return err
}

// newLocker builds the sweeper lock. auto prefers Redis and falls back to a
// Postgres advisory lock.
func newLocker(backend string, rdb *goredis.Client, pool *pgxpool.Pool) (lock.Locker, error) {
	switch backend {
	case lockAuto, "":
		if rdb != nil {
			return lock.NewRedis(rdb, serviceName+":lock:"), nil
		}
		return lock.NewPostgres(pool), nil
	case lockRedis:
		if rdb == nil {
			return nil, errors.New("LOCK_BACKEND=redis requires REDIS_URL")
		}
		return lock.NewRedis(rdb, serviceName+":lock:"), nil
	case lockPostgres:
		return lock.NewPostgres(pool), nil
	case lockMemory:
		return lock.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown lock backend %q", backend)
}

// limiter shares buckets through Redis when configured.
func (a *app) limiter() (*ratelimiter.Bucket, error) {
	var store ratelimiter.Store = ratelimiter.NewMemoryStore()
	if a.redis != nil {
		store = ratelimiter.NewRedisStore(a.redis, serviceName+":ratelimit:")
	}
	return ratelimiter.NewBucket(store, a.cfg.RateLimit)
}

func (a *app) service(metrics *payments.Metrics) (*payments.Service, error) {
	processor, err := billing.NewStripeProcessor(a.cfg.Stripe)
	if err != nil {
		return nil, fmt.Errorf("stripe processor: %w", err)
	}
	return payments.NewService(a.cfg.Payments, a.catalog, processor, a.store,
		payments.WithLogger(a.log),
		payments.WithMetrics(metrics),
	), nil
}

func (a *app) sweeper(metrics *payments.Metrics) (*payments.Sweeper, error) {
	schedule, err := payments.ParseDailyAt(a.cfg.Payments.SweeperDailyAt)
	if err != nil {
		return nil, err
	}
	locker, err := newLocker(a.cfg.LockBackend, a.redis, a.pool)
	if err != nil {
		return nil, err
	}
	return payments.NewSweeper(a.store, a.catalog,
		payments.WithSchedule(schedule),
		payments.WithSweeperLock(locker, payments.DefaultSweeperLockKey, a.cfg.Payments.SweeperLockTTL),
		payments.WithSweeperLogger(a.log),
		payments.WithSweeperMetrics(metrics),
	), nil
}

func (a *app) healthChecks() []httpserver.HealthCheck {
	checks := []httpserver.HealthCheck{{Name: "postgres", Check: pg.Healthcheck(a.pool)}}
	if a.redis != nil {
		checks = append(checks, httpserver.HealthCheck{Name: "redis", Check: redis.Healthcheck(a.redis)})
	}
	return checks
}

// ignoreCanceled treats a shutdown signal as a clean exit.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
