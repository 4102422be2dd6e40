package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/cache"
	"github.com/noah-isme/backend-pos/internal/cart"
	"github.com/noah-isme/backend-pos/internal/checkout"
	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/config"
	"github.com/noah-isme/backend-pos/internal/coupon"
	"github.com/noah-isme/backend-pos/internal/health"
	"github.com/noah-isme/backend-pos/internal/lock"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/order"
	"github.com/noah-isme/backend-pos/internal/ratelimit"
	"github.com/noah-isme/backend-pos/internal/repo"
	"github.com/noah-isme/backend-pos/internal/resilience"
	"github.com/noah-isme/backend-pos/internal/syncer"
	"github.com/noah-isme/backend-pos/internal/taxrate"
	"github.com/noah-isme/backend-pos/internal/woocommerce"
)

// Dependencies holds the infrastructure shared by the API and the worker.
type Dependencies struct {
	Config *config.Config
	Logger zerolog.Logger
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Woo    *woocommerce.Client
}

// Connect opens Postgres and Redis, applies migrations and builds the
// WooCommerce client. appName tags database sessions.
func Connect(ctx context.Context, cfg *config.Config, logger zerolog.Logger, appName string) (*Dependencies, error) {
	if err := repo.Migrate(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.Obs.EnablePrometheus {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Dependencies{
		Config: cfg,
		Logger: logger,
		DB:     pool,
		Redis:  redisClient,
		Woo:    NewWooClient(cfg, logger),
	}, nil
}

// Close releases the pool and the Redis client.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
}

// Services builds the domain services on top of the live backends.
func (d *Dependencies) Services() (*Services, error) {
	local := coupon.PGStore{DB: d.DB}
	return NewServices(d.Config, d.Logger, Backends{
		Redis:    d.Redis,
		Upstream: d.Woo,
		Coupons:  local,
		Orders:   order.PGStore{DB: d.DB},
	})
}

// Probes returns the readiness checks for the database and Redis.
func (d *Dependencies) Probes() []health.Probe {
	return []health.Probe{
		{Name: "database", Timeout: 500 * time.Millisecond, Check: func(ctx context.Context) error {
			if d.DB == nil {
				return errors.New("database not configured")
			}
			return d.DB.Ping(ctx)
		}},
		{Name: "redis", Timeout: 300 * time.Millisecond, Check: func(ctx context.Context) error {
			if d.Redis == nil {
				return errors.New("redis not configured")
			}
			return d.Redis.Ping(ctx).Err()
		}},
	}
}

// NewWooClient builds the WooCommerce client with its own circuit breaker.
func NewWooClient(cfg *config.Config, logger zerolog.Logger) *woocommerce.Client {
	breaker := resilience.NewBreakerFromConfig(resilience.BreakerConfig{
		Target:       "woocommerce",
		MinRequests:  cfg.CircuitWooMinRequests,
		FailureRatio: cfg.CircuitWooFailureRate,
		OpenFor:      cfg.CircuitWooOpenFor,
	}).WithLogger(logger)
	return woocommerce.NewClient(woocommerce.Options{
		BaseURL:        cfg.WooCommerceURL,
		ConsumerKey:    cfg.WooCommerceConsumerKey,
		ConsumerSecret: cfg.WooCommerceConsumerSecret,
		Timeout:        cfg.OutboundTimeout,
		RetryBase:      cfg.RetryBase,
		MaxAttempts:    cfg.RetryMaxAttempts,
		JitterPercent:  cfg.RetryJitterPercent,
		Breaker:        breaker,
	})
}

// Upstream is everything the services read from or push to the online store.
type Upstream interface {
	taxrate.Catalog
	taxrate.ProductPricer
	cart.ProductFinder
	coupon.Finder
	syncer.Pusher
}

// LocalCoupons is the coupon table owned by this service.
type LocalCoupons interface {
	coupon.Finder
	coupon.UsageRecorder
	coupon.Creator
}

// Backends are the storage and upstream seams services are built on.
type Backends struct {
	Redis    *redis.Client
	Upstream Upstream
	Coupons  LocalCoupons
	Orders   order.Store
}

// Services groups the domain services and the request-scoped helpers
// the router needs.
type Services struct {
	Logger        zerolog.Logger
	Validator     *validator.Validate
	TaxRates      *taxrate.Service
	Pricer        taxrate.ProductPricer
	Coupons       *coupon.Service
	CouponStore   coupon.Creator
	CouponLimiter ratelimit.Limiter
	Carts         *cart.Service
	Checkout      *checkout.Service
	Orders        order.Store
	Syncer        *syncer.Syncer
	Idem          common.Idem
}

// NewServices wires the domain graph. Coupons resolve upstream first and
// fall back to the local table; usage is always recorded locally.
func NewServices(cfg *config.Config, logger zerolog.Logger, b Backends) (*Services, error) {
	if b.Redis == nil || b.Upstream == nil || b.Coupons == nil || b.Orders == nil {
		return nil, errors.New("app: incomplete backends")
	}

	redisCache := cache.New(b.Redis, cfg.TaxRateCacheTTL)
	taxCfg := TaxConfig(cfg)
	rates := &taxrate.Service{
		Resolver: taxrate.NewResolver(b.Upstream, taxCfg, logger.With().Str("component", "taxrate").Logger()),
		Cache: &taxrate.Cache{
			TTL:    cfg.TaxRateCacheTTL,
			Mirror: taxrate.RedisMirror{Redis: redisCache},
		},
		Logger: logger,
	}

	coupons := &coupon.Service{
		Finder: coupon.Chain{b.Upstream, b.Coupons},
		Usage:  b.Coupons,
		Logger: logger.With().Str("component", "coupon").Logger(),
	}

	carts := &cart.Service{
		Store:    cart.RedisStore{Cache: cache.New(b.Redis, cfg.CartTTL)},
		Products: b.Upstream,
		Coupons:  coupons,
		Rates:    rates,
		Logger:   logger.With().Str("component", "cart").Logger(),
	}

	limiterStore, err := ratelimit.NewRedisStore(b.Redis, "pos:ratelimit:coupon")
	if err != nil {
		return nil, fmt.Errorf("rate limit store: %w", err)
	}

	return &Services{
		Logger:        logger,
		Validator:     validator.New(),
		TaxRates:      rates,
		Pricer:        b.Upstream,
		Coupons:       coupons,
		CouponStore:   b.Coupons,
		CouponLimiter: ratelimit.NewFixed(limiterStore, cfg.CouponRateLimitPeriod, cfg.CouponRateLimit),
		Carts:         carts,
		Checkout: &checkout.Service{
			Carts:    carts,
			Orders:   b.Orders,
			Coupons:  coupons,
			Currency: cfg.CurrencyCode,
			Logger:   logger.With().Str("component", "checkout").Logger(),
		},
		Orders: b.Orders,
		Syncer: &syncer.Syncer{
			Orders:    b.Orders,
			Pusher:    b.Upstream,
			Locker:    lock.Locker{R: b.Redis, Prefix: "pos:lock:"},
			LockTTL:   cfg.LockTTL,
			BatchSize: cfg.SyncBatchSize,
			Logger:    logger.With().Str("component", "syncer").Logger(),
		},
		Idem: common.Idem{R: b.Redis, TTL: cfg.IdempotencyTTL, Prefix: "pos:idem:"},
	}, nil
}

// TaxConfig maps the environment settings onto the inference heuristics.
func TaxConfig(cfg *config.Config) taxrate.Config {
	tc := taxrate.DefaultConfig()
	if len(cfg.TaxCandidateRates) > 0 {
		tc.CandidateRates = cfg.TaxCandidateRates
	}
	if cfg.TaxSampleSize > 0 {
		tc.SampleSize = cfg.TaxSampleSize
	}
	if cfg.TaxInclusiveSample > 0 {
		tc.InclusiveSample = cfg.TaxInclusiveSample
	}
	if len(cfg.TaxRegionDefaults) > 0 {
		tc.RegionDefaults = cfg.TaxRegionDefaults
	}
	tc.ToleranceFloor = cfg.TaxToleranceFloor
	tc.TolerancePercent = cfg.TaxTolerancePercent
	tc.EqualityTolerance = cfg.TaxEqualityTolerance
	tc.InclusiveDefault = cfg.TaxInclusiveDefault
	tc.Fallback = cfg.TaxFallbackRate
	return tc
}
