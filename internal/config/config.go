package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	CurrencyCode       string
	MaxBodyBytes       int64
	SecurityHeaders    bool

	WooCommerceURL            string
	WooCommerceConsumerKey    string
	WooCommerceConsumerSecret string

	CartTTL        time.Duration
	IdempotencyTTL time.Duration

	TaxRateCacheTTL      time.Duration
	TaxCandidateRates    []decimal.Decimal
	TaxSampleSize        int
	TaxToleranceFloor    decimal.Decimal
	TaxTolerancePercent  decimal.Decimal
	TaxEqualityTolerance decimal.Decimal
	TaxInclusiveSample   int
	TaxInclusiveDefault  decimal.Decimal
	TaxRegionDefaults    map[string]decimal.Decimal
	TaxFallbackRate      decimal.Decimal

	OutboundTimeout       time.Duration
	RetryBase             time.Duration
	RetryMaxAttempts      int
	RetryJitterPercent    int
	CircuitWooMinRequests int
	CircuitWooFailureRate float64
	CircuitWooOpenFor     time.Duration

	SyncInterval  time.Duration
	SyncBatchSize int
	LockTTL       time.Duration

	CouponRateLimit       int64
	CouponRateLimitPeriod time.Duration

	Obs Obs
}

// Obs groups logging, metrics and tracing switches.
type Obs struct {
	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	EnablePrometheus bool
	EnableTracing    bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var errs []error
	dec := func(key, fallback string) decimal.Decimal {
		d, err := parseDecimal(k.String(key), fallback)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		CurrencyCode:       strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "INR")),
		MaxBodyBytes:       int64(parseInt(k.String("HTTP_MAX_BODY_BYTES"), 1<<20)),
		SecurityHeaders:    parseBoolDefault(k.String("SECURITY_HEADERS_ENABLED"), true),

		WooCommerceURL:            strings.TrimRight(strings.TrimSpace(k.String("WOOCOMMERCE_URL")), "/"),
		WooCommerceConsumerKey:    k.String("WOOCOMMERCE_CONSUMER_KEY"),
		WooCommerceConsumerSecret: k.String("WOOCOMMERCE_CONSUMER_SECRET"),

		CartTTL:        parseDuration(k.String("CART_TTL"), "12h"),
		IdempotencyTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		TaxRateCacheTTL:      parseDuration(k.String("TAX_RATE_CACHE_TTL"), "5m"),
		TaxSampleSize:        parseInt(k.String("TAX_SAMPLE_SIZE"), 10),
		TaxToleranceFloor:    dec("TAX_TOLERANCE_FLOOR", "0.50"),
		TaxTolerancePercent:  dec("TAX_TOLERANCE_PERCENT", "1"),
		TaxEqualityTolerance: dec("TAX_EQUALITY_TOLERANCE", "0.01"),
		TaxInclusiveSample:   parseInt(k.String("TAX_INCLUSIVE_SAMPLE"), 5),
		TaxInclusiveDefault:  dec("TAX_INCLUSIVE_DEFAULT", "18"),
		TaxFallbackRate:      dec("TAX_FALLBACK_RATE", "18"),

		OutboundTimeout:       parseDuration(k.String("OUTBOUND_TIMEOUT"), "10s"),
		RetryBase:             parseDuration(k.String("RETRY_BASE"), "200ms"),
		RetryMaxAttempts:      parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryJitterPercent:    parseInt(k.String("RETRY_JITTER_PERCENT"), 20),
		CircuitWooMinRequests: parseInt(k.String("CIRCUIT_WOO_MIN_REQ"), 10),
		CircuitWooFailureRate: parseFloat(k.String("CIRCUIT_WOO_FAILURE_RATE"), 0.5),
		CircuitWooOpenFor:     parseDuration(k.String("CIRCUIT_WOO_OPEN_FOR"), "30s"),

		SyncInterval:  parseDuration(k.String("SYNC_INTERVAL"), "1m"),
		SyncBatchSize: parseInt(k.String("SYNC_BATCH_SIZE"), 25),
		LockTTL:       parseDuration(k.String("LOCK_TTL"), "2m"),

		CouponRateLimit:       int64(parseInt(k.String("COUPON_RATE_LIMIT"), 30)),
		CouponRateLimitPeriod: parseDuration(k.String("COUPON_RATE_LIMIT_PERIOD"), "1m"),

		Obs: Obs{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "pos"),
			EnablePrometheus: parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
			EnableTracing:    parseBoolDefault(k.String("OBS_ENABLE_TRACING"), false),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     k.String("OBS_OTLP_ENDPOINT"),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
		},
	}

	rates, err := parseDecimalList(valueOrDefault(k.String("TAX_CANDIDATE_RATES"), "5,12,18,28"))
	if err != nil {
		errs = append(errs, fmt.Errorf("TAX_CANDIDATE_RATES: %w", err))
	}
	cfg.TaxCandidateRates = rates

	regions, err := parseRegionRates(valueOrDefault(k.String("TAX_REGION_DEFAULTS"), "IN=18"))
	if err != nil {
		errs = append(errs, fmt.Errorf("TAX_REGION_DEFAULTS: %w", err))
	}
	cfg.TaxRegionDefaults = regions

	if cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if cfg.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	if cfg.WooCommerceURL == "" {
		errs = append(errs, errors.New("WOOCOMMERCE_URL is required"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseDecimal(value, fallback string) (decimal.Decimal, error) {
	return decimal.NewFromString(valueOrDefault(value, fallback))
}

func parseDecimalList(value string) ([]decimal.Decimal, error) {
	parts := splitAndTrim(value)
	out := make([]decimal.Decimal, 0, len(parts))
	for _, part := range parts {
		d, err := decimal.NewFromString(part)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", part, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// parseRegionRates reads "IN=18,GB=20" into an upper-cased country map.
func parseRegionRates(value string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, part := range splitAndTrim(value) {
		country, rate, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("entry %q must be COUNTRY=RATE", part)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(rate))
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", part, err)
		}
		out[strings.ToUpper(strings.TrimSpace(country))] = d
	}
	return out, nil
}

// MustLoad behaves like Load but panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
