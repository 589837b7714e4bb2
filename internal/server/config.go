package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
	appenv "github.com/garrettladley/payhook/internal/env"
	"github.com/garrettladley/payhook/internal/orders"
	"github.com/garrettladley/payhook/internal/payment/stripe"
	xredis "github.com/garrettladley/payhook/internal/redis"
	"github.com/garrettladley/payhook/internal/service/checkout"
	"github.com/garrettladley/payhook/internal/service/idempotency"
	"github.com/garrettladley/payhook/internal/service/webhook"
	stdwebhook "github.com/garrettladley/payhook/internal/webhook"
	"github.com/garrettladley/payhook/internal/xhttp"
	"github.com/garrettladley/payhook/internal/xhttp/middleware"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Processor string

const (
	ProcessorMock   Processor = "mock"
	ProcessorStripe Processor = "stripe"
)

type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendRedis    Backend = "redis"
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
)

type Config struct {
	Port             string             `env:"PORT" envDefault:"8080"`
	Env              appenv.Environment `env:"ENV" envDefault:"development"`
	PaymentProcessor Processor          `env:"PAYMENT_PROCESSOR" envDefault:"mock"`

	Webhook     webhook.Config  `envPrefix:"WEBHOOK_"`
	Stripe      stripe.Config   `envPrefix:"STRIPE_"`
	Mock        Mock            `envPrefix:"MOCK_"`
	Checkout    checkout.Config `envPrefix:"CHECKOUT_"`
	Orders      orders.Config   `envPrefix:"ORDERS_"`
	Idempotency Idempotency     `envPrefix:"IDEMPOTENCY_"`
	Redis       xredis.Config   `envPrefix:"REDIS_"`
	Database    Database        `envPrefix:"DATABASE_"`
	SQLite      SQLite          `envPrefix:"SQLITE_"`
	CORS        CORS            `envPrefix:"CORS_"`
	RateLimit   RateLimit       `envPrefix:"RATE_"`
}

type Mock struct {
	CheckoutURL string `env:"CHECKOUT_URL"`
}

type Idempotency struct {
	Backend          Backend `env:"BACKEND" envDefault:"memory"`
	Guard            idempotency.Config
	MemoryMaxEntries int           `env:"MEMORY_MAX_ENTRIES" envDefault:"10000"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL" envDefault:"10m"`
}

type Database struct {
	URL string `env:"URL"`
}

type SQLite struct {
	Path string `env:"PATH"`
}

type CORS struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	PreviewPattern string   `env:"PREVIEW_PATTERN"`
}

type RateLimit struct {
	Limit float64 `env:"LIMIT" envDefault:"5"`
	Burst int     `env:"BURST" envDefault:"10"`
	// TrustedProxies lists CIDRs or addresses of load balancers whose
	// X-Forwarded-For is believed. Empty means the peer address is the client.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

func ReadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate reports every problem at once so a bad deploy fails on the first
// start rather than one variable at a time.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Webhook.Secret == "" {
		add("WEBHOOK_SECRET is required")
	}

	switch c.PaymentProcessor {
	case ProcessorMock:
		if c.Webhook.Secret != "" {
			if err := stdwebhook.ValidateSecret(c.Webhook.Secret); err != nil {
				add("WEBHOOK_SECRET: %v", err)
			}
		}
	case ProcessorStripe:
		if c.Stripe.SecretKey == "" {
			add("STRIPE_SECRET_KEY is required for the stripe processor")
		}
		if c.Checkout.SuccessURL == "" || c.Checkout.CancelURL == "" {
			add("CHECKOUT_SUCCESS_URL and CHECKOUT_CANCEL_URL are required for the stripe processor")
		}
	default:
		add("unknown PAYMENT_PROCESSOR %q", c.PaymentProcessor)
	}

	if c.Orders.BaseURL == "" && !c.Env.IsDevelopment() {
		add("ORDERS_BASE_URL is required outside development")
	}

	switch c.Idempotency.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			add("REDIS_URL is required for the redis backend")
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			add("DATABASE_URL is required for the postgres backend")
		}
	case BackendSQLite:
		if c.SQLite.Path == "" {
			add("SQLITE_PATH is required for the sqlite backend")
		}
	default:
		add("unknown IDEMPOTENCY_BACKEND %q", c.Idempotency.Backend)
	}

	if c.CORS.PreviewPattern != "" {
		if _, err := regexp.Compile(c.CORS.PreviewPattern); err != nil {
			add("CORS_PREVIEW_PATTERN: %v", err)
		}
	}
	if c.RateLimit.Limit <= 0 || c.RateLimit.Burst <= 0 {
		add("RATE_LIMIT and RATE_BURST must be positive")
	}
	if _, err := xhttp.ParseTrustedProxies(c.RateLimit.TrustedProxies); err != nil {
		add("RATE_TRUSTED_PROXIES: %v", err)
	}

	return errors.Join(errs...)
}

// TrustedProxies returns the parsed RATE_TRUSTED_PROXIES. Call after Validate.
func (c Config) TrustedProxies() []netip.Prefix {
	prefixes, _ := xhttp.ParseTrustedProxies(c.RateLimit.TrustedProxies)
	return prefixes
}

// CORSConfig builds the checkout route's CORS policy. Call after Validate.
func (c Config) CORSConfig() middleware.CORSConfig {
	cfg := middleware.CORSConfig{
		AllowedOrigins: c.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{xhttp.ContentType},
		MaxAge:         10 * time.Minute,
	}
	if c.CORS.PreviewPattern != "" {
		cfg.PreviewPattern = regexp.MustCompile(c.CORS.PreviewPattern)
	}
	return cfg
}
