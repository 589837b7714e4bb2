package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/garrettladley/payhook/internal/db"
	"github.com/garrettladley/payhook/internal/orders"
	"github.com/garrettladley/payhook/internal/payment"
	"github.com/garrettladley/payhook/internal/payment/mock"
	"github.com/garrettladley/payhook/internal/payment/stripe"
	xredis "github.com/garrettladley/payhook/internal/redis"
	"github.com/garrettladley/payhook/internal/server"
	"github.com/garrettladley/payhook/internal/service/checkout"
	"github.com/garrettladley/payhook/internal/service/idempotency"
	"github.com/garrettladley/payhook/internal/service/webhook"
	"github.com/garrettladley/payhook/internal/storage"
	"github.com/garrettladley/payhook/internal/xhttp"
	"github.com/garrettladley/payhook/internal/xslog"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const (
	keyPort      = "port"
	keyProcessor = "processor"

	shutdownTimeout = 30 * time.Second
)

// idempotencyStore is what the server needs from whichever backend is
// configured: the guard's store, the sweeper's target and the health source.
type idempotencyStore interface {
	storage.IdempotencyStore
	storage.ExpirySweeper
	ActiveSource(ctx context.Context) string
}

func main() {
	_ = godotenv.Load()

	logger := xslog.NewLoggerFromEnv(os.Stdout)
	slog.SetDefault(logger)

	ctx := context.Background()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", xslog.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := server.ReadConfig()
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, redisClient := initIdempotencyStore(ctx, cfg, logger)
	defer func() {
		if err := store.Close(); err != nil {
			logger.ErrorContext(ctx, "failed to close idempotency store", xslog.Error(err))
		}
	}()

	limiter, closeLimiter := initRateLimiter(ctx, cfg, redisClient, logger)
	defer closeLimiter()

	adapter := initAdapter(cfg)
	source := initOrderSource(ctx, cfg, logger)

	guard := idempotency.NewGuard(store, cfg.Idempotency.Guard)
	dispatcher := webhook.NewDispatcher(adapter, source, guard, cfg.Webhook)
	orchestrator := checkout.NewOrchestrator(source, adapter, cfg.Checkout)

	sweeper := idempotency.NewSweeper(store, cfg.Idempotency.SweepInterval, logger)
	go sweeper.Run(ctx)

	httpServer := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: server.NewRouter(server.Deps{
			Logger:         logger,
			Webhook:        dispatcher,
			Checkout:       orchestrator,
			Health:         store,
			RateLimiter:    limiter,
			TrustedProxies: cfg.TrustedProxies(),
			CORS:           cfg.CORSConfig(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "starting server",
			xslog.Version(),
			slog.String(keyPort, cfg.Port),
			slog.String(keyProcessor, adapter.Name()),
			xslog.Backend(string(cfg.Idempotency.Backend)),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.InfoContext(ctx, "shutdown signal received, initiating graceful shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.InfoContext(shutdownCtx, "server stopped")
	return nil
}

// initIdempotencyStore opens the configured durable backend behind a memory
// fallback. An unreachable backend at startup is not fatal: the server runs
// on memory alone and says so.
func initIdempotencyStore(ctx context.Context, cfg server.Config, logger *slog.Logger) (idempotencyStore, *redis.Client) {
	memory := storage.NewMemoryIdempotencyStore(storage.WithMaxEntries(cfg.Idempotency.MemoryMaxEntries))

	backend := cfg.Idempotency.Backend
	if backend == server.BackendMemory {
		logger.WarnContext(ctx, "using in-memory idempotency store; duplicate suppression is per process",
			xslog.Backend(string(backend)))
		return memory, nil
	}

	primary, redisClient, err := openPrimary(ctx, cfg)
	if err != nil {
		logger.WarnContext(ctx, "idempotency backend unreachable, running on memory store",
			xslog.Backend(string(backend)),
			xslog.Error(err),
		)
		return memory, nil
	}

	logger.InfoContext(ctx, "initialized idempotency store", xslog.Backend(string(backend)))
	return storage.NewFallbackIdempotencyStore(primary, memory, logger), redisClient
}

func openPrimary(ctx context.Context, cfg server.Config) (storage.IdempotencyStore, *redis.Client, error) {
	switch cfg.Idempotency.Backend {
	case server.BackendRedis:
		client, err := xredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedisIdempotencyStore(storage.RedisConfig{Client: client}), client, nil
	case server.BackendPostgres:
		pool, err := db.OpenPostgres(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewPostgresIdempotencyStore(pool), nil, nil
	case server.BackendSQLite:
		sqlDB, err := db.OpenSQLite(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewSQLiteIdempotencyStore(sqlDB), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown idempotency backend %q", cfg.Idempotency.Backend)
	}
}

// initRateLimiter shares limits across replicas when Redis is already in use.
func initRateLimiter(ctx context.Context, cfg server.Config, redisClient *redis.Client, logger *slog.Logger) (storage.RateLimiter, func()) {
	if redisClient != nil {
		logger.InfoContext(ctx, "initializing Redis rate limiter")
		return storage.NewRedisRateLimiter(storage.RedisConfig{Client: redisClient}, int(cfg.RateLimit.Limit)), func() {}
	}

	logger.InfoContext(ctx, "initializing in-memory rate limiter")
	limiter := storage.NewMemoryRateLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Burst)
	return limiter, func() { _ = limiter.Close() }
}

func initAdapter(cfg server.Config) payment.Adapter {
	switch cfg.PaymentProcessor {
	case server.ProcessorStripe:
		return stripe.New(cfg.Stripe, xhttp.NewHTTPClient(xhttp.WithTimeout(30*time.Second)))
	default:
		return mock.New(cfg.Mock.CheckoutURL, cfg.Webhook.Secret)
	}
}

func initOrderSource(ctx context.Context, cfg server.Config, logger *slog.Logger) orders.Source {
	if cfg.Orders.BaseURL == "" {
		logger.WarnContext(ctx, "ORDERS_BASE_URL not set, using in-memory order source")
		return orders.NewMemorySource()
	}
	return orders.NewHTTPSource(cfg.Orders)
}
