package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dejobratic/storefront/internal/config"
	"github.com/dejobratic/storefront/internal/database"
	"github.com/dejobratic/storefront/internal/events"
	"github.com/dejobratic/storefront/internal/events/rabbitmq"
	idemmemory "github.com/dejobratic/storefront/internal/idempotency/memory"
	idempostgres "github.com/dejobratic/storefront/internal/idempotency/postgres"
	lockmemory "github.com/dejobratic/storefront/internal/lock/memory"
	lockredis "github.com/dejobratic/storefront/internal/lock/redis"
	"github.com/dejobratic/storefront/internal/notifications"
	"github.com/dejobratic/storefront/internal/orders/adapters"
	httpadapter "github.com/dejobratic/storefront/internal/orders/adapters/http"
	ordersmemory "github.com/dejobratic/storefront/internal/orders/adapters/memory"
	orderspostgres "github.com/dejobratic/storefront/internal/orders/adapters/postgres"
	ordersapp "github.com/dejobratic/storefront/internal/orders/app"
	ordersmetrics "github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/payments/paystack"
	"github.com/dejobratic/storefront/internal/telemetry"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(telemetry.ParseLevel(cfg.Telemetry.LogLevel)).With("service", cfg.Service.Name)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("storefront api exited", "error", err)
		os.Exit(1)
	}
}

// readiness is one named dependency probed by /readyz.
type readiness struct {
	name  string
	check func(ctx context.Context) error
}

// idempotencyStore is an IdempotencyStore that can drop expired keys.
type idempotencyStore interface {
	ports.IdempotencyStore
	Purge(ctx context.Context) (int64, error)
}

// storage is the set of persistence adapters selected by STORAGE_DRIVER.
type storage struct {
	orders        ports.OrderRepository
	lines         ports.OrderLineRepository
	carts         ports.CartRepository
	products      ports.ProductRepository
	addresses     ports.AddressDirectory
	riders        ports.RiderDirectory
	users         ports.UserDirectory
	notifications ports.NotificationRepository
	idempotency   idempotencyStore
	probes        []readiness
	close         func()
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	tel, err := initTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	meter := otel.Meter(cfg.Service.Name)

	dbMetrics, err := database.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("database metrics: %w", err)
	}
	eventMetrics, err := events.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("event metrics: %w", err)
	}
	gatewayMetrics, err := paystack.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("gateway metrics: %w", err)
	}
	orderMetrics, err := ordersmetrics.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("order metrics: %w", err)
	}
	httpMetrics, err := httpadapter.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("http metrics: %w", err)
	}

	store, err := openStorage(ctx, cfg.Database, cfg.HTTP.IdempotencyTTL, meter, logger)
	if err != nil {
		return err
	}
	defer store.close()

	locker, lockProbe, closeLocker, err := openLocker(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeLocker()
	if lockProbe != nil {
		store.probes = append(store.probes, *lockProbe)
	}

	bus, closeBus, err := openEventBus(cfg.RabbitMQ, logger)
	if err != nil {
		return err
	}
	defer closeBus()

	if !cfg.Payment.Enabled {
		logger.Warn("payment gateway disabled, checkout and verification will fail")
	}
	gateway := paystack.NewClient(paystack.Config{
		BaseURL:     cfg.Payment.BaseURL,
		SecretKey:   cfg.Payment.SecretKey,
		CallbackURL: cfg.Payment.CallbackURL,
		Currency:    cfg.Payment.Currency,
		Timeout:     cfg.Payment.Timeout,
	}, gatewayMetrics)

	service := ordersapp.NewService(ordersapp.Dependencies{
		Orders:       adapters.NewObservableRepository(store.orders, dbMetrics),
		Lines:        adapters.NewObservableOrderLineRepository(store.lines, dbMetrics),
		Carts:        adapters.NewObservableCartRepository(store.carts, dbMetrics),
		Products:     adapters.NewObservableProductRepository(store.products, dbMetrics),
		Addresses:    store.addresses,
		Riders:       store.riders,
		Gateway:      gateway,
		Locker:       locker,
		Events:       adapters.NewObservableEventBus(bus, eventMetrics),
		Notifier:     notifications.NewEmitter(store.notifications, store.users, store.riders, logger),
		Idempotency:  store.idempotency,
		CheckoutLock: cfg.Redis.CheckoutLock,
		Logger:       logger,
		Metrics:      orderMetrics,
	})

	if cfg.Recovery.OnStartup {
		report, err := service.RecoverSettlements(ctx, cfg.Recovery.StaleAge)
		if err != nil {
			logger.Error("settlement recovery failed", "error", err)
		} else {
			logger.Info("settlement recovery finished",
				"completed", report.Completed,
				"failed", report.Failed,
				"errors", report.Errors,
			)
		}
	}

	go purgeIdempotencyKeys(ctx, store.idempotency, cfg.HTTP.IdempotencyTTL, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		for _, probe := range store.probes {
			if err := probe.check(r.Context()); err != nil {
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status":     "not ready",
					"dependency": probe.name,
					"error":      err.Error(),
				})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	httpadapter.NewHandler(service, cfg.Payment.SecretKey, logger).Register(mux)

	handler := httpadapter.WithRequestLogging(
		httpadapter.WithRecovery(
			httpadapter.WithMetrics(mux, httpMetrics),
			logger,
		),
		logger,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Payment.Timeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "port", cfg.HTTP.Port, "storage", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("http server stopped")
	return nil
}

// purgeIdempotencyKeys drops expired keys until ctx is done.
func purgeIdempotencyKeys(ctx context.Context, store idempotencyStore, ttl time.Duration, logger *slog.Logger) {
	interval := min(ttl, time.Hour)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Purge(ctx)
			if err != nil {
				logger.WarnContext(ctx, "idempotency purge failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.InfoContext(ctx, "purged expired idempotency keys", "removed", removed)
			}
		}
	}
}

func initTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Telemetry, error) {
	tel, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Environment:    cfg.Service.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTelEndpoint,
		EnableTracing:  cfg.Telemetry.EnableTracing,
		EnableMetrics:  cfg.Telemetry.EnableMetrics,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}
	if !tel.TracingEnabled() && !tel.MetricsEnabled() {
		slog.Info("no OTLP endpoint configured, telemetry is not exported")
	}
	return tel, nil
}

func openStorage(ctx context.Context, cfg config.DatabaseConfig, idempotencyTTL time.Duration, meter metric.Meter, logger *slog.Logger) (*storage, error) {
	if cfg.Driver == config.StorageMemory {
		logger.Warn("using in-memory storage, data is lost on restart")
		directory := ordersmemory.NewDirectory()
		return &storage{
			orders:        ordersmemory.NewOrderRepository(),
			lines:         ordersmemory.NewOrderLineRepository(),
			carts:         ordersmemory.NewCartRepository(),
			products:      ordersmemory.NewProductRepository(),
			addresses:     directory,
			riders:        directory,
			users:         directory,
			notifications: ordersmemory.NewNotificationRepository(),
			idempotency:   idemmemory.NewStore(idemmemory.WithTTL(idempotencyTTL)),
			close:         func() {},
		}, nil
	}

	if cfg.AutoMigrate {
		version, err := database.RunMigrations(cfg.URL, cfg.MigrationsPath)
		if err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database schema is current", "version", version, "path", cfg.MigrationsPath)
	}

	pool, err := database.NewPool(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}
	if err := database.ObservePool(meter, pool); err != nil {
		pool.Close()
		return nil, err
	}

	directory := orderspostgres.NewDirectory(pool)
	return &storage{
		orders:        orderspostgres.NewRepository(pool),
		lines:         orderspostgres.NewOrderLineRepository(pool),
		carts:         orderspostgres.NewCartRepository(pool),
		products:      orderspostgres.NewProductRepository(pool),
		addresses:     directory,
		riders:        directory,
		users:         directory,
		notifications: orderspostgres.NewNotificationRepository(pool),
		idempotency:   idempostgres.NewStore(pool, idempotencyTTL),
		probes: []readiness{{
			name:  "postgres",
			check: func(ctx context.Context) error { return database.CheckHealth(ctx, pool) },
		}},
		close: pool.Close,
	}, nil
}

func openLocker(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (ports.CheckoutLocker, *readiness, func(), error) {
	if cfg.URL == "" {
		logger.Info("REDIS_URL not set, checkout lock is process-local")
		return lockmemory.NewLocker(), nil, func() {}, nil
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := lockredis.Ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, nil, nil, err
	}

	probe := &readiness{
		name:  "redis",
		check: func(ctx context.Context) error { return lockredis.Ping(ctx, client) },
	}
	closeClient := func() {
		if err := client.Close(); err != nil {
			logger.Warn("redis close failed", "error", err)
		}
	}
	return lockredis.NewLocker(client), probe, closeClient, nil
}

func openEventBus(cfg config.RabbitMQConfig, logger *slog.Logger) (ports.EventBus, func(), error) {
	if cfg.URL == "" {
		logger.Info("RABBITMQ_URL not set, order events are only logged")
		return events.NewNoopEventBus(logger), func() {}, nil
	}

	publisher, err := rabbitmq.Dial(cfg.URL, cfg.Exchange, logger)
	if err != nil {
		return nil, nil, err
	}
	closePublisher := func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("rabbitmq close failed", "error", err)
		}
	}
	return publisher, closePublisher, nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
