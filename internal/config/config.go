package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures runtime configuration for the storefront API.
type Config struct {
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Payment   PaymentConfig
	Redis     RedisConfig
	RabbitMQ  RabbitMQConfig
	Recovery  RecoveryConfig
	Telemetry TelemetryConfig
	Service   ServiceConfig
}

// HTTPConfig also carries IdempotencyTTL, how long a checkout
// Idempotency-Key keeps replaying its first response.
type HTTPConfig struct {
	Port           int
	ShutdownGrace  time.Duration
	IdempotencyTTL time.Duration
}

// StorageDriver selects the persistence adapters.
type StorageDriver string

const (
	StoragePostgres StorageDriver = "postgres"
	StorageMemory   StorageDriver = "memory"
)

// DatabaseConfig.MigrationsPath overrides the migrations embedded in the
// binary when set.
type DatabaseConfig struct {
	Driver         StorageDriver
	URL            string
	AutoMigrate    bool
	MigrationsPath string
}

type PaymentConfig struct {
	Enabled     bool
	BaseURL     string
	SecretKey   string
	CallbackURL string
	Currency    string
	Timeout     time.Duration
}

// RedisConfig is optional. An empty URL selects the in-process checkout lock.
type RedisConfig struct {
	URL          string
	CheckoutLock time.Duration
}

// RabbitMQConfig is optional. An empty URL selects the logging event bus.
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

type RecoveryConfig struct {
	OnStartup bool
	StaleAge  time.Duration
}

type TelemetryConfig struct {
	LogLevel      string
	OTelEndpoint  string
	EnableTracing bool
	EnableMetrics bool
	SampleRate    float64
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

var ErrMissingSecretKey = errors.New("PAYSTACK_SECRET_KEY is required when the payment gateway is enabled")

const (
	defaultHTTPPort        = 8080
	defaultShutdownGrace   = 15 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultAutoMigrate     = true
	defaultStorageDriver   = StoragePostgres
	defaultPaystackURL     = "https://api.paystack.co"
	defaultPaystackTimeout = 10 * time.Second
	defaultCurrency        = "NGN"
	defaultCheckoutLock    = 30 * time.Second
	defaultExchange        = "storefront.orders"
	defaultRecoveryAge     = 5 * time.Minute
	defaultServiceName     = "storefront-api"
	defaultServiceVersion  = "0.1.0"
	defaultEnvironment     = "development"
	defaultLogLevel        = "info"
	defaultOTelSampleRate  = 1.0
)

// Load reads configuration from the environment, applying defaults when
// needed. Values from a .env file in the working directory are loaded first
// without overriding variables that are already set.
func Load() (*Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit dotenv files. Missing files are skipped.
func LoadFiles(files ...string) (*Config, error) {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", file, err)
		}
	}

	httpCfg, err := loadHTTPConfig()
	if err != nil {
		return nil, fmt.Errorf("loading HTTP config: %w", err)
	}

	dbCfg, err := loadDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("loading database config: %w", err)
	}

	paymentCfg, err := loadPaymentConfig()
	if err != nil {
		return nil, fmt.Errorf("loading payment config: %w", err)
	}

	redisCfg, err := loadRedisConfig()
	if err != nil {
		return nil, fmt.Errorf("loading redis config: %w", err)
	}

	recoveryCfg, err := loadRecoveryConfig()
	if err != nil {
		return nil, fmt.Errorf("loading recovery config: %w", err)
	}

	telCfg, err := loadTelemetryConfig()
	if err != nil {
		return nil, fmt.Errorf("loading telemetry config: %w", err)
	}

	return &Config{
		HTTP:      httpCfg,
		Database:  dbCfg,
		Payment:   paymentCfg,
		Redis:     redisCfg,
		RabbitMQ:  loadRabbitMQConfig(),
		Recovery:  recoveryCfg,
		Telemetry: telCfg,
		Service:   loadServiceConfig(),
	}, nil
}

func loadHTTPConfig() (HTTPConfig, error) {
	port := defaultHTTPPort
	if value, ok := os.LookupEnv("API_HTTP_PORT"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return HTTPConfig{}, fmt.Errorf("invalid API_HTTP_PORT: %w", err)
		}
		port = parsed
	}

	shutdownGrace, err := getDurationEnv("API_SHUTDOWN_GRACE", defaultShutdownGrace)
	if err != nil {
		return HTTPConfig{}, err
	}

	idempotencyTTL, err := getDurationEnv("IDEMPOTENCY_TTL", defaultIdempotencyTTL)
	if err != nil {
		return HTTPConfig{}, err
	}

	return HTTPConfig{
		Port:           port,
		ShutdownGrace:  shutdownGrace,
		IdempotencyTTL: idempotencyTTL,
	}, nil
}

func loadDatabaseConfig() (DatabaseConfig, error) {
	driver := StorageDriver(strings.ToLower(getEnvOrDefault("STORAGE_DRIVER", string(defaultStorageDriver))))
	if driver != StoragePostgres && driver != StorageMemory {
		return DatabaseConfig{}, fmt.Errorf("invalid STORAGE_DRIVER %q", driver)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = buildDatabaseURL()
	}

	return DatabaseConfig{
		Driver:         driver,
		URL:            databaseURL,
		AutoMigrate:    getBoolEnv("AUTO_MIGRATE", defaultAutoMigrate),
		MigrationsPath: os.Getenv("MIGRATIONS_PATH"),
	}, nil
}

func loadPaymentConfig() (PaymentConfig, error) {
	timeout, err := getDurationEnv("PAYSTACK_TIMEOUT", defaultPaystackTimeout)
	if err != nil {
		return PaymentConfig{}, err
	}

	cfg := PaymentConfig{
		Enabled:     getBoolEnv("PAYSTACK_ENABLED", true),
		BaseURL:     getEnvOrDefault("PAYSTACK_BASE_URL", defaultPaystackURL),
		SecretKey:   os.Getenv("PAYSTACK_SECRET_KEY"),
		CallbackURL: os.Getenv("PAYSTACK_CALLBACK_URL"),
		Currency:    getEnvOrDefault("PAYMENT_CURRENCY", defaultCurrency),
		Timeout:     timeout,
	}
	if cfg.Enabled && cfg.SecretKey == "" {
		return PaymentConfig{}, ErrMissingSecretKey
	}

	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	lockTTL, err := getDurationEnv("CHECKOUT_LOCK_TTL", defaultCheckoutLock)
	if err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		URL:          os.Getenv("REDIS_URL"),
		CheckoutLock: lockTTL,
	}, nil
}

func loadRabbitMQConfig() RabbitMQConfig {
	return RabbitMQConfig{
		URL:      os.Getenv("RABBITMQ_URL"),
		Exchange: getEnvOrDefault("RABBITMQ_EXCHANGE", defaultExchange),
	}
}

func loadRecoveryConfig() (RecoveryConfig, error) {
	staleAge, err := getDurationEnv("SETTLEMENT_RECOVERY_AGE", defaultRecoveryAge)
	if err != nil {
		return RecoveryConfig{}, err
	}

	return RecoveryConfig{
		OnStartup: getBoolEnv("SETTLEMENT_RECOVERY", true),
		StaleAge:  staleAge,
	}, nil
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	sampleRate := defaultOTelSampleRate
	if value, ok := os.LookupEnv("OTEL_SAMPLE_RATE"); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return TelemetryConfig{}, fmt.Errorf("invalid OTEL_SAMPLE_RATE: %w", err)
		}
		sampleRate = parsed
	}

	return TelemetryConfig{
		LogLevel:      getEnvOrDefault("LOG_LEVEL", defaultLogLevel),
		OTelEndpoint:  getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		EnableTracing: getBoolEnv("OTEL_ENABLE_TRACING", true),
		EnableMetrics: getBoolEnv("OTEL_ENABLE_METRICS", true),
		SampleRate:    sampleRate,
	}, nil
}

func loadServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:        getEnvOrDefault("API_SERVICE_NAME", defaultServiceName),
		Version:     getEnvOrDefault("SERVICE_VERSION", defaultServiceVersion),
		Environment: getEnvOrDefault("ENVIRONMENT", defaultEnvironment),
	}
}

func buildDatabaseURL() string {
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := getEnvOrDefault("DB_PASSWORD", "postgres")
	dbName := getEnvOrDefault("DB_NAME", "storefront")
	sslMode := getEnvOrDefault("DB_SSLMODE", "disable")

	maxConns := getEnvOrDefault("DB_MAX_CONNS", "25")
	minConns := getEnvOrDefault("DB_MIN_CONNS", "5")
	maxLifetime := getEnvOrDefault("DB_MAX_CONN_LIFETIME", "5m")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%s&pool_min_conns=%s&pool_max_conn_lifetime=%s",
		user, password, host, port, dbName, sslMode, maxConns, minConns, maxLifetime,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		return value == "true"
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return parsed, nil
}
