package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	CartStoreRedis = "redis"
	CartStoreMongo = "mongo"

	PaymentModeSimulated = "simulated"
	PaymentModeHTTP      = "http"
)

type Config struct {
	Env      string
	LogLevel string

	HTTPPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	SecureCookies      bool

	Currency string

	CatalogDBPath         string
	CatalogMigrationsPath string

	CartStore     string
	CartTTL       time.Duration
	RedisAddr     string
	RedisPassword string
	MongoURI      string
	MongoDBName   string
	MongoCartTTL  time.Duration

	Postgres Postgres

	PaymentMode         string
	PaymentAPIURL       string
	PaymentAPIKey       string
	PaymentTimeout      time.Duration
	PaymentApprovalRate int

	KafkaBrokers []string
	OrdersTopic  string
}

type Postgres struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// Load reads the environment, after applying an optional .env file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", f, err)
			}
		}
	}

	var errs []string
	durationOf := func(key, def string) time.Duration {
		d, err := time.ParseDuration(getEnv(key, def))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
		return d
	}
	intOf := func(key, def string) int {
		n, err := strconv.Atoi(getEnv(key, def))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
		return n
	}

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		RequestTimeout:     durationOf("REQUEST_TIMEOUT", "30s"),
		ShutdownTimeout:    durationOf("SHUTDOWN_TIMEOUT", "10s"),
		MaxRequestBodySize: 1 << 20, // 1MB
		SecureCookies:      getEnv("SECURE_COOKIES", "false") == "true",

		Currency: getEnv("STORE_CURRENCY", "GBP"),

		CatalogDBPath:         getEnv("CATALOG_DB_PATH", "./catalog.db"),
		CatalogMigrationsPath: getEnv("CATALOG_MIGRATIONS_PATH", "./internal/catalog/migrations"),

		CartStore:     getEnv("CART_STORE", CartStoreRedis),
		CartTTL:       durationOf("CART_TTL", "24h"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:   getEnv("MONGO_DB_NAME", "storefront"),
		MongoCartTTL:  durationOf("MONGO_CART_TTL", "2160h"),

		Postgres: Postgres{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              intOf("DB_PORT", "5432"),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", "postgres"),
			DBName:            getEnv("DB_NAME", "storefront"),
			MigrationsDirPath: getEnv("MIGRATIONS_PATH", "./internal/repository/migrations"),
		},

		PaymentMode:         getEnv("PAYMENT_MODE", PaymentModeSimulated),
		PaymentAPIURL:       getEnv("PAYMENT_API_URL", "https://payments.example.com"),
		PaymentAPIKey:       getEnv("PAYMENT_API_KEY", "sk_test_storefront"),
		PaymentTimeout:      durationOf("PAYMENT_TIMEOUT", "15s"),
		PaymentApprovalRate: intOf("PAYMENT_APPROVAL_RATE", "95"),

		KafkaBrokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		OrdersTopic:  getEnv("ORDERS_TOPIC", "storefront-orders"),
	}

	if cfg.CartStore != CartStoreRedis && cfg.CartStore != CartStoreMongo {
		errs = append(errs, fmt.Sprintf("CART_STORE: unknown store %q", cfg.CartStore))
	}
	if cfg.PaymentMode != PaymentModeSimulated && cfg.PaymentMode != PaymentModeHTTP {
		errs = append(errs, fmt.Sprintf("PAYMENT_MODE: unknown mode %q", cfg.PaymentMode))
	}
	if cfg.PaymentApprovalRate < 0 || cfg.PaymentApprovalRate > 100 {
		errs = append(errs, "PAYMENT_APPROVAL_RATE: must be between 0 and 100")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
