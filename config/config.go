package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	ServiceName      string
	OTELEndpoint     string
	TelemetryEnabled bool
	Port             string

	Provider ProviderConfig
	Charge   ChargeConfig
	Store    StoreConfig

	// WebhookToken, when set, must be presented by the payment provider.
	WebhookToken string
}

// ProviderConfig describes the BSPay v2 integration.
type ProviderConfig struct {
	BaseURL     string
	AuthKey     string
	PostbackURL string
	Timeout     time.Duration
}

// ChargeConfig holds the fixed business parameters of a Pix charge.
type ChargeConfig struct {
	Amount            string
	ExpirationSeconds int
	QRImageBaseURL    string
}

// StoreConfig selects and configures the payer record store.
type StoreConfig struct {
	Driver      string
	DatabaseURL string
	BoltPath    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
}

// Load loads configuration from environment variables, reading a .env file first if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServiceName:      "pix-payments",
		OTELEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		TelemetryEnabled: getBoolEnv("TELEMETRY_ENABLED", true),
		Port:             getEnv("PORT", "8081"),
		Provider: ProviderConfig{
			BaseURL:     getEnv("BSPAY_BASE_URL", "https://api.bspay.co/v2"),
			AuthKey:     getEnv("BSPAY_AUTH_KEY", ""),
			PostbackURL: getEnv("BSPAY_POSTBACK_URL", ""),
			Timeout:     getDurationEnv("PROVIDER_TIMEOUT", 10*time.Second),
		},
		Charge: ChargeConfig{
			Amount:            getEnv("PIX_AMOUNT", "48.00"),
			ExpirationSeconds: getIntEnv("PIX_EXPIRATION_SECONDS", 600),
			QRImageBaseURL:    getEnv("QR_IMAGE_BASE_URL", "https://api.qrserver.com/v1/create-qr-code/"),
		},
		Store: StoreConfig{
			Driver:        getEnv("STORE_DRIVER", "postgres"),
			DatabaseURL:   getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=pix port=5432 sslmode=disable"),
			BoltPath:      getEnv("BOLT_PATH", "payers.db"),
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getIntEnv("REDIS_DB", 0),
			CacheTTL:      getDurationEnv("STATUS_CACHE_TTL", 24*time.Hour),
		},
		WebhookToken: getEnv("WEBHOOK_TOKEN", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
