// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Port     string
	LogLevel string

	// Profile is a builtin profile name or a path to a profile document.
	Profile  string
	Test     bool
	TestURL  string
	LiveURL  string
	Username string
	Password string

	MerchantAccount string

	HTTPTimeout time.Duration
	MaxRetries  int
	RetryDelay  time.Duration

	BreakerFailureThreshold  int
	BreakerOpenTimeout       time.Duration
	BreakerHalfOpenSuccesses int
	BreakerHalfOpenMaxCalls  int

	VerifyAmount   string
	VerifyCurrency string

	RedisURL       string
	DatabaseURL    string
	KafkaBrokers   []string
	KafkaTopic     string
	IdempotencyTTL time.Duration

	// AuditMemoryEntries bounds the in-process audit buffer behind /v1/report.
	AuditMemoryEntries int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	var errs []error
	cfg := &Config{
		Port:            getEnvOrDefault("PORT", "8080"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		Profile:         getEnvOrDefault("GATEWAY_PROFILE", "adyen"),
		Test:            parse(&errs, "GATEWAY_TEST", true, strconv.ParseBool),
		TestURL:         os.Getenv("GATEWAY_TEST_URL"),
		LiveURL:         os.Getenv("GATEWAY_LIVE_URL"),
		Username:        os.Getenv("GATEWAY_USERNAME"),
		Password:        os.Getenv("GATEWAY_PASSWORD"),
		MerchantAccount: os.Getenv("GATEWAY_MERCHANT_ACCOUNT"),

		HTTPTimeout: parse(&errs, "GATEWAY_TIMEOUT", 10*time.Second, time.ParseDuration),
		MaxRetries:  parse(&errs, "GATEWAY_MAX_RETRIES", 0, strconv.Atoi),
		RetryDelay:  parse(&errs, "GATEWAY_RETRY_DELAY", 500*time.Millisecond, time.ParseDuration),

		BreakerFailureThreshold:  parse(&errs, "BREAKER_FAILURE_THRESHOLD", 3, strconv.Atoi),
		BreakerOpenTimeout:       parse(&errs, "BREAKER_OPEN_TIMEOUT", 30*time.Second, time.ParseDuration),
		BreakerHalfOpenSuccesses: parse(&errs, "BREAKER_HALF_OPEN_SUCCESSES", 2, strconv.Atoi),
		BreakerHalfOpenMaxCalls:  parse(&errs, "BREAKER_HALF_OPEN_MAX_CALLS", 1, strconv.Atoi),

		VerifyAmount:   getEnvOrDefault("VERIFY_AMOUNT", "1.00"),
		VerifyCurrency: getEnvOrDefault("VERIFY_CURRENCY", "USD"),

		RedisURL:       os.Getenv("REDIS_URL"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		KafkaTopic:     getEnvOrDefault("KAFKA_TOPIC", "gateway-calls"),
		IdempotencyTTL: parse(&errs, "IDEMPOTENCY_TTL", 24*time.Hour, time.ParseDuration),

		AuditMemoryEntries: parse(&errs, "AUDIT_MEMORY_ENTRIES", 10000, strconv.Atoi),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	var missing []string
	for _, req := range []struct{ name, value string }{
		{"GATEWAY_USERNAME", c.Username},
		{"GATEWAY_PASSWORD", c.Password},
		{"GATEWAY_MERCHANT_ACCOUNT", c.MerchantAccount},
	} {
		if req.value == "" {
			missing = append(missing, req.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	if c.MaxRetries < 0 {
		return errors.New("config: GATEWAY_MAX_RETRIES must not be negative")
	}
	if c.AuditMemoryEntries < 0 {
		return errors.New("config: AUDIT_MEMORY_ENTRIES must not be negative")
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("config: GATEWAY_TIMEOUT must be positive")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parse[T any](errs *[]error, key string, defaultValue T, fn func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := fn(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("config: %s: %w", key, err))
		return defaultValue
	}
	return v
}
