package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration, loaded once at startup from
// environment variables. Secrets (processor credentials, signing keys,
// JWT keys) are NOT here; they come from the secret manager.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Billing   BillingConfig
	Webhook   WebhookConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	JWT       JWTConfig
	Processor ProcessorConfig
	Secrets   SecretsConfig
	Logger    LoggerConfig
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port            string
	MetricsPort     string
	Environment     string
	ShutdownTimeout time.Duration
}

// DatabaseConfig contains postgres pool settings
type DatabaseConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
}

// RedisConfig contains the rate-limiter backend settings
type RedisConfig struct {
	URL string
}

// BillingConfig drives the dunning schedule applied to failed
// subscription payments.
type BillingConfig struct {
	MaxRetryAttempts int
	RetryDelayDays   []int
	GracePeriodDays  int
	SweepBatch       int32
}

// WebhookConfig covers both directions: inbound duplicate suppression
// and the outbound delivery retry policy.
type WebhookConfig struct {
	DuplicateWindow    time.Duration
	RetryInitialDelay  time.Duration
	RetryMultiplier    float64
	RetryMaxDelay      time.Duration
	RetryJitter        bool
	Timeout            time.Duration
	DeliveredRetention time.Duration
	FailedRetention    time.Duration
	SweepBatch         int32
	Concurrency        int
}

// RateLimitConfig is the default per-key quota; per-key overrides live
// in the api_keys table. The IP fields drive the in-process per-IP gate
// that runs in front of the distributed bucket.
type RateLimitConfig struct {
	PerHour     int
	Burst       int
	IPPerSecond float64
	IPBurst     int
}

// AuditConfig bounds how long audit rows are kept before the nightly
// prune removes them.
type AuditConfig struct {
	Retention time.Duration
}

// JWTConfig contains token lifetimes. The signing key comes from the
// secret manager, not the environment.
type JWTConfig struct {
	Expiration        time.Duration
	RefreshExpiration time.Duration
	Issuer            string
}

// ProcessorConfig selects the card processor endpoint
type ProcessorConfig struct {
	Environment string
}

// SecretsConfig selects the secret manager backend and its
// backend-specific settings.
type SecretsConfig struct {
	Backend      string // aws, vault, or local
	AWSRegion    string
	VaultAddress string
	VaultToken   string
	LocalPath    string
	CacheTTL     time.Duration
}

// LoggerConfig contains logging settings
type LoggerConfig struct {
	Level       string
	Development bool
}

// Load reads configuration from environment variables and validates it.
// All validation problems are reported together so a bad deployment
// fails with one complete message instead of one variable per restart.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			MetricsPort:     getEnv("METRICS_PORT", "9090"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			ShutdownTimeout: time.Duration(getEnvAsInt("SHUTDOWN_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: int32(getEnvAsInt("DATABASE_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("DATABASE_MIN_CONNS", 5)),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		Billing: BillingConfig{
			MaxRetryAttempts: getEnvAsInt("BILLING_MAX_RETRY_ATTEMPTS", 5),
			RetryDelayDays:   getEnvAsIntSlice("BILLING_RETRY_DELAY_DAYS", []int{1, 3, 7, 14, 30}),
			GracePeriodDays:  getEnvAsInt("BILLING_GRACE_PERIOD_DAYS", 3),
			SweepBatch:       int32(getEnvAsInt("BILLING_SWEEP_BATCH", 100)),
		},
		Webhook: WebhookConfig{
			DuplicateWindow:    time.Duration(getEnvAsInt("WEBHOOK_DUPLICATE_WINDOW_MINUTES", 60)) * time.Minute,
			RetryInitialDelay:  time.Duration(getEnvAsInt("WEBHOOK_RETRY_INITIAL_DELAY_MINUTES", 1)) * time.Minute,
			RetryMultiplier:    getEnvAsFloat("WEBHOOK_RETRY_MULTIPLIER", 2.0),
			RetryMaxDelay:      time.Duration(getEnvAsInt("WEBHOOK_RETRY_MAX_DELAY_MINUTES", 1440)) * time.Minute,
			RetryJitter:        getEnvAsBool("WEBHOOK_RETRY_JITTER", true),
			Timeout:            time.Duration(getEnvAsInt("WEBHOOK_TIMEOUT_SECONDS", 30)) * time.Second,
			DeliveredRetention: time.Duration(getEnvAsInt("WEBHOOK_CLEANUP_DELIVERED_RETENTION_DAYS", 7)) * 24 * time.Hour,
			FailedRetention:    time.Duration(getEnvAsInt("WEBHOOK_CLEANUP_FAILED_RETENTION_DAYS", 30)) * 24 * time.Hour,
			SweepBatch:         int32(getEnvAsInt("WEBHOOK_SWEEP_BATCH", 100)),
			Concurrency:        getEnvAsInt("WEBHOOK_DELIVERY_CONCURRENCY", 8),
		},
		RateLimit: RateLimitConfig{
			PerHour:     getEnvAsInt("RATELIMIT_DEFAULT_PER_HOUR", 1000),
			Burst:       getEnvAsInt("RATELIMIT_BURST", 100),
			IPPerSecond: getEnvAsFloat("RATELIMIT_IP_PER_SECOND", 20),
			IPBurst:     getEnvAsInt("RATELIMIT_IP_BURST", 40),
		},
		Audit: AuditConfig{
			Retention: time.Duration(getEnvAsInt("AUDIT_RETENTION_DAYS", 365)) * 24 * time.Hour,
		},
		JWT: JWTConfig{
			Expiration:        time.Duration(getEnvAsInt("JWT_EXPIRATION_MS", 3600000)) * time.Millisecond,
			RefreshExpiration: time.Duration(getEnvAsInt("JWT_REFRESH_EXPIRATION_MS", 86400000)) * time.Millisecond,
			Issuer:            getEnv("JWT_ISSUER", "billing-gateway"),
		},
		Processor: ProcessorConfig{
			Environment: getEnv("PROCESSOR_ENVIRONMENT", "sandbox"),
		},
		Secrets: SecretsConfig{
			Backend:      getEnv("SECRETS_BACKEND", "local"),
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
			VaultAddress: getEnv("VAULT_ADDR", ""),
			VaultToken:   getEnv("VAULT_TOKEN", ""),
			LocalPath:    getEnv("SECRETS_LOCAL_PATH", "./secrets"),
			CacheTTL:     time.Duration(getEnvAsInt("SECRET_CACHE_TTL_MINUTES", 5)) * time.Minute,
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnv("ENVIRONMENT", "development") == "development",
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var problems []string

	if c.Database.URL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		problems = append(problems, "DATABASE_MAX_CONNS must be >= DATABASE_MIN_CONNS")
	}
	if c.Billing.MaxRetryAttempts < 1 {
		problems = append(problems, "BILLING_MAX_RETRY_ATTEMPTS must be at least 1")
	}
	if len(c.Billing.RetryDelayDays) == 0 {
		problems = append(problems, "BILLING_RETRY_DELAY_DAYS must list at least one delay")
	}
	for _, d := range c.Billing.RetryDelayDays {
		if d < 1 {
			problems = append(problems, "BILLING_RETRY_DELAY_DAYS entries must be positive")
			break
		}
	}
	if c.Webhook.RetryMultiplier < 1.0 {
		problems = append(problems, "WEBHOOK_RETRY_MULTIPLIER must be >= 1.0")
	}
	if c.Webhook.RetryMaxDelay < c.Webhook.RetryInitialDelay {
		problems = append(problems, "WEBHOOK_RETRY_MAX_DELAY_MINUTES must be >= WEBHOOK_RETRY_INITIAL_DELAY_MINUTES")
	}
	if c.RateLimit.PerHour < 1 {
		problems = append(problems, "RATELIMIT_DEFAULT_PER_HOUR must be positive")
	}
	if c.RateLimit.IPPerSecond <= 0 {
		problems = append(problems, "RATELIMIT_IP_PER_SECOND must be positive")
	}
	if c.Audit.Retention <= 0 {
		problems = append(problems, "AUDIT_RETENTION_DAYS must be positive")
	}
	if c.Processor.Environment != "sandbox" && c.Processor.Environment != "production" {
		problems = append(problems, "PROCESSOR_ENVIRONMENT must be sandbox or production")
	}
	switch c.Secrets.Backend {
	case "aws", "local":
	case "vault":
		if c.Secrets.VaultAddress == "" {
			problems = append(problems, "VAULT_ADDR is required when SECRETS_BACKEND=vault")
		}
	default:
		problems = append(problems, "SECRETS_BACKEND must be aws, vault, or local")
	}
	if c.Server.Environment == "production" && c.Secrets.Backend == "local" {
		problems = append(problems, "SECRETS_BACKEND=local is not allowed in production")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat gets an environment variable as float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsIntSlice parses a comma-separated list of integers, e.g.
// "1,3,7,14,30". Malformed entries invalidate the whole value and the
// default is used instead.
func getEnvAsIntSlice(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return defaultValue
		}
		out = append(out, n)
	}
	return out
}
