package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recurpay/billing-gateway/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/billing")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, 5, cfg.Billing.MaxRetryAttempts)
	assert.Equal(t, []int{1, 3, 7, 14, 30}, cfg.Billing.RetryDelayDays)
	assert.Equal(t, 3, cfg.Billing.GracePeriodDays)

	assert.Equal(t, time.Hour, cfg.Webhook.DuplicateWindow)
	assert.Equal(t, time.Minute, cfg.Webhook.RetryInitialDelay)
	assert.Equal(t, 2.0, cfg.Webhook.RetryMultiplier)
	assert.Equal(t, 24*time.Hour, cfg.Webhook.RetryMaxDelay)
	assert.True(t, cfg.Webhook.RetryJitter)
	assert.Equal(t, 30*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, 7*24*time.Hour, cfg.Webhook.DeliveredRetention)
	assert.Equal(t, 30*24*time.Hour, cfg.Webhook.FailedRetention)

	assert.Equal(t, 1000, cfg.RateLimit.PerHour)
	assert.Equal(t, 100, cfg.RateLimit.Burst)
	assert.Equal(t, 20.0, cfg.RateLimit.IPPerSecond)
	assert.Equal(t, 40, cfg.RateLimit.IPBurst)

	assert.Equal(t, 365*24*time.Hour, cfg.Audit.Retention)

	assert.Equal(t, time.Hour, cfg.JWT.Expiration)
	assert.Equal(t, 24*time.Hour, cfg.JWT.RefreshExpiration)

	assert.Equal(t, "sandbox", cfg.Processor.Environment)
	assert.Equal(t, "local", cfg.Secrets.Backend)
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
}

func TestLoad_ParsesRetryDelaySchedule(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/billing")
	t.Setenv("BILLING_RETRY_DELAY_DAYS", "2, 5,10")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5, 10}, cfg.Billing.RetryDelayDays)
}

func TestLoad_MalformedRetryScheduleFallsBackToDefault(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/billing")
	t.Setenv("BILLING_RETRY_DELAY_DAYS", "1,three,7")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 7, 14, 30}, cfg.Billing.RetryDelayDays)
}

func TestLoad_ConvertsDurationUnits(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/billing")
	t.Setenv("WEBHOOK_DUPLICATE_WINDOW_MINUTES", "15")
	t.Setenv("WEBHOOK_RETRY_MAX_DELAY_MINUTES", "720")
	t.Setenv("JWT_EXPIRATION_MS", "900000")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.Webhook.DuplicateWindow)
	assert.Equal(t, 12*time.Hour, cfg.Webhook.RetryMaxDelay)
	assert.Equal(t, 15*time.Minute, cfg.JWT.Expiration)
}

func TestLoad_CollectsAllProblems(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("BILLING_MAX_RETRY_ATTEMPTS", "0")
	t.Setenv("WEBHOOK_RETRY_MULTIPLIER", "0.5")
	t.Setenv("PROCESSOR_ENVIRONMENT", "staging")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "BILLING_MAX_RETRY_ATTEMPTS")
	assert.Contains(t, err.Error(), "WEBHOOK_RETRY_MULTIPLIER")
	assert.Contains(t, err.Error(), "PROCESSOR_ENVIRONMENT")
}

func TestLoad_RejectsUnknownSecretsBackend(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/billing")
	t.Setenv("SECRETS_BACKEND", "gcp")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SECRETS_BACKEND must be aws, vault, or local")
}

func TestLoad_VaultBackendNeedsAddress(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/billing")
	t.Setenv("SECRETS_BACKEND", "vault")
	t.Setenv("VAULT_ADDR", "")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VAULT_ADDR is required")
}

func TestLoad_ProductionRefusesLocalSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/billing")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("SECRETS_BACKEND", "local")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed in production")
}
