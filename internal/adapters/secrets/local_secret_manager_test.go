package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/recurpay/billing-gateway/internal/domain/ports"
)

func TestLocalSecretManager_EnvOverride(t *testing.T) {
	t.Setenv("BILLING_GATEWAY_PROCESSOR_API_LOGIN_ID", "login-from-env")

	manager := NewLocalSecretManager(t.TempDir(), zap.NewNop())

	secret, err := manager.GetSecret(context.Background(), ports.SecretProcessorAPILoginID)
	require.NoError(t, err)

	assert.Equal(t, "login-from-env", secret.Value)
	assert.Equal(t, "env", secret.Version)
}

func TestLocalSecretManager_RawFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "billing-gateway/auth"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ports.SecretCron), []byte("cron-secret-value\n"), 0600))

	manager := NewLocalSecretManager(dir, zap.NewNop())

	secret, err := manager.GetSecret(context.Background(), ports.SecretCron)
	require.NoError(t, err)
	assert.Equal(t, "cron-secret-value", secret.Value)
}

func TestLocalSecretManager_PutGetRoundTrip(t *testing.T) {
	manager := NewLocalSecretManager(t.TempDir(), zap.NewNop())

	version, err := manager.PutSecret(context.Background(), ports.SecretWebhookOutboundHMAC, "hmac-key", map[string]string{"env": "test"})
	require.NoError(t, err)
	assert.Equal(t, "v1", version)

	secret, err := manager.GetSecret(context.Background(), ports.SecretWebhookOutboundHMAC)
	require.NoError(t, err)
	assert.Equal(t, "hmac-key", secret.Value)
	assert.Equal(t, "test", secret.Metadata["env"])
}

func TestLocalSecretManager_GetMissing(t *testing.T) {
	manager := NewLocalSecretManager(t.TempDir(), zap.NewNop())

	_, err := manager.GetSecret(context.Background(), "billing-gateway/does/not/exist")
	require.Error(t, err)
}

func TestLocalSecretManager_Delete(t *testing.T) {
	manager := NewLocalSecretManager(t.TempDir(), zap.NewNop())

	_, err := manager.PutSecret(context.Background(), ports.SecretJWTSigning, "signing-key", nil)
	require.NoError(t, err)

	require.NoError(t, manager.DeleteSecret(context.Background(), ports.SecretJWTSigning))

	_, err = manager.GetSecret(context.Background(), ports.SecretJWTSigning)
	require.Error(t, err)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "BILLING_GATEWAY_PROCESSOR_API_LOGIN_ID", envName(ports.SecretProcessorAPILoginID))
	assert.Equal(t, "BILLING_GATEWAY_WEBHOOK_INBOUND_HMAC", envName(ports.SecretWebhookInboundHMAC))
}
