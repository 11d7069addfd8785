package ports

import (
	"context"
)

// Well-known secret paths. Every deployment backend (AWS, Vault, local)
// resolves the same logical paths.
const (
	SecretProcessorAPILoginID     = "billing-gateway/processor/api_login_id"
	SecretProcessorTransactionKey = "billing-gateway/processor/transaction_key"
	SecretWebhookInboundHMAC      = "billing-gateway/webhook/inbound_hmac"
	SecretWebhookOutboundHMAC     = "billing-gateway/webhook/outbound_hmac"
	SecretJWTSigning              = "billing-gateway/auth/jwt_signing"
	SecretCron                    = "billing-gateway/auth/cron"
)

// Secret represents a retrieved secret with metadata
type Secret struct {
	Value     string            // The secret value
	Version   string            // Secret version identifier
	Metadata  map[string]string // Additional secret metadata
	CreatedAt string            // When this version was created
}

// SecretRotationInfo contains information about secret rotation
type SecretRotationInfo struct {
	CurrentVersion  string // Currently active version
	PreviousVersion string // Previous version (for graceful rotation)
	NextRotation    string // Scheduled next rotation date (if applicable)
}

// SecretManagerAdapter defines the port for retrieving secrets from a secret
// management service. Supports multiple backends: AWS Secrets Manager,
// HashiCorp Vault, local filesystem (development).
//
// Implementations are responsible for:
//   - Authentication with the secret manager service
//   - Caching secrets appropriately (with TTL)
//   - Handling secret rotation gracefully
type SecretManagerAdapter interface {
	// GetSecret retrieves a secret by its path/name.
	// Path format depends on implementation:
	//   - AWS: "billing-gateway/processor/api_login_id" or full ARN
	//   - Vault: resolved under the KV mount, e.g. "secret/data/billing-gateway/..."
	//   - Local: file path under the base directory, or env var override
	GetSecret(ctx context.Context, path string) (*Secret, error)

	// GetSecretVersion retrieves a specific version of a secret.
	// Useful during rotation to access the previous version.
	GetSecretVersion(ctx context.Context, path string, version string) (*Secret, error)

	// PutSecret creates or updates a secret (admin/rotation operations).
	// Returns the new version identifier.
	PutSecret(ctx context.Context, path string, value string, metadata map[string]string) (version string, err error)

	// RotateSecret rotates a secret by writing a new version. The new
	// version is created before the old one is retired so in-flight
	// verifications against the previous value keep working.
	RotateSecret(ctx context.Context, path string, newValue string) (*SecretRotationInfo, error)

	// DeleteSecret permanently deletes a secret (admin operations only).
	DeleteSecret(ctx context.Context, path string) error
}
