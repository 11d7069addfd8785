package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/recurpay/billing-gateway/internal/adapters/secrets"
	"github.com/recurpay/billing-gateway/internal/config"
	"github.com/recurpay/billing-gateway/internal/domain/ports"
)

// initSecretManager selects the secrets backend:
//   - aws:   AWS Secrets Manager (SECRETS_BACKEND=aws, AWS_REGION)
//   - vault: HashiCorp Vault KV v2 (SECRETS_BACKEND=vault, VAULT_ADDR, VAULT_TOKEN)
//   - local: environment variables or files under SECRETS_LOCAL_PATH,
//     development only
func initSecretManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.SecretManagerAdapter, error) {
	switch cfg.Secrets.Backend {
	case "aws":
		awsCfg := secrets.DefaultAWSSecretsManagerConfig(cfg.Secrets.AWSRegion)
		awsCfg.CacheTTL = cfg.Secrets.CacheTTL
		sm, err := secrets.NewAWSSecretsManagerAdapter(ctx, awsCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("aws secrets manager: %w", err)
		}
		logger.Info("secrets backend ready",
			zap.String("backend", "aws"),
			zap.String("region", cfg.Secrets.AWSRegion),
			zap.Duration("cache_ttl", cfg.Secrets.CacheTTL))
		return sm, nil

	case "vault":
		vaultCfg := secrets.DefaultVaultConfig(cfg.Secrets.VaultAddress)
		vaultCfg.Token = cfg.Secrets.VaultToken
		vaultCfg.CacheTTL = cfg.Secrets.CacheTTL
		sm, err := secrets.NewVaultAdapter(ctx, vaultCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("vault: %w", err)
		}
		logger.Info("secrets backend ready",
			zap.String("backend", "vault"),
			zap.String("address", cfg.Secrets.VaultAddress))
		return sm, nil

	case "local":
		logger.Warn("using local secrets backend, not suitable for production",
			zap.String("path", cfg.Secrets.LocalPath))
		return secrets.NewLocalSecretManager(cfg.Secrets.LocalPath, logger), nil

	default:
		return nil, fmt.Errorf("unknown secrets backend %q", cfg.Secrets.Backend)
	}
}
