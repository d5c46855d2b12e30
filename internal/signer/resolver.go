// Package signer resolves an agent's encrypted signing secret into a
// credential that authorizes orders and transfers on the exchange.
// Secrets live in HashiCorp Vault; this package never logs or returns the
// raw secret material beyond the credential struct handed to the gateway.
package signer

import (
	"context"
	"fmt"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/alphapilot/internal/config"
	"github.com/ajitpratap0/alphapilot/internal/exchange"
)

// Resolver turns an agent's secret path into exchange credentials
type Resolver interface {
	Resolve(ctx context.Context, secretPath string) (exchange.Credentials, error)
}

// cachedCredentials holds resolved credentials with expiry
type cachedCredentials struct {
	creds     exchange.Credentials
	expiresAt time.Time
}

// VaultResolver resolves credentials from Vault KV v2
type VaultResolver struct {
	client    *vault.Client
	mountPath string
	cacheTTL  time.Duration
	cache     map[string]cachedCredentials
	cacheMu   sync.Mutex
	log       zerolog.Logger
}

// NewVaultResolver creates a resolver from Vault configuration
func NewVaultResolver(cfg config.VaultConfig) (*VaultResolver, error) {
	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("vault token not configured")
	}
	client.SetToken(cfg.Token)

	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}

	log.Info().
		Str("address", cfg.Address).
		Str("mount_path", cfg.MountPath).
		Dur("cache_ttl", cacheTTL).
		Msg("Vault signer resolver initialized")

	return &VaultResolver{
		client:    client,
		mountPath: cfg.MountPath,
		cacheTTL:  cacheTTL,
		cache:     make(map[string]cachedCredentials),
		log:       log.With().Str("component", "signer").Logger(),
	}, nil
}

// Resolve reads the agent's credentials from Vault, with a short-lived
// cache so one agent does not cost one Vault round-trip per cycle
func (r *VaultResolver) Resolve(ctx context.Context, secretPath string) (exchange.Credentials, error) {
	if secretPath == "" {
		return exchange.Credentials{}, fmt.Errorf("agent has no secret path")
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[secretPath]; ok && time.Now().Before(cached.expiresAt) {
		r.cacheMu.Unlock()
		return cached.creds, nil
	}
	r.cacheMu.Unlock()

	// KV v2 read path: <mount>/data/<path>
	fullPath := fmt.Sprintf("%s/data/%s", r.mountPath, secretPath)

	secret, err := r.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return exchange.Credentials{}, fmt.Errorf("failed to read signing secret: %w", err)
	}
	if secret == nil {
		return exchange.Credentials{}, fmt.Errorf("no signing secret at %s", secretPath)
	}

	// KV v2 nests the payload under "data"
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		data = secret.Data
	}

	creds := exchange.Credentials{
		APIKey:    stringField(data, "api_key"),
		APISecret: stringField(data, "api_secret"),
	}
	if creds.IsZero() {
		return exchange.Credentials{}, fmt.Errorf("signing secret at %s has no api_key/api_secret", secretPath)
	}

	r.cacheMu.Lock()
	r.cache[secretPath] = cachedCredentials{creds: creds, expiresAt: time.Now().Add(r.cacheTTL)}
	r.cacheMu.Unlock()

	r.log.Debug().Str("secret_path", secretPath).Msg("Resolved signing credentials")
	return creds, nil
}

// Invalidate drops a cached credential, forcing a fresh Vault read
func (r *VaultResolver) Invalidate(secretPath string) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	delete(r.cache, secretPath)
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

// StaticResolver returns the same credentials for every agent.
// Used in paper mode where the mock gateway ignores authorization.
type StaticResolver struct {
	Creds exchange.Credentials
}

// Resolve returns the fixed credentials
func (r *StaticResolver) Resolve(ctx context.Context, secretPath string) (exchange.Credentials, error) {
	return r.Creds, nil
}
