package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"storygen/backend/pkg/logger"

	vault "github.com/hashicorp/vault/api"
)

// Common errors
var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrNoVaultToken   = errors.New("no vault token provided")
	ErrNoVaultAddress = errors.New("no vault address provided")
)

// VaultConfig holds configuration for Vault client
type VaultConfig struct {
	Address     string
	Token       string
	Namespace   string
	Timeout     time.Duration
	MaxRetries  int
	SecretsPath string
	// Mount is the KV v2 mount, "secret" by default
	Mount string
	// CacheTTL bounds how long a read of the credential document is reused
	CacheTTL time.Duration
	Enabled  bool
}

// Source tells where a credential was resolved from.
type Source string

const (
	SourceVault   Source = "vault"
	SourceEnv     Source = "env"
	SourceMissing Source = "missing"
)

// VaultManager resolves upstream credentials. All of them live in one KV v2
// document at SecretsPath; the document is fetched as a whole and reused
// for CacheTTL. Keys absent from Vault, or every key when Vault is
// disabled, are read from the environment.
type VaultManager struct {
	client *vault.Client
	config VaultConfig
	log    *logger.Logger

	mu        sync.Mutex
	doc       map[string]string
	fetchedAt time.Time
	now       func() time.Time
}

// NewVaultManager creates a Vault-backed manager. A disabled config yields a
// manager that only reads the environment.
func NewVaultManager(config VaultConfig, log *logger.Logger) (*VaultManager, error) {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Minute
	}
	if config.Mount == "" {
		config.Mount = "secret"
	}
	if config.SecretsPath == "" {
		config.SecretsPath = "storygen"
	}

	m := &VaultManager{config: config, log: log, now: time.Now}
	if !config.Enabled {
		return m, nil
	}

	if config.Address == "" {
		return nil, ErrNoVaultAddress
	}
	if config.Token == "" {
		return nil, ErrNoVaultToken
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = config.Address
	vaultConfig.Timeout = config.Timeout
	vaultConfig.MaxRetries = config.MaxRetries

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(config.Token)
	if config.Namespace != "" {
		client.SetNamespace(config.Namespace)
	}
	m.client = client
	return m, nil
}

// GetSecret returns the value of key from Vault, then the environment.
func (m *VaultManager) GetSecret(ctx context.Context, key string) (string, error) {
	value, _, err := m.Resolve(ctx, key)
	return value, err
}

// GetSecretWithDefault retrieves a secret with a default value if not found
func (m *VaultManager) GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	value, _, err := m.Resolve(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrSecretNotFound) {
			m.log.Warn("Failed to get secret, using default value", "key", key, "error", err.Error())
		}
		return defaultValue
	}
	return value
}

// Resolve is GetSecret that also reports where the value came from. A
// Vault outage is logged and falls through to the environment.
func (m *VaultManager) Resolve(ctx context.Context, key string) (string, Source, error) {
	if m.client != nil {
		doc, err := m.document(ctx)
		if err != nil {
			m.log.LogError(err, "Vault read failed, falling back to environment", "key", key)
		} else if v, ok := doc[key]; ok && v != "" {
			return v, SourceVault, nil
		}
	}
	if v := os.Getenv(EnvName(key)); v != "" {
		return v, SourceEnv, nil
	}
	return "", SourceMissing, fmt.Errorf("%w: %s", ErrSecretNotFound, key)
}

// EnvName maps a secret key to its environment variable name.
func EnvName(key string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

// document returns the cached credential document, refreshing it when the
// TTL has passed.
func (m *VaultManager) document(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.doc != nil && m.now().Sub(m.fetchedAt) < m.config.CacheTTL {
		return m.doc, nil
	}

	secret, err := m.client.KVv2(m.config.Mount).Get(ctx, m.config.SecretsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", m.config.Mount, m.config.SecretsPath, err)
	}

	doc := make(map[string]string)
	if secret != nil {
		for k, v := range secret.Data {
			if s, ok := v.(string); ok {
				doc[k] = s
			}
		}
	}
	m.doc = doc
	m.fetchedAt = m.now()
	m.log.Debug("Credential document refreshed", "path", m.config.SecretsPath, "keys", len(doc))
	return doc, nil
}
