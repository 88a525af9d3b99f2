package secrets

import (
	"context"
	"errors"
	"sync"

	"storygen/backend/pkg/logger"
)

// Keys of the upstream credentials. Without Vault each one is read from the
// upper-cased environment variable of the same name.
const (
	GeminiAPIKey     = "gemini_api_key"
	HFToken          = "hf_token"
	ElevenLabsAPIKey = "elevenlabs_api_key"
	SupabaseKey      = "supabase_key"
)

// UpstreamKeys lists every credential the service may use.
var UpstreamKeys = []string{GeminiAPIKey, HFToken, ElevenLabsAPIKey, SupabaseKey}

// Manager provides access to secrets from various sources
type Manager interface {
	GetSecret(ctx context.Context, key string) (string, error)
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

// ErrManagerNotInitialized is returned before Init or SetManager.
var ErrManagerNotInitialized = errors.New("secrets manager not initialized")

var (
	mu             sync.RWMutex
	defaultManager Manager
)

// Init installs a VaultManager built from cfg as the package default and
// logs which upstream credentials resolved, by source. Values are never
// logged.
func Init(ctx context.Context, cfg VaultConfig, log *logger.Logger) error {
	manager, err := NewVaultManager(cfg, log)
	if err != nil {
		return err
	}
	SetManager(manager)

	bySource := map[Source][]string{}
	for _, key := range UpstreamKeys {
		_, src, _ := manager.Resolve(ctx, key)
		bySource[src] = append(bySource[src], key)
	}
	log.Info("Upstream credentials resolved",
		"vault", bySource[SourceVault],
		"env", bySource[SourceEnv],
		"missing", bySource[SourceMissing],
	)
	return nil
}

// SetManager replaces the package default. Passing nil uninstalls it.
func SetManager(manager Manager) {
	mu.Lock()
	defer mu.Unlock()
	defaultManager = manager
}

func current() Manager {
	mu.RLock()
	defer mu.RUnlock()
	return defaultManager
}

// GetSecret retrieves a secret from the default manager
func GetSecret(ctx context.Context, key string) (string, error) {
	m := current()
	if m == nil {
		return "", ErrManagerNotInitialized
	}
	return m.GetSecret(ctx, key)
}

// GetSecretWithDefault retrieves a secret with a default value if not found
func GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	m := current()
	if m == nil {
		return defaultValue
	}
	return m.GetSecretWithDefault(ctx, key, defaultValue)
}
