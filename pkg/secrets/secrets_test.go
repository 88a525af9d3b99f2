package secrets

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storygen/backend/pkg/logger"
)

func quietLogger() *logger.Logger {
	return logger.New(logger.Config{Output: io.Discard})
}

func TestDisabledVaultReadsEnvironment(t *testing.T) {
	t.Setenv("ELEVENLABS_API_KEY", "sk-test")
	m, err := NewVaultManager(VaultConfig{Enabled: false}, quietLogger())
	require.NoError(t, err)

	v, src, err := m.Resolve(context.Background(), ElevenLabsAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", v)
	assert.Equal(t, SourceEnv, src)

	_, err = m.GetSecret(context.Background(), "missing-key")
	assert.ErrorIs(t, err, ErrSecretNotFound)
	assert.Equal(t, "fallback", m.GetSecretWithDefault(context.Background(), "missing-key", "fallback"))
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "HF_TOKEN", EnvName("hf-token"))
	assert.Equal(t, "GEMINI_API_KEY", EnvName("gemini.api_key"))
}

func TestEnabledVaultRequiresAddressAndToken(t *testing.T) {
	_, err := NewVaultManager(VaultConfig{Enabled: true}, quietLogger())
	assert.ErrorIs(t, err, ErrNoVaultAddress)

	_, err = NewVaultManager(VaultConfig{Enabled: true, Address: "http://127.0.0.1:8200"}, quietLogger())
	assert.ErrorIs(t, err, ErrNoVaultToken)
}

func fakeVault(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/secret/data/storygen" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "root", r.Header.Get("X-Vault-Token"))
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"data":{"hf_token":"hf-from-vault"},`+
			`"metadata":{"created_time":"2024-01-01T00:00:00Z","destroyed":false,"version":1}}}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVaultDocumentIsCachedAndFallsBackToEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gm-from-env")
	var hits atomic.Int32
	srv := fakeVault(t, &hits)

	m, err := NewVaultManager(VaultConfig{Enabled: true, Address: srv.URL, Token: "root", MaxRetries: 1}, quietLogger())
	require.NoError(t, err)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	v, src, err := m.Resolve(context.Background(), HFToken)
	require.NoError(t, err)
	assert.Equal(t, "hf-from-vault", v)
	assert.Equal(t, SourceVault, src)

	v, src, err = m.Resolve(context.Background(), GeminiAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "gm-from-env", v)
	assert.Equal(t, SourceEnv, src)
	assert.Equal(t, int32(1), hits.Load())

	clock = clock.Add(10 * time.Minute)
	_, _ = m.GetSecret(context.Background(), HFToken)
	assert.Equal(t, int32(2), hits.Load())
}

func TestPackageDefaultsWithoutManager(t *testing.T) {
	SetManager(nil)
	_, err := GetSecret(context.Background(), HFToken)
	assert.ErrorIs(t, err, ErrManagerNotInitialized)
	assert.Equal(t, "d", GetSecretWithDefault(context.Background(), HFToken, "d"))
}

func TestInitInstallsManager(t *testing.T) {
	t.Setenv("HF_TOKEN", "hf-env")
	t.Cleanup(func() { SetManager(nil) })

	require.NoError(t, Init(context.Background(), VaultConfig{}, quietLogger()))
	assert.Equal(t, "hf-env", GetSecretWithDefault(context.Background(), HFToken, ""))
}
