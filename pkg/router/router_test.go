package router

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storygen/backend/pkg/config"
	"storygen/backend/pkg/di"
	"storygen/backend/pkg/logger"
)

func testRouter(t *testing.T) *Router {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_SQLITE_PATH", filepath.Join(dir, "test.db"))
	t.Setenv("STORE_CACHE", "none")
	t.Setenv("OUTPUT_DIR", filepath.Join(dir, "outputs"))
	t.Setenv("TEXTGEN_PROVIDER", "ollama")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:5173")
	t.Setenv("RATE_LIMIT", "1000")
	t.Setenv("RATE_LIMIT_BURST", "1000")

	cfg := config.Load()
	db, err := config.NewDB(cfg)
	require.NoError(t, err)

	container, err := di.New(context.Background(), cfg, db, logger.New(logger.Config{Output: io.Discard}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	r := New(container)
	r.SetupRoutes()
	return r
}

func do(r *Router, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	return w
}

func TestHealthAndStatus(t *testing.T) {
	r := testRouter(t)
	r.Container.Health.RunChecks()

	for _, path := range []string{"/health", "/api/v1/health"} {
		w := do(r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, w.Code, path)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Contains(t, []any{"ok", "degraded"}, body["status"])
	}

	w := do(r, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	r := testRouter(t)
	w := do(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutesMountedTwice(t *testing.T) {
	r := testRouter(t)
	for _, prefix := range []string{"", "/api/v1"} {
		w := do(r, http.MethodGet, prefix+"/story/session/missing", "")
		assert.Equal(t, http.StatusNotFound, w.Code, prefix)
		assert.Contains(t, w.Body.String(), "SESSION_NOT_FOUND")

		w = do(r, http.MethodGet, prefix+"/characters", "")
		assert.Equal(t, http.StatusOK, w.Code, prefix)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	r := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestCORS(t *testing.T) {
	r := testRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/story/start", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/story/start", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestOpenAPIValidationRejectsBadBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	t.Setenv("DB_SQLITE_PATH", filepath.Join(dir, "test.db"))
	t.Setenv("STORE_CACHE", "none")
	t.Setenv("OUTPUT_DIR", filepath.Join(dir, "outputs"))

	cfg := config.Load()
	db, err := config.NewDB(cfg)
	require.NoError(t, err)
	container, err := di.New(context.Background(), cfg, db, logger.New(logger.Config{Output: io.Discard}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	r := New(container)
	require.True(t, r.AddOpenAPIValidation(filepath.Join("..", "..", "api", "openapi.yaml")))
	r.SetupRoutes()

	w := do(r, http.MethodPost, "/story/branch", `{"session_id":"s","choice_idx":0}`)
	// Without the schema a missing step binds as zero and the lookup 404s
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_REQUEST")
}
