// Package logging: white-box tests for internal helpers.
package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsdraven/catalog-api/internal/config"
)

// runMiddlewareOnce wraps a 200 handler with Middleware(cfg, logger) and returns the parsed log line.
func runMiddlewareOnce(t *testing.T, cfg *config.Config, req *http.Request) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	logger := New(cfg, &buf)
	h := Middleware(cfg, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), req)

	data := bytes.TrimSpace(buf.Bytes())
	if len(data) == 0 {
		return nil
	}
	lines := bytes.Split(data, []byte{'\n'})
	var m map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &m), "log line should be valid JSON")
	return m
}

func infoConfig() *config.Config {
	cfg := config.Testing()
	cfg.LogLevel = slog.LevelInfo
	cfg.LogSkipPaths = nil
	return cfg
}

func TestMiddleware_HashedIP(t *testing.T) {
	cfg := infoConfig()
	cfg.LogHashIPs = true
	cfg.LogIPHashSalt = "pepper"

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "3.3.3.3:12345"

	m := runMiddlewareOnce(t, cfg, req)
	require.NotNil(t, m)
	assert.Nil(t, m["remote"])
	hash, ok := m["remote_hash"].(string)
	require.True(t, ok)
	assert.Len(t, hash, 32)
}

func TestMiddleware_HeaderAllowAndRedact(t *testing.T) {
	cfg := infoConfig()
	cfg.LogAllowedHeaders = []string{"User-Agent", "Authorization"}
	cfg.LogRedactHeaders = []string{"authorization"}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Authorization", "Bearer abc")
	req.Header.Set("X-Other", "dropped")

	m := runMiddlewareOnce(t, cfg, req)
	require.NotNil(t, m)
	hdrs, ok := m["headers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "test-agent", hdrs["User-Agent"])
	assert.Equal(t, "[REDACTED]", hdrs["Authorization"])
	assert.NotContains(t, hdrs, "X-Other")
}

func TestMiddleware_IncludeQuery(t *testing.T) {
	cfg := infoConfig()
	cfg.LogIncludeQuery = true

	m := runMiddlewareOnce(t, cfg, httptest.NewRequest(http.MethodGet, "/api/categories?q=x", nil))
	require.NotNil(t, m)
	assert.Equal(t, "/api/categories?q=x", m["path"])
}

func TestShouldSkip(t *testing.T) {
	assert.True(t, shouldSkip("/health", []string{" /health "}))
	assert.False(t, shouldSkip("/api", []string{"", "/health"}))
}

func TestPickHeaders_NoAllowlist(t *testing.T) {
	assert.Nil(t, pickHeaders(http.Header{"A": {"b"}}, nil, nil))
}
