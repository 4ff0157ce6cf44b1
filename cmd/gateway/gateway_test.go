package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"admission-gateway/internal/config"
	"admission-gateway/middleware/admission/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "admission-gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err := config.Load(config.New(path))
	require.NoError(t, err)
	return cfg
}

func newTestGateway(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	gw, err := newGateway(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		gw.Close()
	})
	return gw.Handler()
}

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "upstream:"+r.URL.Path)
	}))
	t.Cleanup(up.Close)
	return up
}

func send(h http.Handler, method, path string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, "http://gateway"+path, nil)
	r.RemoteAddr = "198.51.100.4:5000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestGateway_MemoryStoreEndToEnd(t *testing.T) {
	up := newUpstream(t)
	h := newTestGateway(t, loadTestConfig(t, "server:\n  upstream_url: "+up.URL+"\n"))

	for i := 0; i < 5; i++ {
		w := send(h, http.MethodPost, "/auth/login")
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "upstream:/auth/login", w.Body.String())
	}
	w := send(h, http.MethodPost, "/auth/login")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// outra categoria, cota própria
	w = send(h, http.MethodGet, "/search?q=ana")
	assert.Equal(t, http.StatusOK, w.Code)

	w = send(h, http.MethodGet, "/v1/admission/status/auth-login")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"remaining":0`)

	w = send(h, http.MethodGet, "/ops/admission/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var stats domain.AggregateStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.ByCategory[domain.CategoryAuthLogin][domain.OutcomeDenied])
	assert.Equal(t, int64(7), stats.Totals.Total())

	w = send(h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `admission_decisions_total{category="auth-login",outcome="denied"} 1`)

	assert.Equal(t, http.StatusOK, send(h, http.MethodGet, "/healthz").Code)
}

func TestGateway_RedisStoreAndStats(t *testing.T) {
	mr := miniredis.RunT(t)
	up := newUpstream(t)
	h := newTestGateway(t, loadTestConfig(t, `
server:
  upstream_url: `+up.URL+`
store:
  driver: redis
  redis_addr: `+mr.Addr()+`
monitoring:
  redis_enabled: true
  redis_prefix: stats
`))

	w := send(h, http.MethodPost, "/auth/login")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "1", mr.HGet("admission:counter:auth-login:ip:198.51.100.4", "count"))
	require.Eventually(t, func() bool {
		return mr.HGet("stats:total", "auth-login:allowed") == "1"
	}, 2*time.Second, 10*time.Millisecond)

	w = send(h, http.MethodGet, "/ops/admission/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		History map[domain.Category]domain.OutcomeCounts `json:"history"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(1), body.History[domain.CategoryAuthLogin][domain.OutcomeAllowed])
}

func TestGateway_RedisOutageFollowsFailureMode(t *testing.T) {
	mr := miniredis.RunT(t)
	up := newUpstream(t)
	h := newTestGateway(t, loadTestConfig(t, `
server:
  upstream_url: `+up.URL+`
store:
  driver: redis
  redis_addr: `+mr.Addr()+`
  timeout: 100ms
`))
	mr.Close()

	assert.Equal(t, http.StatusServiceUnavailable, send(h, http.MethodPost, "/auth/login").Code)

	w := send(h, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get("X-RateLimit-Degraded"))
}

func TestGateway_RedisUnreachableAtStartup(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := loadTestConfig(t, "server:\n  upstream_url: http://localhost:1\nstore:\n  driver: redis\n  redis_addr: "+addr+"\n")
	_, err := newGateway(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping")
}

func TestWritePolicies(t *testing.T) {
	cfg := loadTestConfig(t, "log:\n  level: info\n")

	var out strings.Builder
	require.NoError(t, writePolicies(&out, cfg))

	yml := out.String()
	assert.Contains(t, yml, "policies:")
	assert.Contains(t, yml, "category: auth-login")
	assert.Contains(t, yml, "window: 1m0s")
	assert.Contains(t, yml, "failure_mode: open")
	assert.Contains(t, yml, "- /auth/login")
}
