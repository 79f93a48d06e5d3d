// SPDX-License-Identifier: AGPL-3.0-or-later
package rateban_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsdraven/catalog-api/internal/config"
	"github.com/jsdraven/catalog-api/internal/logging"
	mwrateban "github.com/jsdraven/catalog-api/internal/middleware/rateban"
)

func strictConfig(threshold int) *config.Config {
	cfg := config.Testing()
	cfg.RateLimitRPS = 0
	cfg.RateLimitBurst = 0
	cfg.BanThreshold = threshold
	cfg.BanWindowSeconds = 60
	cfg.BanDurationSeconds = 60
	cfg.BanSilentDrop = false
	return cfg
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateBan_AllowsWithinBurst(t *testing.T) {
	cfg := config.Testing()
	rb := mwrateban.New(cfg, logging.Discard())
	t.Cleanup(rb.Stop)

	h := rb.Middleware()(okHandler())
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "http://svc.local/api/auth/login", nil)
		req.RemoteAddr = "192.0.2.1:4000"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestRateBan_BanAfterThreshold(t *testing.T) {
	cfg := strictConfig(3)
	rb := mwrateban.New(cfg, logging.Discard())
	t.Cleanup(rb.Stop)
	h := rb.Middleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "http://svc.local/x", nil)
	req.RemoteAddr = "203.0.113.9:12345"

	for i := 0; i < cfg.BanThreshold; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equalf(t, http.StatusTooManyRequests, rr.Code, "hit %d", i+1)
		assert.Equal(t, "1", rr.Header().Get("Retry-After"))
		assert.JSONEq(t, `{"msg":"Too many requests"}`, rr.Body.String())
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)

	// banned clients stay denied
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)

	// other clients are unaffected by the ban
	other := httptest.NewRequest(http.MethodGet, "http://svc.local/x", nil)
	other.RemoteAddr = "203.0.113.10:12345"
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, other)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestRateBan_ListBans(t *testing.T) {
	cfg := strictConfig(1)
	rb := mwrateban.New(cfg, logging.Discard())
	t.Cleanup(rb.Stop)
	hMW := rb.Middleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "http://svc.local/x", nil)
	req.RemoteAddr = "198.51.100.7:54321"

	hMW.ServeHTTP(httptest.NewRecorder(), req) // 429
	hMW.ServeHTTP(httptest.NewRecorder(), req) // ban applied

	rr := httptest.NewRecorder()
	rb.HandleListBans().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://svc.local/api/auth/bans", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var bans []mwrateban.Ban
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &bans))
	require.Len(t, bans, 1)
	assert.Equal(t, "198.51.100.7", bans[0].IP)
	assert.NotEmpty(t, bans[0].Expire)
}

func TestRateBan_ListBans_EmptyIsArray(t *testing.T) {
	rb := mwrateban.New(config.Testing(), logging.Discard())
	t.Cleanup(rb.Stop)

	rr := httptest.NewRecorder()
	rb.HandleListBans().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestRateBan_Middleware_SilentDrop_Fallback(t *testing.T) {
	cfg := strictConfig(1)
	cfg.BanSilentDrop = true // httptest writer can't Hijack -> fallback 403

	rb := mwrateban.New(cfg, logging.Discard())
	t.Cleanup(rb.Stop)
	h := rb.Middleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "http://svc.local/x", nil)
	req.RemoteAddr = "203.0.113.55:1111"

	rr1 := httptest.NewRecorder()
	h.ServeHTTP(rr1, req)
	require.Equal(t, http.StatusTooManyRequests, rr1.Code)

	rr2 := httptest.NewRecorder()
	h.ServeHTTP(rr2, req)
	require.Equal(t, http.StatusForbidden, rr2.Code)
}

func TestRateBan_TrustProxyKeysOnForwardedFor(t *testing.T) {
	cfg := strictConfig(1)
	cfg.TrustProxy = true
	rb := mwrateban.New(cfg, logging.Discard())
	t.Cleanup(rb.Stop)
	h := rb.Middleware()(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "http://svc.local/x", nil)
		req.RemoteAddr = "10.0.0.1:1"
		req.Header.Set("X-Forwarded-For", "198.51.100.20, 10.0.0.1")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	bans := rb.Bans()
	require.Len(t, bans, 1)
	assert.Equal(t, "198.51.100.20", bans[0].IP)
}

func TestRateBan_StopIsIdempotent(t *testing.T) {
	rb := mwrateban.New(config.Testing(), logging.Discard())
	assert.NotPanics(t, func() {
		rb.Stop()
		rb.Stop()
	})
}
