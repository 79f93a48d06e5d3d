// Package config tests profile selection, env overrides and level parsing.
// SPDX-License-Identifier: AGPL-3.0-or-later
package config

import (
	"crypto/tls"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	cfg := Load()
	if got, want := cfg.Addr, ":8080"; got != want {
		t.Fatalf("Addr default: got %q, want %q", got, want)
	}
	if got, want := cfg.Name, ProfileDevelopment; got != want {
		t.Fatalf("profile default: got %q, want %q", got, want)
	}
	if got, want := cfg.LogLevel, slog.LevelDebug; got != want {
		t.Fatalf("LogLevel default: got %v, want %v", got, want)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "testing")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "WARN")
	t.Setenv("JWT_SECRET_KEY", "s3cret")
	t.Setenv("JWT_ACCESS_TTL", "90")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	cfg := Load()

	assert.Equal(t, ProfileTesting, cfg.Name)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, 90*time.Second, cfg.JWTAccessTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, MemoryDatabase, cfg.DatabaseURL)
}

func TestLoadUnknownProfileFallsBack(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	cfg := Load()
	assert.Equal(t, ProfileDevelopment, cfg.Name)
}

func TestProfiles(t *testing.T) {
	dev := Development()
	assert.True(t, dev.Debug)
	assert.Equal(t, "catalog-dev.db", dev.DatabaseURL)
	require.NoError(t, dev.Validate())

	tst := Testing()
	assert.True(t, tst.Testing)
	assert.Equal(t, MemoryDatabase, tst.DatabaseURL)
	require.NoError(t, tst.Validate())

	// production needs secrets from the environment
	assert.Error(t, Production().Validate())

	_, err := Profile("qa")
	assert.Error(t, err)
	p, err := Profile("TEST")
	require.NoError(t, err)
	assert.Equal(t, ProfileTesting, p.Name)
}

func TestProfilesAreIndependentCopies(t *testing.T) {
	a := Development()
	a.CORSAllowedOrigins[0] = "https://mutated.example"
	assert.Equal(t, []string{"*"}, Development().CORSAllowedOrigins)
}

func TestValidate(t *testing.T) {
	cfg := Testing()
	cfg.JWTSecret = " "
	cfg.JWTRefreshTTL = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt secret is empty")
	assert.Contains(t, err.Error(), "lifetimes must be positive")
}

func TestLoadTLSOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("TLS_MIN_VERSION", "tls1.2")
	t.Setenv("TLS12_CIPHER_SUITES", "ECDHE-RSA-AES128-GCM-SHA256,TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384")
	t.Setenv("TLS_SELF_SIGNED", "true")
	t.Setenv("TLS_AUTOCERT_HOSTS", "api.example.com")
	t.Setenv("HTTP_REDIRECT_ADDR", ":8081")

	cfg := Load()
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.TLSMinVersion)
	assert.Equal(t, []string{"ECDHE-RSA-AES128-GCM-SHA256", "TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384"}, cfg.TLS12CipherSuites)
	assert.True(t, cfg.TLSSelfSigned)
	assert.Equal(t, []string{"api.example.com"}, cfg.TLSAutocertHosts)
	assert.Equal(t, "autocert-cache", cfg.TLSAutocertCacheDir)
	assert.Equal(t, ":8081", cfg.HTTPRedirectAddr)
}

func TestLoadAutocertDomainsEnablesACME(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("TLS_AUTOCERT_DOMAINS", "api.example.com, www.example.com")
	t.Setenv("TLS_MIN_VERSION", "1.2")

	cfg := Load()
	assert.True(t, cfg.TLSAutocertEnable)
	assert.Equal(t, []string{"api.example.com", "www.example.com"}, cfg.TLSAutocertHosts)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.TLSMinVersion)
}

func TestParseTLSVersion(t *testing.T) {
	cases := map[string]uint16{
		"1.2": tls.VersionTLS12, "TLS1.2": tls.VersionTLS12, "tls12": tls.VersionTLS12, "TLSv1.2": tls.VersionTLS12,
		"1.3": tls.VersionTLS13, "tls1.3": tls.VersionTLS13,
	}
	for in, want := range cases {
		got, ok := parseTLSVersion(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "1.1", "ssl3"} {
		_, ok := parseTLSVersion(in)
		assert.False(t, ok, in)
	}
}
