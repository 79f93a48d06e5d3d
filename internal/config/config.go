// Package config provides the named configuration profiles (development,
// testing, production) and loads overrides from environment variables
// (supports a local .env file).
//
// SPDX-License-Identifier: AGPL-3.0-or-later
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Profile names.
const (
	ProfileDevelopment = "development"
	ProfileTesting     = "testing"
	ProfileProduction  = "production"
)

// MemoryDatabase selects a private in-memory database.
const MemoryDatabase = ":memory:"

type Config struct {
	Name    string // profile name
	Debug   bool
	Testing bool

	Addr              string
	LogLevel          slog.Level
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration

	// Persistence
	DatabaseURL string // sqlite path/DSN or MemoryDatabase

	// Token auth
	JWTSecret     string
	JWTIssuer     string
	JWTAccessTTL  time.Duration
	JWTRefreshTTL time.Duration
	BcryptCost    int

	// API registry
	APITitle   string
	APIVersion string

	// Security / CORS
	HTTPSRedirect      bool
	HSTSEnable         bool
	HSTSMaxAgeSeconds  int
	HSTSIncludeSubDom  bool
	HSTSPreload        bool
	CORSAllowedOrigins []string // "*" allows any origin
	CORSAllowCreds     bool
	CSPReportOnly      bool

	// Request/host hardening
	AllowedHosts []string
	MaxBodyBytes int64 // 0 => unlimited
	TrustProxy   bool  // honor X-Forwarded-For

	// Rate limit + ban (auth routes)
	RateLimitRPS       float64
	RateLimitBurst     int
	BanThreshold       int // 429s within window before ban
	BanWindowSeconds   int
	BanDurationSeconds int
	BanSilentDrop      bool

	// Request logging
	LogIncludeQuery   bool
	LogSkipPaths      []string
	LogAllowedHeaders []string
	LogRedactHeaders  []string
	LogHashIPs        bool
	LogIPHashSalt     string

	// TLS (self-termination)
	TLSCertFile         string
	TLSKeyFile          string
	TLSMinVersion       uint16
	TLS12CipherSuites   []string // only used when TLSMinVersion is 1.2
	TLSSelfSigned       bool     // ephemeral certificate when no PEM/ACME is configured
	TLSAutocertEnable   bool
	TLSAutocertHosts    []string
	TLSAutocertCacheDir string
	TLSAutocertEmail    string
	TLSACMEDirectoryURL string // empty => Let's Encrypt production
	HTTPRedirectAddr    string // plain-HTTP listener that redirects to HTTPS
}

// base holds the values shared by every profile.
func base() *Config {
	return &Config{
		Addr:                ":8080",
		LogLevel:            slog.LevelInfo,
		ReadHeaderTimeout:   5 * time.Second,
		ReadTimeout:         10 * time.Second,
		WriteTimeout:        10 * time.Second,
		IdleTimeout:         60 * time.Second,
		JWTIssuer:           "catalog-api",
		JWTAccessTTL:        15 * time.Minute,
		JWTRefreshTTL:       30 * 24 * time.Hour,
		BcryptCost:          10,
		APITitle:            "Catalog API",
		APIVersion:          "1.0",
		RateLimitRPS:        5,
		RateLimitBurst:      10,
		BanThreshold:        5,
		BanWindowSeconds:    60,
		BanDurationSeconds:  900,
		LogSkipPaths:        []string{"/health"},
		LogRedactHeaders:    []string{"Authorization", "Cookie"},
		TLSMinVersion:       tls.VersionTLS13,
		TLSAutocertCacheDir: "autocert-cache",
		HTTPRedirectAddr:    ":80",
	}
}

// Development is the default profile used when no override is supplied.
func Development() *Config {
	c := base()
	c.Name = ProfileDevelopment
	c.Debug = true
	c.LogLevel = slog.LevelDebug
	c.DatabaseURL = "catalog-dev.db"
	c.JWTSecret = "dev-secret-change-me"
	c.CORSAllowedOrigins = []string{"*"}
	return c
}

// Testing uses a private in-memory database and relaxed rate limits.
func Testing() *Config {
	c := base()
	c.Name = ProfileTesting
	c.Testing = true
	c.LogLevel = slog.LevelError
	c.DatabaseURL = MemoryDatabase
	c.JWTSecret = "test-secret"
	c.BcryptCost = 4 // bcrypt.MinCost
	c.CORSAllowedOrigins = []string{"http://localhost:3000"}
	c.RateLimitRPS = 1000
	c.RateLimitBurst = 1000
	return c
}

// Production leaves secrets and the database empty; they must come from the
// environment.
func Production() *Config {
	c := base()
	c.Name = ProfileProduction
	c.HTTPSRedirect = true
	c.HSTSEnable = true
	c.HSTSMaxAgeSeconds = 63072000
	return c
}

// Profile returns the named profile, or an error for an unknown name.
func Profile(name string) (*Config, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "dev", ProfileDevelopment:
		return Development(), nil
	case "test", ProfileTesting:
		return Testing(), nil
	case "prod", ProfileProduction:
		return Production(), nil
	default:
		return nil, fmt.Errorf("config: unknown profile %q", name)
	}
}

// Load selects a profile from APP_ENV and applies environment overrides.
// Unknown APP_ENV values fall back to development.
func Load() *Config {
	// Load .env if present (ignored if missing)
	_ = godotenv.Load()

	cfg, err := Profile(os.Getenv("APP_ENV"))
	if err != nil {
		cfg = Development()
	}
	applyEnv(cfg)
	return cfg
}

func applyEnv(c *Config) {
	if port := os.Getenv("PORT"); port != "" {
		c.Addr = ":" + port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = parseLevel(v)
	}

	c.DatabaseURL = getenvDefault("DATABASE_URL", c.DatabaseURL)
	c.JWTSecret = getenvDefault("JWT_SECRET_KEY", c.JWTSecret)
	c.JWTIssuer = getenvDefault("JWT_ISSUER", c.JWTIssuer)
	c.JWTAccessTTL = getenvDurationDefault("JWT_ACCESS_TTL", c.JWTAccessTTL)
	c.JWTRefreshTTL = getenvDurationDefault("JWT_REFRESH_TTL", c.JWTRefreshTTL)
	c.BcryptCost = getenvIntDefault("BCRYPT_COST", c.BcryptCost)

	c.HTTPSRedirect = getenvBoolDefault("HTTPS_REDIRECT", c.HTTPSRedirect)
	c.HSTSEnable = getenvBoolDefault("HSTS_ENABLE", c.HSTSEnable)
	c.HSTSMaxAgeSeconds = getenvIntDefault("HSTS_MAX_AGE", c.HSTSMaxAgeSeconds)
	c.HSTSIncludeSubDom = getenvBoolDefault("HSTS_INCLUDE_SUBDOMAINS", c.HSTSIncludeSubDom)
	c.HSTSPreload = getenvBoolDefault("HSTS_PRELOAD", c.HSTSPreload)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORSAllowedOrigins = splitCSV(v)
	}
	c.CORSAllowCreds = getenvBoolDefault("CORS_ALLOW_CREDENTIALS", c.CORSAllowCreds)
	c.CSPReportOnly = getenvBoolDefault("CSP_REPORT_ONLY", c.CSPReportOnly)
	if v := os.Getenv("ALLOWED_HOSTS"); v != "" {
		c.AllowedHosts = splitCSV(v)
	}
	c.MaxBodyBytes = int64(getenvIntDefault("MAX_BODY_BYTES", int(c.MaxBodyBytes)))
	c.TrustProxy = getenvBoolDefault("TRUST_PROXY", c.TrustProxy)

	c.RateLimitRPS = getenvFloatDefault("RATE_LIMIT_RPS", c.RateLimitRPS)
	c.RateLimitBurst = getenvIntDefault("RATE_LIMIT_BURST", c.RateLimitBurst)
	c.BanThreshold = getenvIntDefault("BAN_THRESHOLD", c.BanThreshold)
	c.BanWindowSeconds = getenvIntDefault("BAN_WINDOW_SECONDS", c.BanWindowSeconds)
	c.BanDurationSeconds = getenvIntDefault("BAN_DURATION_SECONDS", c.BanDurationSeconds)
	c.BanSilentDrop = getenvBoolDefault("BAN_SILENT_DROP", c.BanSilentDrop)

	c.LogIncludeQuery = getenvBoolDefault("LOG_INCLUDE_QUERY", c.LogIncludeQuery)
	if v := os.Getenv("LOG_SKIP_PATHS"); v != "" {
		c.LogSkipPaths = splitCSV(v)
	}
	if v := os.Getenv("LOG_ALLOWED_HEADERS"); v != "" {
		c.LogAllowedHeaders = splitCSV(v)
	}
	if v := os.Getenv("LOG_REDACT_HEADERS"); v != "" {
		c.LogRedactHeaders = splitCSV(v)
	}
	c.LogHashIPs = getenvBoolDefault("LOG_HASH_IPS", c.LogHashIPs)
	c.LogIPHashSalt = getenvDefault("LOG_IP_HASH_SALT", c.LogIPHashSalt)

	c.TLSCertFile = getenvDefault("TLS_CERT_FILE", c.TLSCertFile)
	c.TLSKeyFile = getenvDefault("TLS_KEY_FILE", c.TLSKeyFile)
	if v, ok := parseTLSVersion(os.Getenv("TLS_MIN_VERSION")); ok {
		c.TLSMinVersion = v
	}
	c.TLSAutocertEnable = getenvBoolDefault("TLS_AUTOCERT_ENABLE", c.TLSAutocertEnable)
	if v := os.Getenv("TLS_AUTOCERT_HOSTS"); v != "" {
		c.TLSAutocertHosts = splitCSV(v)
	}
	// TLS_AUTOCERT_DOMAINS alone turns ACME on.
	if v := splitCSV(os.Getenv("TLS_AUTOCERT_DOMAINS")); len(v) > 0 {
		c.TLSAutocertHosts = v
		c.TLSAutocertEnable = true
	}
	c.TLSAutocertCacheDir = getenvDefault("TLS_AUTOCERT_CACHE_DIR", c.TLSAutocertCacheDir)
	c.TLSAutocertEmail = getenvDefault("TLS_AUTOCERT_EMAIL", c.TLSAutocertEmail)
	c.TLSACMEDirectoryURL = getenvDefault("TLS_ACME_DIRECTORY_URL", c.TLSACMEDirectoryURL)
	if v := os.Getenv("TLS12_CIPHER_SUITES"); v != "" {
		c.TLS12CipherSuites = splitCSV(v)
	}
	c.TLSSelfSigned = getenvBoolDefault("TLS_SELF_SIGNED", c.TLSSelfSigned)
	c.HTTPRedirectAddr = getenvDefault("HTTP_REDIRECT_ADDR", c.HTTPRedirectAddr)
}

// parseTLSVersion accepts "1.2", "TLS1.2", "tls12" and the 1.3 forms.
func parseTLSVersion(v string) (uint16, bool) {
	v = strings.NewReplacer("TLS", "", "V", "", ".", "", "_", "", " ", "").Replace(strings.ToUpper(v))
	switch v {
	case "12":
		return tls.VersionTLS12, true
	case "13":
		return tls.VersionTLS13, true
	}
	return 0, false
}

// Validate reports settings the persistence and auth extensions cannot run
// without.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("database url is empty"))
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("jwt secret is empty"))
	}
	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= 0 {
		errs = append(errs, errors.New("jwt token lifetimes must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config %s: %w", c.Name, errors.Join(errs...))
	}
	return nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvBoolDefault(k string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(k)))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func getenvIntDefault(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return def
}

func getenvFloatDefault(k string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}

// getenvDurationDefault accepts Go durations ("15m") or plain seconds ("900").
func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
