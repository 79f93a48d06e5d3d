// Package security: cross-origin policy and hardening middleware.
// SPDX-License-Identifier: AGPL-3.0-or-later
package security

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/cors"

	"github.com/jsdraven/catalog-api/internal/config"
)

// Very strict baseline CSP for JSON endpoints.
const strictCSP = "default-src 'self'; " +
	"base-uri 'self'; " +
	"frame-ancestors 'none'; " +
	"object-src 'none'; " +
	"img-src 'self' data:; " +
	"script-src 'self'; " +
	"style-src 'self'; " +
	"connect-src 'self'"

// docsCSP allows the inline bootstrap script and styles of the Swagger UI page.
const docsCSP = "default-src 'self'; " +
	"frame-ancestors 'none'; " +
	"object-src 'none'; " +
	"img-src 'self' data:; " +
	"script-src 'self' 'unsafe-inline'; " +
	"style-src 'self' 'unsafe-inline'; " +
	"connect-src 'self'"

// Headers returns middleware that sets strict security headers. Paths under
// any of docsPrefixes get the relaxed docs CSP.
func Headers(cfg *config.Config, docsPrefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			csp := strictCSP
			for _, p := range docsPrefixes {
				if p != "" && strings.HasPrefix(r.URL.Path, p) {
					csp = docsCSP
					break
				}
			}
			if cfg.CSPReportOnly {
				w.Header().Set("Content-Security-Policy-Report-Only", csp)
			} else {
				w.Header().Set("Content-Security-Policy", csp)
			}
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Permissions-Policy", "accelerometer=(), camera=(), geolocation=(), gyroscope=(), microphone=(), payment=(), usb=()")
			w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")

			// HSTS only on HTTPS responses and only if enabled
			if cfg.HSTSEnable && r.TLS != nil {
				val := "max-age=0"
				if cfg.HSTSMaxAgeSeconds > 0 {
					val = "max-age=" + strconv.Itoa(cfg.HSTSMaxAgeSeconds)
				}
				if cfg.HSTSIncludeSubDom {
					val += "; includeSubDomains"
				}
				if cfg.HSTSPreload {
					val += "; preload"
				}
				w.Header().Set("Strict-Transport-Security", val)
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CORS is the cross-origin policy extension. Empty cfg.CORSAllowedOrigins
// means same-origin only; "*" allows any origin.
func CORS(cfg *config.Config) func(http.Handler) http.Handler {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: cfg.CORSAllowCreds,
		MaxAge:           600,
	})
	return c.Handler
}

// RequireHTTPS redirects plain HTTP to HTTPS if enabled in config.
func RequireHTTPS(cfg *config.Config) func(http.Handler) http.Handler {
	if !cfg.HTTPSRedirect {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.TLS == nil && !strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
				target := "https://" + r.Host + r.URL.RequestURI()
				http.Redirect(w, r, target, http.StatusPermanentRedirect)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AllowedHosts enforces an allowlist of Host headers (if configured).
func AllowedHosts(cfg *config.Config) func(http.Handler) http.Handler {
	allowed := map[string]struct{}{}
	for _, h := range cfg.AllowedHosts {
		allowed[strings.ToLower(h)] = struct{}{}
	}
	if len(allowed) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allowed[strings.ToLower(r.Host)]; !ok {
				http.Error(w, "invalid host", http.StatusMisdirectedRequest) // 421
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodyBytes limits request size. If Content-Length exceeds limit, returns 413.
// Otherwise wraps the body so downstream reads are capped.
func MaxBodyBytes(cfg *config.Config) func(http.Handler) http.Handler {
	limit := cfg.MaxBodyBytes
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
