// SPDX-License-Identifier: AGPL-3.0-or-later
package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jsdraven/catalog-api/internal/config"
)

// requestLogger holds the per-config state of Middleware.
type requestLogger struct {
	cfg     *config.Config
	logger  *slog.Logger
	allowed map[string]struct{}
	redact  map[string]struct{}
}

// Middleware logs one http_request event per request, after the handler
// returns. Server errors log at ERROR and client errors at WARN. The matched
// chi route pattern is logged as route so {id} paths group together.
func Middleware(cfg *config.Config, logger *slog.Logger) func(http.Handler) http.Handler {
	rl := &requestLogger{
		cfg:     cfg,
		logger:  logger,
		allowed: lowerSet(cfg.LogAllowedHeaders),
		redact:  lowerSet(cfg.LogRedactHeaders),
	}
	return rl.wrap
}

func (rl *requestLogger) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := pathOf(r, rl.cfg.LogIncludeQuery)
		if shouldSkip(path, rl.cfg.LogSkipPaths) {
			next.ServeHTTP(w, r)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		ipLabel, ipVal := ipForLog(r, rl.cfg)
		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.Any(ipLabel, ipVal),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		}
		if route := routePattern(r); route != "" {
			attrs = append(attrs, slog.String("route", route))
		}
		if hs := pickHeaders(r.Header, rl.allowed, rl.redact); hs != nil {
			attrs = append(attrs, slog.Any("headers", hs))
		}
		rl.logger.LogAttrs(r.Context(), levelFor(status), "http_request", attrs...)
	})
}

func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// routePattern is the matched chi pattern, empty outside a chi router or
// when nothing matched.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}

func lowerSet(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, h := range in {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			out[h] = struct{}{}
		}
	}
	return out
}

// pathOf decides whether to log the request URI (with query) or just the path.
func pathOf(r *http.Request, includeQuery bool) string {
	if includeQuery {
		return r.URL.RequestURI()
	}
	return r.URL.Path
}

func shouldSkip(path string, skipPaths []string) bool {
	for _, pref := range skipPaths {
		pref = strings.TrimSpace(pref)
		if pref != "" && strings.HasPrefix(path, pref) {
			return true
		}
	}
	return false
}

// ClientIP returns the caller address, honoring the first X-Forwarded-For hop
// when trustProxy is set.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			ip := strings.TrimSpace(parts[0])
			if h, _, err := net.SplitHostPort(ip); err == nil && h != "" {
				return h
			}
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func ipForLog(r *http.Request, cfg *config.Config) (label string, value any) {
	ip := ClientIP(r, cfg.TrustProxy)
	if !cfg.LogHashIPs {
		return "remote", ip
	}
	sum := sha256.Sum256([]byte(cfg.LogIPHashSalt + ip))
	return "remote_hash", hex.EncodeToString(sum[:16]) // 128-bit prefix
}

func pickHeaders(hdr http.Header, allowed, redact map[string]struct{}) map[string]string {
	if len(allowed) == 0 {
		return nil
	}
	out := make(map[string]string, len(allowed))
	for k, vals := range hdr {
		lk := strings.ToLower(k)
		if _, ok := allowed[lk]; !ok {
			continue
		}
		v := strings.Join(vals, ",")
		if _, red := redact[lk]; red {
			v = "[REDACTED]"
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
