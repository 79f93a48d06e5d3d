// Package rateban: per-IP rate limit + auto-ban middleware.
//
// SPDX-License-Identifier: AGPL-3.0-or-later
package rateban

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jsdraven/catalog-api/internal/config"
	"github.com/jsdraven/catalog-api/internal/httpx"
	"github.com/jsdraven/catalog-api/internal/logging"
)

// RateBan tracks one token bucket per client IP. Clients that keep hitting
// the limit inside the ban window are banned for BanDurationSeconds.
type RateBan struct {
	mu        sync.Mutex
	limits    map[string]*rate.Limiter // ip -> limiter
	hits      map[string][]time.Time   // ip -> timestamps of 429s
	bans      map[string]time.Time     // ip -> ban expiry
	cfg       *config.Config
	logger    *slog.Logger
	nowFunc   func() time.Time
	stopSweep chan struct{}
	stopOnce  sync.Once
	lastSweep time.Time
}

// Ban is one row of HandleListBans output.
type Ban struct {
	IP     string `json:"ip"`
	Expire string `json:"expire"`
}

// New starts a RateBan with its background sweeper. Call Stop to end it.
func New(cfg *config.Config, logger *slog.Logger) *RateBan {
	rb := &RateBan{
		limits:    make(map[string]*rate.Limiter),
		hits:      make(map[string][]time.Time),
		bans:      make(map[string]time.Time),
		cfg:       cfg,
		logger:    logger,
		nowFunc:   time.Now,
		stopSweep: make(chan struct{}),
	}
	// Sweep interval is half the ban window, clamped to [15s, 120s].
	interval := time.Duration(max(15, min(120, cfg.BanWindowSeconds/2))) * time.Second
	go func() {
		tk := time.NewTicker(interval)
		defer tk.Stop()
		for {
			select {
			case <-tk.C:
				rb.sweepOnce(rb.now())
			case <-rb.stopSweep:
				return
			}
		}
	}()
	return rb
}

// sweepOnce drops expired bans and 429 hits outside the window.
func (rb *RateBan) sweepOnce(now time.Time) {
	rb.mu.Lock()

	var unbanned []string
	for ip, exp := range rb.bans {
		if now.After(exp) {
			delete(rb.bans, ip)
			unbanned = append(unbanned, ip)
		}
	}

	win := time.Duration(rb.cfg.BanWindowSeconds) * time.Second
	for ip, arr := range rb.hits {
		j := 0
		for _, ts := range arr {
			if now.Sub(ts) <= win {
				arr[j] = ts
				j++
			}
		}
		if j == 0 {
			delete(rb.hits, ip)
		} else {
			rb.hits[ip] = arr[:j]
		}
	}

	rb.mu.Unlock()

	for _, ip := range unbanned {
		rb.logger.Info("ip_unbanned", "ip", ip, "time", now)
	}
}

func (rb *RateBan) maybeSweep(now time.Time) {
	win := time.Duration(rb.cfg.BanWindowSeconds) * time.Second
	if win <= 0 {
		win = 60 * time.Second
	}
	rb.mu.Lock()
	if rb.lastSweep.IsZero() || now.Sub(rb.lastSweep) >= win {
		rb.lastSweep = now
		rb.mu.Unlock() // sweepOnce locks on its own
		rb.sweepOnce(now)
		return
	}
	rb.mu.Unlock()
}

func (rb *RateBan) now() time.Time {
	f := rb.nowFunc
	if f != nil {
		return f()
	}
	return time.Now()
}

func (rb *RateBan) limiterFor(ip string) *rate.Limiter {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	lim, ok := rb.limits[ip]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(rb.cfg.RateLimitRPS), rb.cfg.RateLimitBurst)
		rb.limits[ip] = lim
	}
	return lim
}

func (rb *RateBan) recordHit(ip string) (hits int, banned bool, until time.Time) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	now := rb.now()
	win := time.Duration(rb.cfg.BanWindowSeconds) * time.Second

	arr := append(rb.hits[ip], now)
	j := 0
	for _, ts := range arr {
		if now.Sub(ts) <= win {
			arr[j] = ts
			j++
		}
	}
	arr = arr[:j]
	rb.hits[ip] = arr
	hits = len(arr)

	if hits > rb.cfg.BanThreshold {
		until = now.Add(time.Duration(rb.cfg.BanDurationSeconds) * time.Second)
		rb.bans[ip] = until
		delete(rb.hits, ip)
		banned = true
	}
	return
}

func (rb *RateBan) isBanned(ip string) (bool, time.Time) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	exp, ok := rb.bans[ip]
	if !ok {
		return false, time.Time{}
	}
	if rb.now().After(exp) {
		delete(rb.bans, ip)
		return false, time.Time{}
	}
	return true, exp
}

// deny answers a banned client: a dropped connection when BanSilentDrop is
// set and the writer can be hijacked, 403 otherwise.
func (rb *RateBan) deny(w http.ResponseWriter) {
	if rb.cfg.BanSilentDrop {
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				_ = conn.Close()
				return
			}
		}
	}
	httpx.Error(w, http.StatusForbidden, "Forbidden")
}

// Middleware enforces the rate limit and bans abusive IPs.
func (rb *RateBan) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rb.maybeSweep(rb.now())
			ip := logging.ClientIP(r, rb.cfg.TrustProxy)

			if banned, until := rb.isBanned(ip); banned {
				rb.logger.Warn("ip_denied_banned", "ip", ip, "ban_expires", until)
				rb.deny(w)
				return
			}

			if !rb.limiterFor(ip).Allow() {
				h, banned, until := rb.recordHit(ip)
				rb.logger.Warn("rate_limited", "ip", ip, "hits", h, "limit_rps", rb.cfg.RateLimitRPS, "burst", rb.cfg.RateLimitBurst)
				if banned {
					rb.logger.Error("ip_banned", "ip", ip, "ban_expires", until)
					rb.deny(w)
					return
				}
				w.Header().Set("Retry-After", "1")
				httpx.Error(w, http.StatusTooManyRequests, "Too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Bans returns the active bans in no particular order.
func (rb *RateBan) Bans() []Ban {
	now := rb.now()
	rb.sweepOnce(now)
	out := []Ban{}
	rb.mu.Lock()
	defer rb.mu.Unlock()
	for ip, exp := range rb.bans {
		if now.Before(exp) {
			out = append(out, Ban{IP: ip, Expire: exp.UTC().Format(time.RFC3339)})
		}
	}
	return out
}

// HandleListBans writes the active bans as a JSON array.
//
//	@Summary	List active IP bans
//	@Tags		auth
//	@Produce	json
//	@Security	Bearer
//	@Success	200	{array}	Ban
//	@Router		/api/auth/bans [get]
func (rb *RateBan) HandleListBans() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, rb.Bans())
	}
}

// Stop ends the background sweeper. Safe to call more than once.
func (rb *RateBan) Stop() {
	rb.stopOnce.Do(func() { close(rb.stopSweep) })
}
