// Package app assembles a fully configured application instance: extensions,
// route groups, the expired-token callback and the health check.
//
// SPDX-License-Identifier: AGPL-3.0-or-later
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jsdraven/catalog-api/internal/apidoc"
	"github.com/jsdraven/catalog-api/internal/auth"
	"github.com/jsdraven/catalog-api/internal/config"
	"github.com/jsdraven/catalog-api/internal/database"
	"github.com/jsdraven/catalog-api/internal/httpx"
	"github.com/jsdraven/catalog-api/internal/logging"
	"github.com/jsdraven/catalog-api/internal/middleware/rateban"
	"github.com/jsdraven/catalog-api/internal/middleware/security"
	"github.com/jsdraven/catalog-api/internal/routes"
	"github.com/jsdraven/catalog-api/internal/store"
)

// APIPrefix is where every route group is mounted.
const APIPrefix = "/api"

// Mount records one mounted route group.
type Mount struct {
	Name   string
	Prefix string
}

// App is one assembled application. It is not modified after New returns and
// shares no mutable state with other instances.
type App struct {
	Config *config.Config

	logger     *slog.Logger
	router     chi.Router
	db         *database.DB
	jwt        *auth.JWT
	docs       *apidoc.Registry
	limiter    *rateban.RateBan
	extensions []string
	groups     []Mount

	closeOnce sync.Once
	closeErr  error
}

type options struct {
	logger *slog.Logger
	clock  func() time.Time
}

// Option customizes New.
type Option func(*options)

// WithLogger replaces the logger built from the config.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces time.Now for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// expiredToken is the body sent for expired tokens.
type expiredToken struct {
	Status    int    `json:"status"`
	SubStatus int    `json:"sub_status"`
	Message   string `json:"message"`
}

func onExpiredToken(w http.ResponseWriter, _ *http.Request, _ error) {
	httpx.JSON(w, http.StatusUnauthorized, expiredToken{
		Status:    http.StatusUnauthorized,
		SubStatus: 42,
		Message:   "The token has expired",
	})
}

// health reports liveness only; it does not touch the database.
//
//	@Summary	Liveness check
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Router		/health [get]
func health(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// New builds an application from cfg. A nil cfg selects the development
// profile. Extensions attach in the order database, migrate, jwt, api, cors;
// the route groups are mounted under APIPrefix afterwards.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Development()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("app: config: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.New(cfg)
	}

	a := &App{Config: cfg, logger: o.logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(logging.Middleware(cfg, a.logger))
	r.Use(security.Headers(cfg, apidoc.Prefix))
	r.Use(security.RequireHTTPS(cfg))
	r.Use(security.AllowedHosts(cfg))
	r.Use(security.MaxBodyBytes(cfg))

	if err := a.attach(r, o); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.mount(r)
	a.jwt.OnExpiredToken(onExpiredToken)
	r.Get("/health", health)

	a.router = r
	return a, nil
}

// attach runs the extension steps in order. chi requires middleware before
// routes, so the cors extension is attached here as router middleware.
func (a *App) attach(r chi.Router, o options) error {
	steps := []struct {
		name string
		run  func() error
	}{
		{"database", func() (err error) {
			a.db, err = database.Open(context.Background(), a.Config, a.logger)
			return err
		}},
		{"migrate", func() error {
			return database.Migrate(a.db, a.logger)
		}},
		{"jwt", func() (err error) {
			a.jwt, err = auth.New(a.Config, a.logger, auth.WithClock(o.clock))
			return err
		}},
		{"api", func() error {
			a.docs = apidoc.New(a.Config)
			return nil
		}},
		{"cors", func() error {
			r.Use(security.CORS(a.Config))
			return nil
		}},
	}
	for _, s := range steps {
		if err := s.run(); err != nil {
			return fmt.Errorf("app: attach %s: %w", s.name, err)
		}
		a.extensions = append(a.extensions, s.name)
		a.logger.Info("extension_attached", "name", s.name)
	}
	return nil
}

func (a *App) mount(r chi.Router) {
	a.limiter = rateban.New(a.Config, a.logger)
	deps := routes.Deps{
		Users:      store.NewUsers(a.db.DB),
		Categories: store.NewCategories(a.db.DB),
		JWT:        a.jwt,
		Hasher:     auth.NewHasher(a.Config.BcryptCost),
		Limiter:    a.limiter,
		Logger:     a.logger,
	}
	r.Route(APIPrefix, func(api chi.Router) {
		for _, g := range routes.All(deps) {
			g.Routes(api)
			a.groups = append(a.groups, Mount{Name: g.Name(), Prefix: APIPrefix})
			a.logger.Info("route_group_mounted", "name", g.Name(), "prefix", APIPrefix)
		}
		api.Get(strings.TrimPrefix(apidoc.Prefix, APIPrefix)+"/*", a.docs.Handler())
	})
}

// Handler is the root HTTP handler.
func (a *App) Handler() http.Handler { return a.router }

// Logger is the instance logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// JWT is the instance's token-auth extension.
func (a *App) JWT() *auth.JWT { return a.jwt }

// Extensions lists the attached extensions in attach order.
func (a *App) Extensions() []string {
	return append([]string(nil), a.extensions...)
}

// Groups lists the mounted route groups in mount order.
func (a *App) Groups() []Mount {
	return append([]Mount(nil), a.groups...)
}

// Close stops the rate limiter and releases the database.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		if a.limiter != nil {
			a.limiter.Stop()
		}
		if a.db != nil {
			a.closeErr = a.db.Close()
		}
	})
	return a.closeErr
}
