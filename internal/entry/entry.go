// Package entry binds the listener and serves an assembled application with
// explicit timeouts, optional TLS and graceful shutdown.
//
// SPDX-License-Identifier: AGPL-3.0-or-later
package entry

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jsdraven/catalog-api/internal/app"
	"github.com/jsdraven/catalog-api/internal/config"
	"github.com/jsdraven/catalog-api/internal/logging"
)

// Serving modes, in order of precedence.
const (
	ModeACME       = "acme"
	ModePEM        = "pem"
	ModeSelfSigned = "self_signed"
	ModePlain      = "plain"
)

// shutdownTimeout bounds graceful shutdown after ctx is cancelled.
const shutdownTimeout = 5 * time.Second

// BindListener binds a TCP listener and logs failures.
func BindListener(addr string, logger *slog.Logger) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("listen_error", "err", err, "addr", addr)
		return nil, err
	}
	return ln, nil
}

// Run assembles the application from cfg and serves it on cfg.Addr until ctx
// is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(cfg)

	a, err := app.New(cfg, app.WithLogger(logger))
	if err != nil {
		logger.Error("app_init_failed", "err", err)
		return err
	}
	defer a.Close()

	ln, err := BindListener(cfg.Addr, logger)
	if err != nil {
		return err
	}
	defer ln.Close()

	return ServeOnListener(ctx, ln, cfg, a.Handler(), logger)
}

// plan is how the listener will be served.
type plan struct {
	mode      string
	tlsConfig *tls.Config
	certFile  string
	keyFile   string
	redirect  http.Handler // served on cfg.HTTPRedirectAddr when non-nil
}

func planFor(cfg *config.Config) (plan, error) {
	switch {
	case cfg.TLSAutocertEnable && len(cfg.TLSAutocertHosts) > 0:
		if cfg.HTTPRedirectAddr == "" {
			return plan{}, errors.New("entry: acme needs HTTP_REDIRECT_ADDR for the http-01 challenge listener")
		}
		m := newAutocertManager(cfg)
		var fallback http.Handler
		if wantHTTPRedirect(cfg, false) {
			fallback = redirectToHTTPSHandler(cfg.Addr)
		}
		// The HTTP-01 challenge listener is needed even without redirects.
		return plan{
			mode:      ModeACME,
			tlsConfig: applyTLSPolicy(m.TLSConfig(), cfg),
			redirect:  m.HTTPHandler(fallback),
		}, nil

	case cfg.TLSCertFile != "" && cfg.TLSKeyFile != "":
		p := plan{
			mode:      ModePEM,
			tlsConfig: applyTLSPolicy(&tls.Config{}, cfg),
			certFile:  cfg.TLSCertFile,
			keyFile:   cfg.TLSKeyFile,
		}
		if wantHTTPRedirect(cfg, false) {
			p.redirect = redirectToHTTPSHandler(cfg.Addr)
		}
		return p, nil

	case cfg.TLSSelfSigned:
		cert, err := generateSelfSigned()
		if err != nil {
			return plan{}, fmt.Errorf("entry: self-signed certificate: %w", err)
		}
		tc := applyTLSPolicy(&tls.Config{Certificates: []tls.Certificate{cert}}, cfg)
		return plan{mode: ModeSelfSigned, tlsConfig: tc}, nil

	default:
		return plan{mode: ModePlain}, nil
	}
}

// ServeOnListener serves h on ln until ctx is cancelled, then shuts down
// gracefully. It returns early with the error if serving fails.
func ServeOnListener(ctx context.Context, ln net.Listener, cfg *config.Config, h http.Handler, logger *slog.Logger) error {
	p, err := planFor(cfg)
	if err != nil {
		logger.Error("tls_setup_failed", "err", err)
		return err
	}

	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	var redirect *http.Server
	if p.redirect != nil {
		redirect = &http.Server{
			Addr:              cfg.HTTPRedirectAddr,
			Handler:           p.redirect,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		}
		go func() {
			if err := redirect.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("http_redirect_bind_failed", "addr", cfg.HTTPRedirectAddr, "err", err)
			}
		}()
	}

	if redirect != nil {
		logger.Info("http_redirect_listening", "addr", cfg.HTTPRedirectAddr, "mode", p.mode)
	}
	if p.mode == ModeSelfSigned {
		logger.Warn("using_self_signed_tls", "note", "for staging/dev; configure ACME or PEM for production")
	}
	logger.Info("server_listening", "addr", ln.Addr().String(), "mode", p.mode)

	errCh := make(chan error, 1)
	go func() {
		switch {
		case p.certFile != "":
			srv.TLSConfig = p.tlsConfig
			errCh <- srv.ServeTLS(ln, p.certFile, p.keyFile)
		case p.tlsConfig != nil:
			errCh <- srv.Serve(tls.NewListener(ln, p.tlsConfig))
		default:
			errCh <- srv.Serve(ln)
		}
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
		if serveErr != nil {
			logger.Error("server_error", "err", serveErr)
		}
	case <-ctx.Done():
	}

	ctxShut, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(ctxShut)
	if redirect != nil {
		_ = redirect.Shutdown(ctxShut)
	}
	logger.Info("server_stopped")
	return serveErr
}
