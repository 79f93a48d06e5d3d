// SPDX-License-Identifier: AGPL-3.0-or-later
package entry

import (
	"net"
	"net/http"

	"github.com/jsdraven/catalog-api/internal/config"
)

// wantHTTPRedirect decides whether to run the plain-HTTP redirect listener.
// Self-signed certificates never get one; browsers would only hit a warning.
func wantHTTPRedirect(cfg *config.Config, usingSelfSigned bool) bool {
	return cfg.HTTPSRedirect && cfg.HTTPRedirectAddr != "" && !usingSelfSigned
}

// redirectToHTTPSHandler sends every request to the HTTPS listener at tlsAddr,
// keeping non-default ports.
func redirectToHTTPSHandler(tlsAddr string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if hh, _, err := net.SplitHostPort(host); err == nil {
			host = hh
		}
		if h, p, err := net.SplitHostPort(tlsAddr); err == nil && p != "" && p != "443" {
			if h != "" {
				host = h
			}
			host = net.JoinHostPort(host, p)
		}
		target := "https://" + host + r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusPermanentRedirect) // 308
	})
}
