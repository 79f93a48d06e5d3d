// Package routes holds the route groups mounted by the application under /api.
//
// SPDX-License-Identifier: AGPL-3.0-or-later
package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jsdraven/catalog-api/internal/auth"
	"github.com/jsdraven/catalog-api/internal/httpx"
	"github.com/jsdraven/catalog-api/internal/middleware/rateban"
	"github.com/jsdraven/catalog-api/internal/store"
)

// Group is a named set of routes registered on a parent router.
type Group interface {
	Name() string
	Routes(r chi.Router)
}

// Deps are the per-application collaborators the groups share.
type Deps struct {
	Users      *store.Users
	Categories *store.Categories
	JWT        *auth.JWT
	Hasher     *auth.Hasher
	Limiter    *rateban.RateBan
	Logger     *slog.Logger
}

// All returns the groups in mount order.
func All(d Deps) []Group {
	return []Group{NewUsers(d), NewAuth(d), NewCategories(d)}
}

// storeError maps store sentinels to responses; anything else is a 500.
func storeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, what string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httpx.Error(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, store.ErrConflict):
		httpx.Error(w, http.StatusConflict, what+" already exists")
	default:
		logger.Error("handler_failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"err", err,
		)
		httpx.Error(w, http.StatusInternalServerError, "Internal server error")
	}
}

// callerID returns the user id of the access token stored by auth.Required.
func callerID(r *http.Request) (int64, bool) {
	c, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		return 0, false
	}
	id, err := c.UserID()
	return id, err == nil
}
