// SPDX-License-Identifier: AGPL-3.0-or-later
package routes

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jsdraven/catalog-api/internal/auth"
	"github.com/jsdraven/catalog-api/internal/httpx"
	"github.com/jsdraven/catalog-api/internal/store"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
}

// Auth serves /auth: login, refresh, current user, logout and the ban list.
// The whole group sits behind the per-IP rate limiter.
type Auth struct {
	Deps
}

func NewAuth(d Deps) *Auth { return &Auth{Deps: d} }

func (g *Auth) Name() string { return "auth" }

func (g *Auth) Routes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		if g.Limiter != nil {
			r.Use(g.Limiter.Middleware())
		}
		r.Post("/login", g.login)
		r.With(g.JWT.Required(auth.TypeRefresh)).Post("/refresh", g.refresh)
		r.Group(func(r chi.Router) {
			r.Use(g.JWT.Required(auth.TypeAccess))
			r.Get("/me", g.me)
			r.Post("/logout", g.logout)
			if g.Limiter != nil {
				r.Get("/bans", g.Limiter.HandleListBans())
			}
		})
	})
}

//	@Summary	Log in
//	@Tags		auth
//	@Accept		json
//	@Produce	json
//	@Param		credentials	body		loginRequest	true	"Login credentials"
//	@Success	200			{object}	auth.TokenPair
//	@Failure	401			{object}	httpx.Message
//	@Failure	429			{object}	httpx.Message
//	@Router		/api/auth/login [post]
func (g *Auth) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := g.Users.GetByUsername(r.Context(), req.Username)
	switch {
	case errors.Is(err, store.ErrNotFound):
		g.badCredentials(w, req.Username)
		return
	case err != nil:
		storeError(w, r, g.Logger, "user", err)
		return
	}
	if !g.Hasher.Check(u.PasswordHash, req.Password) {
		g.badCredentials(w, req.Username)
		return
	}
	pair, err := g.JWT.IssuePair(u.ID)
	if err != nil {
		storeError(w, r, g.Logger, "token", err)
		return
	}
	g.Logger.Info("user_logged_in", "user_id", u.ID)
	httpx.JSON(w, http.StatusOK, pair)
}

func (g *Auth) badCredentials(w http.ResponseWriter, username string) {
	g.Logger.Info("login_failed", "username", username)
	httpx.Error(w, http.StatusUnauthorized, "Bad username or password")
}

//	@Summary	Issue a new access token from a refresh token
//	@Tags		auth
//	@Produce	json
//	@Security	Bearer
//	@Success	200	{object}	accessTokenResponse
//	@Failure	401	{object}	httpx.Message
//	@Failure	422	{object}	httpx.Message
//	@Router		/api/auth/refresh [post]
func (g *Auth) refresh(w http.ResponseWriter, r *http.Request) {
	c, _ := auth.ClaimsFrom(r.Context())
	id, err := c.UserID()
	if err != nil {
		httpx.Error(w, http.StatusUnprocessableEntity, "Invalid token")
		return
	}
	// deleted accounts keep no session
	if _, err := g.Users.Get(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.Logger.Info("refresh_rejected", "user_id", id, "reason", "user_not_found")
			httpx.Error(w, http.StatusUnauthorized, "User no longer exists")
			return
		}
		storeError(w, r, g.Logger, "user", err)
		return
	}
	access, err := g.JWT.Issue(id, auth.TypeAccess)
	if err != nil {
		storeError(w, r, g.Logger, "token", err)
		return
	}
	httpx.JSON(w, http.StatusOK, accessTokenResponse{AccessToken: access})
}

//	@Summary	Current user
//	@Tags		auth
//	@Produce	json
//	@Security	Bearer
//	@Success	200	{object}	store.User
//	@Failure	401	{object}	httpx.Message
//	@Router		/api/auth/me [get]
func (g *Auth) me(w http.ResponseWriter, r *http.Request) {
	id, ok := callerID(r)
	if !ok {
		httpx.Error(w, http.StatusUnprocessableEntity, "Invalid token")
		return
	}
	u, err := g.Users.Get(r.Context(), id)
	if err != nil {
		storeError(w, r, g.Logger, "user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

//	@Summary	Revoke the presented access token
//	@Tags		auth
//	@Produce	json
//	@Security	Bearer
//	@Success	200	{object}	httpx.Message
//	@Router		/api/auth/logout [post]
func (g *Auth) logout(w http.ResponseWriter, r *http.Request) {
	c, _ := auth.ClaimsFrom(r.Context())
	g.JWT.Revoke(c)
	g.Logger.Info("user_logged_out", "jti", c.ID)
	httpx.Error(w, http.StatusOK, "Successfully logged out")
}
