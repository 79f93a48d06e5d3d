// SPDX-License-Identifier: AGPL-3.0-or-later
package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jsdraven/catalog-api/internal/auth"
	"github.com/jsdraven/catalog-api/internal/httpx"
	"github.com/jsdraven/catalog-api/internal/store"
)

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64,alphanum"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,maxbytes=72"`
}

type updateUserRequest struct {
	Email    *string `json:"email" validate:"omitempty,email,max=254"`
	Password *string `json:"password" validate:"omitempty,min=8,maxbytes=72"`
}

// Users serves /users: public registration, everything else needs an
// access token and writes are limited to the caller's own account.
type Users struct {
	Deps
}

func NewUsers(d Deps) *Users { return &Users{Deps: d} }

func (g *Users) Name() string { return "users" }

func (g *Users) Routes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Post("/", g.register)
		r.Group(func(r chi.Router) {
			r.Use(g.JWT.Required(auth.TypeAccess))
			r.Get("/", g.list)
			r.Get("/{id}", g.get)
			r.Put("/{id}", g.update)
			r.Delete("/{id}", g.delete)
		})
	})
}

//	@Summary	Register a user
//	@Tags		users
//	@Accept		json
//	@Produce	json
//	@Param		user	body		registerRequest	true	"New account"
//	@Success	201		{object}	store.User
//	@Failure	400		{object}	httpx.Message
//	@Failure	409		{object}	httpx.Message
//	@Router		/api/users [post]
func (g *Users) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := g.Hasher.Hash(req.Password)
	if err != nil {
		storeError(w, r, g.Logger, "user", err)
		return
	}
	u := &store.User{Username: req.Username, Email: req.Email, PasswordHash: hash}
	if err := g.Users.Create(r.Context(), u); err != nil {
		storeError(w, r, g.Logger, "user", err)
		return
	}
	g.Logger.Info("user_registered", "user_id", u.ID)
	httpx.JSON(w, http.StatusCreated, u)
}

//	@Summary	List users
//	@Tags		users
//	@Produce	json
//	@Security	Bearer
//	@Success	200	{array}		store.User
//	@Failure	401	{object}	httpx.Message
//	@Router		/api/users [get]
func (g *Users) list(w http.ResponseWriter, r *http.Request) {
	users, err := g.Users.List(r.Context())
	if err != nil {
		storeError(w, r, g.Logger, "user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, users)
}

//	@Summary	Get a user
//	@Tags		users
//	@Produce	json
//	@Security	Bearer
//	@Param		id	path		int	true	"User ID"
//	@Success	200	{object}	store.User
//	@Failure	404	{object}	httpx.Message
//	@Router		/api/users/{id} [get]
func (g *Users) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "user not found")
		return
	}
	u, err := g.Users.Get(r.Context(), id)
	if err != nil {
		storeError(w, r, g.Logger, "user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

// self resolves {id} and checks it is the caller.
func (g *Users) self(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := httpx.IDParam(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "user not found")
		return 0, false
	}
	if caller, ok := callerID(r); !ok || caller != id {
		httpx.Error(w, http.StatusForbidden, "You can only modify your own account")
		return 0, false
	}
	return id, true
}

//	@Summary	Update your own account
//	@Tags		users
//	@Accept		json
//	@Produce	json
//	@Security	Bearer
//	@Param		id		path		int					true	"User ID"
//	@Param		user	body		updateUserRequest	true	"Fields to change"
//	@Success	200		{object}	store.User
//	@Failure	400		{object}	httpx.Message
//	@Failure	403		{object}	httpx.Message
//	@Router		/api/users/{id} [put]
func (g *Users) update(w http.ResponseWriter, r *http.Request) {
	id, ok := g.self(w, r)
	if !ok {
		return
	}
	var req updateUserRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := g.Users.Get(r.Context(), id)
	if err != nil {
		storeError(w, r, g.Logger, "user", err)
		return
	}
	if req.Email != nil {
		u.Email = *req.Email
	}
	if req.Password != nil {
		if u.PasswordHash, err = g.Hasher.Hash(*req.Password); err != nil {
			storeError(w, r, g.Logger, "user", err)
			return
		}
	}
	if err := g.Users.Update(r.Context(), u); err != nil {
		storeError(w, r, g.Logger, "user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

//	@Summary	Delete your own account
//	@Tags		users
//	@Security	Bearer
//	@Param		id	path	int	true	"User ID"
//	@Success	204
//	@Failure	403	{object}	httpx.Message
//	@Router		/api/users/{id} [delete]
func (g *Users) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := g.self(w, r)
	if !ok {
		return
	}
	if err := g.Users.Delete(r.Context(), id); err != nil {
		storeError(w, r, g.Logger, "user", err)
		return
	}
	// the caller's token must not outlive the account
	if c, ok := auth.ClaimsFrom(r.Context()); ok {
		g.JWT.Revoke(c)
	}
	g.Logger.Info("user_deleted", "user_id", id)
	w.WriteHeader(http.StatusNoContent)
}
