// SPDX-License-Identifier: AGPL-3.0-or-later
package routes

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jsdraven/catalog-api/internal/auth"
	"github.com/jsdraven/catalog-api/internal/httpx"
	"github.com/jsdraven/catalog-api/internal/store"
)

type categoryRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description" validate:"max=500"`
}

// Categories serves /categories. Reads are public.
type Categories struct {
	Deps
}

func NewCategories(d Deps) *Categories { return &Categories{Deps: d} }

func (g *Categories) Name() string { return "categories" }

func (g *Categories) Routes(r chi.Router) {
	r.Route("/categories", func(r chi.Router) {
		r.Get("/", g.list)
		r.Get("/export", g.export)
		r.Get("/{id}", g.get)
		r.Group(func(r chi.Router) {
			r.Use(g.JWT.Required(auth.TypeAccess))
			r.Post("/", g.create)
			r.Put("/{id}", g.update)
			r.Delete("/{id}", g.delete)
		})
	})
}

//	@Summary	List categories
//	@Tags		categories
//	@Produce	json
//	@Success	200	{array}	store.Category
//	@Router		/api/categories [get]
func (g *Categories) list(w http.ResponseWriter, r *http.Request) {
	cats, err := g.Categories.List(r.Context())
	if err != nil {
		storeError(w, r, g.Logger, "category", err)
		return
	}
	httpx.JSON(w, http.StatusOK, cats)
}

// export downloads every category as CSV.
//
//	@Summary	Download categories as CSV
//	@Tags		categories
//	@Produce	text/csv
//	@Success	200	{file}	file
//	@Router		/api/categories/export [get]
func (g *Categories) export(w http.ResponseWriter, r *http.Request) {
	cats, err := g.Categories.List(r.Context())
	if err != nil {
		storeError(w, r, g.Logger, "category", err)
		return
	}
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	_ = cw.Write([]string{"id", "name", "description", "created_at", "updated_at"})
	for _, c := range cats {
		_ = cw.Write([]string{
			strconv.FormatInt(c.ID, 10),
			c.Name,
			c.Description,
			c.CreatedAt.UTC().Format(time.RFC3339),
			c.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		storeError(w, r, g.Logger, "category", err)
		return
	}
	opts := httpx.AttachmentOpts{Filename: "categories.csv", ContentType: "text/csv; charset=utf-8", Size: int64(buf.Len())}
	if err := httpx.WriteAttachment(w, r, &buf, opts); err != nil {
		g.Logger.Warn("export_failed", "err", err)
	}
}

//	@Summary	Get a category
//	@Tags		categories
//	@Produce	json
//	@Param		id	path		int	true	"Category ID"
//	@Success	200	{object}	store.Category
//	@Failure	404	{object}	httpx.Message
//	@Router		/api/categories/{id} [get]
func (g *Categories) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "category not found")
		return
	}
	c, err := g.Categories.Get(r.Context(), id)
	if err != nil {
		storeError(w, r, g.Logger, "category", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

//	@Summary	Create a category
//	@Tags		categories
//	@Accept		json
//	@Produce	json
//	@Security	Bearer
//	@Param		category	body		categoryRequest	true	"Category"
//	@Success	201			{object}	store.Category
//	@Failure	409			{object}	httpx.Message
//	@Router		/api/categories [post]
func (g *Categories) create(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	c := &store.Category{Name: req.Name, Description: req.Description}
	if err := g.Categories.Create(r.Context(), c); err != nil {
		storeError(w, r, g.Logger, "category", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

//	@Summary	Update a category
//	@Tags		categories
//	@Accept		json
//	@Produce	json
//	@Security	Bearer
//	@Param		id			path		int				true	"Category ID"
//	@Param		category	body		categoryRequest	true	"Category"
//	@Success	200			{object}	store.Category
//	@Failure	404			{object}	httpx.Message
//	@Router		/api/categories/{id} [put]
func (g *Categories) update(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "category not found")
		return
	}
	var req categoryRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := g.Categories.Get(r.Context(), id)
	if err != nil {
		storeError(w, r, g.Logger, "category", err)
		return
	}
	c.Name, c.Description = req.Name, req.Description
	if err := g.Categories.Update(r.Context(), c); err != nil {
		storeError(w, r, g.Logger, "category", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

//	@Summary	Delete a category
//	@Tags		categories
//	@Security	Bearer
//	@Param		id	path	int	true	"Category ID"
//	@Success	204
//	@Failure	404	{object}	httpx.Message
//	@Router		/api/categories/{id} [delete]
func (g *Categories) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IDParam(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "category not found")
		return
	}
	if err := g.Categories.Delete(r.Context(), id); err != nil {
		storeError(w, r, g.Logger, "category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
