// Package apidoc is the API registry extension: it publishes the OpenAPI
// document for the catalog routes and serves Swagger UI over it. The handler
// annotations in internal/routes describe the same paths; TestDocsMatchRoutes
// in internal/app fails when the two disagree.
//
//	@title						Catalog API
//	@version					1.0
//	@BasePath					/
//	@securityDefinitions.apikey	Bearer
//	@in							header
//	@name						Authorization
//
// SPDX-License-Identifier: AGPL-3.0-or-later
package apidoc

import (
	"net/http"

	"github.com/google/uuid"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"

	"github.com/jsdraven/catalog-api/internal/config"
)

// Prefix is where the docs are mounted.
const Prefix = "/api/docs"

// Registry owns one registered swag document.
type Registry struct {
	spec *swag.Spec
}

// New registers a swag document under a name unique to this Registry, so
// several apps in one process never collide in swag's global table.
func New(cfg *config.Config) *Registry {
	spec := &swag.Spec{
		Version:          cfg.APIVersion,
		Host:             "",
		BasePath:         "/",
		Schemes:          []string{},
		Title:            cfg.APITitle,
		Description:      "User accounts, token authentication and a category catalog.",
		InfoInstanceName: "catalog-" + uuid.NewString(),
		SwaggerTemplate:  docTemplate,
		LeftDelim:        "{{",
		RightDelim:       "}}",
	}
	swag.Register(spec.InstanceName(), spec)
	return &Registry{spec: spec}
}

// InstanceName is the swag registry key.
func (r *Registry) InstanceName() string { return r.spec.InstanceName() }

// Doc renders the OpenAPI JSON.
func (r *Registry) Doc() string { return r.spec.ReadDoc() }

// Handler serves Swagger UI and doc.json. Mount it at Prefix + "/*".
func (r *Registry) Handler() http.HandlerFunc {
	return httpSwagger.Handler(
		httpSwagger.InstanceName(r.spec.InstanceName()),
		httpSwagger.URL(Prefix+"/doc.json"),
	)
}
