package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dtokit/internal/recordservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// docs, if non-nil, serves the schema document endpoints.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *recordservice.Service, docs *DocumentHandler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Schemas.
	r.Get("/schemas", h.ListSchemas)
	r.Get("/schemas/{name}", h.GetSchema)
	r.Get("/schemas/{name}/jsonschema", h.GetJSONSchema)

	// Records.
	r.Post("/records/{schema}", h.PopulateRecord)
	r.Post("/records/{schema}/assign", h.AssignRecord)
	r.Get("/records/{schema}/models/{id}", h.RecordFromModel)

	// Models.
	r.Get("/models", h.ListModels)
	r.Post("/models/{kind}", h.CreateModel)
	r.Get("/models/{kind}/{id}", h.GetModel)
	r.Put("/models/{kind}/{id}", h.UpdateModel)
	r.Delete("/models/{kind}/{id}", h.DeleteModel)

	// Schema documents.
	if docs != nil {
		r.Get("/documents", docs.List)
		r.Post("/documents", docs.Upload)
		r.Get("/documents/{file}", docs.Get)
		r.Delete("/documents/{file}", docs.Delete)
	}

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
