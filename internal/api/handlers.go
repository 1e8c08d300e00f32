package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dtokit/internal/models"
	"github.com/starford/dtokit/internal/recordservice"
	"github.com/starford/dtokit/internal/schemas"
)

// Handler holds API route handlers.
type Handler struct {
	svc *recordservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *recordservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListSchemas handles GET /api/schemas.
//
//	@Summary		List registered schemas
//	@Tags			schemas
//	@Produce		json
//	@Success		200	{object}	SchemaListResponse
//	@Security		BearerAuth
//	@Router			/schemas [get]
func (h *Handler) ListSchemas(w http.ResponseWriter, r *http.Request) {
	items := h.svc.ListSchemas(r.Context())
	writeJSON(w, http.StatusOK, SchemaListResponse{Schemas: items, Total: len(items)})
}

// GetSchema handles GET /api/schemas/{name}.
//
//	@Summary		Describe one schema
//	@Tags			schemas
//	@Produce		json
//	@Param			name	path		string	true	"Schema name"
//	@Success		200		{object}	SchemaDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/schemas/{name} [get]
func (h *Handler) GetSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	d, err := h.svc.Describe(r.Context(), name)
	if err != nil {
		writeServiceError(w, err, "describe schema", slog.String("schema", name))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GetJSONSchema handles GET /api/schemas/{name}/jsonschema.
//
//	@Summary		JSON Schema of the records a schema produces
//	@Tags			schemas
//	@Produce		json
//	@Param			name	path		string	true	"Schema name"
//	@Success		200		{object}	object
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/schemas/{name}/jsonschema [get]
func (h *Handler) GetJSONSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	e, err := h.svc.Entry(r.Context(), name)
	if err != nil {
		writeServiceError(w, err, "json schema", slog.String("schema", name))
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(schemas.JSONSchema(e)); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

// PopulateRecord handles POST /api/records/{schema}.
//
//	@Summary		Populate a record from the request input
//	@Description	Query string and JSON or form body are merged; body values win.
//	@Tags			records
//	@Accept			json
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			schema	path		string	true	"Schema name"
//	@Success		200		{object}	RecordResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{schema} [post]
func (h *Handler) PopulateRecord(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	name := chi.URLParam(r, "schema")
	payload, err := readPayload(r)
	if err != nil {
		writeServiceError(w, err, "read payload")
		return
	}
	rec, err := h.svc.FromRequest(r.Context(), name, payload)
	if err != nil {
		writeServiceError(w, err, "populate record", slog.String("schema", name))
		return
	}
	writeJSON(w, http.StatusOK, RecordResponse{Schema: name, Record: rec})
}

// AssignRecord handles POST /api/records/{schema}/assign.
//
//	@Summary		Populate a record, then assign fields one by one
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			schema	path		string			true	"Schema name"
//	@Param			body	body		AssignRequest	true	"Initial data and assignments"
//	@Success		200		{object}	RecordResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{schema}/assign [post]
func (h *Handler) AssignRecord(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	name := chi.URLParam(r, "schema")

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var req AssignRequest
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	rec, err := h.svc.Assign(r.Context(), name, req.Data, req.Set)
	if err != nil {
		writeServiceError(w, err, "assign record", slog.String("schema", name))
		return
	}
	writeJSON(w, http.StatusOK, RecordResponse{Schema: name, Record: rec})
}

// RecordFromModel handles GET /api/records/{schema}/models/{id}.
//
//	@Summary		Populate a record from a stored model
//	@Tags			records
//	@Produce		json
//	@Param			schema	path		string	true	"Schema name"
//	@Param			id		path		string	true	"Model ID"
//	@Success		200		{object}	RecordResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{schema}/models/{id} [get]
func (h *Handler) RecordFromModel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "schema")
	id := chi.URLParam(r, "id")
	rec, err := h.svc.FromModel(r.Context(), name, id)
	if err != nil {
		writeServiceError(w, err, "record from model", slog.String("schema", name), slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, RecordResponse{Schema: name, Record: rec})
}

// ListModels handles GET /api/models.
//
//	@Summary		List stored models
//	@Tags			models
//	@Produce		json
//	@Param			kind	query		string	false	"Filter by kind"
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	ModelListResponse
//	@Security		BearerAuth
//	@Router			/models [get]
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListModels(r.Context(), q.Get("kind"), limit, offset)
	if err != nil {
		writeServiceError(w, err, "list models")
		return
	}
	writeJSON(w, http.StatusOK, ModelListResponse{Models: items, Total: total})
}

// CreateModel handles POST /api/models/{kind}.
//
//	@Summary		Store a new model
//	@Tags			models
//	@Accept			json
//	@Produce		json
//	@Param			kind	path		string			true	"Model kind"
//	@Param			body	body		ModelRequest	true	"Model attributes"
//	@Success		201		{object}	ModelResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/models/{kind} [post]
func (h *Handler) CreateModel(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	kind := chi.URLParam(r, "kind")
	if err := validateKind(kind); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("kind: "+err.Error()))
		return
	}
	req, ok := decodeModelRequest(w, r)
	if !ok {
		return
	}
	ent, err := h.svc.CreateModel(r.Context(), kind, req.Attributes)
	if err != nil {
		writeServiceError(w, err, "create model", slog.String("kind", kind))
		return
	}
	writeModel(w, http.StatusCreated, ent)
}

// GetModel handles GET /api/models/{kind}/{id}.
//
//	@Summary		Get a stored model
//	@Tags			models
//	@Produce		json
//	@Param			kind	path		string	true	"Model kind"
//	@Param			id		path		string	true	"Model ID"
//	@Success		200		{object}	ModelResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/models/{kind}/{id} [get]
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	kind, id := chi.URLParam(r, "kind"), chi.URLParam(r, "id")
	ent, err := h.svc.GetModel(r.Context(), kind, id)
	if err != nil {
		writeServiceError(w, err, "get model", slog.String("id", id))
		return
	}
	writeModel(w, http.StatusOK, ent)
}

// UpdateModel handles PUT /api/models/{kind}/{id}.
//
//	@Summary		Replace model attributes with optimistic concurrency
//	@Tags			models
//	@Accept			json
//	@Produce		json
//	@Param			kind		path	string			true	"Model kind"
//	@Param			id			path	string			true	"Model ID"
//	@Param			If-Match	header	string			false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body	ModelRequest	true	"Model attributes"
//	@Success		200		{object}	ModelResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/models/{kind}/{id} [put]
func (h *Handler) UpdateModel(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	kind, id := chi.URLParam(r, "kind"), chi.URLParam(r, "id")
	req, ok := decodeModelRequest(w, r)
	if !ok {
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	ent, err := h.svc.UpdateModel(r.Context(), kind, id, req.Attributes, ifMatch)
	if err != nil {
		writeServiceError(w, err, "update model", slog.String("id", id))
		return
	}
	writeModel(w, http.StatusOK, ent)
}

// DeleteModel handles DELETE /api/models/{kind}/{id}.
//
//	@Summary		Delete a stored model
//	@Tags			models
//	@Param			kind	path	string	true	"Model kind"
//	@Param			id		path	string	true	"Model ID"
//	@Success		204		"Model deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/models/{kind}/{id} [delete]
func (h *Handler) DeleteModel(w http.ResponseWriter, r *http.Request) {
	kind, id := chi.URLParam(r, "kind"), chi.URLParam(r, "id")
	if err := h.svc.DeleteModel(r.Context(), kind, id); err != nil {
		writeServiceError(w, err, "delete model", slog.String("id", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeModelRequest(w http.ResponseWriter, r *http.Request) (ModelRequest, bool) {
	var req ModelRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return req, false
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return req, false
	}
	return req, true
}

func writeModel(w http.ResponseWriter, status int, ent *models.Entity) {
	w.Header().Set("ETag", `"`+ent.Checksum+`"`)
	writeJSON(w, status, ent)
}
