package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dtokit/internal/parser"
	"github.com/starford/dtokit/internal/schemas"
	"github.com/starford/dtokit/internal/storage"
)

const maxUploadBytes = 1 << 20

// DocumentHandler serves and accepts schema documents.
type DocumentHandler struct {
	store  storage.Provider
	reg    *schemas.Registry
	logger *slog.Logger
}

// NewDocumentHandler creates a handler over the schema directory.
func NewDocumentHandler(store storage.Provider, reg *schemas.Registry, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{store: store, reg: reg, logger: logger}
}

// safeName validates that the filename is a plain schema document name
// (no path separators, no traversal, .yaml or .yml).
func safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	if !storage.IsSchemaFile(cleaned) {
		return "", fmt.Errorf("filename must end in .yaml or .yml")
	}
	return cleaned, nil
}

// List handles GET /api/documents.
func (h *DocumentHandler) List(w http.ResponseWriter, _ *http.Request) {
	items, err := h.store.List("")
	if err != nil {
		writeServiceError(w, err, "list documents")
		return
	}
	if items == nil {
		items = []storage.FileMeta{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": items})
}

// Get handles GET /api/documents/{file}.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	name, err := safeName(chi.URLParam(r, "file"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	data, err := h.store.Read(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		writeServiceError(w, err, "read document", slog.String("file", name))
		return
	}
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Upload handles POST /api/documents (multipart/form-data, field "file").
// The document must parse before it is written.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	name, err := safeName(header.Filename)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}
	defs, err := parser.Parse(data)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
		return
	}

	if err := h.store.Write(name, data); err != nil {
		writeServiceError(w, err, "write document", slog.String("file", name))
		return
	}
	if err := schemas.Load(h.reg, h.store, h.logger); err != nil {
		writeServiceError(w, err, "reload schemas")
		return
	}

	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	writeJSON(w, http.StatusCreated, DocumentResponse{
		File:    name,
		Size:    int64(len(data)),
		Schemas: names,
		Loaded:  time.Now().UTC(),
	})
}

// Delete handles DELETE /api/documents/{file}.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name, err := safeName(chi.URLParam(r, "file"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.store.Delete(name); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		writeServiceError(w, err, "delete document", slog.String("file", name))
		return
	}
	if err := schemas.Load(h.reg, h.store, h.logger); err != nil {
		writeServiceError(w, err, "reload schemas")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
