package mcpserver

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/starford/dtokit/internal/parser"
	"github.com/starford/dtokit/internal/storage"
)

const maxDocumentSize = 1 << 20

var safeFilenameRe = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// putDocument validates a schema document and writes it to the schema
// directory. It returns the schema names the document declares.
func putDocument(store storage.Provider, filename string, data []byte) ([]string, error) {
	if len(data) > maxDocumentSize {
		return nil, fmt.Errorf("document too large: %d bytes (max %d)", len(data), maxDocumentSize)
	}
	if !safeFilenameRe.MatchString(filename) || strings.HasPrefix(filename, ".") {
		return nil, fmt.Errorf("invalid filename: %s", filename)
	}
	if !storage.IsSchemaFile(filename) {
		return nil, fmt.Errorf("unsupported file extension: %s (allowed: yaml, yml)", filepath.Ext(filename))
	}
	defs, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	if err := store.Write(filename, data); err != nil {
		return nil, err
	}
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names, nil
}
