// Package parser reads YAML schema documents into dto schemas.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/dtokit/pkg/dto"
)

var nameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Document is the top-level shape of a schema file.
type Document struct {
	Schemas []Definition `yaml:"schemas"`
}

// Definition declares one named schema.
type Definition struct {
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Fields      []dto.Field `yaml:"fields" json:"fields"`
}

// Validate validates the definition.
func (d *Definition) Validate() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.Name, validation.Required, validation.Match(nameRe)),
		validation.Field(&d.Fields, validation.Required, validation.By(uniqueFieldNames)),
	)
}

// Schema builds the dto schema for the definition.
func (d *Definition) Schema() (*dto.Schema, error) {
	return dto.NewSchema(d.Name, d.Fields...)
}

func uniqueFieldNames(value any) error {
	fields, _ := value.([]dto.Field)
	seen := make(map[string]struct{}, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return fmt.Errorf("field %d has no name", i)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// Parse decodes and validates a schema document. Unknown keys and unknown
// type names are errors, as are duplicate schema names within the document.
// An empty document yields no definitions.
func Parse(data []byte) ([]Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parser: decode: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Schemas))
	for i := range doc.Schemas {
		def := &doc.Schemas[i]
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("parser: schema %d (%s): %w", i, def.Name, err)
		}
		if _, dup := seen[def.Name]; dup {
			return nil, fmt.Errorf("parser: duplicate schema %q", def.Name)
		}
		seen[def.Name] = struct{}{}
	}
	return doc.Schemas, nil
}

// Encode renders definitions as a schema document.
func Encode(defs []Definition) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Document{Schemas: defs}); err != nil {
		return nil, fmt.Errorf("parser: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("parser: encode: %w", err)
	}
	return buf.Bytes(), nil
}
