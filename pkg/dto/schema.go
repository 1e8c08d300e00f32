package dto

import (
	"errors"
	"fmt"
)

// Field declares one named, typed member of a Schema.
type Field struct {
	Name string `json:"name" yaml:"name"`
	Type Type   `json:"type" yaml:"type"`
}

// Schema is an ordered, immutable set of field declarations. A Schema is
// safe to share between goroutines.
type Schema struct {
	name   string
	fields []Field
	index  map[string]int
}

// NewSchema builds a schema from fields in declaration order. Field names
// must be non-empty and unique.
func NewSchema(name string, fields ...Field) (*Schema, error) {
	s := &Schema{
		name:   name,
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if f.Name == "" {
			return nil, errors.New("dto: field name is empty")
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("dto: duplicate field %q", f.Name)
		}
		if f.Type < TypeUntyped || f.Type > TypeDate {
			return nil, fmt.Errorf("dto: field %q: invalid type %d", f.Name, int(f.Type))
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on error. It is meant for
// package-level schema declarations.
func MustSchema(name string, fields ...Field) *Schema {
	s, err := NewSchema(name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the schema name.
func (s *Schema) Name() string {
	return s.name
}

// Len returns the number of declared fields.
func (s *Schema) Len() int {
	return len(s.fields)
}

// Fields returns a copy of the field declarations in order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Names returns the field names in order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// Lookup returns the declaration of the named field.
func (s *Schema) Lookup(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Extend derives a new schema. Fields whose names already exist replace the
// declared type in place; new names are appended.
func (s *Schema) Extend(name string, fields ...Field) (*Schema, error) {
	merged := s.Fields()
	for _, f := range fields {
		if i, ok := s.index[f.Name]; ok {
			merged[i].Type = f.Type
			continue
		}
		merged = append(merged, f)
	}
	return NewSchema(name, merged...)
}

func (s *Schema) position(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}
