// Package dto populates typed data transfer objects from loosely typed
// mappings such as model exports, HTTP payloads or plain maps.
package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Record holds exactly one value per field of its schema. Each value is
// either nil or the Go representation of the field's declared type (see
// Coerce). A Record is not safe for concurrent mutation.
type Record struct {
	schema *Schema
	values []any
}

// Populate builds a Record from source. Fields missing from source, or
// present with a nil value, are nil. Keys not declared by the schema are
// ignored and source is never modified. The only failure is a date field
// whose value cannot be parsed; population stops at that field and the
// returned error is a *FieldError.
func Populate(s *Schema, source map[string]any) (*Record, error) {
	r := &Record{
		schema: s,
		values: make([]any, len(s.fields)),
	}
	for i, f := range s.fields {
		raw := source[f.Name]
		if raw == nil {
			continue
		}
		v, err := Coerce(f.Type, raw)
		if err != nil {
			return nil, &FieldError{Field: f.Name, Type: f.Type, Err: err}
		}
		r.values[i] = v
	}
	return r, nil
}

// Schema returns the schema the record was built from.
func (r *Record) Schema() *Schema {
	return r.schema
}

// Get returns the value of a declared field. For names the schema does not
// declare it returns nil, false.
func (r *Record) Get(key string) (any, bool) {
	i, ok := r.schema.position(key)
	if !ok {
		return nil, false
	}
	return r.values[i], true
}

// Set coerces value to the declared type of key and stores it. Unknown keys
// are ignored. Unlike Populate, a nil value is coerced too, so an int field
// set to nil holds 0; use Clear to null a field. When a date cannot be
// parsed the field keeps its previous value and a *FieldError is returned.
func (r *Record) Set(key string, value any) error {
	i, ok := r.schema.position(key)
	if !ok {
		return nil
	}
	f := r.schema.fields[i]
	v, err := Coerce(f.Type, value)
	if err != nil {
		return &FieldError{Field: f.Name, Type: f.Type, Err: err}
	}
	r.values[i] = v
	return nil
}

// Clear sets a declared field to nil. Unknown keys are ignored.
func (r *Record) Clear(key string) {
	if i, ok := r.schema.position(key); ok {
		r.values[i] = nil
	}
}

// Has reports whether the schema declares key.
func (r *Record) Has(key string) bool {
	_, ok := r.schema.position(key)
	return ok
}

// IsNull reports whether key is unknown or currently nil.
func (r *Record) IsNull(key string) bool {
	v, _ := r.Get(key)
	return v == nil
}

// Int returns the value of an int field, or 0.
func (r *Record) Int(key string) int64 {
	v, _ := r.Get(key)
	n, _ := v.(int64)
	return n
}

// Float returns the value of a float field, or 0.
func (r *Record) Float(key string) float64 {
	v, _ := r.Get(key)
	f, _ := v.(float64)
	return f
}

// Text returns the value of a string field, or "".
func (r *Record) Text(key string) string {
	v, _ := r.Get(key)
	s, _ := v.(string)
	return s
}

// Bool returns the value of a bool field, or false.
func (r *Record) Bool(key string) bool {
	v, _ := r.Get(key)
	b, _ := v.(bool)
	return b
}

// Time returns the value of a date field, or the zero time.
func (r *Record) Time(key string) time.Time {
	v, _ := r.Get(key)
	t, _ := v.(time.Time)
	return t
}

// Object returns the value of an object field, or nil.
func (r *Record) Object(key string) map[string]any {
	v, _ := r.Get(key)
	m, _ := v.(map[string]any)
	return m
}

// Array returns the value of an array field, or nil.
func (r *Record) Array(key string) []any {
	v, _ := r.Get(key)
	a, _ := v.([]any)
	return a
}

// Values returns the field values in schema order.
func (r *Record) Values() []any {
	return slices.Clone(r.values)
}

// ToMap exports the record as a map keyed by field name. A Record is
// therefore itself a Model and can seed another record.
func (r *Record) ToMap() map[string]any {
	out := make(map[string]any, len(r.values))
	for i, f := range r.schema.fields {
		out[f.Name] = r.values[i]
	}
	return out
}

// Clone returns an independent copy. Object and array values are copied
// one level deep.
func (r *Record) Clone() *Record {
	c := &Record{schema: r.schema, values: make([]any, len(r.values))}
	for i, v := range r.values {
		switch x := v.(type) {
		case map[string]any:
			c.values[i] = maps.Clone(x)
		case []any:
			c.values[i] = slices.Clone(x)
		default:
			c.values[i] = v
		}
	}
	return c
}

// MarshalJSON encodes the record as a JSON object with keys in schema order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.schema.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, fmt.Errorf("dto: encode field %q: %w", f.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
