package dto

// Model is anything that can export itself as a flat mapping, such as a
// database row.
type Model interface {
	ToMap() map[string]any
}

// Request is anything that exposes its input fields as a mapping, such as a
// parsed HTTP request.
type Request interface {
	All() map[string]any
}

// Map is a plain mapping usable both as a Model and as a Request.
type Map map[string]any

// ToMap implements Model.
func (m Map) ToMap() map[string]any { return m }

// All implements Request.
func (m Map) All() map[string]any { return m }

// FromModel populates a record from a model export.
func FromModel(s *Schema, m Model) (*Record, error) {
	if m == nil {
		return Populate(s, nil)
	}
	return Populate(s, m.ToMap())
}

// FromRequest populates a record from request input.
func FromRequest(s *Schema, r Request) (*Record, error) {
	if r == nil {
		return Populate(s, nil)
	}
	return Populate(s, r.All())
}

// FromArray populates a record from a plain mapping.
func FromArray(s *Schema, data map[string]any) (*Record, error) {
	return Populate(s, data)
}
