// Package models defines the persisted domain types for dtokit.
package models

import (
	"maps"
	"time"
)

// Entity is a stored model: a kind, an opaque attribute bag and
// bookkeeping columns.
type Entity struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Attributes map[string]any `json:"attributes"`
	Checksum   string         `json:"checksum"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// ToMap flattens the entity the way an ORM exports a row: attributes at the
// top level plus the id, kind and timestamp columns, which win over
// attributes of the same name.
func (e *Entity) ToMap() map[string]any {
	out := make(map[string]any, len(e.Attributes)+4)
	maps.Copy(out, e.Attributes)
	out["id"] = e.ID
	out["kind"] = e.Kind
	out["created_at"] = e.CreatedAt
	out["updated_at"] = e.UpdatedAt
	return out
}

// EntityMetadata is a lightweight representation returned by list operations.
type EntityMetadata struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
