// Package recordservice coordinates the schema registry, the model store and
// the dto populator.
package recordservice

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/starford/dtokit/internal/apperr"
	"github.com/starford/dtokit/internal/models"
	"github.com/starford/dtokit/internal/schemas"
	"github.com/starford/dtokit/internal/store"
	"github.com/starford/dtokit/pkg/dto"
)

// Event types published by the service.
const (
	EventRecordPopulated = "record.populated"
	EventModelCreated    = "model.created"
	EventModelUpdated    = "model.updated"
	EventModelDeleted    = "model.deleted"
)

// Record sources reported with EventRecordPopulated.
const (
	SourceArray   = "array"
	SourceRequest = "request"
	SourceModel   = "model"
)

// Publisher receives service events. It must not block.
type Publisher func(eventType string, data any)

// SchemaDetail is the public description of a registered schema.
type SchemaDetail struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	File        string      `json:"file"`
	Fields      []dto.Field `json:"fields"`
}

// ModelEvent is the payload of model.* events.
type ModelEvent struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// RecordEvent is the payload of record.populated.
type RecordEvent struct {
	Schema string `json:"schema"`
	Source string `json:"source"`
}

// Service coordinates registry, store and populator.
type Service struct {
	reg     *schemas.Registry
	store   store.EntityStore
	publish Publisher
}

// NewService creates a new record service. publish may be nil.
func NewService(reg *schemas.Registry, st store.EntityStore, publish Publisher) *Service {
	if publish == nil {
		publish = func(string, any) {}
	}
	return &Service{reg: reg, store: st, publish: publish}
}

// ListSchemas describes every registered schema, sorted by name.
func (s *Service) ListSchemas(_ context.Context) []SchemaDetail {
	entries := s.reg.All()
	out := make([]SchemaDetail, len(entries))
	for i, e := range entries {
		out[i] = detail(e)
	}
	return out
}

// Describe returns the description of one schema.
func (s *Service) Describe(_ context.Context, name string) (*SchemaDetail, error) {
	e, err := s.entry(name)
	if err != nil {
		return nil, err
	}
	d := detail(e)
	return &d, nil
}

// Entry returns the registry entry for name.
func (s *Service) Entry(_ context.Context, name string) (schemas.Entry, error) {
	return s.entry(name)
}

// Populate builds a record from a plain key/value source.
func (s *Service) Populate(_ context.Context, name string, source map[string]any) (*dto.Record, error) {
	e, err := s.entry(name)
	if err != nil {
		return nil, err
	}
	rec, err := dto.FromArray(e.Schema, source)
	if err != nil {
		return nil, err
	}
	s.publish(EventRecordPopulated, RecordEvent{Schema: name, Source: SourceArray})
	return rec, nil
}

// FromRequest builds a record from everything the request carries.
func (s *Service) FromRequest(_ context.Context, name string, req dto.Request) (*dto.Record, error) {
	e, err := s.entry(name)
	if err != nil {
		return nil, err
	}
	rec, err := dto.FromRequest(e.Schema, req)
	if err != nil {
		return nil, err
	}
	s.publish(EventRecordPopulated, RecordEvent{Schema: name, Source: SourceRequest})
	return rec, nil
}

// FromModel builds a record from a stored model.
func (s *Service) FromModel(ctx context.Context, name, id string) (*dto.Record, error) {
	e, err := s.entry(name)
	if err != nil {
		return nil, err
	}
	ent, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rec, err := dto.FromModel(e.Schema, ent)
	if err != nil {
		return nil, err
	}
	s.publish(EventRecordPopulated, RecordEvent{Schema: name, Source: SourceModel})
	return rec, nil
}

// Assign populates a record from data and then assigns every key of set, in
// key order. Keys the schema does not declare are ignored. The first failed
// assignment aborts with its error.
func (s *Service) Assign(ctx context.Context, name string, data, set map[string]any) (*dto.Record, error) {
	rec, err := s.Populate(ctx, name, data)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := rec.Set(k, set[k]); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// CreateModel stores a new model of the given kind.
func (s *Service) CreateModel(ctx context.Context, kind string, attrs map[string]any) (*models.Entity, error) {
	ent, err := s.store.Create(ctx, kind, attrs)
	if err != nil {
		return nil, err
	}
	s.publish(EventModelCreated, ModelEvent{ID: ent.ID, Kind: ent.Kind})
	return ent, nil
}

// GetModel returns the model id when it is of the given kind.
func (s *Service) GetModel(ctx context.Context, kind, id string) (*models.Entity, error) {
	ent, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ent.Kind != kind {
		return nil, apperr.ErrNotFound
	}
	return ent, nil
}

// UpdateModel replaces a model's attributes with optimistic concurrency.
func (s *Service) UpdateModel(ctx context.Context, kind, id string, attrs map[string]any, ifMatch string) (*models.Entity, error) {
	if _, err := s.GetModel(ctx, kind, id); err != nil {
		return nil, err
	}
	ent, err := s.store.Update(ctx, id, attrs, ifMatch)
	if err != nil {
		return nil, err
	}
	s.publish(EventModelUpdated, ModelEvent{ID: ent.ID, Kind: ent.Kind})
	return ent, nil
}

// DeleteModel removes a model.
func (s *Service) DeleteModel(ctx context.Context, kind, id string) error {
	if _, err := s.GetModel(ctx, kind, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(EventModelDeleted, ModelEvent{ID: id, Kind: kind})
	return nil
}

// ListModels returns paginated model metadata, optionally of one kind.
func (s *Service) ListModels(ctx context.Context, kind string, limit, offset int) ([]models.EntityMetadata, int, error) {
	return s.store.List(ctx, kind, limit, offset)
}

func (s *Service) entry(name string) (schemas.Entry, error) {
	e, ok := s.reg.Get(name)
	if !ok {
		return schemas.Entry{}, fmt.Errorf("%w: %s", apperr.ErrUnknownSchema, name)
	}
	return e, nil
}

func detail(e schemas.Entry) SchemaDetail {
	return SchemaDetail{
		Name:        e.Name(),
		Description: e.Description,
		File:        e.File,
		Fields:      e.Schema.Fields(),
	}
}

// IsInvalidInput reports whether err was caused by a value that could not be
// coerced.
func IsInvalidInput(err error) bool {
	var fe *dto.FieldError
	return errors.As(err, &fe) || errors.Is(err, dto.ErrInvalidDate)
}
