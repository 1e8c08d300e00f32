package store

import (
	"context"

	"github.com/starford/dtokit/internal/models"
)

// EntityStore defines the model persistence operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type EntityStore interface {
	Create(ctx context.Context, kind string, attrs map[string]any) (*models.Entity, error)
	Get(ctx context.Context, id string) (*models.Entity, error)
	Update(ctx context.Context, id string, attrs map[string]any, ifMatch string) (*models.Entity, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, kind string, limit, offset int) ([]models.EntityMetadata, int, error)
	Close() error
}

// Verify *DB satisfies EntityStore at compile time.
var _ EntityStore = (*DB)(nil)
