package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/dtokit/internal/apperr"
	"github.com/starford/dtokit/internal/checksum"
	"github.com/starford/dtokit/internal/models"
)

const defaultListLimit = 50

// Create inserts a new entity with a generated ID.
func (db *DB) Create(ctx context.Context, kind string, attrs map[string]any) (*models.Entity, error) {
	if attrs == nil {
		attrs = map[string]any{}
	}
	encoded, sum, err := encodeAttributes(attrs)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	e := &models.Entity{
		ID:         uuid.NewString(),
		Kind:       kind,
		Attributes: attrs,
		Checksum:   sum,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO entities (id, kind, attributes, checksum, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.Kind, encoded, e.Checksum, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: insert entity: %w", err)
	}
	return e, nil
}

// Get loads one entity by ID.
func (db *DB) Get(ctx context.Context, id string) (*models.Entity, error) {
	return getEntity(ctx, db.conn, id)
}

// Update replaces the attributes of an entity. A non-empty ifMatch must equal
// the stored checksum, otherwise apperr.ErrConflict is returned.
func (db *DB) Update(ctx context.Context, id string, attrs map[string]any, ifMatch string) (*models.Entity, error) {
	if attrs == nil {
		attrs = map[string]any{}
	}
	encoded, sum, err := encodeAttributes(attrs)
	if err != nil {
		return nil, err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	current, err := getEntity(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != current.Checksum {
		return nil, apperr.ErrConflict
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE entities SET attributes = ?, checksum = ?, updated_at = ? WHERE id = ?
	`, encoded, sum, now, id)
	if err != nil {
		return nil, fmt.Errorf("store: update entity: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}

	current.Attributes = attrs
	current.Checksum = sum
	current.UpdatedAt = now
	return current, nil
}

// Delete removes an entity.
func (db *DB) Delete(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete entity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete entity: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// List returns entity metadata, newest first, optionally filtered by kind,
// together with the total number of matching entities.
func (db *DB) List(ctx context.Context, kind string, limit, offset int) ([]models.EntityMetadata, int, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	err := db.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM entities WHERE (? = '' OR kind = ?)`, kind, kind).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("store: count entities: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, kind, checksum, updated_at
		FROM entities
		WHERE (? = '' OR kind = ?)
		ORDER BY updated_at DESC, id
		LIMIT ? OFFSET ?
	`, kind, kind, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list entities: %w", err)
	}
	defer rows.Close()

	out := []models.EntityMetadata{}
	for rows.Next() {
		var m models.EntityMetadata
		if err := rows.Scan(&m.ID, &m.Kind, &m.Checksum, &m.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getEntity(ctx context.Context, q queryer, id string) (*models.Entity, error) {
	var (
		e     models.Entity
		attrs string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, kind, attributes, checksum, created_at, updated_at
		FROM entities WHERE id = ?
	`, id).Scan(&e.ID, &e.Kind, &attrs, &e.Checksum, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get entity: %w", err)
	}
	if err := decodeAttributes(attrs, &e.Attributes); err != nil {
		return nil, err
	}
	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}
	return &e, nil
}

func encodeAttributes(attrs map[string]any) (string, string, error) {
	data, err := json.Marshal(attrs)
	if err != nil {
		return "", "", fmt.Errorf("store: encode attributes: %w", err)
	}
	return string(data), checksum.Sum(data), nil
}

// decodeAttributes keeps numbers as json.Number so integers above 2^53 read
// back unchanged.
func decodeAttributes(data string, out *map[string]any) error {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("store: decode attributes: %w", err)
	}
	return nil
}
