package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CursorStore implements domain.CursorStore using PostgreSQL.
type CursorStore struct {
	pool *pgxpool.Pool
}

// NewCursorStore creates a new CursorStore backed by the given connection pool.
func NewCursorStore(pool *pgxpool.Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

// GetCursor returns the last processed id for name, or "" when the
// consumer has never committed one.
func (s *CursorStore) GetCursor(ctx context.Context, name string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT last_id FROM indexer_cursor WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("postgres: get cursor %s: %w", name, err)
	}
	return id, nil
}

// SetCursor upserts the last processed id for name.
func (s *CursorStore) SetCursor(ctx context.Context, name, id string) error {
	const query = `
		INSERT INTO indexer_cursor (name, last_id, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET last_id = EXCLUDED.last_id, updated_at = NOW()`
	if _, err := s.pool.Exec(ctx, query, name, id); err != nil {
		return fmt.Errorf("postgres: set cursor %s: %w", name, err)
	}
	return nil
}
