package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/argos/internal/content"
)

// ContentRepository implements content.Store on the contents table.
type ContentRepository struct {
	db *pgxpool.Pool
}

// NewContentRepository creates a ContentRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool with the contents table migrated.
func NewContentRepository(db *pgxpool.Pool) *ContentRepository {
	return &ContentRepository{db: db}
}

// Put stores data under hash. An existing row is left untouched.
func (r *ContentRepository) Put(ctx context.Context, hash string, data []byte) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO contents (hash, data, size) VALUES ($1, $2, $3)
		 ON CONFLICT (hash) DO NOTHING`,
		hash, data, len(data),
	)
	if err != nil {
		return fmt.Errorf("inserting content %s: %w", hash, err)
	}
	return nil
}

// Get loads the payload stored under hash.
//
// Postcondition: Returns content.ErrNotFound when no row exists.
func (r *ContentRepository) Get(ctx context.Context, hash string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRow(ctx, `SELECT data FROM contents WHERE hash = $1`, hash).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("hash %q: %w", hash, content.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying content %s: %w", hash, err)
	}
	return data, nil
}

// Count returns the number of stored payloads.
func (r *ContentRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM contents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting contents: %w", err)
	}
	return n, nil
}
