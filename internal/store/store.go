package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a row lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Store bundles the row stores over one pgx pool.
type Store struct {
	pool *pgxpool.Pool

	Jobs     *JobStore
	Projects *ProjectStore
	Posts    *PostStore
}

// New connects a pool and wires the row stores.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &Store{pool: pool}
	s.Jobs = &JobStore{pool: pool}
	s.Projects = &ProjectStore{pool: pool}
	s.Posts = &PostStore{pool: pool}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}
