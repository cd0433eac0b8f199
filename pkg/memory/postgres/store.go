// Package postgres provides a PostgreSQL-backed [memory.Store] on a
// pgxpool connection pool. The schema is ensured at connect time via
// CREATE TABLE IF NOT EXISTS, so no out-of-band migration step is needed.
//
// Usage:
//
//	store, err := postgres.New(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//	_ = store.Remember(ctx, memory.Fact{Key: "last_location", Value: "berlin"})
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/earshot-ai/earshot/pkg/memory"
)

const ddlFacts = `
CREATE TABLE IF NOT EXISTS facts (
    key        TEXT         PRIMARY KEY,
    value      TEXT         NOT NULL,
    session_id TEXT         NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

var _ memory.Store = (*Store)(nil)

// Store is the PostgreSQL fact store. All operations are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New establishes a connection pool to the database at dsn, verifies
// connectivity, and ensures the facts table exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlFacts); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ensure schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases all connections held by the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Remember upserts a fact by key.
func (s *Store) Remember(ctx context.Context, fact memory.Fact) error {
	if fact.Key == "" {
		return fmt.Errorf("postgres store: fact key must not be empty")
	}
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO facts (key, value, session_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    session_id = EXCLUDED.session_id,
		    created_at = EXCLUDED.created_at`,
		fact.Key, fact.Value, fact.SessionID, fact.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres store: remember %q: %w", fact.Key, err)
	}
	return nil
}

// Recall fetches a fact by key.
func (s *Store) Recall(ctx context.Context, key string) (memory.Fact, error) {
	var fact memory.Fact
	err := s.pool.QueryRow(ctx, `
		SELECT key, value, session_id, created_at FROM facts WHERE key = $1`, key,
	).Scan(&fact.Key, &fact.Value, &fact.SessionID, &fact.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return memory.Fact{}, fmt.Errorf("%w: %q", memory.ErrNotFound, key)
	}
	if err != nil {
		return memory.Fact{}, fmt.Errorf("postgres store: recall %q: %w", key, err)
	}
	return fact, nil
}

// List returns all facts ordered by key.
func (s *Store) List(ctx context.Context) ([]memory.Fact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT key, value, session_id, created_at FROM facts ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}
	defer rows.Close()

	var facts []memory.Fact
	for rows.Next() {
		var fact memory.Fact
		if err := rows.Scan(&fact.Key, &fact.Value, &fact.SessionID, &fact.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres store: scan fact: %w", err)
		}
		facts = append(facts, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: list rows: %w", err)
	}
	return facts, nil
}

// Forget deletes a fact by key.
func (s *Store) Forget(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM facts WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("postgres store: forget %q: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", memory.ErrNotFound, key)
	}
	return nil
}
