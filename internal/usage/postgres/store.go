// Package postgres implements usage.Store on PostgreSQL using a pgx
// connection pool. Each profile is one row in the backend_usage table.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/narrator/internal/backend"
	"github.com/MrWong99/narrator/internal/usage"
)

const upsertUsage = `
INSERT INTO backend_usage (profile, characters_sent, characters_received, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (profile) DO UPDATE
SET characters_sent = EXCLUDED.characters_sent,
    characters_received = EXCLUDED.characters_received,
    updated_at = now()`

// Store is a usage.Store backed by PostgreSQL. It is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, verifies the connection and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
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
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Load returns the stored counters of every profile.
func (s *Store) Load(ctx context.Context) (map[string]backend.Usage, error) {
	rows, err := s.pool.Query(ctx, `SELECT profile, characters_sent, characters_received FROM backend_usage`)
	if err != nil {
		return nil, fmt.Errorf("postgres store: load usage: %w", err)
	}
	out := make(map[string]backend.Usage)
	var (
		name string
		u    backend.Usage
	)
	_, err = pgx.ForEachRow(rows, []any{&name, &u.CharactersSent, &u.CharactersReceived}, func() error {
		out[name] = u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan usage: %w", err)
	}
	return out, nil
}

// Save upserts the counters of every profile in one transaction.
func (s *Store) Save(ctx context.Context, totals map[string]backend.Usage) error {
	if len(totals) == 0 {
		return nil
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for name, u := range totals {
			batch.Queue(upsertUsage, name, u.CharactersSent, u.CharactersReceived)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("postgres store: save usage: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

var _ usage.Store = (*Store)(nil)
