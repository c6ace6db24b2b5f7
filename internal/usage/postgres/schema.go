package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlBackendUsage = `
CREATE TABLE IF NOT EXISTS backend_usage (
    profile              TEXT         PRIMARY KEY,
    characters_sent      BIGINT       NOT NULL DEFAULT 0,
    characters_received  BIGINT       NOT NULL DEFAULT 0,
    updated_at           TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// Migrate creates the usage table if it does not exist. It is idempotent and
// safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlBackendUsage); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
