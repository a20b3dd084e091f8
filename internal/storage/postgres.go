package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ippool/internal/pool"
)

// DefaultKeepGenerations is how many generations the mirror retains.
const DefaultKeepGenerations = 12

const schema = `
CREATE TABLE IF NOT EXISTS pool_generations (
	id         UUID PRIMARY KEY,
	number     BIGINT NOT NULL,
	size       INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS pool_endpoints (
	generation_id UUID NOT NULL REFERENCES pool_generations(id) ON DELETE CASCADE,
	endpoint      TEXT NOT NULL,
	country       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (generation_id, endpoint)
);
`

// PostgresPublisher mirrors published generations into Postgres so other
// systems can query them. Only the newest generations are retained.
type PostgresPublisher struct {
	pool    *pgxpool.Pool
	locator CountryLocator
	keep    int
}

func NewPostgresPublisher(ctx context.Context, dbURL string, locator CountryLocator) (*PostgresPublisher, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	// Fix for Supabase Transaction Pooler (PgBouncer) "prepared statement already exists" error
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pgPool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if _, err := pgPool.Exec(ctx, schema); err != nil {
		pgPool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &PostgresPublisher{pool: pgPool, locator: locator, keep: DefaultKeepGenerations}, nil
}

func (r *PostgresPublisher) Close() {
	r.pool.Close()
}

// Publish stores the generation and its endpoints in one transaction and
// prunes generations beyond the retention window.
func (r *PostgresPublisher) Publish(ctx context.Context, g *pool.Generation) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO pool_generations (id, number, size, created_at)
		VALUES ($1::uuid, $2, $3, $4)
	`, g.ID.String(), int64(g.Number), g.Len(), g.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}

	// COPY is far cheaper than batched INSERTs for pools in the 100k range.
	eps := g.Endpoints()
	rows := make([][]any, len(eps))
	for i, e := range eps {
		country := ""
		if r.locator != nil {
			country = r.locator.Country(e)
		}
		rows[i] = []any{g.ID, string(e), country}
	}
	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"pool_endpoints"},
		[]string{"generation_id", "endpoint", "country"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy endpoints: %w", err)
	}
	if int(n) != len(eps) {
		return fmt.Errorf("copy endpoints: wrote %d of %d rows", n, len(eps))
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM pool_generations
		WHERE id NOT IN (
			SELECT id FROM pool_generations ORDER BY created_at DESC, number DESC LIMIT $1
		)
	`, r.keep)
	if err != nil {
		return fmt.Errorf("prune generations: %w", err)
	}

	return tx.Commit(ctx)
}
