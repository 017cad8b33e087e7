// Package eventlog keeps an optional, append-only audit trail of power
// events and shutdown decisions in Postgres, migrating its own schema
// on startup (spec.md §9, grounded on the teacher's internal/database).
package eventlog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Log is the audit trail writer.
type Log struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and migrates the schema.
func New(ctx context.Context, databaseURL string) (*Log, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to audit database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping audit database: %w", err)
	}
	l := &Log{pool: pool}
	if err := l.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return l, nil
}

// Close releases the connection pool.
func (l *Log) Close() {
	l.pool.Close()
}

func (l *Log) migrate(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS power_events (
			id          BIGSERIAL PRIMARY KEY,
			kind        TEXT NOT NULL,
			details     TEXT NOT NULL DEFAULT '',
			occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS shutdown_decisions (
			id            BIGSERIAL PRIMARY KEY,
			cause         TEXT NOT NULL,
			dry_run       BOOLEAN NOT NULL,
			triggered_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_power_events_time ON power_events (occurred_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}

// RecordEvent appends one power event row.
func (l *Log) RecordEvent(ctx context.Context, kind, details string) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO power_events (kind, details) VALUES ($1, $2)`, kind, details)
	return err
}

// RecordShutdownDecision appends one shutdown-decision row.
func (l *Log) RecordShutdownDecision(ctx context.Context, cause string, dryRun bool) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO shutdown_decisions (cause, dry_run) VALUES ($1, $2)`, cause, dryRun)
	return err
}
