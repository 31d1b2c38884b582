// Package postgres implements the canonical remote store.
//
// The sync server keeps every account's uploaded snapshot in PostgreSQL.
// pgx's pool is the connection primitive; the full-replace upload runs inside
// pgx.BeginTxFunc so a failure anywhere rolls the whole snapshot back, and
// bulk inserts go through pgx.Batch to keep large libraries to a handful of
// round trips.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the PostgreSQL error code for a unique-constraint hit.
const uniqueViolation = "23505"

// DB wraps a pgx connection pool and implements the remote-store
// repositories.
type DB struct {
	pool *pgxpool.Pool
}

// New connects to the database at databaseURL and ensures the schema exists.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	db := &DB{pool: pool}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}

	return db, nil
}

// Close releases the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// migrate creates the schema. All statements are idempotent.
func (db *DB) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id           TEXT PRIMARY KEY,
			account_id   TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL DEFAULT '',
			avatar_url   TEXT NOT NULL DEFAULT '',
			short_id     CHAR(8),
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_short_id
			ON profiles(short_id) WHERE short_id IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS sync_state (
			account_id TEXT PRIMARY KEY REFERENCES profiles(account_id) ON DELETE CASCADE,
			last_sync  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS games (
			account_id            TEXT NOT NULL REFERENCES profiles(account_id) ON DELETE CASCADE,
			appid                 BIGINT NOT NULL,
			name                  TEXT NOT NULL DEFAULT '',
			playtime_minutes      BIGINT NOT NULL DEFAULT 0,
			last_played           TIMESTAMPTZ,
			icon_url              TEXT NOT NULL DEFAULT '',
			achievements_total    INT NOT NULL DEFAULT 0,
			achievements_unlocked INT NOT NULL DEFAULT 0,
			last_scraped_at       TIMESTAMPTZ,
			PRIMARY KEY (account_id, appid)
		)`,
		`CREATE TABLE IF NOT EXISTS achievements (
			account_id  TEXT NOT NULL REFERENCES profiles(account_id) ON DELETE CASCADE,
			appid       BIGINT NOT NULL,
			apiname     TEXT NOT NULL,
			achieved    BOOLEAN NOT NULL DEFAULT FALSE,
			unlock_time BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (account_id, appid, apiname)
		)`,
		`CREATE TABLE IF NOT EXISTS run_history (
			id             TEXT PRIMARY KEY,
			account_id     TEXT NOT NULL REFERENCES profiles(account_id) ON DELETE CASCADE,
			recorded_at    TIMESTAMPTZ NOT NULL,
			total_games    INT NOT NULL DEFAULT 0,
			unplayed_games INT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_history_account
			ON run_history(account_id, recorded_at)`,
		`CREATE TABLE IF NOT EXISTS achievement_history (
			id                    TEXT PRIMARY KEY,
			account_id            TEXT NOT NULL REFERENCES profiles(account_id) ON DELETE CASCADE,
			recorded_at           TIMESTAMPTZ NOT NULL,
			total_achievements    INT NOT NULL DEFAULT 0,
			unlocked_achievements INT NOT NULL DEFAULT 0,
			completion_pct        DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_achievement_history_account
			ON achievement_history(account_id, recorded_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a unique-constraint failure.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
