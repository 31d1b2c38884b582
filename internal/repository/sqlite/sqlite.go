// Package sqlite implements the local embedded store.
//
// The daemon keeps the user's library, achievements and trend history in a
// single SQLite file next to the binary. modernc.org/sqlite is a pure Go
// driver, so no C toolchain is needed and cross-compiles stay trivial. WAL
// mode lets the transport's read queries run while a scan is writing.
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements repository.LocalStore.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
// Use ":memory:" in tests for an isolated throwaway database.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL allows concurrent reads while a write transaction is open.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool. Callers should defer this right after New.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps this
// idempotent across restarts.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS games (
			account_id            TEXT NOT NULL,
			appid                 INTEGER NOT NULL,
			name                  TEXT NOT NULL DEFAULT '',
			playtime_minutes      INTEGER NOT NULL DEFAULT 0,
			last_played           DATETIME,
			icon_url              TEXT NOT NULL DEFAULT '',
			achievements_total    INTEGER NOT NULL DEFAULT 0,
			achievements_unlocked INTEGER NOT NULL DEFAULT 0,
			last_scraped_at       DATETIME,
			PRIMARY KEY (account_id, appid)
		);
		CREATE INDEX IF NOT EXISTS idx_games_account ON games(account_id);
	`)
	if err != nil {
		return fmt.Errorf("creating games table: %w", err)
	}

	// Achievement metadata (name, description, icons) is locally
	// authoritative and never travels in sync bundles; the import path
	// depends on these columns surviving a row replacement.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS achievements (
			account_id    TEXT NOT NULL,
			appid         INTEGER NOT NULL,
			apiname       TEXT NOT NULL,
			name          TEXT NOT NULL DEFAULT '',
			description   TEXT NOT NULL DEFAULT '',
			icon_url      TEXT NOT NULL DEFAULT '',
			icon_gray_url TEXT NOT NULL DEFAULT '',
			achieved      INTEGER NOT NULL DEFAULT 0,
			unlock_time   INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (account_id, appid, apiname)
		);
		CREATE INDEX IF NOT EXISTS idx_achievements_game ON achievements(account_id, appid);
	`)
	if err != nil {
		return fmt.Errorf("creating achievements table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS run_history (
			id             TEXT PRIMARY KEY,
			account_id     TEXT NOT NULL,
			recorded_at    DATETIME NOT NULL,
			total_games    INTEGER NOT NULL DEFAULT 0,
			unplayed_games INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_run_history_account
			ON run_history(account_id, recorded_at);
	`)
	if err != nil {
		return fmt.Errorf("creating run_history table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS achievement_history (
			id                    TEXT PRIMARY KEY,
			account_id            TEXT NOT NULL,
			recorded_at           DATETIME NOT NULL,
			total_achievements    INTEGER NOT NULL DEFAULT 0,
			unlocked_achievements INTEGER NOT NULL DEFAULT 0,
			completion_pct        REAL NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_achievement_history_account
			ON achievement_history(account_id, recorded_at);
	`)
	if err != nil {
		return fmt.Errorf("creating achievement_history table: %w", err)
	}

	return nil
}
