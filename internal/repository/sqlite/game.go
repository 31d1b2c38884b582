package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mhalvorsen/achievo/internal/model"
	"github.com/mhalvorsen/achievo/internal/repository"
)

// compile-time check that *DB implements the full local store surface
var _ repository.LocalStore = (*DB)(nil)

// UpsertGames inserts new games and refreshes the catalog-owned fields of
// existing ones. The ON CONFLICT clause deliberately leaves
// achievements_total, achievements_unlocked and last_scraped_at alone — the
// owned-game list knows nothing about achievements, and clobbering the scan
// results here would make every "Update" pass look unscanned.
func (db *DB) UpsertGames(ctx context.Context, accountID string, games []model.Game) error {
	if len(games) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning game upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO games (account_id, appid, name, playtime_minutes, last_played, icon_url)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (account_id, appid) DO UPDATE SET
			name             = excluded.name,
			playtime_minutes = excluded.playtime_minutes,
			last_played      = excluded.last_played,
			icon_url         = excluded.icon_url`,
	)
	if err != nil {
		return fmt.Errorf("sqlite: preparing game upsert: %w", err)
	}
	defer stmt.Close()

	for _, g := range games {
		if _, err := stmt.ExecContext(ctx,
			accountID, g.AppID, g.Name, g.PlaytimeMinutes,
			nullTime(g.LastPlayed), g.IconURL,
		); err != nil {
			return fmt.Errorf("sqlite: upserting game %d: %w", g.AppID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing game upsert: %w", err)
	}
	return nil
}

// ListGames returns the account's library, most recently played first.
func (db *DB) ListGames(ctx context.Context, accountID string) ([]model.Game, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT account_id, appid, name, playtime_minutes, last_played, icon_url,
		        achievements_total, achievements_unlocked, last_scraped_at
		 FROM games
		 WHERE account_id = ?
		 ORDER BY last_played DESC, appid`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing games: %w", err)
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating games: %w", err)
	}

	return games, nil
}

// SetGameScanResult records the outcome of one game's achievement scrape.
func (db *DB) SetGameScanResult(ctx context.Context, accountID string, appID int64, total, unlocked int, scrapedAt time.Time) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE games
		 SET achievements_total = ?, achievements_unlocked = ?, last_scraped_at = ?
		 WHERE account_id = ? AND appid = ?`,
		total, unlocked, scrapedAt, accountID, appID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording scan result for game %d: %w", appID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("sqlite: recording scan result: game %d not in library", appID)
	}
	return nil
}

// scanGame reads one games row. last_played and last_scraped_at are NULL
// until first observed; they map to the zero time.
func scanGame(rows *sql.Rows) (model.Game, error) {
	var (
		g          model.Game
		lastPlayed sql.NullTime
		scrapedAt  sql.NullTime
	)
	if err := rows.Scan(
		&g.AccountID, &g.AppID, &g.Name, &g.PlaytimeMinutes, &lastPlayed,
		&g.IconURL, &g.AchievementsTotal, &g.AchievementsUnlocked, &scrapedAt,
	); err != nil {
		return model.Game{}, fmt.Errorf("sqlite: scanning game row: %w", err)
	}
	if lastPlayed.Valid {
		g.LastPlayed = lastPlayed.Time
	}
	if scrapedAt.Valid {
		g.LastScrapedAt = scrapedAt.Time
	}
	return g, nil
}

// nullTime maps the zero time to NULL so "never" doesn't round-trip as an
// epoch date.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
