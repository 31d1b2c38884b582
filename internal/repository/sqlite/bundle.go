package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/mhalvorsen/achievo/internal/model"
	"github.com/mhalvorsen/achievo/internal/repository"
)

// Stats computes the aggregate counts recorded into history after a scan.
func (db *DB) Stats(ctx context.Context, accountID string) (*repository.LibraryStats, error) {
	stats := &repository.LibraryStats{}

	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(playtime_minutes = 0), 0)
		 FROM games WHERE account_id = ?`,
		accountID,
	).Scan(&stats.TotalGames, &stats.UnplayedGames)
	if err != nil {
		return nil, fmt.Errorf("sqlite: counting games: %w", err)
	}

	err = db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(achieved), 0)
		 FROM achievements WHERE account_id = ?`,
		accountID,
	).Scan(&stats.TotalAchievements, &stats.UnlockedAchievements)
	if err != nil {
		return nil, fmt.Errorf("sqlite: counting achievements: %w", err)
	}

	return stats, nil
}

// ExportBundle assembles the account's full local snapshot for upload.
// Achievement rows are reduced to their progress fields; the wire bundle
// never carries metadata.
func (db *DB) ExportBundle(ctx context.Context, accountID string) (*model.SyncBundle, error) {
	games, err := db.ListGames(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: exporting games: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT appid, apiname, achieved, unlock_time
		 FROM achievements
		 WHERE account_id = ?
		 ORDER BY appid, apiname`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: exporting achievements: %w", err)
	}
	defer rows.Close()

	var achievements []model.AchievementSync
	for rows.Next() {
		var a model.AchievementSync
		if err := rows.Scan(&a.AppID, &a.APIName, &a.Achieved, &a.UnlockTime); err != nil {
			return nil, fmt.Errorf("sqlite: scanning achievement sync row: %w", err)
		}
		achievements = append(achievements, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating achievement sync rows: %w", err)
	}

	runHistory, err := db.ListRunHistory(ctx, accountID)
	if err != nil {
		return nil, err
	}
	achievementHistory, err := db.ListAchievementHistory(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return &model.SyncBundle{
		AccountID:          accountID,
		Games:              games,
		Achievements:       achievements,
		RunHistory:         runHistory,
		AchievementHistory: achievementHistory,
		ExportedAt:         time.Now(),
	}, nil
}

// ImportBundle applies a downloaded snapshot in one transaction.
//
// The account's games, achievements and history are deleted and rebuilt from
// the bundle. Achievement metadata needs care: bundles carry only progress,
// so before deleting we capture the existing metadata per (appid, apiname)
// and stitch it back onto the imported rows. A row with no local predecessor
// gets empty metadata — it stays blank until the next scrape re-derives it
// from the catalog.
//
// Any failure rolls back the whole import; the store is never left holding a
// half-applied snapshot.
func (db *DB) ImportBundle(ctx context.Context, bundle *model.SyncBundle) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning import: %w", err)
	}
	defer tx.Rollback()

	accountID := bundle.AccountID

	// Capture local-only achievement metadata before the delete.
	type meta struct {
		name, description, iconURL, iconGrayURL string
	}
	type achKey struct {
		appID   int64
		apiName string
	}
	existing := make(map[achKey]meta)

	metaRows, err := tx.QueryContext(ctx,
		`SELECT appid, apiname, name, description, icon_url, icon_gray_url
		 FROM achievements WHERE account_id = ?`,
		accountID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: reading achievement metadata: %w", err)
	}
	for metaRows.Next() {
		var (
			k achKey
			m meta
		)
		if err := metaRows.Scan(&k.appID, &k.apiName, &m.name, &m.description, &m.iconURL, &m.iconGrayURL); err != nil {
			metaRows.Close()
			return fmt.Errorf("sqlite: scanning achievement metadata: %w", err)
		}
		existing[k] = m
	}
	if err := metaRows.Err(); err != nil {
		metaRows.Close()
		return fmt.Errorf("sqlite: iterating achievement metadata: %w", err)
	}
	metaRows.Close()

	// Full replace: clear everything the account owns.
	for _, table := range []string{"achievements", "games", "run_history", "achievement_history"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE account_id = ?`, table), accountID,
		); err != nil {
			return fmt.Errorf("sqlite: clearing %s: %w", table, err)
		}
	}

	gameStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO games
			(account_id, appid, name, playtime_minutes, last_played, icon_url,
			 achievements_total, achievements_unlocked, last_scraped_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("sqlite: preparing game insert: %w", err)
	}
	defer gameStmt.Close()

	for _, g := range bundle.Games {
		if _, err := gameStmt.ExecContext(ctx,
			accountID, g.AppID, g.Name, g.PlaytimeMinutes, nullTime(g.LastPlayed),
			g.IconURL, g.AchievementsTotal, g.AchievementsUnlocked, nullTime(g.LastScrapedAt),
		); err != nil {
			return fmt.Errorf("sqlite: importing game %d: %w", g.AppID, err)
		}
	}

	achStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO achievements
			(account_id, appid, apiname, name, description, icon_url, icon_gray_url, achieved, unlock_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("sqlite: preparing achievement insert: %w", err)
	}
	defer achStmt.Close()

	for _, a := range bundle.Achievements {
		m := existing[achKey{appID: a.AppID, apiName: a.APIName}]
		if _, err := achStmt.ExecContext(ctx,
			accountID, a.AppID, a.APIName,
			m.name, m.description, m.iconURL, m.iconGrayURL,
			a.Achieved, a.UnlockTime,
		); err != nil {
			return fmt.Errorf("sqlite: importing achievement %s/%d: %w", a.APIName, a.AppID, err)
		}
	}

	// History rows are immutable snapshots; insert them verbatim, minting
	// IDs only for rows that arrived without one.
	for _, e := range bundle.RunHistory {
		id := e.ID
		if id == "" {
			id = xid.New().String()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_history (id, account_id, recorded_at, total_games, unplayed_games)
			 VALUES (?, ?, ?, ?, ?)`,
			id, accountID, e.RecordedAt, e.TotalGames, e.UnplayedGames,
		); err != nil {
			return fmt.Errorf("sqlite: importing run history: %w", err)
		}
	}
	for _, e := range bundle.AchievementHistory {
		id := e.ID
		if id == "" {
			id = xid.New().String()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO achievement_history
				(id, account_id, recorded_at, total_achievements, unlocked_achievements, completion_pct)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, accountID, e.RecordedAt, e.TotalAchievements, e.UnlockedAchievements, e.CompletionPct,
		); err != nil {
			return fmt.Errorf("sqlite: importing achievement history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing import: %w", err)
	}
	return nil
}
