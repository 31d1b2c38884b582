package sqlite

import (
	"context"
	"fmt"

	"github.com/mhalvorsen/achievo/internal/model"
)

// UpsertAchievements replaces the stored achievements for one game. The scan
// path is authoritative for both metadata and progress, so everything is
// overwritten. (Only ImportBundle treats metadata specially.)
func (db *DB) UpsertAchievements(ctx context.Context, accountID string, appID int64, achievements []model.Achievement) error {
	if len(achievements) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning achievement upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO achievements
			(account_id, appid, apiname, name, description, icon_url, icon_gray_url, achieved, unlock_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (account_id, appid, apiname) DO UPDATE SET
			name          = excluded.name,
			description   = excluded.description,
			icon_url      = excluded.icon_url,
			icon_gray_url = excluded.icon_gray_url,
			achieved      = excluded.achieved,
			unlock_time   = excluded.unlock_time`,
	)
	if err != nil {
		return fmt.Errorf("sqlite: preparing achievement upsert: %w", err)
	}
	defer stmt.Close()

	for _, a := range achievements {
		if _, err := stmt.ExecContext(ctx,
			accountID, appID, a.APIName, a.Name, a.Description,
			a.IconURL, a.IconGrayURL, a.Achieved, a.UnlockTime,
		); err != nil {
			return fmt.Errorf("sqlite: upserting achievement %s/%d: %w", a.APIName, appID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing achievement upsert: %w", err)
	}
	return nil
}

// ListAchievements returns one game's achievements, unlocked first and then
// by API name so the ordering is stable across scans.
func (db *DB) ListAchievements(ctx context.Context, accountID string, appID int64) ([]model.Achievement, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT account_id, appid, apiname, name, description, icon_url, icon_gray_url, achieved, unlock_time
		 FROM achievements
		 WHERE account_id = ? AND appid = ?
		 ORDER BY achieved DESC, apiname`,
		accountID, appID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing achievements for game %d: %w", appID, err)
	}
	defer rows.Close()

	var achievements []model.Achievement
	for rows.Next() {
		var a model.Achievement
		if err := rows.Scan(
			&a.AccountID, &a.AppID, &a.APIName, &a.Name, &a.Description,
			&a.IconURL, &a.IconGrayURL, &a.Achieved, &a.UnlockTime,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning achievement row: %w", err)
		}
		achievements = append(achievements, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating achievements: %w", err)
	}

	return achievements, nil
}
