package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/mhalvorsen/achievo/internal/model"
)

// AppendRunHistory inserts one immutable run snapshot. The entry's ID and
// RecordedAt are filled in here if the caller left them empty.
func (db *DB) AppendRunHistory(ctx context.Context, entry *model.RunHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = xid.New().String()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO run_history (id, account_id, recorded_at, total_games, unplayed_games)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.AccountID, entry.RecordedAt, entry.TotalGames, entry.UnplayedGames,
	)
	if err != nil {
		return fmt.Errorf("sqlite: appending run history: %w", err)
	}
	return nil
}

// AppendAchievementHistory inserts one immutable achievement snapshot.
func (db *DB) AppendAchievementHistory(ctx context.Context, entry *model.AchievementHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = xid.New().String()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO achievement_history
			(id, account_id, recorded_at, total_achievements, unlocked_achievements, completion_pct)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.AccountID, entry.RecordedAt,
		entry.TotalAchievements, entry.UnlockedAchievements, entry.CompletionPct,
	)
	if err != nil {
		return fmt.Errorf("sqlite: appending achievement history: %w", err)
	}
	return nil
}

// ListRunHistory returns the account's run snapshots, oldest first — the
// order trend charts consume them in.
func (db *DB) ListRunHistory(ctx context.Context, accountID string) ([]model.RunHistoryEntry, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, account_id, recorded_at, total_games, unplayed_games
		 FROM run_history
		 WHERE account_id = ?
		 ORDER BY recorded_at`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing run history: %w", err)
	}
	defer rows.Close()

	var entries []model.RunHistoryEntry
	for rows.Next() {
		var e model.RunHistoryEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.RecordedAt, &e.TotalGames, &e.UnplayedGames); err != nil {
			return nil, fmt.Errorf("sqlite: scanning run history row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating run history: %w", err)
	}

	return entries, nil
}

// ListAchievementHistory returns the account's achievement snapshots, oldest
// first.
func (db *DB) ListAchievementHistory(ctx context.Context, accountID string) ([]model.AchievementHistoryEntry, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, account_id, recorded_at, total_achievements, unlocked_achievements, completion_pct
		 FROM achievement_history
		 WHERE account_id = ?
		 ORDER BY recorded_at`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing achievement history: %w", err)
	}
	defer rows.Close()

	var entries []model.AchievementHistoryEntry
	for rows.Next() {
		var e model.AchievementHistoryEntry
		if err := rows.Scan(
			&e.ID, &e.AccountID, &e.RecordedAt,
			&e.TotalAchievements, &e.UnlockedAchievements, &e.CompletionPct,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning achievement history row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating achievement history: %w", err)
	}

	return entries, nil
}

// LatestRunTime returns when the last completed scan recorded its snapshot,
// or the zero time for an account that has never finished a scan.
func (db *DB) LatestRunTime(ctx context.Context, accountID string) (time.Time, error) {
	var recorded sql.NullTime
	err := db.conn.QueryRowContext(ctx,
		`SELECT MAX(recorded_at) FROM run_history WHERE account_id = ?`,
		accountID,
	).Scan(&recorded)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: reading latest run time: %w", err)
	}
	if !recorded.Valid {
		return time.Time{}, nil
	}
	return recorded.Time, nil
}
