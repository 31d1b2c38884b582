package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"

	"github.com/mhalvorsen/achievo/internal/model"
	"github.com/mhalvorsen/achievo/internal/repository"
)

var _ repository.CloudSyncRepository = (*DB)(nil)

// Status is the cheap aggregate read backing the sync status endpoint.
// Plain reads are enough — the upload transaction guarantees a reader never
// sees a half-applied snapshot.
func (db *DB) Status(ctx context.Context, accountID string) (*model.SyncStatus, error) {
	status := &model.SyncStatus{}

	err := db.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM games WHERE account_id = $1),
			(SELECT COUNT(*) FROM achievements WHERE account_id = $1)`,
		accountID,
	).Scan(&status.GameCount, &status.AchievementCount)
	if err != nil {
		return nil, fmt.Errorf("postgres: reading sync status: %w", err)
	}

	var lastSync time.Time
	err = db.pool.QueryRow(ctx,
		`SELECT last_sync FROM sync_state WHERE account_id = $1`,
		accountID,
	).Scan(&lastSync)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// Never synced; zero LastSync and HasData stays false.
	case err != nil:
		return nil, fmt.Errorf("postgres: reading last sync: %w", err)
	default:
		status.LastSync = lastSync
		status.HasData = status.GameCount > 0 || status.AchievementCount > 0
	}

	return status, nil
}

// Download assembles the account's full remote snapshot. Always the whole
// thing — there is no partial download.
func (db *DB) Download(ctx context.Context, accountID string) (*model.SyncBundle, error) {
	bundle := &model.SyncBundle{
		AccountID:  accountID,
		ExportedAt: time.Now(),
	}

	games, err := db.queryGames(ctx,
		`SELECT account_id, appid, name, playtime_minutes, last_played, icon_url,
		        achievements_total, achievements_unlocked, last_scraped_at
		 FROM games WHERE account_id = $1 ORDER BY appid`,
		accountID)
	if err != nil {
		return nil, err
	}
	bundle.Games = games

	achRows, err := db.pool.Query(ctx,
		`SELECT appid, apiname, achieved, unlock_time
		 FROM achievements WHERE account_id = $1 ORDER BY appid, apiname`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: downloading achievements: %w", err)
	}
	defer achRows.Close()
	for achRows.Next() {
		var a model.AchievementSync
		if err := achRows.Scan(&a.AppID, &a.APIName, &a.Achieved, &a.UnlockTime); err != nil {
			return nil, fmt.Errorf("postgres: scanning achievement row: %w", err)
		}
		bundle.Achievements = append(bundle.Achievements, a)
	}
	if err := achRows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating achievements: %w", err)
	}

	runRows, err := db.pool.Query(ctx,
		`SELECT id, account_id, recorded_at, total_games, unplayed_games
		 FROM run_history WHERE account_id = $1 ORDER BY recorded_at`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: downloading run history: %w", err)
	}
	defer runRows.Close()
	for runRows.Next() {
		var e model.RunHistoryEntry
		if err := runRows.Scan(&e.ID, &e.AccountID, &e.RecordedAt, &e.TotalGames, &e.UnplayedGames); err != nil {
			return nil, fmt.Errorf("postgres: scanning run history row: %w", err)
		}
		bundle.RunHistory = append(bundle.RunHistory, e)
	}
	if err := runRows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating run history: %w", err)
	}

	histRows, err := db.pool.Query(ctx,
		`SELECT id, account_id, recorded_at, total_achievements, unlocked_achievements, completion_pct
		 FROM achievement_history WHERE account_id = $1 ORDER BY recorded_at`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: downloading achievement history: %w", err)
	}
	defer histRows.Close()
	for histRows.Next() {
		var e model.AchievementHistoryEntry
		if err := histRows.Scan(
			&e.ID, &e.AccountID, &e.RecordedAt,
			&e.TotalAchievements, &e.UnlockedAchievements, &e.CompletionPct,
		); err != nil {
			return nil, fmt.Errorf("postgres: scanning achievement history row: %w", err)
		}
		bundle.AchievementHistory = append(bundle.AchievementHistory, e)
	}
	if err := histRows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating achievement history: %w", err)
	}

	return bundle, nil
}

// Upload replaces the account's remote state with the bundle. One
// transaction covers the whole replacement: delete the four owned tables,
// bulk-insert games, upsert achievement progress, append history verbatim,
// stamp sync_state. Any failure rolls everything back, so a concurrent
// reader observes either the old snapshot or the new one — never a mixture.
func (db *DB) Upload(ctx context.Context, accountID string, bundle *model.SyncBundle) error {
	err := pgx.BeginTxFunc(ctx, db.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		// The caller's profile exists by the time it can upload (it was
		// upserted during authentication), but guard anyway so a direct
		// API caller gets a clean failure instead of an FK error.
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM profiles WHERE account_id = $1)`, accountID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("checking profile: %w", err)
		}
		if !exists {
			if _, err := tx.Exec(ctx,
				`INSERT INTO profiles (id, account_id) VALUES ($1, $2)`,
				xid.New().String(), accountID,
			); err != nil {
				return fmt.Errorf("creating profile row: %w", err)
			}
		}

		for _, table := range []string{"achievements", "games", "run_history", "achievement_history"} {
			if _, err := tx.Exec(ctx,
				fmt.Sprintf(`DELETE FROM %s WHERE account_id = $1`, table), accountID,
			); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}

		batch := &pgx.Batch{}
		for _, g := range bundle.Games {
			batch.Queue(
				`INSERT INTO games
					(account_id, appid, name, playtime_minutes, last_played, icon_url,
					 achievements_total, achievements_unlocked, last_scraped_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				accountID, g.AppID, g.Name, g.PlaytimeMinutes, timestampOrNil(g.LastPlayed),
				g.IconURL, g.AchievementsTotal, g.AchievementsUnlocked, timestampOrNil(g.LastScrapedAt),
			)
		}
		for _, a := range bundle.Achievements {
			// The table was just cleared, so the conflict arm only fires
			// for duplicate keys inside the bundle itself — overwrite, do
			// not error, so a sloppy client stays idempotent.
			batch.Queue(
				`INSERT INTO achievements (account_id, appid, apiname, achieved, unlock_time)
				 VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (account_id, appid, apiname) DO UPDATE SET
					achieved    = excluded.achieved,
					unlock_time = excluded.unlock_time`,
				accountID, a.AppID, a.APIName, a.Achieved, a.UnlockTime,
			)
		}
		for _, e := range bundle.RunHistory {
			id := e.ID
			if id == "" {
				id = xid.New().String()
			}
			batch.Queue(
				`INSERT INTO run_history (id, account_id, recorded_at, total_games, unplayed_games)
				 VALUES ($1, $2, $3, $4, $5)`,
				id, accountID, e.RecordedAt, e.TotalGames, e.UnplayedGames,
			)
		}
		for _, e := range bundle.AchievementHistory {
			id := e.ID
			if id == "" {
				id = xid.New().String()
			}
			batch.Queue(
				`INSERT INTO achievement_history
					(id, account_id, recorded_at, total_achievements, unlocked_achievements, completion_pct)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				id, accountID, e.RecordedAt, e.TotalAchievements, e.UnlockedAchievements, e.CompletionPct,
			)
		}
		batch.Queue(
			`INSERT INTO sync_state (account_id, last_sync) VALUES ($1, now())
			 ON CONFLICT (account_id) DO UPDATE SET last_sync = now()`,
			accountID,
		)

		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("applying snapshot row %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("postgres: uploading snapshot for %s: %w", accountID, err)
	}
	return nil
}

// DeleteAccountData removes everything the account owns. The children go
// first so the statements stay valid even without the ON DELETE CASCADE
// backstop. Deleting an account that has nothing is a no-op, not an error.
func (db *DB) DeleteAccountData(ctx context.Context, accountID string) error {
	err := pgx.BeginTxFunc(ctx, db.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, table := range []string{
			"achievements", "games", "run_history", "achievement_history", "sync_state",
		} {
			if _, err := tx.Exec(ctx,
				fmt.Sprintf(`DELETE FROM %s WHERE account_id = $1`, table), accountID,
			); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("postgres: deleting data for %s: %w", accountID, err)
	}
	return nil
}

// GamesByAppIDs returns the stored games among the requested ids. Ids the
// account doesn't own are simply absent from the result.
func (db *DB) GamesByAppIDs(ctx context.Context, accountID string, appIDs []int64) ([]model.Game, error) {
	if len(appIDs) == 0 {
		return nil, nil
	}
	return db.queryGames(ctx,
		`SELECT account_id, appid, name, playtime_minutes, last_played, icon_url,
		        achievements_total, achievements_unlocked, last_scraped_at
		 FROM games WHERE account_id = $1 AND appid = ANY($2) ORDER BY appid`,
		accountID, appIDs)
}

// GuestGames lists an account's games for the public guest view.
func (db *DB) GuestGames(ctx context.Context, accountID string) ([]model.Game, error) {
	return db.queryGames(ctx,
		`SELECT account_id, appid, name, playtime_minutes, last_played, icon_url,
		        achievements_total, achievements_unlocked, last_scraped_at
		 FROM games WHERE account_id = $1 ORDER BY name, appid`,
		accountID)
}

func (db *DB) queryGames(ctx context.Context, query string, args ...any) ([]model.Game, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: querying games: %w", err)
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		var (
			g          model.Game
			lastPlayed *time.Time
			scrapedAt  *time.Time
		)
		if err := rows.Scan(
			&g.AccountID, &g.AppID, &g.Name, &g.PlaytimeMinutes, &lastPlayed,
			&g.IconURL, &g.AchievementsTotal, &g.AchievementsUnlocked, &scrapedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scanning game row: %w", err)
		}
		if lastPlayed != nil {
			g.LastPlayed = *lastPlayed
		}
		if scrapedAt != nil {
			g.LastScrapedAt = *scrapedAt
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating games: %w", err)
	}

	return games, nil
}

// timestampOrNil maps the zero time to NULL.
func timestampOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
