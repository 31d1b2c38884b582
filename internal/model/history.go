package model

import "time"

// RunHistoryEntry is an append-only snapshot of library-level counts,
// recorded when a scan completes. Entries are never mutated after insertion;
// trend charts read them ordered by RecordedAt.
type RunHistoryEntry struct {
	ID            string    `json:"id"            db:"id"`
	AccountID     string    `json:"accountId"     db:"account_id"`
	RecordedAt    time.Time `json:"recordedAt"    db:"recorded_at"`
	TotalGames    int       `json:"totalGames"    db:"total_games"`
	UnplayedGames int       `json:"unplayedGames" db:"unplayed_games"`
}

// AchievementHistoryEntry is the achievement-level companion to
// RunHistoryEntry: aggregate achievement counts plus the completion
// percentage at the time of the snapshot.
type AchievementHistoryEntry struct {
	ID                   string    `json:"id"                   db:"id"`
	AccountID            string    `json:"accountId"            db:"account_id"`
	RecordedAt           time.Time `json:"recordedAt"           db:"recorded_at"`
	TotalAchievements    int       `json:"totalAchievements"    db:"total_achievements"`
	UnlockedAchievements int       `json:"unlockedAchievements" db:"unlocked_achievements"`
	CompletionPct        float64   `json:"completionPct"        db:"completion_pct"`
}
