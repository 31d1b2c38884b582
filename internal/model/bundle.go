package model

import "time"

// AchievementSync is the wire form of achievement progress inside a
// SyncBundle. It deliberately carries no display metadata — metadata is
// large, re-derivable from the catalog on the next scrape, and excluded to
// keep the payload small. The local import preserves existing metadata for
// the same (appid, apiname) key.
type AchievementSync struct {
	AppID      int64  `json:"appid"`
	APIName    string `json:"apiname"`
	Achieved   bool   `json:"achieved"`
	UnlockTime int64  `json:"unlocktime"`
}

// SyncBundle is the unit of exchange between the local store and the remote
// store: one account's full snapshot. Upload always replaces the remote
// state, download always replaces the local state (modulo preserved
// achievement metadata). There is no partial or diff-based form.
type SyncBundle struct {
	AccountID          string                    `json:"account_id"`
	Games              []Game                    `json:"games"`
	Achievements       []AchievementSync         `json:"achievements"`
	RunHistory         []RunHistoryEntry         `json:"run_history"`
	AchievementHistory []AchievementHistoryEntry `json:"achievement_history"`
	ExportedAt         time.Time                 `json:"exported_at"`
}

// SyncStatus is the cheap aggregate view of an account's remote state.
type SyncStatus struct {
	HasData          bool      `json:"has_data"`
	GameCount        int       `json:"game_count"`
	AchievementCount int       `json:"achievement_count"`
	LastSync         time.Time `json:"last_sync"`
}

// GuestLibrary is the read-only view of an account's library served to
// unauthenticated callers who know the profile's short identifier.
type GuestLibrary struct {
	Profile Profile `json:"profile"`
	Games   []Game  `json:"games"`
}
