package model

import "time"

// Game is one owned game in an account's library.
//
// Keyed by (AccountID, AppID). Rows are written by the scan engine when the
// catalog reports the owned-game list, and replaced wholesale by a cloud
// import. AchievementsTotal/AchievementsUnlocked are denormalized counts kept
// in step with the achievements table so list views never need an aggregate
// query.
type Game struct {
	AccountID            string    `json:"accountId"            db:"account_id"`
	AppID                int64     `json:"appid"                db:"appid"`
	Name                 string    `json:"name"                 db:"name"`
	PlaytimeMinutes      int64     `json:"playtimeMinutes"      db:"playtime_minutes"`
	LastPlayed           time.Time `json:"lastPlayed"           db:"last_played"`
	IconURL              string    `json:"iconUrl"              db:"icon_url"`
	AchievementsTotal    int       `json:"achievementsTotal"    db:"achievements_total"`
	AchievementsUnlocked int       `json:"achievementsUnlocked" db:"achievements_unlocked"`
	// LastScrapedAt is zero until the first achievement scrape completes
	// for this game. The scan engine uses it to pick the target set for an
	// incremental run.
	LastScrapedAt time.Time `json:"lastScrapedAt" db:"last_scraped_at"`
}

// Achievement is one achievement of one game for one account.
//
// Keyed by (AccountID, AppID, APIName). The fields split into two groups with
// different ownership:
//
//   - Metadata (Name, Description, IconURL, IconGrayURL) is locally
//     authoritative. It comes from the catalog's schema and is never carried
//     in sync bundles — a cloud import must preserve whatever metadata the
//     local row already has.
//   - Progress (Achieved, UnlockTime) is the unit of truth exchanged with the
//     remote store and is always overwritten by an import.
type Achievement struct {
	AccountID   string `json:"accountId"   db:"account_id"`
	AppID       int64  `json:"appid"       db:"appid"`
	APIName     string `json:"apiname"     db:"apiname"`
	Name        string `json:"name"        db:"name"`
	Description string `json:"description" db:"description"`
	IconURL     string `json:"iconUrl"     db:"icon_url"`
	IconGrayURL string `json:"iconGrayUrl" db:"icon_gray_url"`
	Achieved    bool   `json:"achieved"    db:"achieved"`
	// UnlockTime is seconds since epoch as reported by the catalog;
	// zero when the achievement is locked.
	UnlockTime int64 `json:"unlocktime" db:"unlock_time"`
}
