// Package repository declares the persistence interfaces implemented by the
// concrete stores (sqlite for the local cache, postgres for the canonical
// remote store). Services and the scan engine depend on these interfaces,
// never on a concrete store.
package repository

import (
	"context"
	"time"

	"github.com/mhalvorsen/achievo/internal/model"
)

// GameRepository covers the owned-game rows of one account.
type GameRepository interface {
	// UpsertGames inserts new games and refreshes name, playtime,
	// last-played and icon for existing ones. Achievement counts and the
	// scrape timestamp are not touched — those belong to the scrape path.
	UpsertGames(ctx context.Context, accountID string, games []model.Game) error

	ListGames(ctx context.Context, accountID string) ([]model.Game, error)

	// SetGameScanResult records the outcome of one game's achievement
	// scrape: the denormalized counts and the scrape timestamp.
	SetGameScanResult(ctx context.Context, accountID string, appID int64, total, unlocked int, scrapedAt time.Time) error
}

// AchievementRepository covers the per-game achievement rows of one account.
type AchievementRepository interface {
	// UpsertAchievements replaces metadata and progress for the given
	// game's achievements. The scan path is authoritative for both field
	// groups; only the cloud-import path preserves metadata.
	UpsertAchievements(ctx context.Context, accountID string, appID int64, achievements []model.Achievement) error

	ListAchievements(ctx context.Context, accountID string, appID int64) ([]model.Achievement, error)
}

// HistoryRepository covers the append-only trend snapshots.
type HistoryRepository interface {
	AppendRunHistory(ctx context.Context, entry *model.RunHistoryEntry) error
	AppendAchievementHistory(ctx context.Context, entry *model.AchievementHistoryEntry) error
	ListRunHistory(ctx context.Context, accountID string) ([]model.RunHistoryEntry, error)
	ListAchievementHistory(ctx context.Context, accountID string) ([]model.AchievementHistoryEntry, error)

	// LatestRunTime returns when the last completed scan was recorded, or
	// the zero time when the account has never finished a scan.
	LatestRunTime(ctx context.Context, accountID string) (time.Time, error)
}

// LibraryStats are the aggregate counts recorded into history after a scan.
type LibraryStats struct {
	TotalGames           int
	UnplayedGames        int
	TotalAchievements    int
	UnlockedAchievements int
}

// BundleRepository exchanges full snapshots with the local store.
type BundleRepository interface {
	// Stats computes the current aggregates for the account.
	Stats(ctx context.Context, accountID string) (*LibraryStats, error)

	// ExportBundle assembles the account's full local snapshot.
	ExportBundle(ctx context.Context, accountID string) (*model.SyncBundle, error)

	// ImportBundle applies a remote snapshot in one transaction, replacing
	// games, achievement progress and history while preserving locally
	// known achievement metadata.
	ImportBundle(ctx context.Context, bundle *model.SyncBundle) error
}

// LocalStore is everything the daemon needs from the embedded store.
type LocalStore interface {
	GameRepository
	AchievementRepository
	HistoryRepository
	BundleRepository
}

// ProfileRepository covers account profiles and their public handles on the
// remote store.
type ProfileRepository interface {
	// UpsertProfile creates the profile on first authentication and
	// refreshes display name and avatar on every later one. The short
	// identifier is never changed by an upsert.
	UpsertProfile(ctx context.Context, profile *model.Profile) error

	GetProfile(ctx context.Context, accountID string) (*model.Profile, error)
	GetProfileByShortID(ctx context.Context, shortID string) (*model.Profile, error)
	ShortIDTaken(ctx context.Context, shortID string) (bool, error)
	SetShortID(ctx context.Context, accountID, shortID string) error
}

// CloudSyncRepository is the canonical remote store's snapshot surface.
type CloudSyncRepository interface {
	Status(ctx context.Context, accountID string) (*model.SyncStatus, error)
	Download(ctx context.Context, accountID string) (*model.SyncBundle, error)

	// Upload replaces the account's remote state with the bundle inside a
	// single transaction; a concurrent reader sees either the old state or
	// the new one, never a mixture.
	Upload(ctx context.Context, accountID string, bundle *model.SyncBundle) error

	// DeleteAccountData removes all owned rows; deleting an absent account
	// succeeds.
	DeleteAccountData(ctx context.Context, accountID string) error

	// GamesByAppIDs returns the stored games among the requested ids.
	GamesByAppIDs(ctx context.Context, accountID string, appIDs []int64) ([]model.Game, error)

	// GuestGames lists an account's games for the public guest view.
	GuestGames(ctx context.Context, accountID string) ([]model.Game, error)
}
