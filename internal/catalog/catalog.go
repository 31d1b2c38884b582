// Package catalog defines the contract with the external game catalog API.
//
// The HTTP client that actually talks to the catalog lives outside this core
// — here we only fix the interface the scan engine consumes and the record
// shapes it produces. Implementations are expected to wrap transport and
// rate-limit failures in apperror.ErrUpstream so the engine's partial-failure
// handling can treat all of them uniformly.
package catalog

import (
	"context"
	"time"
)

// RecentWindow is the provider-defined window behind "recently played":
// games with playtime in roughly the last two weeks.
const RecentWindow = 14 * 24 * time.Hour

// OwnedGame is one entry of the owned-game list.
type OwnedGame struct {
	AppID           int64
	Name            string
	PlaytimeMinutes int64
	LastPlayed      time.Time
	IconURL         string
}

// SchemaAchievement is one achievement definition from a game's schema. The
// schema defines the universe of achievement API names for the game.
type SchemaAchievement struct {
	APIName     string
	Name        string
	Description string
	IconURL     string
	IconGrayURL string
}

// PlayerAchievement is one entry of a player's progress for a game. An
// achievement present in the schema but absent here is simply not achieved.
type PlayerAchievement struct {
	APIName    string
	Achieved   bool
	UnlockTime int64 // seconds since epoch, zero when locked
}

// Client fetches library and achievement data for the account the client was
// built for. All calls honor ctx cancellation and must not block past a
// network-level timeout.
type Client interface {
	// OwnedGames returns the full owned-game list.
	OwnedGames(ctx context.Context) ([]OwnedGame, error)

	// RecentlyPlayed returns only games played within RecentWindow.
	RecentlyPlayed(ctx context.Context) ([]OwnedGame, error)

	// AchievementSchema returns the achievement definitions for one game.
	// Games without achievements return an empty slice, not an error.
	AchievementSchema(ctx context.Context, appID int64) ([]SchemaAchievement, error)

	// PlayerAchievements returns the player's progress for one game.
	PlayerAchievements(ctx context.Context, appID int64) ([]PlayerAchievement, error)
}
