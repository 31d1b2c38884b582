// Package scan drives achievement scrapes through their ordered phases and
// reports progress as a stream of events.
//
// A scan is a one-shot session: it starts, walks forward through its phases,
// and ends in exactly one terminal event (done, error, or cancelled). There
// are no back-transitions. The engine runs in the daemon process and talks
// to the catalog through the catalog.Client interface, so it is independent
// of any transport — the WebSocket layer just forwards the event stream.
package scan

import "github.com/mhalvorsen/achievo/internal/model"

// Phase is one state of the scan state machine.
type Phase string

const (
	// PhaseStarting marks the session as active; no side effects yet.
	PhaseStarting Phase = "starting"

	// PhaseFetchingGames pulls the full owned-game list from the catalog.
	PhaseFetchingGames Phase = "fetching_games"

	// PhaseFetchingRecentlyPlayed is the lightweight update variant:
	// only games played within the provider's recent window.
	PhaseFetchingRecentlyPlayed Phase = "fetching_recently_played"

	// PhaseScrapingAchievements iterates the target game set. One event
	// per game, Current strictly increasing from 1 to Total.
	PhaseScrapingAchievements Phase = "scraping_achievements"

	// Terminal phases. Exactly one of these ends every session.
	PhaseDone      Phase = "done"
	PhaseError     Phase = "error"
	PhaseCancelled Phase = "cancelled"
)

// Terminal reports whether p ends a session.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseError || p == PhaseCancelled
}

// Summary carries the final aggregate counts emitted with PhaseDone.
type Summary struct {
	TotalGames           int     `json:"totalGames"`
	UnplayedGames        int     `json:"unplayedGames"`
	TotalAchievements    int     `json:"totalAchievements"`
	UnlockedAchievements int     `json:"unlockedAchievements"`
	CompletionPct        float64 `json:"completionPct"`
	ScrapedGames         int     `json:"scrapedGames"`
	FailedGames          int     `json:"failedGames"`
}

// ProgressEvent is one update from a running session.
//
// During PhaseScrapingAchievements, Current/Total/Label describe the game
// just finished. Degraded is set on the recently-played phase when the last
// completed scan is older than the recent window — the update path may be
// missing games, and the caller should prefer a full scan. Message is only
// set on PhaseError; Summary and Errors only on PhaseDone.
type ProgressEvent struct {
	SessionID string   `json:"sessionId"`
	Phase     Phase    `json:"phase"`
	Current   int      `json:"current,omitempty"`
	Total     int      `json:"total,omitempty"`
	Label     string   `json:"label,omitempty"`
	Degraded  bool     `json:"degraded,omitempty"`
	Message   string   `json:"message,omitempty"`
	Summary   *Summary `json:"summary,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// Result is what a completed scan hands back to the transport for the
// completion message: the summary plus the refreshed game list.
type Result struct {
	Summary Summary      `json:"summary"`
	Games   []model.Game `json:"games"`
}
