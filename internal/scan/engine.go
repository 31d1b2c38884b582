package scan

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mhalvorsen/achievo/internal/apperror"
	"github.com/mhalvorsen/achievo/internal/catalog"
	"github.com/mhalvorsen/achievo/internal/model"
	"github.com/mhalvorsen/achievo/internal/repository"
)

const (
	// defaultWorkers bounds concurrent per-game catalog calls. The catalog
	// enforces its own rate limit upstream, so this stays small — light
	// pipelining, not fan-out.
	defaultWorkers = 3

	// abortThreshold: if this many games fail consecutively before any
	// succeeds, the outage is systemic and the scan aborts instead of
	// grinding through the rest of the library.
	abortThreshold = 5

	// eventBuffer sizes the per-session event channel. Large enough that a
	// briefly stalled consumer doesn't pause the scrape loop.
	eventBuffer = 256
)

// Options selects the scan variant.
type Options struct {
	// Force scrapes every game, not just those lacking a recent scrape.
	Force bool
	// Recent runs the lightweight update flow: only recently played games
	// are refreshed and scraped.
	Recent bool
	// AppID, when non-zero, refreshes a single game already in the library
	// and ignores Force/Recent.
	AppID int64
}

// Engine runs scan sessions. One session per account at a time; a second
// Start while one is running is rejected, not queued.
type Engine struct {
	catalog catalog.Client
	store   repository.LocalStore
	logger  *slog.Logger
	workers int

	mu     sync.Mutex
	active map[string]context.CancelFunc // accountID → cancel for the running session
}

// New creates an Engine using the given catalog client and local store.
func New(catalogClient catalog.Client, store repository.LocalStore, logger *slog.Logger) *Engine {
	return &Engine{
		catalog: catalogClient,
		store:   store,
		logger:  logger,
		workers: defaultWorkers,
		active:  make(map[string]context.CancelFunc),
	}
}

// Start launches a scan session for the account and returns its event
// stream. The channel is closed after the terminal event. Returns
// apperror.ErrConflict when a session is already running for the account.
func (e *Engine) Start(ctx context.Context, accountID string, opts Options) (<-chan ProgressEvent, error) {
	if accountID == "" {
		return nil, apperror.ValidationFailed("accountId", "account is required")
	}

	e.mu.Lock()
	if _, running := e.active[accountID]; running {
		e.mu.Unlock()
		return nil, apperror.Conflict("scan session", accountID)
	}
	scanCtx, cancel := context.WithCancel(ctx)
	e.active[accountID] = cancel
	e.mu.Unlock()

	session := &session{
		id:        uuid.NewString(),
		accountID: accountID,
		opts:      opts,
		events:    make(chan ProgressEvent, eventBuffer),
	}

	e.logger.Info("scan session starting",
		slog.String("sessionID", session.id),
		slog.String("accountID", accountID),
		slog.Bool("force", opts.Force),
		slog.Bool("recent", opts.Recent),
	)

	go func() {
		defer func() {
			cancel()
			e.mu.Lock()
			delete(e.active, accountID)
			e.mu.Unlock()
			close(session.events)
		}()
		e.run(scanCtx, session)
	}()

	return session.events, nil
}

// Cancel requests cooperative cancellation of the account's running session.
// Returns false when no session is running. The session finishes its
// in-flight per-game call and then ends with PhaseCancelled.
func (e *Engine) Cancel(accountID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cancel, running := e.active[accountID]
	if running {
		cancel()
	}
	return running
}

// Running reports whether the account has an active session.
func (e *Engine) Running(accountID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, running := e.active[accountID]
	return running
}

// session is the transient state of one scan. It exists only for the
// duration of the run and is discarded with the goroutine.
type session struct {
	id        string
	accountID string
	opts      Options
	events    chan ProgressEvent

	mu      sync.Mutex
	current int
	errs    []string
	scraped int
	failed  int
}

func (s *session) emit(ev ProgressEvent) {
	ev.SessionID = s.id
	s.events <- ev
}

// run walks the session through its phases. All terminal handling funnels
// through here so exactly one terminal event is emitted per session.
func (e *Engine) run(ctx context.Context, s *session) {
	s.emit(ProgressEvent{Phase: PhaseStarting})

	targets, err := e.collectTargets(ctx, s)
	if err != nil {
		e.finish(ctx, s, err)
		return
	}

	if err := e.scrapeAll(ctx, s, targets); err != nil {
		e.finish(ctx, s, err)
		return
	}

	e.finish(ctx, s, nil)
}

// collectTargets runs the game-list phase for the session's variant and
// returns the games whose achievements will be scraped.
func (e *Engine) collectTargets(ctx context.Context, s *session) ([]model.Game, error) {
	switch {
	case s.opts.AppID != 0:
		// Single-game refresh: no catalog list call, the game must
		// already be in the library.
		games, err := e.store.ListGames(ctx, s.accountID)
		if err != nil {
			return nil, err
		}
		for _, g := range games {
			if g.AppID == s.opts.AppID {
				return []model.Game{g}, nil
			}
		}
		return nil, apperror.NotFound("game", fmt.Sprintf("%d", s.opts.AppID))

	case s.opts.Recent:
		degraded, err := e.updateIsStale(ctx, s.accountID)
		if err != nil {
			return nil, err
		}
		s.emit(ProgressEvent{Phase: PhaseFetchingRecentlyPlayed, Degraded: degraded})

		recent, err := e.catalog.RecentlyPlayed(ctx)
		if err != nil {
			return nil, apperror.Upstream("RecentlyPlayed", err)
		}
		games := ownedToModel(recent)
		if err := e.store.UpsertGames(ctx, s.accountID, games); err != nil {
			return nil, err
		}
		return games, nil

	default:
		s.emit(ProgressEvent{Phase: PhaseFetchingGames})

		owned, err := e.catalog.OwnedGames(ctx)
		if err != nil {
			return nil, apperror.Upstream("OwnedGames", err)
		}
		games := ownedToModel(owned)
		if err := e.store.UpsertGames(ctx, s.accountID, games); err != nil {
			return nil, err
		}

		if s.opts.Force {
			return games, nil
		}
		// Incremental run: only games whose last scrape is older than
		// the recent window (or that were never scraped). The upsert
		// above doesn't touch last_scraped_at, so read it back.
		stored, err := e.store.ListGames(ctx, s.accountID)
		if err != nil {
			return nil, err
		}
		cutoff := time.Now().Add(-catalog.RecentWindow)
		var targets []model.Game
		for _, g := range stored {
			if g.LastScrapedAt.IsZero() || g.LastScrapedAt.Before(cutoff) {
				targets = append(targets, g)
			}
		}
		return targets, nil
	}
}

// updateIsStale reports whether the lightweight update path is degraded:
// the last completed scan predates the recent window, so a recent-only
// refresh may be missing games.
func (e *Engine) updateIsStale(ctx context.Context, accountID string) (bool, error) {
	last, err := e.store.LatestRunTime(ctx, accountID)
	if err != nil {
		return false, err
	}
	if last.IsZero() {
		return true, nil
	}
	return time.Since(last) > catalog.RecentWindow, nil
}

// scrapeAll iterates the target set with a bounded worker pool. Completion
// events are serialized under the session mutex so Current increases
// strictly from 1 to len(targets) with no duplicates or gaps.
func (e *Engine) scrapeAll(ctx context.Context, s *session, targets []model.Game) error {
	total := len(targets)
	if total == 0 {
		return nil
	}

	var (
		noSuccessYet = true
		initialFails = 0
		failMu       sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, game := range targets {
		// Cooperative cancellation between per-game iterations; an
		// in-flight call is never interrupted mid-request.
		if err := gctx.Err(); err != nil {
			break
		}

		g.Go(func() error {
			err := e.scrapeGame(gctx, s.accountID, game)

			// Count and emit under one lock so Current leaves the
			// session in strict completion order.
			s.mu.Lock()
			s.current++
			if err != nil {
				s.failed++
				s.errs = append(s.errs, fmt.Sprintf("%s (%d): %v", game.Name, game.AppID, err))
			} else {
				s.scraped++
			}
			s.emit(ProgressEvent{
				Phase:   PhaseScrapingAchievements,
				Current: s.current,
				Total:   total,
				Label:   game.Name,
			})
			s.mu.Unlock()

			failMu.Lock()
			if err != nil {
				if noSuccessYet {
					initialFails++
					if initialFails >= abortThreshold {
						failMu.Unlock()
						return apperror.Upstream("achievement scrape",
							fmt.Errorf("%d consecutive failures before any success", initialFails))
					}
				}
			} else {
				noSuccessYet = false
			}
			failMu.Unlock()

			if err != nil {
				e.logger.Warn("game scrape failed",
					slog.String("sessionID", s.id),
					slog.Int64("appid", game.AppID),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}

	return g.Wait()
}

// scrapeGame fetches and merges one game's achievement schema and player
// progress, then persists the merged rows and the denormalized counts.
//
// The schema defines the universe of achievement API names; player progress
// overlays achieved/unlock time. An achievement in the schema but absent
// from player progress is stored as not achieved.
func (e *Engine) scrapeGame(ctx context.Context, accountID string, game model.Game) error {
	schema, err := e.catalog.AchievementSchema(ctx, game.AppID)
	if err != nil {
		return apperror.Upstream("AchievementSchema", err)
	}

	if len(schema) == 0 {
		// Game has no achievements; record the scrape so incremental
		// runs skip it.
		return e.store.SetGameScanResult(ctx, accountID, game.AppID, 0, 0, time.Now())
	}

	player, err := e.catalog.PlayerAchievements(ctx, game.AppID)
	if err != nil {
		return apperror.Upstream("PlayerAchievements", err)
	}

	progress := make(map[string]catalog.PlayerAchievement, len(player))
	for _, p := range player {
		progress[p.APIName] = p
	}

	achievements := make([]model.Achievement, 0, len(schema))
	unlocked := 0
	for _, def := range schema {
		a := model.Achievement{
			AccountID:   accountID,
			AppID:       game.AppID,
			APIName:     def.APIName,
			Name:        def.Name,
			Description: def.Description,
			IconURL:     def.IconURL,
			IconGrayURL: def.IconGrayURL,
		}
		if p, ok := progress[def.APIName]; ok {
			a.Achieved = p.Achieved
			a.UnlockTime = p.UnlockTime
		}
		if a.Achieved {
			unlocked++
		}
		achievements = append(achievements, a)
	}

	if err := e.store.UpsertAchievements(ctx, accountID, game.AppID, achievements); err != nil {
		return err
	}
	return e.store.SetGameScanResult(ctx, accountID, game.AppID, len(schema), unlocked, time.Now())
}

// finish emits the session's single terminal event. A cancelled context
// wins over any error it caused; a completed scan records its history
// snapshot before reporting done.
func (e *Engine) finish(ctx context.Context, s *session, runErr error) {
	if ctx.Err() != nil {
		e.logger.Info("scan session cancelled", slog.String("sessionID", s.id))
		s.emit(ProgressEvent{Phase: PhaseCancelled})
		return
	}

	if runErr != nil {
		e.logger.Error("scan session failed",
			slog.String("sessionID", s.id),
			slog.String("error", runErr.Error()),
		)
		s.emit(ProgressEvent{Phase: PhaseError, Message: runErr.Error()})
		return
	}

	summary, err := e.recordHistory(ctx, s)
	if err != nil {
		e.logger.Error("recording scan history failed",
			slog.String("sessionID", s.id),
			slog.String("error", err.Error()),
		)
		s.emit(ProgressEvent{Phase: PhaseError, Message: err.Error()})
		return
	}

	e.logger.Info("scan session complete",
		slog.String("sessionID", s.id),
		slog.Int("scraped", s.scraped),
		slog.Int("failed", s.failed),
	)
	s.emit(ProgressEvent{Phase: PhaseDone, Summary: summary, Errors: s.errs})
}

// recordHistory appends the post-scan aggregate snapshots that trend charts
// are built from, and returns them as the session summary.
func (e *Engine) recordHistory(ctx context.Context, s *session) (*Summary, error) {
	stats, err := e.store.Stats(ctx, s.accountID)
	if err != nil {
		return nil, err
	}

	completion := 0.0
	if stats.TotalAchievements > 0 {
		completion = 100 * float64(stats.UnlockedAchievements) / float64(stats.TotalAchievements)
	}

	now := time.Now()
	if err := e.store.AppendRunHistory(ctx, &model.RunHistoryEntry{
		AccountID:     s.accountID,
		RecordedAt:    now,
		TotalGames:    stats.TotalGames,
		UnplayedGames: stats.UnplayedGames,
	}); err != nil {
		return nil, err
	}
	if err := e.store.AppendAchievementHistory(ctx, &model.AchievementHistoryEntry{
		AccountID:            s.accountID,
		RecordedAt:           now,
		TotalAchievements:    stats.TotalAchievements,
		UnlockedAchievements: stats.UnlockedAchievements,
		CompletionPct:        completion,
	}); err != nil {
		return nil, err
	}

	return &Summary{
		TotalGames:           stats.TotalGames,
		UnplayedGames:        stats.UnplayedGames,
		TotalAchievements:    stats.TotalAchievements,
		UnlockedAchievements: stats.UnlockedAchievements,
		CompletionPct:        completion,
		ScrapedGames:         s.scraped,
		FailedGames:          s.failed,
	}, nil
}

func ownedToModel(owned []catalog.OwnedGame) []model.Game {
	games := make([]model.Game, 0, len(owned))
	for _, o := range owned {
		games = append(games, model.Game{
			AppID:           o.AppID,
			Name:            o.Name,
			PlaytimeMinutes: o.PlaytimeMinutes,
			LastPlayed:      o.LastPlayed,
			IconURL:         o.IconURL,
		})
	}
	return games
}
