package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/mhalvorsen/achievo/internal/model"
)

func seedScannedLibrary(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()

	seedGames(t, db,
		model.Game{AppID: 440, Name: "Team Fortress 2", PlaytimeMinutes: 120, IconURL: "tf2.png"},
		model.Game{AppID: 620, Name: "Portal 2", PlaytimeMinutes: 300, IconURL: "p2.png"},
	)
	err := db.UpsertAchievements(ctx, testAccount, 620, []model.Achievement{
		{
			APIName:     "ACH.SURVIVE_CONTAINER_RIDE",
			Name:        "Wake Up Call",
			Description: "Survive the manual override",
			IconURL:     "wake.png",
			IconGrayURL: "wake_gray.png",
			Achieved:    false,
		},
	})
	if err != nil {
		t.Fatalf("UpsertAchievements: %v", err)
	}
	if err := db.SetGameScanResult(ctx, testAccount, 620, 1, 0, time.Now()); err != nil {
		t.Fatalf("SetGameScanResult: %v", err)
	}
}

func TestExportBundle_Shape(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedScannedLibrary(t, db)

	if err := db.AppendRunHistory(ctx, &model.RunHistoryEntry{
		AccountID: testAccount, TotalGames: 2, UnplayedGames: 0,
	}); err != nil {
		t.Fatalf("AppendRunHistory: %v", err)
	}

	bundle, err := db.ExportBundle(ctx, testAccount)
	if err != nil {
		t.Fatalf("ExportBundle: %v", err)
	}

	if bundle.AccountID != testAccount {
		t.Errorf("AccountID = %q", bundle.AccountID)
	}
	if len(bundle.Games) != 2 {
		t.Errorf("len(Games) = %d, want 2", len(bundle.Games))
	}
	if len(bundle.Achievements) != 1 {
		t.Fatalf("len(Achievements) = %d, want 1", len(bundle.Achievements))
	}
	if len(bundle.RunHistory) != 1 {
		t.Errorf("len(RunHistory) = %d, want 1", len(bundle.RunHistory))
	}
	if bundle.ExportedAt.IsZero() {
		t.Error("ExportedAt not set")
	}

	// The wire form carries progress only — metadata must not leak into
	// the bundle (it's model.AchievementSync, which has no metadata
	// fields, so checking the key fields round-trip is sufficient).
	a := bundle.Achievements[0]
	if a.AppID != 620 || a.APIName != "ACH.SURVIVE_CONTAINER_RIDE" {
		t.Errorf("achievement sync entry = %+v", a)
	}
}

// The core merge property: importing a bundle that carries only progress
// must keep locally known metadata intact while taking achieved/unlocktime
// from the bundle exactly.
func TestImportBundle_PreservesLocalMetadata(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedScannedLibrary(t, db)

	bundle := &model.SyncBundle{
		AccountID: testAccount,
		Games: []model.Game{
			{AppID: 620, Name: "Portal 2", PlaytimeMinutes: 350, AchievementsTotal: 1, AchievementsUnlocked: 1},
		},
		Achievements: []model.AchievementSync{
			{AppID: 620, APIName: "ACH.SURVIVE_CONTAINER_RIDE", Achieved: true, UnlockTime: 1700000042},
		},
		ExportedAt: time.Now(),
	}

	if err := db.ImportBundle(ctx, bundle); err != nil {
		t.Fatalf("ImportBundle: %v", err)
	}

	got, err := db.ListAchievements(ctx, testAccount, 620)
	if err != nil {
		t.Fatalf("ListAchievements: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}

	a := got[0]
	// Progress comes from the bundle.
	if !a.Achieved || a.UnlockTime != 1700000042 {
		t.Errorf("progress = achieved=%v unlock=%d, want true/1700000042", a.Achieved, a.UnlockTime)
	}
	// Metadata survives from the pre-import local row.
	if a.Name != "Wake Up Call" || a.Description != "Survive the manual override" {
		t.Errorf("metadata lost on import: name=%q desc=%q", a.Name, a.Description)
	}
	if a.IconURL != "wake.png" || a.IconGrayURL != "wake_gray.png" {
		t.Errorf("icon refs lost on import: %q / %q", a.IconURL, a.IconGrayURL)
	}
}

func TestImportBundle_NoPriorRowDefaultsEmpty(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Remote-only import on a fresh machine: no local metadata exists.
	bundle := &model.SyncBundle{
		AccountID: testAccount,
		Games:     []model.Game{{AppID: 440, Name: "Team Fortress 2"}},
		Achievements: []model.AchievementSync{
			{AppID: 440, APIName: "TF_SCOUT_KILL", Achieved: true, UnlockTime: 1600000000},
		},
		ExportedAt: time.Now(),
	}
	if err := db.ImportBundle(ctx, bundle); err != nil {
		t.Fatalf("ImportBundle: %v", err)
	}

	got, err := db.ListAchievements(ctx, testAccount, 440)
	if err != nil {
		t.Fatalf("ListAchievements: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Name != "" || got[0].Description != "" {
		t.Errorf("metadata should default to empty until the next scrape, got %+v", got[0])
	}
	if !got[0].Achieved {
		t.Error("progress should come from the bundle")
	}
}

func TestImportBundle_ReplacesNotMerges(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedScannedLibrary(t, db)

	// The bundle contains only one of the two local games; the other must
	// be gone after import — full replace, no diffing.
	bundle := &model.SyncBundle{
		AccountID:  testAccount,
		Games:      []model.Game{{AppID: 620, Name: "Portal 2"}},
		ExportedAt: time.Now(),
	}
	if err := db.ImportBundle(ctx, bundle); err != nil {
		t.Fatalf("ImportBundle: %v", err)
	}

	games, err := db.ListGames(ctx, testAccount)
	if err != nil {
		t.Fatalf("ListGames: %v", err)
	}
	if len(games) != 1 || games[0].AppID != 620 {
		t.Errorf("games after import = %+v, want only appid 620", games)
	}
}

func TestImportBundle_AtomicOnFailure(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedScannedLibrary(t, db)

	before, err := db.ListGames(ctx, testAccount)
	if err != nil {
		t.Fatalf("ListGames: %v", err)
	}

	// Duplicate run-history IDs violate the primary key mid-import; the
	// whole transaction must roll back.
	now := time.Now()
	bad := &model.SyncBundle{
		AccountID: testAccount,
		Games:     []model.Game{{AppID: 730, Name: "Counter-Strike 2"}},
		RunHistory: []model.RunHistoryEntry{
			{ID: "dup", AccountID: testAccount, RecordedAt: now, TotalGames: 1},
			{ID: "dup", AccountID: testAccount, RecordedAt: now, TotalGames: 2},
		},
		ExportedAt: now,
	}

	if err := db.ImportBundle(ctx, bad); err == nil {
		t.Fatal("ImportBundle should fail on duplicate history IDs")
	}

	after, err := db.ListGames(ctx, testAccount)
	if err != nil {
		t.Fatalf("ListGames: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("partial import observable: %d games before, %d after", len(before), len(after))
	}
	for i := range after {
		if after[i].AppID != before[i].AppID {
			t.Errorf("game set changed despite failed import")
		}
	}
}

func TestImportThenExport_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	in := &model.SyncBundle{
		AccountID: testAccount,
		Games: []model.Game{
			{AppID: 400, Name: "Portal", PlaytimeMinutes: 60},
			{AppID: 620, Name: "Portal 2", PlaytimeMinutes: 300},
		},
		Achievements: []model.AchievementSync{
			{AppID: 400, APIName: "PORTAL_GET_ALLGLADOS", Achieved: true, UnlockTime: 1500000000},
			{AppID: 620, APIName: "ACH.PARTNER_DROP", Achieved: false},
		},
		AchievementHistory: []model.AchievementHistoryEntry{
			{AccountID: testAccount, RecordedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
				TotalAchievements: 2, UnlockedAchievements: 1, CompletionPct: 50},
		},
		ExportedAt: time.Now(),
	}
	if err := db.ImportBundle(ctx, in); err != nil {
		t.Fatalf("ImportBundle: %v", err)
	}

	out, err := db.ExportBundle(ctx, testAccount)
	if err != nil {
		t.Fatalf("ExportBundle: %v", err)
	}
	if len(out.Games) != 2 || len(out.Achievements) != 2 || len(out.AchievementHistory) != 1 {
		t.Fatalf("round trip lost rows: %d games, %d achievements, %d history",
			len(out.Games), len(out.Achievements), len(out.AchievementHistory))
	}

	var unlocked int
	for _, a := range out.Achievements {
		if a.Achieved {
			unlocked++
		}
	}
	if unlocked != 1 {
		t.Errorf("unlocked after round trip = %d, want 1", unlocked)
	}
}
