package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhalvorsen/achievo/internal/apperror"
	"github.com/mhalvorsen/achievo/internal/auth"
	"github.com/mhalvorsen/achievo/internal/model"
	"github.com/mhalvorsen/achievo/internal/service"
	"github.com/mhalvorsen/achievo/internal/shortid"
)

const testSecret = "test-secret-test-secret-32-bytes"

// memProfiles backs both the profile repository and the short-id store.
type memProfiles struct {
	byAccount map[string]*model.Profile
}

func (m *memProfiles) UpsertProfile(ctx context.Context, p *model.Profile) error {
	if existing, ok := m.byAccount[p.AccountID]; ok {
		existing.DisplayName = p.DisplayName
		existing.AvatarURL = p.AvatarURL
		return nil
	}
	cp := *p
	m.byAccount[p.AccountID] = &cp
	return nil
}

func (m *memProfiles) GetProfile(ctx context.Context, accountID string) (*model.Profile, error) {
	p, ok := m.byAccount[accountID]
	if !ok {
		return nil, apperror.NotFound("profile", accountID)
	}
	cp := *p
	return &cp, nil
}

func (m *memProfiles) GetProfileByShortID(ctx context.Context, shortID string) (*model.Profile, error) {
	for _, p := range m.byAccount {
		if p.ShortID == shortID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("profile", shortID)
}

func (m *memProfiles) ShortIDTaken(ctx context.Context, shortID string) (bool, error) {
	for _, p := range m.byAccount {
		if p.ShortID == shortID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memProfiles) SetShortID(ctx context.Context, accountID, shortID string) error {
	p, ok := m.byAccount[accountID]
	if !ok {
		return apperror.NotFound("profile", accountID)
	}
	if p.ShortID != "" {
		return apperror.Conflict("short identifier", accountID)
	}
	p.ShortID = shortID
	return nil
}

// memSync is an in-memory canonical store.
type memSync struct {
	bundles map[string]*model.SyncBundle
}

func (m *memSync) Status(ctx context.Context, accountID string) (*model.SyncStatus, error) {
	b, ok := m.bundles[accountID]
	if !ok {
		return &model.SyncStatus{}, nil
	}
	return &model.SyncStatus{
		HasData:          true,
		GameCount:        len(b.Games),
		AchievementCount: len(b.Achievements),
		LastSync:         b.ExportedAt,
	}, nil
}

func (m *memSync) Download(ctx context.Context, accountID string) (*model.SyncBundle, error) {
	b, ok := m.bundles[accountID]
	if !ok {
		return &model.SyncBundle{AccountID: accountID}, nil
	}
	return b, nil
}

func (m *memSync) Upload(ctx context.Context, accountID string, bundle *model.SyncBundle) error {
	m.bundles[accountID] = bundle
	return nil
}

func (m *memSync) DeleteAccountData(ctx context.Context, accountID string) error {
	delete(m.bundles, accountID)
	return nil
}

func (m *memSync) GamesByAppIDs(ctx context.Context, accountID string, appIDs []int64) ([]model.Game, error) {
	b, ok := m.bundles[accountID]
	if !ok {
		return nil, nil
	}
	want := make(map[int64]struct{}, len(appIDs))
	for _, id := range appIDs {
		want[id] = struct{}{}
	}
	var out []model.Game
	for _, g := range b.Games {
		if _, ok := want[g.AppID]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memSync) GuestGames(ctx context.Context, accountID string) ([]model.Game, error) {
	b, ok := m.bundles[accountID]
	if !ok {
		return nil, nil
	}
	return b.Games, nil
}

type testEnv struct {
	router   *chi.Mux
	issuer   *auth.Issuer
	sync     *memSync
	profiles *memProfiles
}

// newTestEnv builds the full route tree the way the server package does,
// with in-memory stores behind the services.
func newTestEnv(t *testing.T, admins []string) *testEnv {
	t.Helper()

	verifier, err := auth.NewVerifier(testSecret)
	require.NoError(t, err)
	issuer, err := auth.NewIssuer(testSecret)
	require.NoError(t, err)

	profiles := &memProfiles{byAccount: make(map[string]*model.Profile)}
	syncRepo := &memSync{bundles: make(map[string]*model.SyncBundle)}
	logger := slog.New(slog.DiscardHandler)

	syncService := service.NewSyncService(syncRepo, admins, logger)
	profileService := service.NewProfileService(profiles, syncRepo, shortid.NewService(profiles), logger)

	syncHandler := NewSyncHandler(syncService, profileService)
	guestHandler := NewGuestHandler(profileService)
	adminHandler := NewAdminHandler(syncService, profileService)

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		r.Get("/guest/{shortID}", guestHandler.Library)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireSession(verifier))
			r.Route("/sync", func(r chi.Router) {
				r.Get("/status", syncHandler.Status)
				r.Get("/download", syncHandler.Download)
				r.Post("/upload", syncHandler.Upload)
				r.Delete("/", syncHandler.Delete)
			})
			r.Post("/games/batch", syncHandler.BatchGames)
			r.Route("/admin", func(r chi.Router) {
				r.Use(adminHandler.RequireAdmin)
				r.Delete("/accounts/{accountID}", adminHandler.DeleteAccount)
			})
		})
	})

	return &testEnv{router: router, issuer: issuer, sync: syncRepo, profiles: profiles}
}

func (e *testEnv) token(t *testing.T, accountID string) string {
	t.Helper()
	tok, err := e.issuer.Issue(auth.Claims{
		AccountID:   accountID,
		DisplayName: "Test Player",
	}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func sampleBundle(account string) *model.SyncBundle {
	return &model.SyncBundle{
		AccountID: account,
		Games: []model.Game{
			{AppID: 10, Name: "Half-Life", PlaytimeMinutes: 120},
			{AppID: 20, Name: "Team Fortress Classic"},
		},
		Achievements: []model.AchievementSync{
			{AppID: 10, APIName: "ACH_ONE", Achieved: true, UnlockTime: 1700000000},
		},
		ExportedAt: time.Now().UTC(),
	}
}

func TestUploadThenStatusAndDownload(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t, "acct-1")

	rec := env.do(t, http.MethodPost, "/api/sync/upload", token, sampleBundle("acct-1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var status model.SyncStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.HasData)
	assert.Equal(t, 2, status.GameCount)

	rec = env.do(t, http.MethodGet, "/api/sync/download", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bundle model.SyncBundle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bundle))
	assert.Len(t, bundle.Games, 2)
	assert.Equal(t, "acct-1", bundle.AccountID)
}

func TestUploadEstablishesProfileAndHandle(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/sync/upload", env.token(t, "acct-1"), sampleBundle("acct-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	p, err := env.profiles.GetProfile(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Len(t, p.ShortID, shortid.Length)
}

func TestUploadCrossAccountForbidden(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/sync/upload", env.token(t, "attacker"), sampleBundle("victim"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, env.sync.bundles)
}

func TestUploadMalformedBody(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/sync/upload", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+env.token(t, "acct-1"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthRequiredEverywhere(t *testing.T) {
	env := newTestEnv(t, nil)
	paths := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/sync/status"},
		{http.MethodGet, "/api/sync/download"},
		{http.MethodPost, "/api/sync/upload"},
		{http.MethodDelete, "/api/sync/"},
		{http.MethodPost, "/api/games/batch"},
		{http.MethodDelete, "/api/admin/accounts/acct-1"},
	}
	for _, p := range paths {
		rec := env.do(t, p.method, p.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", p.method, p.path)
	}

	// Forged and expired tokens read the same as missing ones.
	forged := env.token(t, "acct-1") + "x"
	rec := env.do(t, http.MethodGet, "/api/sync/status", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeleteOwnData(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t, "acct-1")
	env.do(t, http.MethodPost, "/api/sync/upload", token, sampleBundle("acct-1"))

	rec := env.do(t, http.MethodDelete, "/api/sync/", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, env.sync.bundles)

	// Deleting again still succeeds.
	rec = env.do(t, http.MethodDelete, "/api/sync/", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestBatchGames(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t, "acct-1")
	env.do(t, http.MethodPost, "/api/sync/upload", token, sampleBundle("acct-1"))

	rec := env.do(t, http.MethodPost, "/api/games/batch", token, map[string][]int64{"appids": {10, 999}})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Games []model.Game `json:"games"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Games, 1)
	assert.Equal(t, int64(10), resp.Games[0].AppID)

	rec = env.do(t, http.MethodPost, "/api/games/batch", token, map[string][]int64{"appids": {}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGuestLibraryPublic(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t, "acct-1")
	env.do(t, http.MethodPost, "/api/sync/upload", token, sampleBundle("acct-1"))

	p, err := env.profiles.GetProfile(context.Background(), "acct-1")
	require.NoError(t, err)

	// No Authorization header at all.
	rec := env.do(t, http.MethodGet, "/api/guest/"+p.ShortID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var lib model.GuestLibrary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lib))
	assert.Equal(t, "Test Player", lib.Profile.DisplayName)
	assert.Len(t, lib.Games, 2)
}

func TestGuestLibraryUnknownHandle(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, handle := range []string{"ZZZZZZZZ", "bad!id??"} {
		rec := env.do(t, http.MethodGet, "/api/guest/"+handle, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, "handle %q", handle)
	}
}

func TestAdminDeleteRequiresAllowlist(t *testing.T) {
	env := newTestEnv(t, []string{"admin-1"})
	env.do(t, http.MethodPost, "/api/sync/upload", env.token(t, "acct-1"), sampleBundle("acct-1"))

	rec := env.do(t, http.MethodDelete, "/api/admin/accounts/acct-1", env.token(t, "acct-1"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "non-admin must be rejected")
	assert.NotEmpty(t, env.sync.bundles)

	rec = env.do(t, http.MethodDelete, "/api/admin/accounts/acct-1", env.token(t, "admin-1"), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, env.sync.bundles)
}
