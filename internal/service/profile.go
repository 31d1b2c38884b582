// Package service implements the sync server's business rules on top of the
// repository interfaces: profile lifecycle, public handle resolution, and the
// snapshot sync operations with their ownership checks.
package service

import (
	"context"
	"log/slog"

	"github.com/rs/xid"

	"github.com/mhalvorsen/achievo/internal/apperror"
	"github.com/mhalvorsen/achievo/internal/auth"
	"github.com/mhalvorsen/achievo/internal/model"
	"github.com/mhalvorsen/achievo/internal/repository"
	"github.com/mhalvorsen/achievo/internal/shortid"
)

// ProfileService maintains account profiles and serves guest library views.
type ProfileService struct {
	profiles repository.ProfileRepository
	sync     repository.CloudSyncRepository
	shortIDs *shortid.Service
	logger   *slog.Logger
}

func NewProfileService(profiles repository.ProfileRepository, syncRepo repository.CloudSyncRepository, shortIDs *shortid.Service, logger *slog.Logger) *ProfileService {
	return &ProfileService{
		profiles: profiles,
		sync:     syncRepo,
		shortIDs: shortIDs,
		logger:   logger,
	}
}

// EnsureProfile upserts the caller's profile from their session claims and
// guarantees it has a short identifier. Called on every authenticated
// request path that needs the profile, so it must be idempotent.
func (s *ProfileService) EnsureProfile(ctx context.Context, claims *auth.Claims) (*model.Profile, error) {
	profile := &model.Profile{
		ID:          xid.New().String(),
		AccountID:   claims.AccountID,
		DisplayName: claims.DisplayName,
		AvatarURL:   claims.AvatarURL,
	}
	if err := s.profiles.UpsertProfile(ctx, profile); err != nil {
		return nil, err
	}

	short, err := s.shortIDs.Ensure(ctx, claims.AccountID)
	if err != nil {
		return nil, err
	}
	profile.ShortID = short
	return profile, nil
}

// Profile returns the stored profile for an account.
func (s *ProfileService) Profile(ctx context.Context, accountID string) (*model.Profile, error) {
	return s.profiles.GetProfile(ctx, accountID)
}

// GuestLibrary resolves a public short identifier to its profile and game
// list. This is the only read path that needs no session; unknown or
// malformed handles return apperror.ErrNotFound without hinting whether the
// handle shape was the problem.
func (s *ProfileService) GuestLibrary(ctx context.Context, shortID string) (*model.GuestLibrary, error) {
	profile, err := s.shortIDs.Resolve(ctx, shortID)
	if err != nil {
		return nil, err
	}
	games, err := s.sync.GuestGames(ctx, profile.AccountID)
	if err != nil {
		return nil, err
	}
	return &model.GuestLibrary{Profile: *profile, Games: games}, nil
}

// AdminDeleteAccount removes an account's synced data. The profile row and
// its short identifier survive so the handle doesn't get recycled. Callers
// must already have passed the admin allowlist check.
func (s *ProfileService) AdminDeleteAccount(ctx context.Context, accountID string) error {
	if accountID == "" {
		return apperror.ValidationFailed("accountId", "account is required")
	}
	if err := s.sync.DeleteAccountData(ctx, accountID); err != nil {
		return err
	}
	s.logger.Info("account data deleted by admin", slog.String("accountID", accountID))
	return nil
}
