package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mhalvorsen/achievo/internal/apperror"
	"github.com/mhalvorsen/achievo/internal/model"
	"github.com/mhalvorsen/achievo/internal/repository"
)

const (
	// maxBundleGames and maxBundleAchievements cap an upload. The largest
	// real libraries run to a few thousand games; anything past these caps
	// is a malformed or abusive payload, not a library.
	maxBundleGames        = 50_000
	maxBundleAchievements = 1_000_000

	// maxBatchAppIDs caps one batch game lookup.
	maxBatchAppIDs = 200
)

// SyncService owns the authenticated snapshot operations against the
// canonical store. Every operation acts on the caller's own account; the
// account id inside an uploaded bundle must match the session or the upload
// is rejected outright.
type SyncService struct {
	repo   repository.CloudSyncRepository
	admins map[string]struct{}
	logger *slog.Logger
}

// NewSyncService builds the service. adminAccounts is the allowlist of
// account ids permitted to call admin operations; it comes from
// configuration, never from request data.
func NewSyncService(repo repository.CloudSyncRepository, adminAccounts []string, logger *slog.Logger) *SyncService {
	admins := make(map[string]struct{}, len(adminAccounts))
	for _, id := range adminAccounts {
		if id != "" {
			admins[id] = struct{}{}
		}
	}
	return &SyncService{repo: repo, admins: admins, logger: logger}
}

// IsAdmin reports whether the account is on the configured allowlist.
func (s *SyncService) IsAdmin(accountID string) bool {
	_, ok := s.admins[accountID]
	return ok
}

// Status returns the cheap aggregate view of the account's remote state.
func (s *SyncService) Status(ctx context.Context, accountID string) (*model.SyncStatus, error) {
	return s.repo.Status(ctx, accountID)
}

// Download returns the account's full remote snapshot. An account that has
// never uploaded gets an empty bundle, not an error.
func (s *SyncService) Download(ctx context.Context, accountID string) (*model.SyncBundle, error) {
	return s.repo.Download(ctx, accountID)
}

// Upload validates the bundle and replaces the account's remote state with
// it. The bundle's own account id, when present, must match the session —
// a client can never write another account's data no matter what it puts in
// the payload.
func (s *SyncService) Upload(ctx context.Context, accountID string, bundle *model.SyncBundle) error {
	if bundle == nil {
		return apperror.ValidationFailed("bundle", "bundle is required")
	}
	if bundle.AccountID != "" && bundle.AccountID != accountID {
		return apperror.Forbidden("bundle belongs to a different account")
	}
	if err := validateBundle(bundle); err != nil {
		return err
	}

	bundle.AccountID = accountID
	if bundle.ExportedAt.IsZero() {
		bundle.ExportedAt = time.Now()
	}

	if err := s.repo.Upload(ctx, accountID, bundle); err != nil {
		return err
	}
	s.logger.Info("snapshot uploaded",
		slog.String("accountID", accountID),
		slog.Int("games", len(bundle.Games)),
		slog.Int("achievements", len(bundle.Achievements)),
	)
	return nil
}

// Delete removes the caller's own remote data. Idempotent.
func (s *SyncService) Delete(ctx context.Context, accountID string) error {
	if err := s.repo.DeleteAccountData(ctx, accountID); err != nil {
		return err
	}
	s.logger.Info("remote data deleted", slog.String("accountID", accountID))
	return nil
}

// GamesByAppIDs looks up a bounded batch of the account's stored games.
func (s *SyncService) GamesByAppIDs(ctx context.Context, accountID string, appIDs []int64) ([]model.Game, error) {
	if len(appIDs) == 0 {
		return nil, apperror.ValidationFailed("appids", "at least one app id is required")
	}
	if len(appIDs) > maxBatchAppIDs {
		return nil, apperror.ValidationFailed("appids",
			fmt.Sprintf("at most %d app ids per request", maxBatchAppIDs))
	}
	return s.repo.GamesByAppIDs(ctx, accountID, appIDs)
}

func validateBundle(bundle *model.SyncBundle) error {
	if len(bundle.Games) > maxBundleGames {
		return apperror.ValidationFailed("games",
			fmt.Sprintf("bundle exceeds %d games", maxBundleGames))
	}
	if len(bundle.Achievements) > maxBundleAchievements {
		return apperror.ValidationFailed("achievements",
			fmt.Sprintf("bundle exceeds %d achievements", maxBundleAchievements))
	}
	seen := make(map[int64]struct{}, len(bundle.Games))
	for _, g := range bundle.Games {
		if g.AppID <= 0 {
			return apperror.ValidationFailed("games", "game app id must be positive")
		}
		if _, dup := seen[g.AppID]; dup {
			return apperror.ValidationFailed("games",
				fmt.Sprintf("duplicate game %d in bundle", g.AppID))
		}
		seen[g.AppID] = struct{}{}
	}
	for _, a := range bundle.Achievements {
		if a.AppID <= 0 || a.APIName == "" {
			return apperror.ValidationFailed("achievements",
				"achievement entries need a positive app id and an api name")
		}
	}
	return nil
}
