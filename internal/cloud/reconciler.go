package cloud

import (
	"context"
	"log/slog"

	"github.com/mhalvorsen/achievo/internal/apperror"
	"github.com/mhalvorsen/achievo/internal/model"
	"github.com/mhalvorsen/achievo/internal/repository"
)

// Reconciler moves full snapshots between the local store and the sync
// server. Both directions are replace operations: push overwrites remote
// state, pull overwrites local state (keeping locally cached achievement
// metadata, which the wire bundle doesn't carry).
type Reconciler struct {
	store  repository.LocalStore
	client *Client
	logger *slog.Logger
}

func NewReconciler(store repository.LocalStore, client *Client, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, client: client, logger: logger}
}

// Status fetches the remote aggregate state.
func (r *Reconciler) Status(ctx context.Context, token string) (*model.SyncStatus, error) {
	return r.client.Status(ctx, token)
}

// Push exports the local snapshot and uploads it, returning the remote
// status afterwards.
func (r *Reconciler) Push(ctx context.Context, token, accountID string) (*model.SyncStatus, error) {
	bundle, err := r.store.ExportBundle(ctx, accountID)
	if err != nil {
		return nil, err
	}
	status, err := r.client.Upload(ctx, token, bundle)
	if err != nil {
		return nil, err
	}
	r.logger.Info("pushed snapshot to cloud",
		slog.String("accountID", accountID),
		slog.Int("games", len(bundle.Games)),
	)
	return status, nil
}

// Pull downloads the remote snapshot and imports it, replacing local state.
// An account with no remote data gets apperror.ErrNotFound rather than a
// destructive import of an empty bundle.
func (r *Reconciler) Pull(ctx context.Context, token, accountID string) ([]model.Game, error) {
	bundle, err := r.client.Download(ctx, token)
	if err != nil {
		return nil, err
	}
	if len(bundle.Games) == 0 && len(bundle.Achievements) == 0 {
		return nil, apperror.NotFound("remote snapshot", accountID)
	}

	bundle.AccountID = accountID
	if err := r.store.ImportBundle(ctx, bundle); err != nil {
		return nil, err
	}
	r.logger.Info("pulled snapshot from cloud",
		slog.String("accountID", accountID),
		slog.Int("games", len(bundle.Games)),
	)
	return r.store.ListGames(ctx, accountID)
}

// GuestLibrary resolves a public handle on the sync server.
func (r *Reconciler) GuestLibrary(ctx context.Context, shortID string) (*model.GuestLibrary, error) {
	return r.client.GuestLibrary(ctx, shortID)
}
