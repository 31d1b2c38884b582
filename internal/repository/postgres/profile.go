package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"

	"github.com/mhalvorsen/achievo/internal/apperror"
	"github.com/mhalvorsen/achievo/internal/model"
	"github.com/mhalvorsen/achievo/internal/repository"
	"github.com/mhalvorsen/achievo/internal/shortid"
)

// compile-time checks against both the repository surface and the identifier
// service's consumer-side interface
var (
	_ repository.ProfileRepository = (*DB)(nil)
	_ shortid.ProfileStore         = (*DB)(nil)
)

// UpsertProfile creates the profile on first authentication and refreshes
// display name and avatar on later ones. The short identifier column is
// untouched — it is owned by the identifier service.
func (db *DB) UpsertProfile(ctx context.Context, profile *model.Profile) error {
	if profile.ID == "" {
		profile.ID = xid.New().String()
	}
	now := time.Now()

	err := db.pool.QueryRow(ctx,
		`INSERT INTO profiles (id, account_id, display_name, avatar_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (account_id) DO UPDATE SET
			display_name = excluded.display_name,
			avatar_url   = excluded.avatar_url,
			updated_at   = excluded.updated_at
		 RETURNING id, created_at, COALESCE(short_id, '')`,
		profile.ID, profile.AccountID, profile.DisplayName, profile.AvatarURL, now,
	).Scan(&profile.ID, &profile.CreatedAt, &profile.ShortID)
	if err != nil {
		return fmt.Errorf("postgres: upserting profile for %s: %w", profile.AccountID, err)
	}
	profile.UpdatedAt = now

	return nil
}

// GetProfile returns the profile for a durable account identity.
func (db *DB) GetProfile(ctx context.Context, accountID string) (*model.Profile, error) {
	return db.getProfile(ctx,
		`SELECT id, account_id, display_name, avatar_url, COALESCE(short_id, ''), created_at, updated_at
		 FROM profiles WHERE account_id = $1`,
		accountID, accountID)
}

// GetProfileByShortID resolves a public handle to its profile.
func (db *DB) GetProfileByShortID(ctx context.Context, shortID string) (*model.Profile, error) {
	return db.getProfile(ctx,
		`SELECT id, account_id, display_name, avatar_url, COALESCE(short_id, ''), created_at, updated_at
		 FROM profiles WHERE short_id = $1`,
		shortID, shortID)
}

func (db *DB) getProfile(ctx context.Context, query, arg, label string) (*model.Profile, error) {
	var p model.Profile
	err := db.pool.QueryRow(ctx, query, arg).Scan(
		&p.ID, &p.AccountID, &p.DisplayName, &p.AvatarURL, &p.ShortID,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("profile", label)
		}
		return nil, fmt.Errorf("postgres: getting profile %s: %w", label, err)
	}
	return &p, nil
}

// ShortIDTaken reports whether any profile already holds the handle.
func (db *DB) ShortIDTaken(ctx context.Context, shortID string) (bool, error) {
	var taken bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM profiles WHERE short_id = $1)`,
		shortID,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("postgres: checking short id: %w", err)
	}
	return taken, nil
}

// SetShortID assigns the handle to the account's profile, but only while the
// profile has none. Two racing writers can lose two different ways: the
// partial unique index fires when the candidate is already held by another
// account, and the short_id IS NULL guard refuses the write when a
// concurrent assignment for the same account landed first. Both surface as
// apperror.ErrConflict; the identifier service re-reads and decides.
func (db *DB) SetShortID(ctx context.Context, accountID, shortID string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE profiles SET short_id = $1, updated_at = now()
		 WHERE account_id = $2 AND short_id IS NULL`,
		shortID, accountID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("short identifier", shortID)
		}
		return fmt.Errorf("postgres: setting short id for %s: %w", accountID, err)
	}
	if tag.RowsAffected() == 0 {
		// No such profile, or the profile already carries a handle.
		if _, err := db.GetProfile(ctx, accountID); err != nil {
			return err
		}
		return apperror.Conflict("short identifier", accountID)
	}
	return nil
}
