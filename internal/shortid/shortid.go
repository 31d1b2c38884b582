// Package shortid generates and resolves the 8-character public handles that
// decouple a shareable profile identifier from the durable account identity.
//
// Handles are drawn uniformly from a 62-symbol alphabet (A-Z, a-z, 0-9) using
// crypto/rand, giving 62^8 ≈ 2.18e14 possible values. Collisions are handled
// by generate-and-check rather than a reservation lock: the collision
// probability per attempt is ~1/62^8 and a retry is one cheap read. The retry
// loop is bounded — past maxAttempts something is structurally wrong with the
// store (e.g. the uniqueness check always reporting "taken"), and we fail
// loudly instead of spinning forever.
package shortid

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/mhalvorsen/achievo/internal/apperror"
	"github.com/mhalvorsen/achievo/internal/model"
)

const (
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// Length is the fixed size of a public handle.
	Length = 8

	// maxAttempts bounds the collision-retry loop. Exhausting it does not
	// mean "unlucky" — at 62^8 values it means the store is corrupt or the
	// existence check is broken.
	maxAttempts = 1000
)

// maxUniformByte is the largest multiple of len(alphabet) that fits in a
// byte. Random bytes at or above it are rejected, so the modulo below maps
// each symbol to exactly four byte values and the draw stays uniform.
const maxUniformByte = byte(256 / len(alphabet) * len(alphabet))

// Generate returns a random handle. Generation itself never fails except on
// a broken system entropy source.
func Generate() (string, error) {
	out := make([]byte, 0, Length)
	buf := make([]byte, Length)
	for len(out) < Length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("shortid: reading random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= maxUniformByte {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == Length {
				break
			}
		}
	}
	return string(out), nil
}

// Valid reports whether s has the exact shape of a handle. Used to reject
// obviously bogus guest-view lookups before touching the store.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

// ProfileStore is the persistence the Service needs. The postgres repository
// implements it; tests use an in-memory fake with forced collisions.
type ProfileStore interface {
	// GetProfile returns the profile for a durable account identity, or
	// apperror.ErrNotFound.
	GetProfile(ctx context.Context, accountID string) (*model.Profile, error)
	// ShortIDTaken reports whether any profile already holds the handle.
	ShortIDTaken(ctx context.Context, shortID string) (bool, error)
	// SetShortID persists the handle on the account's profile, but only if
	// the profile does not hold one yet. A concurrent writer winning either
	// race — claiming the candidate for another account, or assigning this
	// account's handle first — surfaces as apperror.ErrConflict; the service
	// re-reads the profile to tell the two apart.
	SetShortID(ctx context.Context, accountID, shortID string) error
	// GetProfileByShortID resolves a handle to its profile, or
	// apperror.ErrNotFound.
	GetProfileByShortID(ctx context.Context, shortID string) (*model.Profile, error)
}

// Service implements the identifier operations on top of a ProfileStore.
type Service struct {
	store ProfileStore
}

// NewService creates a Service backed by the given store.
func NewService(store ProfileStore) *Service {
	return &Service{store: store}
}

// Ensure returns the account's public handle, assigning one first if the
// profile doesn't have one yet. Idempotent: a second call returns the same
// handle without generating anything.
func (s *Service) Ensure(ctx context.Context, accountID string) (string, error) {
	profile, err := s.store.GetProfile(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("shortid: loading profile for %s: %w", accountID, err)
	}
	if profile.ShortID != "" {
		return profile.ShortID, nil
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate, err := Generate()
		if err != nil {
			return "", err
		}

		taken, err := s.store.ShortIDTaken(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("shortid: checking candidate: %w", err)
		}
		if taken {
			continue
		}

		err = s.store.SetShortID(ctx, accountID, candidate)
		if err == nil {
			return candidate, nil
		}
		// A conflict here means another connection either claimed the
		// candidate for a different account, or assigned this account a
		// handle first. Re-read the profile: when a handle is now present,
		// a concurrent Ensure for the same account won and every caller
		// must hand out that winner, not a second dangling one. Otherwise
		// it was a late-seen collision and a fresh candidate will do.
		if isConflict(err) {
			profile, rerr := s.store.GetProfile(ctx, accountID)
			if rerr != nil {
				return "", fmt.Errorf("shortid: reloading profile for %s: %w", accountID, rerr)
			}
			if profile.ShortID != "" {
				return profile.ShortID, nil
			}
			continue
		}
		return "", fmt.Errorf("shortid: persisting handle for %s: %w", accountID, err)
	}

	return "", apperror.Storage("short identifier assignment",
		fmt.Errorf("no unique handle found after %d attempts", maxAttempts))
}

// Resolve looks up the profile behind a handle. An unknown or retired handle
// returns apperror.ErrNotFound; that is an expected outcome, not a fault.
func (s *Service) Resolve(ctx context.Context, shortID string) (*model.Profile, error) {
	if !Valid(shortID) {
		return nil, apperror.NotFound("profile", shortID)
	}
	return s.store.GetProfileByShortID(ctx, shortID)
}

func isConflict(err error) bool {
	return errors.Is(err, apperror.ErrConflict)
}
