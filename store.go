package gourdianauth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// maxIssueAttempts bounds identifier re-rolls on collision.
const maxIssueAttempts = 3

// RefreshTokenStore maps opaque refresh token identifiers to subjects. It is
// the single source of truth for refresh tokens and must be safe for
// concurrent use. Each method is atomic on its own; no atomicity spans calls.
type RefreshTokenStore interface {
	// Issue records a new unique identifier for subject and returns it.
	Issue(ctx context.Context, subject string) (string, error)

	// Resolve returns the subject of tokenID, or ErrInvalidRefreshToken when
	// the identifier is unknown, revoked or expired.
	Resolve(ctx context.Context, tokenID string) (string, error)

	// Revoke invalidates tokenID. Revoking an absent identifier is not an error.
	Revoke(ctx context.Context, tokenID string) error

	// RevokeSubject invalidates every outstanding token of subject and
	// returns how many were revoked.
	RevokeSubject(ctx context.Context, subject string) (int, error)

	// CleanupExpired drops expired bookkeeping and returns how many entries
	// were removed. Expired tokens never resolve whether or not this runs.
	CleanupExpired(ctx context.Context) (int, error)
}

// TTLReporter is implemented by stores that know the lifetime of the tokens
// they issue. The Service reports expiry with it instead of
// Config.RefreshTokenTTL.
type TTLReporter interface {
	TTL() time.Duration
}

// newTokenID returns a fresh random (version 4) UUID string.
func newTokenID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate token ID: %w", err)
	}
	return id.String(), nil
}

func validateSubject(subject string) error {
	if subject == "" {
		return fmt.Errorf("%w: subject cannot be empty", ErrInvalidClaims)
	}
	return nil
}
