package ports

import (
	"context"
	"time"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
)

// UserRepository defines persistence for user credential records.
type UserRepository interface {
	// Create stores a new user. A taken email returns domain.ErrDuplicateEmail.
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)

	// RecordFailedLogin increments the failed-login counter and, when it
	// reaches maxAttempts, sets the lockout expiry to lockedUntil. Both happen
	// in one atomic update; the returned user reflects the stored state.
	RecordFailedLogin(ctx context.Context, id string, maxAttempts int, lockedUntil time.Time) (*domain.User, error)

	// RecordSuccessfulLogin zeroes the counter, clears the lockout and stamps at.
	RecordSuccessfulLogin(ctx context.Context, id string, at time.Time) error

	UpdateRole(ctx context.Context, id string, role domain.Role, at time.Time) (*domain.User, error)

	// UpdateProfile sets the non-nil fields of upd and stamps at.
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate, at time.Time) (*domain.User, error)
}

// ProfileUpdate carries a partial change to a user's name.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
}

// RefreshTokenRepository persists refresh-token records keyed by jti.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	// Find returns domain.ErrTokenNotFound when no record matches both keys.
	Find(ctx context.Context, jti, userID string) (*domain.RefreshToken, error)
	// Revoke flips a non-revoked record to revoked. It reports false when
	// the record was already revoked, so only one caller wins a rotation.
	Revoke(ctx context.Context, jti string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}
