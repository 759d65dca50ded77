package ports

import (
	"context"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
)

// UserProjectionRepository stores the consumer-side copy of users.
type UserProjectionRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.UserProjection, error)
	FindByID(ctx context.Context, userID string) (*domain.UserProjection, error)
	// Insert returns domain.ErrAlreadyApplied when the id or email already exists.
	Insert(ctx context.Context, p *domain.UserProjection) error
	// Apply writes the non-nil fields of upd. A missing projection returns
	// domain.ErrProjectionStale.
	Apply(ctx context.Context, upd domain.UserUpdatedPayload, eventID string) error
	SetRole(ctx context.Context, userID string, role domain.Role, eventID string) error
}

// AuditLogRepository is the append-only audit store.
type AuditLogRepository interface {
	// Append returns domain.ErrAlreadyApplied for a repeated event id.
	Append(ctx context.Context, rec *domain.AuditRecord) error
}
