package ports

import (
	"context"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
)

// EventPublisher sends payloads to the broker. It reports delivery with a
// bool and never returns an error: a failed publish must not abort the
// caller's write.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, payload any, correlationID string) bool
}

// EventHandler applies one envelope. It must be safe to call more than once
// with the same envelope.
type EventHandler func(ctx context.Context, env domain.Envelope) error

// AuditEntry is a generic security-relevant action.
type AuditEntry struct {
	Actor        *domain.AuditActor
	Action       string
	Resource     string
	ResourceID   string
	Outcome      domain.AuditOutcome
	Network      domain.NetworkContext
	Before       any
	After        any
	ErrorMessage string
}

// PHIAccess describes a read or write of protected health information.
type PHIAccess struct {
	Actor         domain.AuditActor
	PatientID     string
	Resource      string
	ResourceID    string
	Sensitivity   domain.Sensitivity
	BreakGlass    bool
	Justification string
	Network       domain.NetworkContext
}

// AuditEmitter publishes audit envelopes. None of its methods fail.
type AuditEmitter interface {
	Log(ctx context.Context, entry AuditEntry)
	LogLogin(ctx context.Context, email string, actor *domain.AuditActor, outcome domain.AuditOutcome, network domain.NetworkContext, reason string)
	LogLogout(ctx context.Context, actor domain.AuditActor, network domain.NetworkContext)
	LogTokenRefresh(ctx context.Context, actor *domain.AuditActor, outcome domain.AuditOutcome, network domain.NetworkContext, reason string)
	LogUserCreated(ctx context.Context, actor *domain.AuditActor, user domain.UserSummary, network domain.NetworkContext)
	LogUserUpdated(ctx context.Context, actor domain.AuditActor, userID string, before, after any, network domain.NetworkContext)
	LogRoleChanged(ctx context.Context, actor domain.AuditActor, userID string, oldRole, newRole domain.Role, network domain.NetworkContext)
	LogPHIAccess(ctx context.Context, access PHIAccess)
}
