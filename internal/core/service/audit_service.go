package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/ports"
)

// AuditService is a thin layer over the publisher that builds audit
// envelopes. Nothing it does can fail the calling operation.
type AuditService struct {
	publisher ports.EventPublisher
	log       zerolog.Logger
}

func NewAuditService(publisher ports.EventPublisher, log zerolog.Logger) *AuditService {
	return &AuditService{publisher: publisher, log: log}
}

// Log publishes entry on the audit exchange under the audit.log key.
func (s *AuditService) Log(ctx context.Context, entry ports.AuditEntry) {
	s.emit(ctx, domain.EventAuditLog, domain.AuditPayload{
		Actor:        entry.Actor,
		Action:       entry.Action,
		Resource:     entry.Resource,
		ResourceID:   entry.ResourceID,
		Outcome:      entry.Outcome,
		Network:      entry.Network,
		Before:       entry.Before,
		After:        entry.After,
		ErrorMessage: entry.ErrorMessage,
	})
}

func (s *AuditService) LogLogin(ctx context.Context, email string, actor *domain.AuditActor, outcome domain.AuditOutcome, network domain.NetworkContext, reason string) {
	if actor == nil && email != "" {
		actor = &domain.AuditActor{Email: email}
	}
	entry := ports.AuditEntry{
		Actor:    actor,
		Action:   domain.ActionLogin,
		Resource: "session",
		Outcome:  outcome,
		Network:  network,
	}
	if outcome != domain.OutcomeSuccess {
		entry.ErrorMessage = reason
	}
	s.Log(ctx, entry)
}

func (s *AuditService) LogLogout(ctx context.Context, actor domain.AuditActor, network domain.NetworkContext) {
	s.Log(ctx, ports.AuditEntry{
		Actor:      &actor,
		Action:     domain.ActionLogout,
		Resource:   "session",
		ResourceID: actor.UserID,
		Outcome:    domain.OutcomeSuccess,
		Network:    network,
	})
}

func (s *AuditService) LogTokenRefresh(ctx context.Context, actor *domain.AuditActor, outcome domain.AuditOutcome, network domain.NetworkContext, reason string) {
	entry := ports.AuditEntry{
		Actor:    actor,
		Action:   domain.ActionTokenRefresh,
		Resource: "refresh_token",
		Outcome:  outcome,
		Network:  network,
	}
	if outcome != domain.OutcomeSuccess {
		entry.ErrorMessage = reason
	}
	s.Log(ctx, entry)
}

func (s *AuditService) LogUserCreated(ctx context.Context, actor *domain.AuditActor, user domain.UserSummary, network domain.NetworkContext) {
	if actor == nil {
		actor = &domain.AuditActor{UserID: user.ID, Email: user.Email, Role: user.Role}
	}
	s.Log(ctx, ports.AuditEntry{
		Actor:      actor,
		Action:     domain.ActionUserCreated,
		Resource:   "user",
		ResourceID: user.ID,
		Outcome:    domain.OutcomeSuccess,
		Network:    network,
		After:      user,
	})
}

func (s *AuditService) LogUserUpdated(ctx context.Context, actor domain.AuditActor, userID string, before, after any, network domain.NetworkContext) {
	s.Log(ctx, ports.AuditEntry{
		Actor:      &actor,
		Action:     domain.ActionUserUpdated,
		Resource:   "user",
		ResourceID: userID,
		Outcome:    domain.OutcomeSuccess,
		Network:    network,
		Before:     before,
		After:      after,
	})
}

func (s *AuditService) LogRoleChanged(ctx context.Context, actor domain.AuditActor, userID string, oldRole, newRole domain.Role, network domain.NetworkContext) {
	s.Log(ctx, ports.AuditEntry{
		Actor:      &actor,
		Action:     domain.ActionRoleChanged,
		Resource:   "user",
		ResourceID: userID,
		Outcome:    domain.OutcomeSuccess,
		Network:    network,
		Before:     map[string]domain.Role{"role": oldRole},
		After:      map[string]domain.Role{"role": newRole},
	})
}

// LogPHIAccess records access to patient data on the audit.data-access key.
// Break-glass access without a justification is still recorded, as a failure.
func (s *AuditService) LogPHIAccess(ctx context.Context, access ports.PHIAccess) {
	sensitivity := access.Sensitivity
	if sensitivity == "" {
		sensitivity = domain.SensitivityNormal
	}
	payload := domain.AuditPayload{
		Actor:         &access.Actor,
		Action:        domain.ActionPHIAccess,
		Resource:      access.Resource,
		ResourceID:    access.ResourceID,
		Outcome:       domain.OutcomeSuccess,
		Network:       access.Network,
		PatientID:     access.PatientID,
		Sensitivity:   sensitivity,
		BreakGlass:    access.BreakGlass,
		Justification: access.Justification,
	}
	if access.BreakGlass && access.Justification == "" {
		payload.Outcome = domain.OutcomeFailure
		payload.ErrorMessage = "break-glass access without justification"
		s.log.Warn().
			Str("user_id", access.Actor.UserID).
			Str("patient_id", access.PatientID).
			Msg("break-glass access recorded without justification")
	}
	s.emit(ctx, domain.EventAuditDataAccess, payload)
}

func (s *AuditService) emit(ctx context.Context, routingKey string, payload domain.AuditPayload) {
	if ok := s.publisher.Publish(ctx, domain.ExchangeAudit, routingKey, payload, domain.CorrelationID(ctx)); !ok {
		s.log.Warn().
			Str("routing_key", routingKey).
			Str("action", payload.Action).
			Str("outcome", string(payload.Outcome)).
			Msg("audit event not delivered")
	}
}
