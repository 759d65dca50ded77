package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/ports"
)

// AuditTrailService appends audit envelopes to the audit store.
type AuditTrailService struct {
	repo ports.AuditLogRepository
	log  zerolog.Logger
}

func NewAuditTrailService(repo ports.AuditLogRepository, log zerolog.Logger) *AuditTrailService {
	return &AuditTrailService{repo: repo, log: log}
}

// Handlers maps both audit routing keys to Append.
func (s *AuditTrailService) Handlers() map[string]ports.EventHandler {
	return map[string]ports.EventHandler{
		domain.EventAuditLog:        s.Append,
		domain.EventAuditDataAccess: s.Append,
	}
}

// Append stores env keyed by its event id. A repeat of the same id is a no-op.
func (s *AuditTrailService) Append(ctx context.Context, env domain.Envelope) error {
	var p domain.AuditPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	if p.Action == "" {
		return fmt.Errorf("%w: audit event without action", domain.ErrMalformedEvent)
	}

	err := s.repo.Append(ctx, &domain.AuditRecord{
		EventID:       env.EventID,
		EventType:     env.EventType,
		CorrelationID: env.CorrelationID,
		Source:        env.Source,
		OccurredAt:    env.Timestamp,
		ReceivedAt:    time.Now().UTC(),
		Payload:       p,
	})
	switch {
	case errors.Is(err, domain.ErrAlreadyApplied):
		return nil
	case err != nil:
		return fmt.Errorf("%w: append audit record: %v", domain.ErrProcessing, err)
	}

	if p.BreakGlass {
		s.log.Warn().
			Str("event_id", env.EventID).
			Str("patient_id", p.PatientID).
			Str("action", p.Action).
			Msg("break-glass access recorded")
	}
	return nil
}
