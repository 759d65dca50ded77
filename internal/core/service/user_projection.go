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

// UserProjectionService keeps a consuming service's local copy of users in
// step with the user events. Every handler tolerates redelivery.
type UserProjectionService struct {
	repo ports.UserProjectionRepository
	log  zerolog.Logger
}

func NewUserProjectionService(repo ports.UserProjectionRepository, log zerolog.Logger) *UserProjectionService {
	return &UserProjectionService{repo: repo, log: log}
}

// Handlers maps each user routing key to its handler.
func (s *UserProjectionService) Handlers() map[string]ports.EventHandler {
	return map[string]ports.EventHandler{
		domain.EventUserCreated:     s.HandleUserCreated,
		domain.EventUserUpdated:     s.HandleUserUpdated,
		domain.EventUserRoleChanged: s.HandleRoleChanged,
	}
}

// HandleUserCreated inserts the projection unless the email is already
// known. The unique index on the store catches the check-then-insert race.
func (s *UserProjectionService) HandleUserCreated(ctx context.Context, env domain.Envelope) error {
	var p domain.UserCreatedPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	if p.UserID == "" || p.Email == "" {
		return fmt.Errorf("%w: user.created without userId or email", domain.ErrMalformedEvent)
	}

	if _, err := s.repo.FindByEmail(ctx, p.Email); err == nil {
		s.log.Debug().Str("event_id", env.EventID).Str("user_id", p.UserID).Msg("user projection exists, skipping")
		return nil
	} else if !errors.Is(err, domain.ErrProjectionStale) {
		return fmt.Errorf("%w: lookup projection: %v", domain.ErrProcessing, err)
	}

	now := time.Now().UTC()
	err := s.repo.Insert(ctx, &domain.UserProjection{
		UserID:        p.UserID,
		Email:         p.Email,
		FirstName:     p.FirstName,
		LastName:      p.LastName,
		Role:          p.Role,
		IsActive:      p.IsActive,
		SourceEventID: env.EventID,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	switch {
	case errors.Is(err, domain.ErrAlreadyApplied):
		s.log.Debug().Str("event_id", env.EventID).Str("user_id", p.UserID).Msg("user projection inserted concurrently")
		return nil
	case err != nil:
		return fmt.Errorf("%w: insert projection: %v", domain.ErrProcessing, err)
	}

	s.log.Info().Str("event_id", env.EventID).Str("user_id", p.UserID).Msg("user projection created")
	return nil
}

// HandleUserUpdated applies a field-level update. A projection that does not
// exist yet is a processing error so the message is retried after the create.
func (s *UserProjectionService) HandleUserUpdated(ctx context.Context, env domain.Envelope) error {
	var p domain.UserUpdatedPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	if p.UserID == "" {
		return fmt.Errorf("%w: user.updated without userId", domain.ErrMalformedEvent)
	}
	if err := s.repo.Apply(ctx, p, env.EventID); err != nil {
		return fmt.Errorf("%w: apply update: %v", domain.ErrProcessing, err)
	}
	s.log.Info().Str("event_id", env.EventID).Str("user_id", p.UserID).Msg("user projection updated")
	return nil
}

// HandleRoleChanged sets the projected role; an unchanged role is a no-op.
func (s *UserProjectionService) HandleRoleChanged(ctx context.Context, env domain.Envelope) error {
	var p domain.UserRoleChangedPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	if p.UserID == "" || !p.NewRole.Valid() {
		return fmt.Errorf("%w: user.role.changed without userId or valid role", domain.ErrMalformedEvent)
	}

	current, err := s.repo.FindByID(ctx, p.UserID)
	if err != nil {
		return fmt.Errorf("%w: lookup projection: %v", domain.ErrProcessing, err)
	}
	if current.Role == p.NewRole {
		return nil
	}
	if err := s.repo.SetRole(ctx, p.UserID, p.NewRole, env.EventID); err != nil {
		return fmt.Errorf("%w: set role: %v", domain.ErrProcessing, err)
	}
	s.log.Info().
		Str("event_id", env.EventID).
		Str("user_id", p.UserID).
		Str("new_role", string(p.NewRole)).
		Msg("user projection role changed")
	return nil
}
