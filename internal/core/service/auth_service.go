package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/ports"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/metrics"
)

// AuthConfig tunes password hashing and brute-force lockout.
type AuthConfig struct {
	BcryptCost      int
	MaxFailedLogins int
	LockoutDuration time.Duration
}

// AuthService implements registration, login with lockout, and role changes.
type AuthService struct {
	users     ports.UserRepository
	tokens    ports.TokenIssuer
	publisher ports.EventPublisher
	audit     ports.AuditEmitter
	cfg       AuthConfig
	dummyHash []byte
	now       func() time.Time
	log       zerolog.Logger
}

func NewAuthService(
	users ports.UserRepository,
	tokens ports.TokenIssuer,
	publisher ports.EventPublisher,
	audit ports.AuditEmitter,
	cfg AuthConfig,
	log zerolog.Logger,
) *AuthService {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.MaxFailedLogins <= 0 {
		cfg.MaxFailedLogins = 5
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 15 * time.Minute
	}
	// Compared against when the email is unknown so both paths cost one bcrypt run.
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cfg.BcryptCost)
	return &AuthService{
		users:     users,
		tokens:    tokens,
		publisher: publisher,
		audit:     audit,
		cfg:       cfg,
		dummyHash: dummy,
		now:       time.Now,
		log:       log,
	}
}

// Register creates an account. A registration that does not happen is
// audited as well, with the caller's email standing in for a missing actor.
func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*ports.RegisterResult, error) {
	res, err := s.register(ctx, in)
	if err != nil {
		actor := in.Actor
		if actor == nil {
			actor = &domain.AuditActor{Email: strings.TrimSpace(in.Email)}
		}
		s.rejected(ctx, actor, domain.ActionUserCreated, "", in.Network, err)
	}
	return res, err
}

func (s *AuthService) register(ctx context.Context, in ports.RegisterInput) (*ports.RegisterResult, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return nil, domain.ErrMissingCredentials
	}
	role := in.Role
	if role == "" {
		role = domain.DefaultRole
	}
	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrDuplicateEmail
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("register: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("register: hash password: %w", err)
	}

	now := s.now().UTC()
	created, err := s.users.Create(ctx, &domain.User{
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, domain.ExchangeEvents, domain.EventUserCreated, domain.UserCreatedPayload{
		UserID:    created.ID,
		Email:     created.Email,
		FirstName: created.FirstName,
		LastName:  created.LastName,
		Role:      created.Role,
		IsActive:  created.IsActive,
	}, domain.CorrelationID(ctx))
	s.audit.LogUserCreated(ctx, in.Actor, created.Summary(), in.Network)

	s.log.Info().Str("user_id", created.ID).Str("role", string(created.Role)).Msg("user registered")
	return &ports.RegisterResult{ID: created.ID, Email: created.Email}, nil
}

// Login verifies credentials and enforces the lockout window. Unknown email
// and wrong password both surface as domain.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, in ports.LoginInput) (*ports.LoginResult, error) {
	if in.Email == "" || in.Password == "" {
		s.loginFailed(ctx, in, nil, "missing credentials", "invalid_credentials")
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(in.Password))
			s.loginFailed(ctx, in, nil, "unknown email", "invalid_credentials")
			return nil, domain.ErrInvalidCredentials
		}
		return nil, s.loginError(ctx, in, nil, fmt.Errorf("login: %w", err))
	}

	if !user.IsActive {
		s.loginFailed(ctx, in, user.Actor(), "account deactivated", "deactivated")
		return nil, domain.ErrAccountDeactivated
	}

	now := s.now().UTC()
	if user.IsLocked(now) {
		s.loginFailed(ctx, in, user.Actor(), "account locked", "locked")
		return nil, domain.ErrAccountLocked
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)) != nil {
		updated, err := s.users.RecordFailedLogin(ctx, user.ID, s.cfg.MaxFailedLogins, now.Add(s.cfg.LockoutDuration))
		if err != nil {
			return nil, s.loginError(ctx, in, user.Actor(), fmt.Errorf("login: record failed attempt: %w", err))
		}
		if updated.IsLocked(now) {
			metrics.LockoutsTotal.Inc()
			s.log.Warn().
				Str("user_id", user.ID).
				Int("failed_attempts", updated.FailedLoginAttempts).
				Time("locked_until", *updated.LockedUntil).
				Msg("account locked after repeated failed logins")
		}
		s.loginFailed(ctx, in, user.Actor(), "invalid password", "invalid_credentials")
		return nil, domain.ErrInvalidCredentials
	}

	if err := s.users.RecordSuccessfulLogin(ctx, user.ID, now); err != nil {
		return nil, s.loginError(ctx, in, user.Actor(), fmt.Errorf("login: record success: %w", err))
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now

	pair, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return nil, s.loginError(ctx, in, user.Actor(), fmt.Errorf("login: %w", err))
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	s.audit.LogLogin(ctx, user.Email, user.Actor(), domain.OutcomeSuccess, in.Network, "")
	return &ports.LoginResult{Tokens: *pair, User: user.Summary()}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, in ports.LoginInput, actor *domain.AuditActor, reason, outcome string) {
	metrics.LoginAttemptsTotal.WithLabelValues(outcome).Inc()
	s.audit.LogLogin(ctx, in.Email, actor, domain.OutcomeFailure, in.Network, reason)
}

// loginError records a login that broke on a store or the token issuer and
// returns err unchanged.
func (s *AuthService) loginError(ctx context.Context, in ports.LoginInput, actor *domain.AuditActor, err error) error {
	metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
	s.audit.LogLogin(ctx, in.Email, actor, domain.OutcomeError, in.Network, err.Error())
	return err
}

// rejected audits an account change that did not take place.
func (s *AuthService) rejected(ctx context.Context, actor *domain.AuditActor, action, userID string, network domain.NetworkContext, err error) {
	s.audit.Log(ctx, ports.AuditEntry{
		Actor:        actor,
		Action:       action,
		Resource:     "user",
		ResourceID:   userID,
		Outcome:      domain.OutcomeOf(err),
		Network:      network,
		ErrorMessage: err.Error(),
	})
}

// Refresh rotates a refresh token. Every token failure is returned as is so
// the caller can log it; the HTTP layer maps all of them to 401.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, network domain.NetworkContext) (*domain.TokenPair, error) {
	pair, user, err := s.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(refreshOutcome(err)).Inc()
		s.audit.LogTokenRefresh(ctx, nil, domain.OutcomeOf(err), network, err.Error())
		return nil, err
	}
	metrics.TokenRefreshesTotal.WithLabelValues("success").Inc()
	s.audit.LogTokenRefresh(ctx, user.Actor(), domain.OutcomeSuccess, network, "")
	return pair, nil
}

func refreshOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, domain.ErrTokenExpired):
		return "expired"
	case errors.Is(err, domain.ErrInvalidToken):
		return "invalid"
	default:
		return "error"
	}
}

// Logout kills every session of the caller.
func (s *AuthService) Logout(ctx context.Context, actor domain.AccessClaims, network domain.NetworkContext) error {
	if err := s.tokens.Logout(ctx, actor.UserID); err != nil {
		return err
	}
	s.audit.LogLogout(ctx, actor.Actor(), network)
	return nil
}

// ChangeRole moves a user to a new role. The actor may neither grant a role
// above its own level nor modify a user ranked above it.
func (s *AuthService) ChangeRole(ctx context.Context, in ports.ChangeRoleInput) (*domain.UserSummary, error) {
	summary, err := s.changeRole(ctx, in)
	if err != nil {
		actor := in.Actor.Actor()
		s.rejected(ctx, &actor, domain.ActionRoleChanged, in.UserID, in.Network, err)
	}
	return summary, err
}

func (s *AuthService) changeRole(ctx context.Context, in ports.ChangeRoleInput) (*domain.UserSummary, error) {
	if !in.Role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	if !in.Actor.Role.AtLeast(in.Role) {
		return nil, domain.ErrForbidden
	}

	target, err := s.users.FindByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if target.Role.Level() > in.Actor.Role.Level() {
		return nil, domain.ErrForbidden
	}
	if target.Role == in.Role {
		summary := target.Summary()
		return &summary, nil
	}

	oldRole := target.Role
	updated, err := s.users.UpdateRole(ctx, target.ID, in.Role, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("change role: %w", err)
	}

	s.publisher.Publish(ctx, domain.ExchangeEvents, domain.EventUserRoleChanged, domain.UserRoleChangedPayload{
		UserID:    updated.ID,
		Email:     updated.Email,
		OldRole:   oldRole,
		NewRole:   updated.Role,
		ChangedBy: in.Actor.UserID,
	}, domain.CorrelationID(ctx))
	s.audit.LogRoleChanged(ctx, in.Actor.Actor(), updated.ID, oldRole, updated.Role, in.Network)

	s.log.Info().
		Str("user_id", updated.ID).
		Str("old_role", string(oldRole)).
		Str("new_role", string(updated.Role)).
		Str("changed_by", in.Actor.UserID).
		Msg("role changed")

	summary := updated.Summary()
	return &summary, nil
}

// UpdateProfile changes a user's name. Users may edit themselves; staff at
// hospital_admin or above may edit anyone not ranked above them.
func (s *AuthService) UpdateProfile(ctx context.Context, in ports.UpdateProfileInput) (*domain.UserSummary, error) {
	summary, err := s.updateProfile(ctx, in)
	if err != nil {
		actor := in.Actor.Actor()
		s.rejected(ctx, &actor, domain.ActionUserUpdated, in.UserID, in.Network, err)
	}
	return summary, err
}

func (s *AuthService) updateProfile(ctx context.Context, in ports.UpdateProfileInput) (*domain.UserSummary, error) {
	upd, ok := trimProfile(in.FirstName, in.LastName)
	if !ok {
		return nil, domain.ErrInvalidProfile
	}

	target, err := s.users.FindByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if in.Actor.UserID != target.ID {
		if !in.Actor.Role.AtLeast(domain.RoleHospitalAdmin) || target.Role.Level() > in.Actor.Role.Level() {
			return nil, domain.ErrForbidden
		}
	}

	before := target.Summary()
	updated, err := s.users.UpdateProfile(ctx, target.ID, upd, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	after := updated.Summary()

	s.publisher.Publish(ctx, domain.ExchangeEvents, domain.EventUserUpdated, domain.UserUpdatedPayload{
		UserID:    updated.ID,
		FirstName: upd.FirstName,
		LastName:  upd.LastName,
	}, domain.CorrelationID(ctx))
	s.audit.LogUserUpdated(ctx, in.Actor.Actor(), updated.ID, before, after, in.Network)

	return &after, nil
}

// trimProfile drops nil fields and rejects blank names. At least one field
// must remain.
func trimProfile(first, last *string) (ports.ProfileUpdate, bool) {
	var upd ports.ProfileUpdate
	var ok bool
	if upd.FirstName, ok = trimmed(first); !ok {
		return upd, false
	}
	if upd.LastName, ok = trimmed(last); !ok {
		return upd, false
	}
	return upd, upd.FirstName != nil || upd.LastName != nil
}

func trimmed(v *string) (*string, bool) {
	if v == nil {
		return nil, true
	}
	t := strings.TrimSpace(*v)
	return &t, t != ""
}

func (s *AuthService) Profile(ctx context.Context, userID string) (*domain.UserSummary, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary := user.Summary()
	return &summary, nil
}
