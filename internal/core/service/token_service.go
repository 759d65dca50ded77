package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/ports"
)

// TokenConfig holds signing secrets and lifetimes. The two secrets must differ.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type accessTokenClaims struct {
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	jwt.RegisteredClaims
}

type refreshTokenClaims struct {
	jwt.RegisteredClaims
}

// TokenService mints access/refresh pairs and rotates refresh tokens.
type TokenService struct {
	tokens ports.RefreshTokenRepository
	users  ports.UserRepository
	cfg    TokenConfig
	now    func() time.Time
	log    zerolog.Logger
}

func NewTokenService(tokens ports.RefreshTokenRepository, users ports.UserRepository, cfg TokenConfig, log zerolog.Logger) *TokenService {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &TokenService{tokens: tokens, users: users, cfg: cfg, now: time.Now, log: log}
}

// Issue signs a new pair for user and persists the refresh-token record.
func (s *TokenService) Issue(ctx context.Context, user *domain.User) (*domain.TokenPair, error) {
	now := s.now().UTC()

	access := accessTokenClaims{
		Email:     user.Email,
		Role:      user.Role,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString([]byte(s.cfg.AccessSecret))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshExp := now.Add(s.cfg.RefreshTTL)
	refresh := refreshTokenClaims{jwt.RegisteredClaims{
		Subject:   user.ID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(refreshExp),
	}}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString([]byte(s.cfg.RefreshSecret))
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	record := &domain.RefreshToken{
		JTI:       refresh.ID,
		UserID:    user.ID,
		TokenHash: hashToken(refreshToken),
		ExpiresAt: refreshExp,
		CreatedAt: now,
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		ExpiresInSeconds: int64(s.cfg.AccessTTL / time.Second),
		TokenType:        "Bearer",
	}, nil
}

// Refresh redeems raw exactly once. The presented record is revoked before
// its successor is minted; a concurrent second redemption loses the
// conditional revoke and sees domain.ErrTokenRevoked.
func (s *TokenService) Refresh(ctx context.Context, raw string) (*domain.TokenPair, *domain.User, error) {
	claims := &refreshTokenClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, secretFunc(s.cfg.RefreshSecret), s.parserOptions()...); err != nil {
		s.log.Debug().Err(err).Msg("refresh token rejected")
		return nil, nil, domain.ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, nil, domain.ErrInvalidToken
	}

	rec, err := s.tokens.Find(ctx, claims.ID, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return nil, nil, domain.ErrInvalidToken
		}
		return nil, nil, fmt.Errorf("find refresh token: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(rec.TokenHash), []byte(hashToken(raw))) != 1 {
		return nil, nil, domain.ErrInvalidToken
	}
	if !rec.Active(s.now()) {
		if rec.Revoked {
			s.log.Warn().Str("user_id", rec.UserID).Str("jti", rec.JTI).Msg("revoked refresh token presented")
			return nil, nil, domain.ErrTokenRevoked
		}
		return nil, nil, domain.ErrTokenExpired
	}

	won, err := s.tokens.Revoke(ctx, rec.JTI)
	if err != nil {
		return nil, nil, fmt.Errorf("revoke refresh token: %w", err)
	}
	if !won {
		return nil, nil, domain.ErrTokenRevoked
	}

	user, err := s.users.FindByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, nil, domain.ErrInvalidToken
		}
		return nil, nil, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		return nil, nil, domain.ErrInvalidToken
	}

	pair, err := s.Issue(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// Logout revokes every active refresh token of userID.
func (s *TokenService) Logout(ctx context.Context, userID string) error {
	n, err := s.tokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	s.log.Info().Str("user_id", userID).Int64("revoked", n).Msg("refresh tokens revoked")
	return nil
}

// ParseAccessToken verifies raw against the access secret.
func (s *TokenService) ParseAccessToken(raw string) (*domain.AccessClaims, error) {
	claims := &accessTokenClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, secretFunc(s.cfg.AccessSecret), s.parserOptions()...); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrInvalidToken
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return nil, domain.ErrInvalidToken
	}

	out := &domain.AccessClaims{
		UserID:    claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
		JTI:       claims.ID,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func (s *TokenService) parserOptions() []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
}

func secretFunc(secret string) jwt.Keyfunc {
	return func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}
}

// hashToken returns the hex SHA-256 of a signed token. Only this value is stored.
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
