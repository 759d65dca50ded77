package ports

import (
	"context"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
)

// LoginInput is what the transport layer hands to AuthService.Login.
type LoginInput struct {
	Email    string
	Password string
	Network  domain.NetworkContext
}

// LoginResult carries the fresh token pair and a hash-free view of the user.
type LoginResult struct {
	Tokens domain.TokenPair
	User   domain.UserSummary
}

// RegisterInput carries a new account. An empty Role means domain.DefaultRole.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      domain.Role
	Actor     *domain.AuditActor // nil for self-registration
	Network   domain.NetworkContext
}

// RegisterResult never includes the password hash.
type RegisterResult struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// ChangeRoleInput asks for UserID to be moved to Role by Actor.
type ChangeRoleInput struct {
	Actor   domain.AccessClaims
	UserID  string
	Role    domain.Role
	Network domain.NetworkContext
}

// UpdateProfileInput asks for UserID's name to change. Nil fields stay as they are.
type UpdateProfileInput struct {
	Actor     domain.AccessClaims
	UserID    string
	FirstName *string
	LastName  *string
	Network   domain.NetworkContext
}

// AuthService is the credential and lockout use-case boundary.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*RegisterResult, error)
	Login(ctx context.Context, in LoginInput) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string, network domain.NetworkContext) (*domain.TokenPair, error)
	Logout(ctx context.Context, actor domain.AccessClaims, network domain.NetworkContext) error
	ChangeRole(ctx context.Context, in ChangeRoleInput) (*domain.UserSummary, error)
	UpdateProfile(ctx context.Context, in UpdateProfileInput) (*domain.UserSummary, error)
	Profile(ctx context.Context, userID string) (*domain.UserSummary, error)
}

// TokenIssuer mints, rotates and revokes token pairs.
type TokenIssuer interface {
	Issue(ctx context.Context, user *domain.User) (*domain.TokenPair, error)
	// Refresh redeems a refresh token once and returns the successor pair
	// together with the user it was issued for.
	Refresh(ctx context.Context, rawRefreshToken string) (*domain.TokenPair, *domain.User, error)
	Logout(ctx context.Context, userID string) error
}

// AccessTokenVerifier validates bearer tokens for the HTTP layer.
type AccessTokenVerifier interface {
	ParseAccessToken(raw string) (*domain.AccessClaims, error)
}
