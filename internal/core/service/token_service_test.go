package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
)

type stubTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.RefreshToken
	err    error // returned by Create and Find when set
}

func newStubTokenRepo() *stubTokenRepo {
	return &stubTokenRepo{tokens: make(map[string]*domain.RefreshToken)}
}

func (r *stubTokenRepo) Create(_ context.Context, t *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	clone := *t
	r.tokens[t.JTI] = &clone
	return nil
}

func (r *stubTokenRepo) Find(_ context.Context, jti, userID string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	t, ok := r.tokens[jti]
	if !ok || t.UserID != userID {
		return nil, domain.ErrTokenNotFound
	}
	clone := *t
	return &clone, nil
}

func (r *stubTokenRepo) Revoke(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[jti]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	return true, nil
}

func (r *stubTokenRepo) RevokeAllForUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			n++
		}
	}
	return n, nil
}

func testTokenConfig() TokenConfig {
	return TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}
}

func newTokenFixture(t *testing.T) (*TokenService, *stubTokenRepo, *domain.User) {
	t.Helper()
	users := newStubUserRepo()
	user, err := users.Create(context.Background(), &domain.User{
		Email: "kim@example.com", FirstName: "Kim", LastName: "Lee", Role: domain.RoleDoctor, IsActive: true,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	tokens := newStubTokenRepo()
	return NewTokenService(tokens, users, testTokenConfig(), zerolog.Nop()), tokens, user
}

func refreshJTI(t *testing.T, raw string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		t.Fatalf("parse refresh token: %v", err)
	}
	return claims.ID
}

func TestTokenService_Issue_ClaimsAndRecord(t *testing.T) {
	svc, tokens, user := newTokenFixture(t)

	pair, err := svc.Issue(context.Background(), user)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if pair.TokenType != "Bearer" || pair.ExpiresInSeconds != 900 {
		t.Fatalf("unexpected pair metadata: %+v", pair)
	}

	access := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(pair.AccessToken, access, func(*jwt.Token) (interface{}, error) {
		return []byte("access-secret"), nil
	}); err != nil {
		t.Fatalf("access token invalid: %v", err)
	}
	for _, key := range []string{"sub", "email", "role", "firstName", "lastName", "jti", "exp"} {
		if _, ok := access[key]; !ok {
			t.Fatalf("access token missing claim %q", key)
		}
	}
	if access["role"] != string(domain.RoleDoctor) {
		t.Fatalf("expected role doctor, got %v", access["role"])
	}

	refresh := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(pair.RefreshToken, refresh, func(*jwt.Token) (interface{}, error) {
		return []byte("refresh-secret"), nil
	}); err != nil {
		t.Fatalf("refresh token invalid: %v", err)
	}
	if _, ok := refresh["email"]; ok {
		t.Fatalf("refresh token must only carry sub and jti")
	}

	rec := tokens.tokens[refreshJTI(t, pair.RefreshToken)]
	if rec == nil {
		t.Fatalf("expected refresh token record to be stored")
	}
	if rec.TokenHash == pair.RefreshToken || rec.TokenHash != hashToken(pair.RefreshToken) {
		t.Fatalf("expected only the hash of the token to be stored")
	}
	if rec.UserID != user.ID || rec.Revoked {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestTokenService_Refresh_RoundTripYieldsNewJTI(t *testing.T) {
	svc, _, user := newTokenFixture(t)

	first, _ := svc.Issue(context.Background(), user)
	second, refreshedUser, err := svc.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if refreshedUser.ID != user.ID {
		t.Fatalf("unexpected user: %+v", refreshedUser)
	}
	if refreshJTI(t, first.RefreshToken) == refreshJTI(t, second.RefreshToken) {
		t.Fatalf("expected a different jti after rotation")
	}
}

func TestTokenService_Refresh_SingleUse(t *testing.T) {
	svc, _, user := newTokenFixture(t)

	pair, _ := svc.Issue(context.Background(), user)
	if _, _, err := svc.Refresh(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}
	if _, _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, domain.ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
}

func TestTokenService_Refresh_ConcurrentRedeemHasOneWinner(t *testing.T) {
	svc, _, user := newTokenFixture(t)
	pair, _ := svc.Issue(context.Background(), user)

	const racers = 8
	var wg sync.WaitGroup
	errs := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Refresh(context.Background(), pair.RefreshToken)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrTokenRevoked):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one successful redemption, got %d", wins)
	}
}

func TestTokenService_Refresh_Failures(t *testing.T) {
	svc, tokens, user := newTokenFixture(t)
	pair, _ := svc.Issue(context.Background(), user)

	t.Run("access token presented as refresh", func(t *testing.T) {
		if _, _, err := svc.Refresh(context.Background(), pair.AccessToken); !errors.Is(err, domain.ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, _, err := svc.Refresh(context.Background(), "not.a.jwt"); !errors.Is(err, domain.ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("unknown record", func(t *testing.T) {
		other, _ := svc.Issue(context.Background(), user)
		delete(tokens.tokens, refreshJTI(t, other.RefreshToken))
		if _, _, err := svc.Refresh(context.Background(), other.RefreshToken); !errors.Is(err, domain.ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("expired record", func(t *testing.T) {
		other, _ := svc.Issue(context.Background(), user)
		tokens.tokens[refreshJTI(t, other.RefreshToken)].ExpiresAt = time.Now().Add(-time.Minute)
		if _, _, err := svc.Refresh(context.Background(), other.RefreshToken); !errors.Is(err, domain.ErrTokenExpired) {
			t.Fatalf("expected ErrTokenExpired, got %v", err)
		}
	})

	t.Run("expired signature", func(t *testing.T) {
		svc.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
		defer func() { svc.now = time.Now }()
		if _, _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, domain.ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})
}

func TestTokenService_Refresh_InactiveUser(t *testing.T) {
	users := newStubUserRepo()
	user, _ := users.Create(context.Background(), &domain.User{Email: "x@example.com", Role: domain.RolePatient, IsActive: true})
	svc := NewTokenService(newStubTokenRepo(), users, testTokenConfig(), zerolog.Nop())

	pair, _ := svc.Issue(context.Background(), user)
	users.users[user.ID].IsActive = false

	if _, _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for inactive user, got %v", err)
	}
}

func TestTokenService_Logout_RevokesAll(t *testing.T) {
	svc, _, user := newTokenFixture(t)
	a, _ := svc.Issue(context.Background(), user)
	b, _ := svc.Issue(context.Background(), user)

	if err := svc.Logout(context.Background(), user.ID); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	for _, raw := range []string{a.RefreshToken, b.RefreshToken} {
		if _, _, err := svc.Refresh(context.Background(), raw); !errors.Is(err, domain.ErrTokenRevoked) {
			t.Fatalf("expected ErrTokenRevoked after logout, got %v", err)
		}
	}
}

func TestTokenService_ParseAccessToken(t *testing.T) {
	svc, _, user := newTokenFixture(t)
	pair, _ := svc.Issue(context.Background(), user)

	claims, err := svc.ParseAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken returned error: %v", err)
	}
	if claims.UserID != user.ID || claims.Email != user.Email || claims.Role != domain.RoleDoctor || claims.JTI == "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := svc.ParseAccessToken(pair.RefreshToken); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected refresh token to be rejected, got %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := svc.ParseAccessToken(pair.AccessToken); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}
