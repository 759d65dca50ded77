package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/api/middleware"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/ports"
)

type stubAuthService struct {
	registerFn   func(ctx context.Context, in ports.RegisterInput) (*ports.RegisterResult, error)
	loginFn      func(ctx context.Context, in ports.LoginInput) (*ports.LoginResult, error)
	refreshFn    func(ctx context.Context, token string) (*domain.TokenPair, error)
	logoutFn     func(ctx context.Context, actor domain.AccessClaims) error
	changeRoleFn func(ctx context.Context, in ports.ChangeRoleInput) (*domain.UserSummary, error)
	updateFn     func(ctx context.Context, in ports.UpdateProfileInput) (*domain.UserSummary, error)
	profileFn    func(ctx context.Context, userID string) (*domain.UserSummary, error)
}

func (s *stubAuthService) Register(ctx context.Context, in ports.RegisterInput) (*ports.RegisterResult, error) {
	return s.registerFn(ctx, in)
}

func (s *stubAuthService) Login(ctx context.Context, in ports.LoginInput) (*ports.LoginResult, error) {
	return s.loginFn(ctx, in)
}

func (s *stubAuthService) Refresh(ctx context.Context, token string, _ domain.NetworkContext) (*domain.TokenPair, error) {
	return s.refreshFn(ctx, token)
}

func (s *stubAuthService) Logout(ctx context.Context, actor domain.AccessClaims, _ domain.NetworkContext) error {
	return s.logoutFn(ctx, actor)
}

func (s *stubAuthService) ChangeRole(ctx context.Context, in ports.ChangeRoleInput) (*domain.UserSummary, error) {
	return s.changeRoleFn(ctx, in)
}

func (s *stubAuthService) UpdateProfile(ctx context.Context, in ports.UpdateProfileInput) (*domain.UserSummary, error) {
	return s.updateFn(ctx, in)
}

func (s *stubAuthService) Profile(ctx context.Context, userID string) (*domain.UserSummary, error) {
	return s.profileFn(ctx, userID)
}

func newTestContext(method, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("User-Agent", "portal-test")
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func withClaims(c echo.Context, claims *domain.AccessClaims) {
	c.Set(middleware.ClaimsKey, claims)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	return resp
}

func TestAuthHandler_Register_Success(t *testing.T) {
	stub := &stubAuthService{
		registerFn: func(_ context.Context, in ports.RegisterInput) (*ports.RegisterResult, error) {
			if in.Email != "alice@example.com" || in.Role != domain.RolePatient || in.Actor != nil {
				t.Fatalf("unexpected input: %+v", in)
			}
			if in.Network.UserAgent != "portal-test" {
				t.Fatalf("network context not passed: %+v", in.Network)
			}
			return &ports.RegisterResult{ID: "u1", Email: in.Email}, nil
		},
	}
	c, rec := newTestContext(http.MethodPost, "/auth/register",
		`{"email":"alice@example.com","password":"s3cret-pass","first_name":"Alice","last_name":"Smith"}`)

	if err := NewAuthHandler(stub).Register(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	resp := decodeBody(t, rec)
	if resp["id"] != "u1" || resp["email"] != "alice@example.com" {
		t.Fatalf("unexpected body: %v", resp)
	}
	if _, leaked := resp["password_hash"]; leaked {
		t.Fatalf("response must not carry the hash")
	}
}

func TestAuthHandler_Register_DuplicateEmail(t *testing.T) {
	stub := &stubAuthService{
		registerFn: func(context.Context, ports.RegisterInput) (*ports.RegisterResult, error) {
			return nil, domain.ErrDuplicateEmail
		},
	}
	c, rec := newTestContext(http.MethodPost, "/auth/register",
		`{"email":"bob@example.com","password":"s3cret-pass","first_name":"Bob","last_name":"Jones"}`)

	_ = NewAuthHandler(stub).Register(c)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestAuthHandler_Register_InvalidPayload(t *testing.T) {
	stub := &stubAuthService{
		registerFn: func(context.Context, ports.RegisterInput) (*ports.RegisterResult, error) {
			t.Fatalf("should not be called")
			return nil, nil
		},
	}

	for _, body := range []string{
		"not-json",
		`{"email":"not-an-email","password":"s3cret-pass","first_name":"A","last_name":"B"}`,
		`{"email":"a@example.com","password":"short","first_name":"A","last_name":"B"}`,
	} {
		c, rec := newTestContext(http.MethodPost, "/auth/register", body)
		_ = NewAuthHandler(stub).Register(c)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestAuthHandler_Login_Success(t *testing.T) {
	stub := &stubAuthService{
		loginFn: func(_ context.Context, in ports.LoginInput) (*ports.LoginResult, error) {
			if in.Email != "alice@example.com" || in.Password != "secret" {
				t.Fatalf("unexpected args: %+v", in)
			}
			return &ports.LoginResult{
				Tokens: domain.TokenPair{AccessToken: "access", RefreshToken: "refresh", ExpiresInSeconds: 900, TokenType: "Bearer"},
				User:   domain.UserSummary{ID: "u1", Email: in.Email, Role: domain.RoleDoctor},
			}, nil
		},
	}
	c, rec := newTestContext(http.MethodPost, "/auth/login", `{"email":"alice@example.com","password":"secret"}`)

	if err := NewAuthHandler(stub).Login(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	resp := decodeBody(t, rec)
	if resp["access_token"] != "access" || resp["refresh_token"] != "refresh" || resp["expires_in"] != float64(900) {
		t.Fatalf("unexpected token fields: %v", resp)
	}
	user, ok := resp["user"].(map[string]any)
	if !ok || user["id"] != "u1" || user["role"] != "doctor" {
		t.Fatalf("unexpected user payload: %+v", resp["user"])
	}
}

func TestAuthHandler_Login_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{name: "bad password", err: domain.ErrInvalidCredentials, wantCode: http.StatusUnauthorized, wantMsg: "invalid email or password"},
		{name: "locked", err: domain.ErrAccountLocked, wantCode: http.StatusUnauthorized, wantMsg: "account temporarily locked, try again later"},
		{name: "deactivated", err: domain.ErrAccountDeactivated, wantCode: http.StatusForbidden, wantMsg: "account is deactivated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAuthService{
				loginFn: func(context.Context, ports.LoginInput) (*ports.LoginResult, error) { return nil, tt.err },
			}
			c, rec := newTestContext(http.MethodPost, "/auth/login", `{"email":"alice@example.com","password":"bad"}`)

			_ = NewAuthHandler(stub).Login(c)

			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			if got := decodeBody(t, rec)["error"]; got != tt.wantMsg {
				t.Fatalf("expected %q, got %q", tt.wantMsg, got)
			}
		})
	}
}

func TestAuthHandler_Login_UnexpectedErrorIsReturned(t *testing.T) {
	boom := errors.New("mongo down")
	stub := &stubAuthService{
		loginFn: func(context.Context, ports.LoginInput) (*ports.LoginResult, error) { return nil, boom },
	}
	c, _ := newTestContext(http.MethodPost, "/auth/login", `{"email":"alice@example.com","password":"pw"}`)

	if err := NewAuthHandler(stub).Login(c); !errors.Is(err, boom) {
		t.Fatalf("expected error to reach the central handler, got %v", err)
	}
}

func TestAuthHandler_Refresh_TokenErrorsLookAlike(t *testing.T) {
	for _, tokenErr := range []error{domain.ErrTokenRevoked, domain.ErrTokenExpired, domain.ErrInvalidToken, domain.ErrTokenNotFound} {
		stub := &stubAuthService{
			refreshFn: func(context.Context, string) (*domain.TokenPair, error) { return nil, tokenErr },
		}
		c, rec := newTestContext(http.MethodPost, "/auth/refresh", `{"refresh_token":"tok"}`)

		_ = NewAuthHandler(stub).Refresh(c)

		if rec.Code != http.StatusUnauthorized || decodeBody(t, rec)["error"] != "unauthorized" {
			t.Fatalf("%v: expected generic 401, got %d %s", tokenErr, rec.Code, rec.Body.String())
		}
	}
}

func TestAuthHandler_Refresh_Success(t *testing.T) {
	stub := &stubAuthService{
		refreshFn: func(_ context.Context, token string) (*domain.TokenPair, error) {
			if token != "tok" {
				t.Fatalf("unexpected token %s", token)
			}
			return &domain.TokenPair{AccessToken: "a2", RefreshToken: "r2", TokenType: "Bearer"}, nil
		},
	}
	c, rec := newTestContext(http.MethodPost, "/auth/refresh", `{"refresh_token":"tok"}`)

	if err := NewAuthHandler(stub).Refresh(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK || decodeBody(t, rec)["refresh_token"] != "r2" {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	var loggedOut string
	stub := &stubAuthService{
		logoutFn: func(_ context.Context, actor domain.AccessClaims) error {
			loggedOut = actor.UserID
			return nil
		},
	}
	c, rec := newTestContext(http.MethodPost, "/auth/logout", "")
	withClaims(c, &domain.AccessClaims{UserID: "u1", Role: domain.RoleNurse})

	if err := NewAuthHandler(stub).Logout(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent || loggedOut != "u1" {
		t.Fatalf("expected 204 for u1, got %d for %q", rec.Code, loggedOut)
	}
}

func TestAuthHandler_Me_RequiresClaims(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/auth/me", "")

	err := NewAuthHandler(&stubAuthService{}).Me(c)

	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestAuthHandler_Me(t *testing.T) {
	stub := &stubAuthService{
		profileFn: func(_ context.Context, userID string) (*domain.UserSummary, error) {
			return &domain.UserSummary{ID: userID, Email: "n@example.com", Role: domain.RoleNurse}, nil
		},
	}
	c, rec := newTestContext(http.MethodGet, "/auth/me", "")
	withClaims(c, &domain.AccessClaims{UserID: "u7", Role: domain.RoleNurse})

	if err := NewAuthHandler(stub).Me(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK || decodeBody(t, rec)["id"] != "u7" {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}
