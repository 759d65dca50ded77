package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/ports"
)

// ClaimsKey is the echo context key holding *domain.AccessClaims.
const ClaimsKey = "claims"

// Auth validates the bearer access token and injects its claims into the
// context. Every failure answers 401 with the same message so expired,
// revoked and forged tokens cannot be told apart.
func Auth(verifier ports.AccessTokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			claims, err := verifier.ParseAccessToken(strings.TrimSpace(parts[1]))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}

			c.Set(ClaimsKey, claims)
			c.Set("user_id", claims.UserID)
			c.Set("role", string(claims.Role))

			return next(c)
		}
	}
}

// Claims returns the claims stored by Auth.
func Claims(c echo.Context) (*domain.AccessClaims, bool) {
	claims, ok := c.Get(ClaimsKey).(*domain.AccessClaims)
	return claims, ok && claims != nil
}
