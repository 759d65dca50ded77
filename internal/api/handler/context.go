package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/api/middleware"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
)

// ctxClaims returns the caller's verified claims. Their absence means the
// route was registered without the Auth middleware.
func ctxClaims(c echo.Context) (*domain.AccessClaims, error) {
	claims, ok := middleware.Claims(c)
	if !ok || claims.UserID == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return claims, nil
}

func networkContext(c echo.Context) domain.NetworkContext {
	return domain.NetworkContext{
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}

// respondError renders known domain errors. Anything else is returned so
// the central error handler logs it and answers 500.
func respondError(c echo.Context, err error) error {
	status, msg, ok := ErrorStatus(err)
	if !ok {
		return err
	}
	return c.JSON(status, map[string]string{"error": msg})
}
