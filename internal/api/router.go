package api

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/api/handler"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/api/middleware"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/ports"
	ophttp "github.com/Joshsnailz/hospitalflow-sub002/internal/infrastructure/http"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/infrastructure/http/handlers"
)

// Dependencies is everything the public router needs.
type Dependencies struct {
	Auth     ports.AuthService
	Verifier ports.AccessTokenVerifier
	Checks   map[string]handlers.Check
	Log      zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.CorrelationID())
	e.Use(middleware.RequestLogger(deps.Log))
	e.Use(echomiddleware.BodyLimit("64K"))

	authHandler := handler.NewAuthHandler(deps.Auth)
	userHandler := handler.NewUserHandler(deps.Auth)
	requireAuth := middleware.Auth(deps.Verifier)

	// --- Auth routes ---
	auth := e.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", authHandler.Logout, requireAuth)
	auth.GET("/me", authHandler.Me, requireAuth)

	// --- Users ---
	e.PATCH("/users/:id", userHandler.UpdateProfile, requireAuth)

	admin := e.Group("/users", requireAuth, middleware.RequireRole(domain.RoleHospitalAdmin))
	admin.POST("", userHandler.CreateUser)
	admin.PATCH("/:id/role", userHandler.ChangeRole)

	// --- Health probes and metrics (no auth required) ---
	ophttp.Register(e, deps.Checks)

	return e
}
