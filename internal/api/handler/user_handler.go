package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/ports"
)

// UserHandler serves the administrative user routes.
type UserHandler struct {
	authService ports.AuthService
}

func NewUserHandler(authService ports.AuthService) *UserHandler {
	return &UserHandler{authService: authService}
}

type createUserRequest struct {
	registerRequest
	Role string `json:"role" validate:"required"`
}

type updateProfileRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name"  validate:"omitempty,max=100"`
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// CreateUser registers an account with an explicit role. The caller may not
// create a role ranked above its own.
func (h *UserHandler) CreateUser(c echo.Context) error {
	claims, err := ctxClaims(c)
	if err != nil {
		return err
	}

	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return respondError(c, err)
	}
	if !claims.Role.AtLeast(role) {
		return respondError(c, domain.ErrForbidden)
	}

	actor := claims.Actor()
	res, err := h.authService.Register(c.Request().Context(), ports.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      role,
		Actor:     &actor,
		Network:   networkContext(c),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// ChangeRole handles PATCH /users/:id/role.
func (h *UserHandler) ChangeRole(c echo.Context) error {
	claims, err := ctxClaims(c)
	if err != nil {
		return err
	}

	var req changeRoleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return respondError(c, err)
	}

	summary, err := h.authService.ChangeRole(c.Request().Context(), ports.ChangeRoleInput{
		Actor:   *claims,
		UserID:  c.Param("id"),
		Role:    role,
		Network: networkContext(c),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

// UpdateProfile handles PATCH /users/:id. Permission checks happen in the
// service since users may edit their own record.
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	claims, err := ctxClaims(c)
	if err != nil {
		return err
	}

	var req updateProfileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}

	summary, err := h.authService.UpdateProfile(c.Request().Context(), ports.UpdateProfileInput{
		Actor:     *claims,
		UserID:    c.Param("id"),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Network:   networkContext(c),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}
