package handler

import (
	"errors"
	"net/http"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
)

// ErrorStatus maps a domain error to its HTTP status and client message.
// ok is false for errors that must be logged and answered with 500.
func ErrorStatus(err error) (status int, msg string, ok bool) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Error(), true
	case errors.Is(err, domain.ErrAccountLocked):
		return http.StatusUnauthorized, domain.ErrAccountLocked.Error(), true
	case errors.Is(err, domain.ErrMissingCredentials):
		return http.StatusBadRequest, domain.ErrMissingCredentials.Error(), true
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid email or password", true
	case errors.Is(err, domain.ErrAccountDeactivated):
		return http.StatusForbidden, "account is deactivated", true
	case errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrTokenRevoked),
		errors.Is(err, domain.ErrTokenExpired),
		errors.Is(err, domain.ErrTokenNotFound):
		return http.StatusUnauthorized, "unauthorized", true
	case errors.Is(err, domain.ErrDuplicateEmail):
		return http.StatusConflict, "email already registered", true
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "access forbidden", true
	case errors.Is(err, domain.ErrInvalidRole):
		return http.StatusBadRequest, "invalid role", true
	case errors.Is(err, domain.ErrInvalidProfile):
		return http.StatusBadRequest, domain.ErrInvalidProfile.Error(), true
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, "user not found", true
	}
	return http.StatusInternalServerError, "internal server error", false
}
