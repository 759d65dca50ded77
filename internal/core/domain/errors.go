package domain

import "errors"

// Credential errors.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrMissingCredentials = errors.New("email and password are required")
	ErrAccountDeactivated = errors.New("account is deactivated")
	ErrAccountLocked      = errors.New("account temporarily locked, try again later")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidRole        = errors.New("invalid role")
	ErrForbidden          = errors.New("access forbidden")
	ErrInvalidProfile     = errors.New("first and last name must not be blank")
)

// Token errors. HTTP callers see every one of these as 401.
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenRevoked  = errors.New("token revoked")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenNotFound = errors.New("refresh token not found")
)

// Messaging errors. None of these reach a business caller.
var (
	ErrPublishFailed   = errors.New("publish failed")
	ErrProcessing      = errors.New("event processing failed")
	ErrMalformedEvent  = errors.New("malformed event envelope")
	ErrProjectionStale = errors.New("projection not found")
	ErrAlreadyApplied  = errors.New("event already applied")
)
