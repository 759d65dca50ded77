package domain

import "time"

// RefreshToken is the persisted record of an issued refresh token.
// Only a hash of the signed token is stored, never the raw value.
type RefreshToken struct {
	JTI       string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Active reports whether the record can still be redeemed at now.
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && t.ExpiresAt.After(now)
}

// TokenPair is what a successful login or refresh hands back.
type TokenPair struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresInSeconds int64  `json:"expires_in"`
	TokenType        string `json:"token_type"`
}

// AccessClaims is the verified content of an access token.
type AccessClaims struct {
	UserID    string
	Email     string
	Role      Role
	FirstName string
	LastName  string
	JTI       string
	ExpiresAt time.Time
}
