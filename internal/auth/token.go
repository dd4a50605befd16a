package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPair is the platform credential set. The access token is a JWT that
// carries an exp claim; the refresh token is opaque.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// IsZero reports whether the pair carries no credentials at all.
func (p TokenPair) IsZero() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// ExpiresAt decodes the exp claim of an access token without verifying its
// signature. The second return value is false when the token cannot be
// decoded or has no exp claim.
func ExpiresAt(accessToken string) (time.Time, bool) {
	if accessToken == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// IsExpired reports whether accessToken is expired at now, treating tokens
// that expire within leeway as already expired. Tokens that cannot be decoded
// are expired.
func IsExpired(accessToken string, now time.Time, leeway time.Duration) bool {
	exp, ok := ExpiresAt(accessToken)
	if !ok {
		return true
	}
	return !now.Add(leeway).Before(exp)
}
