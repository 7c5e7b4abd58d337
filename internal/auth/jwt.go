package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned for opaque (non-JWT) access tokens
var ErrNotJWT = errors.New("token is not a JWT")

// TokenExpiry reads the exp claim of a JWT access token without verifying
// its signature. The signing keys belong to the remote auth API; this is only
// used to drop sessions early, the API stays the authority.
// Tokens without an exp claim return the zero time and no error.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, ErrNotJWT
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

// TokenExpired reports whether token is a JWT whose exp lies before now.
// Opaque tokens and tokens without exp are never considered expired.
func TokenExpired(token string, now time.Time) bool {
	exp, err := TokenExpiry(token)
	if err != nil || exp.IsZero() {
		return false
	}
	return !now.Before(exp)
}
