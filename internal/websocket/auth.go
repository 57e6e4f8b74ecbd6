package websocket

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is how long an issued connection token stays valid.
const DefaultTokenTTL = time.Hour

const tokenIssuer = "clubnotify"

// ErrUnauthorized is returned when a connection is not allowed to act as
// the requested user.
var ErrUnauthorized = errors.New("unauthorized")

// UserVerifier decides whether r may connect as userID.
type UserVerifier func(r *http.Request, userID string) error

// TokenVerifier accepts connections carrying ?token=, an HS256 token signed
// with secret whose subject is the requested user_id.
func TokenVerifier(secret []byte) UserVerifier {
	return func(r *http.Request, userID string) error {
		raw := r.URL.Query().Get("token")
		if raw == "" {
			return fmt.Errorf("%w: missing token", ErrUnauthorized)
		}

		token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}

		claims, ok := token.Claims.(*jwt.RegisteredClaims)
		if !ok || !token.Valid || claims.Subject != userID {
			return fmt.Errorf("%w: token is not for this user", ErrUnauthorized)
		}
		return nil
	}
}

// IssueToken mints a connection token for userID.
func IssueToken(secret []byte, userID string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	expires := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}
