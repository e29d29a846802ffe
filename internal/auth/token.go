// Package auth implements the stateless session-token service. Tokens are
// signed HS256 JWTs carrying the user id and an expiry. Expiry is the only
// invalidation mechanism; there is no server-side revocation.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token verification failures. These are distinguished for diagnostics only;
// the API boundary collapses all of them into a generic unauthorized outcome.
var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenSignature = errors.New("token signature invalid")
)

// TokenService issues and verifies session tokens. It holds only the signing
// secret and the token lifetime, both fixed at construction.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

const defaultTokenTTL = 24 * time.Hour

// NewTokenService constructs a TokenService with the given secret and
// lifetime. A non-positive ttl falls back to 24 hours.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

// Issue mints a signed token for the given user id.
func (s *TokenService) Issue(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates a token and returns the user id it carries.
// Failures map to ErrTokenExpired, ErrTokenSignature, or ErrTokenMalformed.
func (s *TokenService) Verify(tokenString string) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenSignature
		}
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", ErrTokenSignature
		default:
			return "", ErrTokenMalformed
		}
	}
	if !token.Valid {
		return "", ErrTokenMalformed
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", ErrTokenMalformed
	}
	return subject, nil
}
