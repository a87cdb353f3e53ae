// Package auth implements an HS256 JWT auth gate: claims are free-form,
// handed to the guest untouched.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService issues and verifies HS256-signed tokens against a single
// configured secret.
type TokenService struct {
	secret []byte
}

// NewTokenService returns a TokenService for secret. An empty secret is a
// caller error reflected in the server's AuthMisconfigured path, not here.
func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret)}
}

// IssueToken signs a token for subject carrying extra claims plus the
// registered sub/iat/exp claims.
func (s *TokenService) IssueToken(subject string, extra map[string]any, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// VerifyToken parses and verifies tokenString, returning the decoded claims
// as a free-form map: no schema validation beyond signature verification.
func (s *TokenService) VerifyToken(tokenString string) (map[string]any, error) {
	token, err := jwt.ParseWithClaims(tokenString, jwt.MapClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return map[string]any(claims), nil
}
