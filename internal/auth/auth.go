// Package auth verifies the bearer tokens that carry a caller's identity.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"rollcall/pkg/types"
)

// Claims is the token body: the user's id and protocol role.
type Claims struct {
	UserID string     `json:"userid"`
	Role   types.Role `json:"role"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens against a shared secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
	now    func() time.Time
}

// NewVerifier creates a verifier for the given secret.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	v := &Verifier{secret: []byte(secret), now: time.Now}
	v.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return v.now() }),
	)
	return v, nil
}

// Verify parses the token and returns the identity it carries.
func (v *Verifier) Verify(token string) (types.Identity, error) {
	if token == "" {
		return types.Identity{}, ErrMissingToken
	}

	var claims Claims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return types.Identity{}, mapJWTError(err)
	}

	if !types.IsValidID(claims.UserID) || !types.IsValidRole(claims.Role) {
		return types.Identity{}, ErrInvalidClaims
	}

	return types.Identity{ID: claims.UserID, Role: claims.Role}, nil
}

// Sign issues a token for identity valid for ttl; a zero ttl never expires.
func (v *Verifier) Sign(identity types.Identity, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		UserID: identity.ID,
		Role:   identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// mapJWTError translates jwt library errors to package errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return fmt.Errorf("%w: expired", ErrInvalidToken)
	}
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return fmt.Errorf("%w: bad signature", ErrInvalidToken)
	}
	return fmt.Errorf("%w: %v", ErrInvalidToken, err)
}

// TokenFromQuery extracts a token passed as ?token=. Browsers sometimes
// send it quoted, so surrounding quotes and whitespace are stripped.
func TokenFromQuery(r *http.Request) string {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	token = strings.Trim(token, `"'`)
	return strings.TrimSpace(token)
}

// TokenFromHeader extracts a token from "Authorization: Bearer <token>".
func TokenFromHeader(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// TokenFromRequest prefers the query parameter and falls back to the header.
func TokenFromRequest(r *http.Request) string {
	if token := TokenFromQuery(r); token != "" {
		return token
	}
	return TokenFromHeader(r)
}
