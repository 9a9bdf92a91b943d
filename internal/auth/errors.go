package auth

import "errors"

// Token verification errors
var (
	ErrMissingToken  = errors.New("missing token")
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidClaims = errors.New("token claims missing user id or role")
	ErrEmptySecret   = errors.New("jwt secret cannot be empty")
)

// Password errors
var (
	ErrPasswordMismatch = errors.New("password does not match")
	ErrPasswordTooLong  = errors.New("password exceeds 72 bytes")
)
