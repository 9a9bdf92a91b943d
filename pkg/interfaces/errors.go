package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrClassNotFound = errors.New("class not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrEmailTaken    = errors.New("email already registered")
	ErrUnauthorized  = errors.New("unauthorized access")
)
