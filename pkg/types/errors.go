package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrInvalidID        = errors.New("id must be 1-64 printable characters without whitespace")
	ErrInvalidRole      = errors.New("invalid role: must be 'teacher' or 'student'")
	ErrInvalidStatus    = errors.New("invalid status: must be 'present' or 'absent'")
	ErrInvalidPayload   = errors.New("invalid event payload")
	ErrInvalidClassName = errors.New("class name must be 2-100 characters")
)
