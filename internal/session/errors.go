package session

import "errors"

// Session state errors
var (
	ErrNoActiveSession = errors.New("no active attendance session")
	ErrMissingClassID  = errors.New("active session has no class id")
	ErrInvalidClassID  = errors.New("class id must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidStudent  = errors.New("invalid student id")
	ErrInvalidStatus   = errors.New("invalid status: must be 'present' or 'absent'")
)
