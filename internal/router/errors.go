package router

import "errors"

// Protocol errors. The text of each is what the offending client receives
// in its ERROR frame.
var (
	ErrInvalidFormat     = errors.New("Invalid message format")
	ErrEmptyMessage      = errors.New("Empty message")
	ErrUnknownEvent      = errors.New("Unknown event")
	ErrNoActiveSession   = errors.New("No active attendance session")
	ErrTeacherOnly       = errors.New("Forbidden, teacher event only")
	ErrStudentOnly       = errors.New("Forbidden, student event only")
	ErrRateLimitExceeded = errors.New("Rate limit exceeded")
	ErrRosterUnavailable = errors.New("Could not load class roster")
	ErrPersistIncomplete = errors.New("Attendance not fully persisted, session kept")
)
