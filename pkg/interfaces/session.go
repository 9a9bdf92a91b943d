package interfaces

import (
	"context"

	"rollcall/pkg/types"
)

// SessionController is the entry point used by the authorized start action
// ARCHITECTURAL DISCOVERY: callers outside the event loop never touch the
// session directly, they ask its owner
type SessionController interface {
	// StartSession opens a session for an already-authorized class
	StartSession(ctx context.Context, classID string) (*types.Session, error)

	// CurrentSession returns a copy of the active session, if any
	CurrentSession() (*types.Session, bool)
}
