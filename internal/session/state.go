package session

import (
	"log"
	"sync"
	"time"

	"rollcall/pkg/types"
)

// State holds the process-wide attendance session.
// ARCHITECTURAL DISCOVERY: at most one session exists per process; the hub
// goroutine is the only writer, the mutex lets HTTP handlers read snapshots
type State struct {
	mu      sync.RWMutex
	current *types.Session
	now     func() time.Time
}

// NewState creates an empty state with no active session.
func NewState() *State {
	return &State{now: time.Now}
}

// Start opens a session for classID. An existing session is replaced and
// returned so the caller can report it.
func (s *State) Start(classID string) (started, replaced *types.Session, err error) {
	if !types.IsValidID(classID) {
		return nil, nil, ErrInvalidClassID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		replaced = s.current
		log.Printf("Attendance session for class %s replaced by class %s (%d marks discarded)",
			replaced.ClassID, classID, len(replaced.Attendance))
	}

	s.current = &types.Session{
		ClassID:    classID,
		StartedAt:  s.now().UTC(),
		Attendance: make(map[string]types.Status),
	}
	log.Printf("Attendance session started for class %s", classID)

	return s.current.Clone(), replaced, nil
}

// Clear destroys the active session. It reports the cleared session and
// whether one existed.
func (s *State) Clear(reason string) (*types.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, false
	}
	cleared := s.current
	s.current = nil
	log.Printf("Attendance session for class %s cleared: %s (%d marks)",
		cleared.ClassID, reason, len(cleared.Attendance))
	return cleared, true
}

// Active reports whether a session exists.
func (s *State) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}

// Current returns a copy of the active session.
func (s *State) Current() (*types.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, false
	}
	return s.current.Clone(), true
}

// ClassID returns the class of the active session.
func (s *State) ClassID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return "", false
	}
	return s.current.ClassID, true
}

// Mark records a student's status; a later mark overwrites an earlier one.
func (s *State) Mark(studentID string, status types.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ErrNoActiveSession
	}
	if s.current.ClassID == "" {
		return ErrMissingClassID
	}
	if !types.IsValidID(studentID) {
		return ErrInvalidStudent
	}
	if !types.IsValidStatus(status) {
		return ErrInvalidStatus
	}

	s.current.Attendance[studentID] = status
	return nil
}

// Summary tallies the marks of the active session.
func (s *State) Summary() (types.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return types.Counts{}, ErrNoActiveSession
	}
	return s.current.Counts(), nil
}

// StatusOf returns the student's mark, or StatusNotYetUpdated when the
// student has not been marked.
func (s *State) StatusOf(studentID string) (types.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return "", ErrNoActiveSession
	}
	status, ok := s.current.Attendance[studentID]
	if !ok {
		return types.StatusNotYetUpdated, nil
	}
	return status, nil
}

// Stats returns monitoring figures for the health endpoint.
func (s *State) Stats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return map[string]interface{}{"active": false}
	}
	return map[string]interface{}{
		"active":     true,
		"class_id":   s.current.ClassID,
		"marks":      len(s.current.Attendance),
		"started_at": s.current.StartedAt,
	}
}
