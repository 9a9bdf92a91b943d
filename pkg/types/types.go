package types

import (
	"encoding/json"
	"time"
)

// Role identifies what a connected user is allowed to do during a session.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Status is a student's mark for the active session.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"

	// StatusNotYetUpdated is reported to a student who has no mark yet.
	// It is never stored in a session's attendance map.
	StatusNotYetUpdated Status = "not yet updated"
)

// EventType is the tag carried in the "event" field of every frame.
// ARCHITECTURAL DISCOVERY: inbound and outbound tags share one namespace
// so a single envelope shape serves both directions on the wire
type EventType string

const (
	// Inbound
	EventMark       EventType = "MARK"
	EventSummary    EventType = "SUMMARY"
	EventSelfStatus EventType = "SELF_STATUS"
	EventFinalize   EventType = "FINALIZE"

	// Outbound (SUMMARY and SELF_STATUS reuse the inbound tag)
	EventMarkResult     EventType = "MARK_RESULT"
	EventFinalizeResult EventType = "FINALIZE_RESULT"
	EventError          EventType = "ERROR"
)

// FinalizeMessage is the human readable text sent with FINALIZE_RESULT.
const FinalizeMessage = "Attendance persisted"

// Identity is the trusted caller identity supplied by the handshake.
type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Session is the single in-flight attendance session.
// FUNCTIONAL DISCOVERY: attendance is keyed by student ID so a later mark
// simply overwrites the earlier one
type Session struct {
	ClassID    string            `json:"classId"`
	StartedAt  time.Time         `json:"startedAt"`
	Attendance map[string]Status `json:"attendance"`
}

// Clone returns a deep copy safe to hand out of the owning goroutine.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	attendance := make(map[string]Status, len(s.Attendance))
	for id, status := range s.Attendance {
		attendance[id] = status
	}
	return &Session{
		ClassID:    s.ClassID,
		StartedAt:  s.StartedAt,
		Attendance: attendance,
	}
}

// Counts tallies the marks currently held by the session.
func (s *Session) Counts() Counts {
	var c Counts
	for _, status := range s.Attendance {
		switch status {
		case StatusPresent:
			c.Present++
		case StatusAbsent:
			c.Absent++
		}
	}
	c.Total = len(s.Attendance)
	return c
}

// Counts is the aggregate shape shared by SUMMARY and FINALIZE_RESULT.
type Counts struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Total   int `json:"total"`
}

// Envelope is the wire shape of every outbound frame.
type Envelope struct {
	Event EventType   `json:"event"`
	Data  interface{} `json:"data"`
}

// InboundEnvelope keeps the payload raw until the tag has been dispatched.
type InboundEnvelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// MarkPayload is the data of an inbound MARK event.
type MarkPayload struct {
	StudentID string `json:"studentId" validate:"required,entityid"`
	Status    Status `json:"status" validate:"required,oneof=present absent"`
}

// MarkResult is the data of an outbound MARK_RESULT event.
type MarkResult struct {
	StudentID string `json:"studentId"`
	Status    Status `json:"status"`
}

// SelfStatusResult is the data of an outbound SELF_STATUS event.
type SelfStatusResult struct {
	Status Status `json:"status"`
}

// FinalizeResult is the data of an outbound FINALIZE_RESULT event.
type FinalizeResult struct {
	Message string `json:"message"`
	Counts
}

// ErrorPayload is the data of an outbound ERROR event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Audience selects who receives an outbound envelope.
type Audience int

const (
	// AudienceCaller delivers only to the connection that sent the event.
	AudienceCaller Audience = iota
	// AudienceAll delivers to every registered connection regardless of role.
	AudienceAll
)

// Outbound pairs an envelope with its audience.
type Outbound struct {
	Audience Audience
	Envelope Envelope
}

// Class is the external class entity a session refers to.
type Class struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"className" db:"name"`
	TeacherID  string    `json:"teacherId" db:"teacher_id"`
	StudentIDs []string  `json:"studentIds"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// HasStudent reports whether the student is on the class roster.
func (c *Class) HasStudent(studentID string) bool {
	for _, id := range c.StudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

// AttendanceRecord is one persisted mark written at finalize.
type AttendanceRecord struct {
	ID        string    `json:"id" db:"id"`
	ClassID   string    `json:"classId" db:"class_id"`
	StudentID string    `json:"studentId" db:"student_id"`
	Status    Status    `json:"status" db:"status"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// User is an account that can sign in and appear on class rosters.
type User struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	Role         Role      `json:"role" db:"role"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// Identity is the token identity of the account.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Role: u.Role}
}
