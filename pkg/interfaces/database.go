package interfaces

import (
	"context"

	"rollcall/pkg/types"
)

// ClassStore is the external class collaborator.
type ClassStore interface {
	// GetClass returns the class with its roster, or ErrClassNotFound
	GetClass(ctx context.Context, classID string) (*types.Class, error)

	// FetchClassRoster returns the authoritative student IDs of a class
	FetchClassRoster(ctx context.Context, classID string) ([]string, error)
}

// AttendanceStore is the external durable-write collaborator.
type AttendanceStore interface {
	// PersistAttendance records one student's final status
	// FUNCTIONAL DISCOVERY: one call per student so a failure stays local to that student
	PersistAttendance(ctx context.Context, classID, studentID string, status types.Status) error
}

// UserStore keeps accounts. Emails are unique regardless of case.
type UserStore interface {
	// CreateUser stores a new account; the ID is generated when empty.
	// A duplicate email yields ErrEmailTaken.
	CreateUser(ctx context.Context, user *types.User) error

	// GetUser returns the account with the ID, or ErrUserNotFound
	GetUser(ctx context.Context, userID string) (*types.User, error)

	// GetUserByEmail returns the account with the email, or ErrUserNotFound
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)
}

// DatabaseManager handles all database operations
// ARCHITECTURAL DISCOVERY: Single interface for all persistence operations
// enables consistent transaction handling and connection management
type DatabaseManager interface {
	ClassStore
	AttendanceStore
	UserStore

	// CreateClass stores a new class; the ID is generated when empty
	CreateClass(ctx context.Context, class *types.Class) error

	// AddStudent enrolls a student; adding an enrolled student is a no-op
	AddStudent(ctx context.Context, classID, studentID string) error

	// ListAttendance returns persisted records of a class, oldest first
	ListAttendance(ctx context.Context, classID string) ([]*types.AttendanceRecord, error)

	// HealthCheck verifies database connectivity and basic operations
	HealthCheck(ctx context.Context) error

	// Close closes the database connection and cleans up resources
	Close() error
}
