package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	// ARCHITECTURAL DISCOVERY: the driver registers itself on import; its
	// error codes tell unique violations apart from transient failures
	"github.com/mattn/go-sqlite3"

	dbconfig "rollcall/pkg/database"
	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

// ErrManagerClosed is returned for writes attempted after Close.
var ErrManagerClosed = errors.New("database manager is closed")

// Manager implements the DatabaseManager interface
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
	retryDelay   time.Duration
	writeTimeout time.Duration
}

// writeOperation represents a database write operation
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies pragmas and pending migrations, and
// starts the single writer.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// FUNCTIONAL DISCOVERY: Connection pool configuration critical for concurrent reads
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplyOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	migrations := dbconfig.NewMigrationManager(db, config.MigrationsPath)
	if err := migrations.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if err := migrations.ValidateSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database schema invalid: %w", err)
	}
	log.Println("Database migrations applied successfully")

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100), // TECHNICAL: Buffer for write operations prevents blocking
		shutdown:     make(chan struct{}),
		retryDelay:   5 * time.Second,
		writeTimeout: 30 * time.Second,
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			// FUNCTIONAL DISCOVERY: a failed write is retried exactly once
			err := op.operation(m.db)
			if err != nil && !isPermanent(err) {
				log.Printf("Database write failed, retrying in %v: %v", m.retryDelay, err)
				select {
				case <-time.After(m.retryDelay):
					err = op.operation(m.db)
				case <-m.shutdown:
				}
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-time.After(m.writeTimeout):
		return fmt.Errorf("write operation timeout")
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}

	select {
	case err := <-result:
		return err
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// permanentError marks failures a retry cannot fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func isPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// CreateClass stores a class and its initial roster atomically
func (m *Manager) CreateClass(ctx context.Context, class *types.Class) error {
	if class.ID == "" {
		class.ID = uuid.New().String()
	}
	if class.CreatedAt.IsZero() {
		class.CreatedAt = time.Now().UTC()
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }() // TECHNICAL: Always rollback unless commit succeeds

		_, err = tx.ExecContext(ctx,
			`INSERT INTO classes (id, name, teacher_id, created_at) VALUES (?, ?, ?, ?)`,
			class.ID, class.Name, class.TeacherID, class.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert class: %w", err)
		}

		for _, studentID := range class.StudentIDs {
			_, err = tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO class_students (class_id, student_id) VALUES (?, ?)`,
				class.ID, studentID,
			)
			if err != nil {
				return fmt.Errorf("failed to enroll student %s: %w", studentID, err)
			}
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit class creation: %w", err)
		}
		return nil
	})
}

// AddStudent enrolls a student in an existing class
func (m *Manager) AddStudent(ctx context.Context, classID, studentID string) error {
	if _, err := m.GetClass(ctx, classID); err != nil {
		return err
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO class_students (class_id, student_id) VALUES (?, ?)`,
			classID, studentID,
		)
		if err != nil {
			return fmt.Errorf("failed to enroll student: %w", err)
		}
		return nil
	})
}

// GetClass retrieves a class and its roster by ID
func (m *Manager) GetClass(ctx context.Context, classID string) (*types.Class, error) {
	// ARCHITECTURAL DISCOVERY: Read operations can be concurrent - no need for writeChannel
	row := m.db.QueryRowContext(ctx,
		`SELECT id, name, teacher_id, created_at FROM classes WHERE id = ?`, classID)

	var class types.Class
	if err := row.Scan(&class.ID, &class.Name, &class.TeacherID, &class.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrClassNotFound
		}
		return nil, fmt.Errorf("failed to query class: %w", err)
	}

	roster, err := m.roster(ctx, classID)
	if err != nil {
		return nil, err
	}
	class.StudentIDs = roster

	return &class, nil
}

// FetchClassRoster returns the enrolled student IDs in enrollment order
func (m *Manager) FetchClassRoster(ctx context.Context, classID string) ([]string, error) {
	var exists int
	err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM classes WHERE id = ?`, classID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to query class: %w", err)
	}
	if exists == 0 {
		return nil, interfaces.ErrClassNotFound
	}
	return m.roster(ctx, classID)
}

func (m *Manager) roster(ctx context.Context, classID string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT student_id FROM class_students WHERE class_id = ? ORDER BY added_at, rowid`, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to query roster: %w", err)
	}
	defer func() { _ = rows.Close() }()

	roster := []string{}
	for rows.Next() {
		var studentID string
		if err := rows.Scan(&studentID); err != nil {
			return nil, fmt.Errorf("failed to scan roster row: %w", err)
		}
		roster = append(roster, studentID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roster rows: %w", err)
	}
	return roster, nil
}

// PersistAttendance writes one attendance record
func (m *Manager) PersistAttendance(ctx context.Context, classID, studentID string, status types.Status) error {
	if !types.IsValidStatus(status) {
		return types.ErrInvalidStatus
	}
	record := types.AttendanceRecord{
		ID:        uuid.New().String(),
		ClassID:   classID,
		StudentID: studentID,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO attendance (id, class_id, student_id, status, created_at) VALUES (?, ?, ?, ?, ?)`,
			record.ID, record.ClassID, record.StudentID, record.Status, record.CreatedAt,
		)
		if err != nil {
			if ctx.Err() != nil {
				return permanentError{err}
			}
			return fmt.Errorf("failed to insert attendance: %w", err)
		}
		return nil
	})
}

// ListAttendance returns the persisted records of a class, oldest first
func (m *Manager) ListAttendance(ctx context.Context, classID string) ([]*types.AttendanceRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, class_id, student_id, status, created_at
		FROM attendance
		WHERE class_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []*types.AttendanceRecord{}
	for rows.Next() {
		var record types.AttendanceRecord
		if err := rows.Scan(&record.ID, &record.ClassID, &record.StudentID, &record.Status, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attendance row: %w", err)
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attendance rows: %w", err)
	}
	return records, nil
}

// CreateUser stores a new account
func (m *Manager) CreateUser(ctx context.Context, user *types.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if !types.IsValidID(user.ID) {
		return types.ErrInvalidID
	}
	if !types.IsValidRole(user.Role) {
		return types.ErrInvalidRole
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO users (id, name, email, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			user.ID, user.Name, user.Email, user.PasswordHash, user.Role, user.CreatedAt,
		)
		if err != nil {
			var sqliteErr sqlite3.Error
			if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
				// constraint violations fail the same way on retry
				if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
					return permanentError{interfaces.ErrEmailTaken}
				}
				return permanentError{fmt.Errorf("failed to insert user: %w", err)}
			}
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
}

// GetUser retrieves an account by ID
func (m *Manager) GetUser(ctx context.Context, userID string) (*types.User, error) {
	return m.scanUser(m.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, role, created_at FROM users WHERE id = ?`, userID))
}

// GetUserByEmail retrieves an account by email, ignoring case
func (m *Manager) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	return m.scanUser(m.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, role, created_at FROM users WHERE email = ?`, email))
}

func (m *Manager) scanUser(row *sql.Row) (*types.User, error) {
	var user types.User
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM classes").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close shuts down the database manager
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	// ARCHITECTURAL DISCOVERY: Graceful shutdown requires careful goroutine coordination
	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Compile-time interface check
var _ interfaces.DatabaseManager = (*Manager)(nil)
