package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator provides database schema validation functionality
// ARCHITECTURAL DISCOVERY: Separate validation component enables testing
// and deployment verification without coupling to migration system
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"classes":           "Class ownership",
		"class_students":    "Class rosters",
		"attendance":        "Finalized attendance records",
		"users":             "Accounts and credentials",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.exists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies table column structure matches expectations
// TECHNICAL DISCOVERY: Column validation ensures type compatibility between
// Go structs and database schema
func (v *SchemaValidator) ValidateTableStructure() error {
	expected := map[string]map[string]string{
		"classes": {
			"id":         "TEXT",
			"name":       "TEXT",
			"teacher_id": "TEXT",
			"created_at": "DATETIME",
		},
		"class_students": {
			"class_id":   "TEXT",
			"student_id": "TEXT",
			"added_at":   "DATETIME",
		},
		"attendance": {
			"id":         "TEXT",
			"class_id":   "TEXT",
			"student_id": "TEXT",
			"status":     "TEXT",
			"created_at": "DATETIME",
		},
		"users": {
			"id":            "TEXT",
			"name":          "TEXT",
			"email":         "TEXT",
			"password_hash": "TEXT",
			"role":          "TEXT",
			"created_at":    "DATETIME",
		},
	}

	for table, columns := range expected {
		if err := v.validateColumns(table, columns); err != nil {
			return fmt.Errorf("%s table structure invalid: %w", table, err)
		}
	}

	return nil
}

// ValidateIndexes verifies that all performance indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_classes_teacher":          "Classes by teacher",
		"idx_class_students_student":   "Enrollment lookups",
		"idx_attendance_class_student": "Attendance history per student",
		"idx_users_role":               "Student lookups",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.exists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

// ValidateConstraints verifies that the status check and the class foreign
// key are enforced. Sample rows are rolled back.
func (v *SchemaValidator) ValidateConstraints() error {
	tx, err := v.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO attendance (id, class_id, student_id, status)
		VALUES ('sample', 'missing-class', 's1', 'present')
	`); err == nil {
		return fmt.Errorf("foreign key constraint not enforced: attendance.class_id")
	}

	if _, err := tx.Exec(`INSERT INTO classes (id, name, teacher_id) VALUES ('sample-class', 'Sample', 't1')`); err != nil {
		return fmt.Errorf("failed to create sample class: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO attendance (id, class_id, student_id, status)
		VALUES ('sample', 'sample-class', 's1', 'late')
	`); err == nil {
		return fmt.Errorf("check constraint not enforced: attendance.status")
	}

	if _, err := tx.Exec(`
		INSERT INTO users (id, name, email, password_hash, role)
		VALUES ('sample-user', 'Sample', 'sample@example.edu', 'x', 'admin')
	`); err == nil {
		return fmt.Errorf("check constraint not enforced: users.role")
	}

	return nil
}

func (v *SchemaValidator) exists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]string)
	for rows.Next() {
		var cid, notNull, pk int
		var name, dataType string
		var defaultValue interface{}
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		found[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for column, expectedType := range expectedColumns {
		foundType, ok := found[column]
		if !ok {
			return fmt.Errorf("column %s not found", column)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", column, foundType, expectedType)
		}
	}

	return nil
}
