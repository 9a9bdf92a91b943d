package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

// Request types for JSON deserialization
type StartAttendanceRequest struct {
	ClassID string `json:"classId" validate:"required,min=2"`
}

type CreateClassRequest struct {
	ClassName  string   `json:"className" validate:"required,min=2,max=100"`
	StudentIDs []string `json:"studentIds" validate:"omitempty,dive,entityid"`
}

type AddStudentRequest struct {
	StudentID string `json:"studentId" validate:"required,entityid"`
}

func decodeRequest(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		sendError(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	if err := types.Struct(v); err != nil {
		sendError(w, "Invalid request: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// loadClass fetches the class named in the URL, writing 404/500 itself.
func (s *Server) loadClass(w http.ResponseWriter, r *http.Request, classID string) (*types.Class, bool) {
	class, err := s.dbManager.GetClass(r.Context(), classID)
	if errors.Is(err, interfaces.ErrClassNotFound) {
		sendError(w, "Class not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		log.Printf("Failed to load class %s: %v", classID, err)
		sendError(w, "Failed to load class", http.StatusInternalServerError)
		return nil, false
	}
	return class, true
}

// requireStudents checks every id names a student account, writing 404/500 itself.
func (s *Server) requireStudents(w http.ResponseWriter, r *http.Request, studentIDs ...string) bool {
	for _, id := range studentIDs {
		user, err := s.dbManager.GetUser(r.Context(), id)
		if errors.Is(err, interfaces.ErrUserNotFound) || (err == nil && user.Role != types.RoleStudent) {
			sendError(w, "Student not found", http.StatusNotFound)
			return false
		}
		if err != nil {
			log.Printf("Failed to load student %s: %v", id, err)
			sendError(w, "Failed to load student", http.StatusInternalServerError)
			return false
		}
	}
	return true
}

// canView allows the class teacher and enrolled students.
func canView(identity types.Identity, class *types.Class) bool {
	switch identity.Role {
	case types.RoleTeacher:
		return class.TeacherID == identity.ID
	case types.RoleStudent:
		return class.HasStudent(identity.ID)
	}
	return false
}

// FUNCTIONAL DISCOVERY: POST /api/attendance/start - only the class teacher
// may open a session; an existing session is replaced
func (s *Server) startAttendance(w http.ResponseWriter, r *http.Request) {
	var req StartAttendanceRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	class, ok := s.loadClass(w, r, req.ClassID)
	if !ok {
		return
	}
	identity := identityFrom(r)
	if class.TeacherID != identity.ID {
		sendError(w, "Forbidden, not class teacher", http.StatusForbidden)
		return
	}

	session, err := s.sessions.StartSession(r.Context(), class.ID)
	if err != nil {
		log.Printf("Failed to start attendance for class %s: %v", class.ID, err)
		sendError(w, "Failed to start attendance session", http.StatusInternalServerError)
		return
	}
	sendData(w, http.StatusOK, session)
}

// FUNCTIONAL DISCOVERY: GET /api/attendance/session - snapshot of the live session
func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessions.CurrentSession()
	if !ok {
		sendError(w, "No active attendance session", http.StatusNotFound)
		return
	}
	sendData(w, http.StatusOK, session)
}

// FUNCTIONAL DISCOVERY: POST /api/classes - the caller becomes the class teacher
func (s *Server) createClass(w http.ResponseWriter, r *http.Request) {
	var req CreateClassRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	class := &types.Class{
		Name:       req.ClassName,
		TeacherID:  identityFrom(r).ID,
		StudentIDs: req.StudentIDs,
	}
	if err := class.Validate(); err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.requireStudents(w, r, class.StudentIDs...) {
		return
	}
	if err := s.dbManager.CreateClass(r.Context(), class); err != nil {
		log.Printf("Failed to create class: %v", err)
		sendError(w, "Failed to create class", http.StatusInternalServerError)
		return
	}

	created, ok := s.loadClass(w, r, class.ID)
	if !ok {
		return
	}
	sendData(w, http.StatusCreated, created)
}

// FUNCTIONAL DISCOVERY: GET /api/classes/{id} - class teacher or enrolled student
func (s *Server) getClass(w http.ResponseWriter, r *http.Request) {
	class, ok := s.loadClass(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	if !canView(identityFrom(r), class) {
		sendError(w, "Forbidden", http.StatusForbidden)
		return
	}
	sendData(w, http.StatusOK, class)
}

// FUNCTIONAL DISCOVERY: POST /api/classes/{id}/students - idempotent enrollment
func (s *Server) addStudent(w http.ResponseWriter, r *http.Request) {
	class, ok := s.loadClass(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	if class.TeacherID != identityFrom(r).ID {
		sendError(w, "Forbidden, not class teacher", http.StatusForbidden)
		return
	}

	var req AddStudentRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if !s.requireStudents(w, r, req.StudentID) {
		return
	}
	if err := s.dbManager.AddStudent(r.Context(), class.ID, req.StudentID); err != nil {
		log.Printf("Failed to add student %s to class %s: %v", req.StudentID, class.ID, err)
		sendError(w, "Failed to add student", http.StatusInternalServerError)
		return
	}

	updated, ok := s.loadClass(w, r, class.ID)
	if !ok {
		return
	}
	sendData(w, http.StatusOK, updated)
}

// FUNCTIONAL DISCOVERY: GET /api/classes/{id}/attendance - teachers see every
// record, students only their own
func (s *Server) listAttendance(w http.ResponseWriter, r *http.Request) {
	class, ok := s.loadClass(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	identity := identityFrom(r)
	if !canView(identity, class) {
		sendError(w, "Forbidden", http.StatusForbidden)
		return
	}

	records, err := s.dbManager.ListAttendance(r.Context(), class.ID)
	if err != nil {
		log.Printf("Failed to list attendance for class %s: %v", class.ID, err)
		sendError(w, "Failed to list attendance", http.StatusInternalServerError)
		return
	}

	if identity.Role == types.RoleStudent {
		own := make([]*types.AttendanceRecord, 0, len(records))
		for _, rec := range records {
			if rec.StudentID == identity.ID {
				own = append(own, rec)
			}
		}
		records = own
	}
	if records == nil {
		records = []*types.AttendanceRecord{}
	}
	sendData(w, http.StatusOK, records)
}
