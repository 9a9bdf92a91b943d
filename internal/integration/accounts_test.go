package integration

import (
	"encoding/json"
	"net/http"
	"testing"

	"rollcall/pkg/types"
)

func signup(t *testing.T, env *Environment, name, email string, role types.Role) types.User {
	t.Helper()
	code, data, errMsg := env.Request(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": name, "email": email, "password": "secret-pass", "role": string(role),
	})
	if code != http.StatusCreated {
		t.Fatalf("signup %s: %d %s", email, code, errMsg)
	}
	var user types.User
	if err := json.Unmarshal(data, &user); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	return user
}

func login(t *testing.T, env *Environment, email string) string {
	t.Helper()
	code, data, errMsg := env.Request(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": "secret-pass",
	})
	if code != http.StatusOK {
		t.Fatalf("login %s: %d %s", email, code, errMsg)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return body.Token
}

// TestAccounts_SignupToFinalize runs a session using only issued tokens.
func TestAccounts_SignupToFinalize(t *testing.T) {
	env := StartTestEnvironment(t, nil)

	teacherUser := signup(t, env, "Grace", "grace@example.edu", types.RoleTeacher)
	studentUser := signup(t, env, "Ada", "ada@example.edu", types.RoleStudent)
	teacherToken := login(t, env, "grace@example.edu")
	studentToken := login(t, env, "ADA@example.edu")

	code, data, _ := env.Request(t, http.MethodGet, "/api/auth/me", studentToken, nil)
	var me types.User
	_ = json.Unmarshal(data, &me)
	if code != http.StatusOK || me.ID != studentUser.ID || me.Role != types.RoleStudent {
		t.Fatalf("Unexpected /me %d %+v", code, me)
	}

	code, data, errMsg := env.Request(t, http.MethodPost, "/api/classes", teacherToken,
		map[string]interface{}{"className": "Chemistry"})
	if code != http.StatusCreated {
		t.Fatalf("create class: %d %s", code, errMsg)
	}
	var class types.Class
	_ = json.Unmarshal(data, &class)
	if class.TeacherID != teacherUser.ID {
		t.Errorf("Expected teacher %s, got %s", teacherUser.ID, class.TeacherID)
	}

	// only existing student accounts can be enrolled
	path := "/api/classes/" + class.ID + "/students"
	code, _, errMsg = env.Request(t, http.MethodPost, path, teacherToken, map[string]string{"studentId": "nobody"})
	if code != http.StatusNotFound || errMsg != "Student not found" {
		t.Errorf("Expected 404 Student not found, got %d %q", code, errMsg)
	}
	code, _, errMsg = env.Request(t, http.MethodPost, path, teacherToken, map[string]string{"studentId": teacherUser.ID})
	if code != http.StatusNotFound || errMsg != "Student not found" {
		t.Errorf("Expected teacher account to be refused, got %d %q", code, errMsg)
	}
	code, _, errMsg = env.Request(t, http.MethodPost, path, teacherToken, map[string]string{"studentId": studentUser.ID})
	if code != http.StatusOK {
		t.Fatalf("add student: %d %s", code, errMsg)
	}

	teacher := env.ConnectWithToken(t, teacherToken)
	student := env.ConnectWithToken(t, studentToken)
	startSession(t, env, teacherToken, class.ID)

	Send(t, teacher, types.EventMark, types.MarkPayload{StudentID: studentUser.ID, Status: types.StatusPresent})
	Expect(t, teacher, types.EventMarkResult, nil)
	Expect(t, student, types.EventMarkResult, nil)

	Send(t, student, types.EventSelfStatus, nil)
	var status types.SelfStatusResult
	Expect(t, student, types.EventSelfStatus, &status)
	if status.Status != types.StatusPresent {
		t.Errorf("Expected present, got %s", status.Status)
	}

	Send(t, teacher, types.EventFinalize, nil)
	var result types.FinalizeResult
	Expect(t, teacher, types.EventFinalizeResult, &result)
	if result.Counts != (types.Counts{Present: 1, Absent: 0, Total: 1}) {
		t.Errorf("Unexpected counts %+v", result.Counts)
	}
}

// TestAccounts_DuplicateEmail keeps emails unique ignoring case.
func TestAccounts_DuplicateEmail(t *testing.T) {
	env := StartTestEnvironment(t, nil)
	signup(t, env, "Ada", "ada@example.edu", types.RoleStudent)

	code, _, errMsg := env.Request(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "Ada Again", "email": "ADA@example.edu", "password": "secret-pass", "role": "teacher",
	})
	if code != http.StatusBadRequest || errMsg != "Email already exists" {
		t.Errorf("Expected 400 Email already exists, got %d %q", code, errMsg)
	}

	code, _, errMsg = env.Request(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.edu", "password": "wrong-pass",
	})
	if code != http.StatusBadRequest || errMsg != "Invalid email or password" {
		t.Errorf("Expected 400 for wrong password, got %d %q", code, errMsg)
	}
}
