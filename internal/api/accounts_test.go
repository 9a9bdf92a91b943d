package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"rollcall/pkg/types"
)

const adaSignup = `{"name":"Ada","email":"Ada@Example.edu","password":"secret-pass","role":"student"}`

// FUNCTIONAL VALIDATION TEST: POST /api/auth/signup
func TestServer_Signup(t *testing.T) {
	s := setupServer(t)

	w, resp := s.do(t, http.MethodPost, "/api/auth/signup", "", adaSignup)
	if w.Code != http.StatusCreated || !resp.Success {
		t.Fatalf("Expected 201, got %d %s", w.Code, w.Body.String())
	}
	data, _ := json.Marshal(resp.Data)
	var user types.User
	_ = json.Unmarshal(data, &user)
	if user.ID == "" || user.Email != "ada@example.edu" || user.Role != types.RoleStudent {
		t.Errorf("Unexpected user %+v", user)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(data, &raw)
	for _, hidden := range []string{"password", "passwordHash", "PasswordHash"} {
		if _, ok := raw[hidden]; ok {
			t.Errorf("Response must not carry %s", hidden)
		}
	}

	stored, err := s.db.GetUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if stored.PasswordHash == "" || stored.PasswordHash == "secret-pass" {
		t.Errorf("Expected a password hash, got %q", stored.PasswordHash)
	}
}

func TestServer_SignupRejections(t *testing.T) {
	s := setupServer(t)
	if w, _ := s.do(t, http.MethodPost, "/api/auth/signup", "", adaSignup); w.Code != http.StatusCreated {
		t.Fatalf("seed signup failed: %d", w.Code)
	}

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"duplicate email", `{"name":"Ada","email":"ada@example.edu","password":"secret-pass","role":"teacher"}`, http.StatusBadRequest, "Email already exists"},
		{"invalid json", `{`, http.StatusBadRequest, "Invalid JSON"},
		{"bad email", `{"name":"Bob","email":"bob","password":"secret-pass","role":"student"}`, http.StatusBadRequest, ""},
		{"short password", `{"name":"Bob","email":"bob@example.edu","password":"12345","role":"student"}`, http.StatusBadRequest, ""},
		{"unknown role", `{"name":"Bob","email":"bob@example.edu","password":"secret-pass","role":"admin"}`, http.StatusBadRequest, ""},
		{"short name", `{"name":"B","email":"bob@example.edu","password":"secret-pass","role":"student"}`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := s.do(t, http.MethodPost, "/api/auth/signup", "", tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("Expected %d, got %d (%s)", tt.wantCode, w.Code, w.Body.String())
			}
			if tt.wantErr != "" && resp.Error != tt.wantErr {
				t.Errorf("Expected error %q, got %q", tt.wantErr, resp.Error)
			}
		})
	}
}

func TestServer_SignupStoreFailure(t *testing.T) {
	s := setupServer(t)
	s.db.userErr = errors.New("disk gone")

	w, resp := s.do(t, http.MethodPost, "/api/auth/signup", "", adaSignup)
	if w.Code != http.StatusInternalServerError || resp.Success {
		t.Errorf("Expected 500 failure envelope, got %d %+v", w.Code, resp)
	}
}

// FUNCTIONAL VALIDATION TEST: POST /api/auth/login issues a token for the account
func TestServer_Login(t *testing.T) {
	s := setupServer(t)
	_, created := s.do(t, http.MethodPost, "/api/auth/signup", "", adaSignup)
	id := created.Data.(map[string]interface{})["id"].(string)

	w, resp := s.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"ADA@example.edu","password":"secret-pass"}`)
	if w.Code != http.StatusOK || !resp.Success {
		t.Fatalf("Expected 200, got %d %s", w.Code, w.Body.String())
	}
	data, _ := json.Marshal(resp.Data)
	var login LoginResponse
	_ = json.Unmarshal(data, &login)
	if login.Token != "student:"+id {
		t.Errorf("Expected token for %s, got %q", id, login.Token)
	}

	// the issued token opens the authenticated routes
	w, resp = s.do(t, http.MethodGet, "/api/auth/me", login.Token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /me, got %d", w.Code)
	}
	if me := resp.Data.(map[string]interface{}); me["id"] != id || me["name"] != "Ada" {
		t.Errorf("Unexpected /me body %+v", me)
	}
}

func TestServer_LoginRejections(t *testing.T) {
	s := setupServer(t)
	s.do(t, http.MethodPost, "/api/auth/signup", "", adaSignup)

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"wrong password", `{"email":"ada@example.edu","password":"not-the-pass"}`, msgBadCredentials},
		{"unknown email", `{"email":"eve@example.edu","password":"secret-pass"}`, msgBadCredentials},
		{"bad email", `{"email":"ada","password":"secret-pass"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := s.do(t, http.MethodPost, "/api/auth/login", "", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", w.Code)
			}
			if tt.wantErr != "" && resp.Error != tt.wantErr {
				t.Errorf("Expected error %q, got %q", tt.wantErr, resp.Error)
			}
		})
	}
}

// FUNCTIONAL VALIDATION TEST: GET /api/auth/me
func TestServer_MeRequiresKnownAccount(t *testing.T) {
	s := setupServer(t)

	w, resp := s.do(t, http.MethodGet, "/api/auth/me", "", "")
	if w.Code != http.StatusUnauthorized || resp.Error != msgUnauthorized {
		t.Errorf("Expected 401 without token, got %d %q", w.Code, resp.Error)
	}

	// a well-formed token for an account that does not exist
	w, resp = s.do(t, http.MethodGet, "/api/auth/me", "teacher:gone", "")
	if w.Code != http.StatusUnauthorized || resp.Error != msgUnauthorized {
		t.Errorf("Expected 401 for unknown account, got %d %q", w.Code, resp.Error)
	}
}
