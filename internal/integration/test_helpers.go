package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"rollcall/internal/app"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/pkg/types"
)

const testSecret = "integration-test-secret"

// Environment is a running application behind an httptest server.
type Environment struct {
	App    *app.Application
	Server *httptest.Server
	signer *auth.Verifier
}

// StartTestEnvironment boots the full stack on a temp sqlite database.
// modify may adjust the configuration before the application is built.
func StartTestEnvironment(t *testing.T, modify func(*config.Config)) *Environment {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "integration.db")
	cfg.Auth.JWTSecret = testSecret
	cfg.Auth.PasswordCost = 4
	if modify != nil {
		modify(cfg)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := application.Hub().Start(ctx); err != nil {
		cancel()
		t.Fatalf("Failed to start hub: %v", err)
	}

	server := httptest.NewServer(application.Handler())
	signer, err := auth.NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}

	t.Cleanup(func() {
		server.Close()
		cancel()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = application.Stop(stopCtx)
	})

	return &Environment{App: application, Server: server, signer: signer}
}

// Token signs a bearer token for the identity.
func (e *Environment) Token(t *testing.T, id string, role types.Role) string {
	t.Helper()
	token, err := e.signer.Sign(types.Identity{ID: id, Role: role}, time.Hour)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

// SeedStudents stores student accounts with fixed IDs so classes can enroll them.
func (e *Environment) SeedStudents(t *testing.T, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		if _, err := e.App.Database().GetUser(ctx, id); err == nil {
			continue
		}
		user := &types.User{ID: id, Name: "Student " + id, Email: id + "@example.edu", Role: types.RoleStudent, PasswordHash: "-"}
		if err := e.App.Database().CreateUser(ctx, user); err != nil {
			t.Fatalf("Failed to seed student %s: %v", id, err)
		}
	}
}

// Dial opens a websocket with the token in the query string.
func (e *Environment) Dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.Server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Connect dials and waits until the hub has registered the connection.
func (e *Environment) Connect(t *testing.T, id string, role types.Role) *websocket.Conn {
	t.Helper()
	return e.ConnectWithToken(t, e.Token(t, id, role))
}

// ConnectWithToken is Connect for a token issued elsewhere, such as /api/auth/login.
func (e *Environment) ConnectWithToken(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	before := e.Connections(t)
	conn := e.Dial(t, token)
	e.WaitFor(t, "connection registered", func() bool { return e.Connections(t) > before })
	return conn
}

// Connections reports the live connection count from /health.
func (e *Environment) Connections(t *testing.T) int {
	t.Helper()
	resp, err := http.Get(e.Server.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	var health struct {
		Connections map[string]int `json:"connections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	return health.Connections["total_connections"]
}

// Request performs a REST call and decodes the {success,data,error} envelope.
func (e *Environment) Request(t *testing.T, method, path, token string, body interface{}) (int, json.RawMessage, string) {
	t.Helper()

	var reader *strings.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = strings.NewReader(string(data))
	} else {
		reader = strings.NewReader("")
	}
	req, err := http.NewRequest(method, e.Server.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&envelope)
	return resp.StatusCode, envelope.Data, envelope.Error
}

// WaitFor polls cond for up to two seconds.
func (e *Environment) WaitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// Send writes one event frame.
func Send(t *testing.T, conn *websocket.Conn, event types.EventType, data interface{}) {
	t.Helper()
	if err := conn.WriteJSON(types.Envelope{Event: event, Data: data}); err != nil {
		t.Fatalf("Failed to send %s: %v", event, err)
	}
}

// Expect reads the next frame and checks its tag.
func Expect(t *testing.T, conn *websocket.Conn, event types.EventType, into interface{}) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var env types.InboundEnvelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("Failed to read %s: %v", event, err)
	}
	if env.Event != event {
		t.Fatalf("Expected %s, got %s (%s)", event, env.Event, env.Data)
	}
	if into != nil {
		if err := json.Unmarshal(env.Data, into); err != nil {
			t.Fatalf("Failed to decode %s data: %v", event, err)
		}
	}
}

// ExpectError reads the next frame and checks it is an ERROR with message.
func ExpectError(t *testing.T, conn *websocket.Conn, message string) {
	t.Helper()
	var payload types.ErrorPayload
	Expect(t, conn, types.EventError, &payload)
	if payload.Message != message {
		t.Fatalf("Expected error %q, got %q", message, payload.Message)
	}
}
