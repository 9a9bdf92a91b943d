package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

// Registry is the part of the connection registry the API reports on
type Registry interface {
	GetStats() map[string]int
}

// SessionStats reports the live session for health checks
type SessionStats interface {
	Stats() map[string]interface{}
}

// TokenService resolves bearer tokens to identities and issues them at login
type TokenService interface {
	Verify(token string) (types.Identity, error)
	Sign(identity types.Identity, ttl time.Duration) (string, error)
}

// AccountPolicy tunes signup and login
type AccountPolicy struct {
	TokenTTL     time.Duration
	PasswordCost int
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	sessions  interfaces.SessionController
	dbManager interfaces.DatabaseManager
	registry  Registry
	stats     SessionStats
	verifier  TokenService
	accounts  AccountPolicy
	websocket http.Handler
	router    *chi.Mux
}

// NewServer wires the REST endpoints and mounts the websocket handler at /ws.
func NewServer(
	sessions interfaces.SessionController,
	dbManager interfaces.DatabaseManager,
	registry Registry,
	stats SessionStats,
	verifier TokenService,
	accounts AccountPolicy,
	websocket http.Handler,
) *Server {
	s := &Server{
		sessions:  sessions,
		dbManager: dbManager,
		registry:  registry,
		stats:     stats,
		verifier:  verifier,
		accounts:  accounts,
		websocket: websocket,
		router:    chi.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// ARCHITECTURAL DISCOVERY: Route setup follows REST conventions with proper middleware
// CORS applies everywhere; JSON and bearer auth only to the REST surface
func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	if s.websocket != nil {
		r.Handle("/ws", s.websocket)
	}

	r.Group(func(r chi.Router) {
		r.Use(jsonMiddleware)
		r.Get("/health", s.healthCheck)

		r.Route("/api", func(r chi.Router) {
			r.Route("/auth", func(r chi.Router) {
				r.Post("/signup", s.signup)
				r.Post("/login", s.login)
				r.With(s.authMiddleware).Get("/me", s.me)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)

				r.Route("/attendance", func(r chi.Router) {
					r.With(requireRole(types.RoleTeacher)).Post("/start", s.startAttendance)
					r.Get("/session", s.currentSession)
				})

				r.Route("/classes", func(r chi.Router) {
					r.With(requireRole(types.RoleTeacher)).Post("/", s.createClass)
					r.Get("/{id}", s.getClass)
					r.With(requireRole(types.RoleTeacher)).Post("/{id}/students", s.addStudent)
					r.Get("/{id}/attendance", s.listAttendance)
				})
			})
		})
	})
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response is the {success, data|error} envelope of every REST response.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Database    string                 `json:"database"`
	Connections map[string]int         `json:"connections"`
	Session     map[string]interface{} `json:"session"`
}

// FUNCTIONAL DISCOVERY: GET /health - System health check with component validation
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"

	if err := s.dbManager.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.registry.GetStats(),
		Session:     s.stats.Stats(),
	}

	// FUNCTIONAL DISCOVERY: Return 503 if any component is unhealthy
	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, response)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func sendData(w http.ResponseWriter, code int, data interface{}) {
	writeJSON(w, code, Response{Success: true, Data: data})
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func sendError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, Response{Success: false, Error: message})
}

// ARCHITECTURAL DISCOVERY: CORS middleware enables web client access
// Allows all origins in development - would be restricted in production
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// FUNCTIONAL DISCOVERY: JSON middleware ensures proper content-type headers
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
