package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"rollcall/internal/api"
	"rollcall/internal/auth"
	"rollcall/internal/broadcast"
	"rollcall/internal/config"
	"rollcall/internal/database"
	"rollcall/internal/finalize"
	"rollcall/internal/hub"
	"rollcall/internal/router"
	"rollcall/internal/session"
	"rollcall/internal/websocket"
	pkgdatabase "rollcall/pkg/database"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config     *config.Config
	dbManager  *database.Manager
	state      *session.State
	registry   *websocket.Registry
	hub        *hub.Hub
	apiServer  *api.Server
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Database → Session → Registry → Finalize → Router → Hub → Auth → WebSocket → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Database manager, migrations run inside NewManager
	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  cfg.Database.MaxConnections,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
		MigrationsPath:  cfg.Database.MigrationsPath,
	}

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	// STEP 2: Session state and connection registry
	state := session.NewState()
	registry := websocket.NewRegistry()

	// STEP 3: Finalization bridge and protocol router
	bridge := finalize.NewBridge(dbManager, dbManager, cfg.Attendance.PersistConcurrency)
	eventRouter := router.NewRouter(state, bridge, router.Options{
		Policy:             router.FinalizePolicy(cfg.Attendance.FinalizePolicy),
		RateLimitPerMinute: cfg.Attendance.RateLimitPerMinute,
	})

	// STEP 4: Hub serializes every session mutation
	engine := broadcast.NewEngine(registry)
	attendanceHub := hub.NewHub(registry, eventRouter, engine, state, hub.Options{
		EventTimeout: cfg.Attendance.EventTimeout,
	})

	// STEP 5: Authentication and transport
	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	wsHandler := websocket.NewHandler(verifier, attendanceHub, websocket.Options{
		BufferSize:     cfg.WebSocket.BufferSize,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		PingInterval:   cfg.WebSocket.PingInterval,
		ReadTimeout:    cfg.WebSocket.ReadTimeout,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
	})

	// STEP 6: API server mounts /ws next to the REST routes
	accounts := api.AccountPolicy{TokenTTL: cfg.Auth.TokenTTL, PasswordCost: cfg.Auth.PasswordCost}
	apiServer := api.NewServer(attendanceHub, dbManager, registry, state, verifier, accounts, wsHandler)

	httpServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:     apiServer,
		ReadTimeout: cfg.HTTP.ReadTimeout,
		// websocket connections hijack the conn, so WriteTimeout only
		// bounds REST responses
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		dbManager:  dbManager,
		state:      state,
		registry:   registry,
		hub:        attendanceHub,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start begins application execution
// Startup coordination ensures all components ready before serving
// Hub starts first to handle events, then HTTP server accepts connections
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting rollcall on %s", app.httpServer.Addr)

	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start attendance hub: %w", err)
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.hub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.mu.Lock()
	app.listener = listener
	app.mu.Unlock()

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.hub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("rollcall started successfully on %s", listener.Addr())
		return nil
	case <-ctx.Done():
		_ = app.hub.Stop()
		return ctx.Err()
	}
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → Hub → Database
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down rollcall")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		log.Printf("Attendance hub shutdown error: %v", err)
	}

	if err := app.dbManager.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("rollcall shutdown complete")
	return nil
}

// GetAddr returns the bound address once started, the configured one before.
func (app *Application) GetAddr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler exposes the routed HTTP surface, /ws included.
func (app *Application) Handler() http.Handler {
	return app.apiServer
}

// Hub exposes the attendance hub for in-process callers.
func (app *Application) Hub() *hub.Hub {
	return app.hub
}

// Database exposes the persistence layer for in-process callers.
func (app *Application) Database() *database.Manager {
	return app.dbManager
}
