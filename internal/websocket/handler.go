package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"rollcall/internal/auth"
	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

// TokenVerifier resolves a bearer credential to a trusted identity.
type TokenVerifier interface {
	Verify(token string) (types.Identity, error)
}

// Hub owns the session; the handler hands it connections and frames.
type Hub interface {
	// Join registers an authenticated connection
	Join(ctx context.Context, conn interfaces.Connection) error
	// Leave unregisters the connection and returns once the hub has
	// processed the departure
	Leave(ctx context.Context, conn interfaces.Connection) error
	// Submit queues an inbound frame; frames from one connection are
	// handled in submission order
	Submit(ctx context.Context, conn interfaces.Connection, frame []byte) error
}

// Handler upgrades authenticated requests and pumps their frames to the hub
// ARCHITECTURAL DISCOVERY: Clean separation of WebSocket handling from business logic
type Handler struct {
	verifier TokenVerifier
	hub      Hub
	options  Options
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(verifier TokenVerifier, hub Hub, options Options) *Handler {
	return &Handler{
		verifier: verifier,
		hub:      hub,
		options:  options,
		upgrader: websocket.Upgrader{
			// FUNCTIONAL DISCOVERY: browsers on any classroom origin may connect;
			// the bearer token is the access control
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// ServeHTTP authenticates, upgrades, and starts the read pump.
// An invalid token still upgrades so the client receives a protocol ERROR
// frame before the close, matching what browser clients expect.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, authErr := h.verifier.Verify(auth.TokenFromRequest(r))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	if authErr != nil {
		log.Printf("WebSocket handshake rejected from %s: %v", r.RemoteAddr, authErr)
		h.reject(conn)
		return
	}

	wsConn := NewConnection(conn, identity, h.options)
	if err := h.hub.Join(r.Context(), wsConn); err != nil {
		log.Printf("Failed to admit %s: %v", identity.ID, err)
		_ = wsConn.Close()
		return
	}

	go h.handleConnection(wsConn)
}

// reject writes the unauthorized ERROR frame and closes the socket without
// registering it.
func (h *Handler) reject(conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()

	payload, _ := json.Marshal(types.Envelope{
		Event: types.EventError,
		Data:  types.ErrorPayload{Message: "Unauthorized or invalid token"},
	})

	deadline := time.Now().Add(h.options.WriteTimeout)
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ErrUnauthorized.Error()),
		deadline)
}

// handleConnection is the read pump. It leaves the hub before closing so
// the registry never holds a dead handle.
// ARCHITECTURAL DISCOVERY: one goroutine per connection reads; the writer
// goroutine owns every write including heartbeat pings
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		if err := h.hub.Leave(context.Background(), conn); err != nil {
			log.Printf("Failed to unregister %s: %v", conn.ID(), err)
		}
		_ = conn.Close()
	}()

	conn.conn.SetReadLimit(h.options.MaxMessageSize)
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.options.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.options.ReadTimeout))
	})

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error for %s: %v", conn.Identity().ID, err)
			}
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		if err := h.hub.Submit(conn.ctx, conn, data); err != nil {
			log.Printf("Dropping frame from %s: %v", conn.Identity().ID, err)
			return
		}
	}
}
