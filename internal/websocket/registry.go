package websocket

import (
	"log"
	"sync"

	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

// Registry tracks live connections by handle.
// ARCHITECTURAL DISCOVERY: Pure connection management without business logic
// maintains clean separation between connection tracking and connection operations
type Registry struct {
	mu          sync.RWMutex // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy broadcast patterns
	connections map[string]interfaces.Connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{connections: make(map[string]interfaces.Connection)}
}

// Register adds a connection and returns its handle. It never fails; a user
// may hold several connections at once.
func (r *Registry) Register(conn interfaces.Connection) string {
	handle := conn.ID()

	r.mu.Lock()
	r.connections[handle] = conn
	r.mu.Unlock()

	return handle
}

// Unregister removes the handle and returns how many connections remain.
// FUNCTIONAL DISCOVERY: Idempotent operation safe for concurrent unregistration
func (r *Registry) Unregister(handle string) (remaining int, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[handle]; ok {
		delete(r.connections, handle)
		removed = true
	}
	return len(r.connections), removed
}

// Get returns the connection registered under handle.
func (r *Registry) Get(handle string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[handle]
	return conn, ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Snapshot returns the connections matching predicate; nil matches all.
func (r *Registry) Snapshot(predicate func(interfaces.Connection) bool) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]interfaces.Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		if predicate == nil || predicate(conn) {
			conns = append(conns, conn)
		}
	}
	return conns
}

// Broadcast sends payload to every matching connection. A failed send is
// logged and never prevents delivery to the others.
func (r *Registry) Broadcast(payload []byte, predicate func(interfaces.Connection) bool) (sent, failed int) {
	// sends happen outside the lock so a slow socket cannot block registration
	for _, conn := range r.Snapshot(predicate) {
		if err := conn.Send(payload); err != nil {
			log.Printf("Broadcast to %s (%s) failed: %v", conn.Identity().ID, conn.ID(), err)
			failed++
			continue
		}
		sent++
	}
	return sent, failed
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := map[string]int{
		"total_connections": len(r.connections),
		"teachers":          0,
		"students":          0,
	}
	for _, conn := range r.connections {
		switch conn.Identity().Role {
		case types.RoleTeacher:
			stats["teachers"]++
		case types.RoleStudent:
			stats["students"]++
		}
	}
	return stats
}
