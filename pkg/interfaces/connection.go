package interfaces

import "rollcall/pkg/types"

// Connection represents one live, authenticated real-time client
// ARCHITECTURAL DISCOVERY: Pure abstraction without transport details
// lets the registry and hub be driven by in-memory fakes in tests
type Connection interface {
	// ID returns the registry handle assigned when the connection was created
	ID() string

	// Identity returns the identity resolved during the handshake; it never changes
	Identity() types.Identity

	// Send queues an already-serialized frame for delivery (thread-safe)
	// FUNCTIONAL DISCOVERY: broadcasts marshal once and hand the same bytes
	// to every recipient, so the contract takes bytes rather than values
	Send(payload []byte) error

	// Close closes the transport and cleans up resources; safe to call twice
	Close() error
}
