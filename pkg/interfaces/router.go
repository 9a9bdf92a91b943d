package interfaces

import (
	"context"

	"rollcall/pkg/types"
)

// EventRouter is the protocol transition function
// ARCHITECTURAL DISCOVERY: routing decides what to send and to whom;
// delivery is left to the caller so the router stays free of transport code
type EventRouter interface {
	// Route validates and applies one inbound frame from sender and returns
	// the outbound envelopes it produced, in delivery order
	Route(ctx context.Context, sender types.Identity, frame []byte) []types.Outbound
}
