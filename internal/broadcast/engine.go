// Package broadcast serializes outbound envelopes and fans them out to
// registered connections.
package broadcast

import (
	"encoding/json"
	"fmt"
	"log"

	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

// Registry is the subset of the connection registry the engine needs.
type Registry interface {
	Broadcast(payload []byte, predicate func(interfaces.Connection) bool) (sent, failed int)
}

// Engine delivers envelopes. Delivery is best effort: a failed send is
// logged and never affects other recipients or the caller.
type Engine struct {
	registry Registry
}

// NewEngine creates an engine over registry.
func NewEngine(registry Registry) *Engine {
	return &Engine{registry: registry}
}

// Encode renders the {"event","data"} wire form.
func Encode(env types.Envelope) ([]byte, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", env.Event, err)
	}
	return payload, nil
}

// Broadcast sends env to every registered connection. The envelope is
// encoded once so all recipients receive identical bytes.
func (e *Engine) Broadcast(env types.Envelope) error {
	return e.BroadcastTo(env, nil)
}

// BroadcastTo sends env to the connections matching predicate.
func (e *Engine) BroadcastTo(env types.Envelope, predicate func(interfaces.Connection) bool) error {
	payload, err := Encode(env)
	if err != nil {
		return err
	}
	sent, failed := e.registry.Broadcast(payload, predicate)
	if failed > 0 {
		log.Printf("Broadcast %s reached %d connections, %d failed", env.Event, sent, failed)
	}
	return nil
}

// Reply sends env to a single connection.
func (e *Engine) Reply(conn interfaces.Connection, env types.Envelope) error {
	payload, err := Encode(env)
	if err != nil {
		return err
	}
	if err := conn.Send(payload); err != nil {
		log.Printf("Reply %s to %s failed: %v", env.Event, conn.Identity().ID, err)
		return err
	}
	return nil
}

// Deliver routes each outbound envelope to its audience in order.
func (e *Engine) Deliver(sender interfaces.Connection, outbound []types.Outbound) {
	for _, out := range outbound {
		var err error
		switch out.Audience {
		case types.AudienceAll:
			err = e.Broadcast(out.Envelope)
		case types.AudienceCaller:
			err = e.Reply(sender, out.Envelope)
		}
		if err != nil {
			log.Printf("Delivery of %s failed: %v", out.Envelope.Event, err)
		}
	}
}
