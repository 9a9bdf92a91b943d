package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"rollcall/pkg/types"
)

// Options tunes a connection's buffers and heartbeat.
type Options struct {
	BufferSize     int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
}

// DefaultOptions returns the classroom defaults.
func DefaultOptions() Options {
	return Options{
		BufferSize:     100,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		ReadTimeout:    60 * time.Second,
		MaxMessageSize: 8192,
	}
}

// Connection implements the interfaces.Connection interface
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized to prevent race conditions
// Interface boundary maintained - no business logic in connection wrapper
type Connection struct {
	id        string
	identity  types.Identity
	conn      *websocket.Conn
	options   Options
	writeCh   chan []byte // FUNCTIONAL DISCOVERY: buffered so a slow reader never stalls a broadcast
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection wraps an upgraded socket for an authenticated identity and
// starts its writer.
func NewConnection(conn *websocket.Conn, identity types.Identity, options Options) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:       uuid.New().String(),
		identity: identity,
		conn:     conn,
		options:  options,
		writeCh:  make(chan []byte, options.BufferSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	go c.writeLoop()

	return c
}

// ID returns the registry handle of the connection.
func (c *Connection) ID() string { return c.id }

// Identity returns the caller identity established at handshake.
func (c *Connection) Identity() types.Identity { return c.identity }

// Done is closed once the connection has been closed.
func (c *Connection) Done() <-chan struct{} { return c.ctx.Done() }

// ARCHITECTURAL DISCOVERY: Single writer goroutine pattern eliminates races.
// Heartbeat pings go through the same goroutine as data frames.
func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.options.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.options.WriteTimeout)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Write to %s (%s) failed: %v", c.identity.ID, c.id, err)
				_ = c.Close()
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(c.options.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// Send queues a serialized frame for delivery without waiting. A connection
// whose buffer is full is a slow consumer: it is closed and its read pump
// unregisters it, so one stalled socket never holds up the hub.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeCh <- payload:
		return nil
	default:
		log.Printf("Send buffer of %s (%s) full, closing slow consumer", c.identity.ID, c.id)
		_ = c.Close()
		return ErrSendBufferFull
	}
}

// WriteJSON marshals v and queues it.
func (c *Connection) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}
	return c.Send(data)
}

// Close stops the writer and closes the socket. Safe to call repeatedly.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
