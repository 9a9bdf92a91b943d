package hub

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"rollcall/internal/session"
	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

// Registry is the connection registry as the hub uses it.
type Registry interface {
	Register(conn interfaces.Connection) string
	Unregister(handle string) (remaining int, removed bool)
}

// Deliverer fans router output out to connections.
type Deliverer interface {
	Deliver(sender interfaces.Connection, outbound []types.Outbound)
}

// rateLimitCleaner is implemented by routers that keep per-user limits.
type rateLimitCleaner interface {
	CleanupRateLimits() int
}

// Options tunes the hub loop.
type Options struct {
	// QueueSize buffers requests ahead of the loop
	QueueSize int
	// EventTimeout bounds a single event, including finalize writes
	EventTimeout time.Duration
	// CleanupInterval is how often idle rate limiter entries are dropped
	CleanupInterval time.Duration
}

// DefaultOptions returns the classroom defaults.
func DefaultOptions() Options {
	return Options{
		QueueSize:       1000,
		EventTimeout:    30 * time.Second,
		CleanupInterval: time.Minute,
	}
}

type requestKind int

const (
	requestJoin requestKind = iota
	requestLeave
	requestEvent
	requestStart
)

// request is one unit of work for the loop. Joins, leaves, events and
// session starts share one queue so they are applied in arrival order.
type request struct {
	kind    requestKind
	conn    interfaces.Connection
	frame   []byte
	classID string
	reply   chan response
}

type response struct {
	session *types.Session
	err     error
}

// Hub is the single owner of session mutations
// ARCHITECTURAL DISCOVERY: Central coordination point for all message flow.
// One goroutine applies every join, leave, event and session start, so the
// session never sees two transitions at once, even while finalize waits on
// the database.
type Hub struct {
	requests        chan *request
	shutdownChannel chan struct{}
	done            chan struct{}

	registry Registry
	router   interfaces.EventRouter
	engine   Deliverer
	state    *session.State
	options  Options

	running bool
	mu      sync.RWMutex
}

// NewHub creates a new hub
func NewHub(registry Registry, router interfaces.EventRouter, engine Deliverer, state *session.State, options Options) *Hub {
	if options.QueueSize <= 0 {
		options.QueueSize = DefaultOptions().QueueSize
	}
	if options.EventTimeout <= 0 {
		options.EventTimeout = DefaultOptions().EventTimeout
	}
	if options.CleanupInterval <= 0 {
		options.CleanupInterval = DefaultOptions().CleanupInterval
	}
	return &Hub{
		requests:        make(chan *request, options.QueueSize),
		shutdownChannel: make(chan struct{}),
		done:            make(chan struct{}),
		registry:        registry,
		router:          router,
		engine:          engine,
		state:           state,
		options:         options,
	}
}

// Start begins hub processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	log.Println("Starting attendance hub...")
	go h.run(ctx)

	return nil
}

// Stop shuts the loop down and waits for the current request to finish.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	h.mu.Unlock()

	log.Println("Stopping attendance hub...")
	<-h.done
	return nil
}

// IsRunning reports whether the loop is accepting requests.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Options returns the settings the hub runs with, defaults applied.
func (h *Hub) Options() Options {
	return h.options
}

// Join registers an authenticated connection.
func (h *Hub) Join(ctx context.Context, conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	_, err := h.call(ctx, &request{kind: requestJoin, conn: conn})
	return err
}

// Leave unregisters the connection. It returns after the loop has applied
// the departure, including clearing the session if the registry emptied.
// Once the hub has stopped the connection is simply dropped.
func (h *Hub) Leave(ctx context.Context, conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	_, err := h.call(ctx, &request{kind: requestLeave, conn: conn})
	if errors.Is(err, ErrHubNotRunning) {
		h.registry.Unregister(conn.ID())
		return nil
	}
	return err
}

// Submit queues an inbound frame. It blocks while the queue is full, which
// keeps one connection's frames in order and pushes back on the reader.
func (h *Hub) Submit(ctx context.Context, conn interfaces.Connection, frame []byte) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !h.IsRunning() {
		return ErrHubNotRunning
	}

	select {
	case h.requests <- &request{kind: requestEvent, conn: conn, frame: frame}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.shutdownChannel:
		return ErrHubNotRunning
	}
}

// StartSession opens the attendance session for classID, replacing any
// existing one. Authorization happens before this call.
func (h *Hub) StartSession(ctx context.Context, classID string) (*types.Session, error) {
	resp, err := h.call(ctx, &request{kind: requestStart, classID: classID})
	if err != nil {
		return nil, err
	}
	return resp.session, nil
}

// CurrentSession returns a snapshot of the active session.
func (h *Hub) CurrentSession() (*types.Session, bool) {
	return h.state.Current()
}

// call queues a request and waits for the loop's answer.
func (h *Hub) call(ctx context.Context, req *request) (response, error) {
	if !h.IsRunning() {
		return response{}, ErrHubNotRunning
	}
	req.reply = make(chan response, 1)

	select {
	case h.requests <- req:
	case <-ctx.Done():
		return response{}, ctx.Err()
	case <-h.shutdownChannel:
		return response{}, ErrHubNotRunning
	}

	select {
	case resp := <-req.reply:
		return resp, resp.err
	case <-h.done:
		return response{}, ErrHubNotRunning
	}
}

// run is the main hub processing loop
// TECHNICAL DISCOVERY: Single select loop handles all coordination
// preventing race conditions while maintaining high throughput
func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer log.Println("Hub processing stopped")

	ticker := time.NewTicker(h.options.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case req := <-h.requests:
			h.handle(ctx, req)

		case <-ticker.C:
			if cleaner, ok := h.router.(rateLimitCleaner); ok {
				cleaner.CleanupRateLimits()
			}

		case <-h.shutdownChannel:
			log.Println("Hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			h.mu.Lock()
			if h.running {
				h.running = false
				close(h.shutdownChannel)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) handle(ctx context.Context, req *request) {
	var resp response

	switch req.kind {
	case requestJoin:
		handle := h.registry.Register(req.conn)
		identity := req.conn.Identity()
		log.Printf("Connection registered: user=%s role=%s handle=%s", identity.ID, identity.Role, handle)

	case requestLeave:
		h.handleLeave(req.conn)

	case requestEvent:
		h.handleEvent(ctx, req.conn, req.frame)

	case requestStart:
		started, _, err := h.state.Start(req.classID)
		resp = response{session: started, err: err}
	}

	if req.reply != nil {
		req.reply <- resp
	}
}

// handleLeave unregisters the connection and clears the session when the
// last connection is gone.
func (h *Hub) handleLeave(conn interfaces.Connection) {
	remaining, removed := h.registry.Unregister(conn.ID())
	if !removed {
		return
	}
	log.Printf("Connection deregistered: user=%s handle=%s remaining=%d", conn.Identity().ID, conn.ID(), remaining)

	if remaining == 0 {
		if cleared, ok := h.state.Clear("no connections remain"); ok {
			log.Printf("session auto-cleared: class=%s marks=%d", cleared.ClassID, len(cleared.Attendance))
		}
	}
}

func (h *Hub) handleEvent(ctx context.Context, conn interfaces.Connection, frame []byte) {
	eventCtx, cancel := context.WithTimeout(ctx, h.options.EventTimeout)
	defer cancel()

	outbound := h.router.Route(eventCtx, conn.Identity(), frame)
	h.engine.Deliver(conn, outbound)
}

var _ interfaces.SessionController = (*Hub)(nil)
