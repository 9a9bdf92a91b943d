// Package router implements the attendance event protocol: it validates an
// inbound frame against the caller's role and the session state, applies
// the transition and returns the frames to deliver.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"

	"rollcall/internal/finalize"
	"rollcall/internal/session"
	"rollcall/pkg/types"
)

// FinalizePolicy decides what happens when some attendance writes fail.
type FinalizePolicy string

const (
	// PolicyBestEffort clears the session and broadcasts the result anyway.
	PolicyBestEffort FinalizePolicy = "best_effort"
	// PolicyStrict keeps the session so the teacher can finalize again.
	PolicyStrict FinalizePolicy = "strict"
)

// Finalizer persists a completed session.
type Finalizer interface {
	Finalize(ctx context.Context, classID string, attendance map[string]types.Status) (finalize.Result, error)
}

// Options configures a Router.
type Options struct {
	Policy             FinalizePolicy
	RateLimitPerMinute int
}

// Router implements the EventRouter interface
// ARCHITECTURAL DISCOVERY: the router decides, the hub serializes and the
// broadcast engine delivers; Route never touches a socket
type Router struct {
	state       *session.State
	finalizer   Finalizer
	policy      FinalizePolicy
	rateLimiter *RateLimiter
}

// NewRouter creates a router over the session state.
func NewRouter(state *session.State, finalizer Finalizer, options Options) *Router {
	if options.Policy == "" {
		options.Policy = PolicyBestEffort
	}
	r := &Router{
		state:     state,
		finalizer: finalizer,
		policy:    options.Policy,
	}
	// zero leaves limiting off; a teacher marking a full roster must not lose marks
	if options.RateLimitPerMinute > 0 {
		r.rateLimiter = NewRateLimiter(options.RateLimitPerMinute)
	}
	return r
}

// Route handles one inbound frame from sender. Rejections become a single
// ERROR frame addressed to the sender; the connection stays open.
func (r *Router) Route(ctx context.Context, sender types.Identity, frame []byte) []types.Outbound {
	if r.rateLimiter != nil && !r.rateLimiter.Allow(sender.ID) {
		return reject(ErrRateLimitExceeded)
	}

	env, err := decode(frame)
	if err != nil {
		return reject(err)
	}

	switch env.Event {
	case types.EventMark:
		return r.handleMark(sender, env.Data)
	case types.EventSummary:
		return r.handleSummary(sender)
	case types.EventSelfStatus:
		return r.handleSelfStatus(sender)
	case types.EventFinalize:
		return r.handleFinalize(ctx, sender)
	default:
		return reject(ErrUnknownEvent)
	}
}

// CleanupRateLimits drops idle rate limiter entries.
func (r *Router) CleanupRateLimits() int {
	if r.rateLimiter == nil {
		return 0
	}
	return r.rateLimiter.Cleanup()
}

func decode(frame []byte) (types.InboundEnvelope, error) {
	var env types.InboundEnvelope
	trimmed := bytes.TrimSpace(frame)
	if bytes.Equal(trimmed, []byte("null")) {
		return env, ErrEmptyMessage
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return env, ErrInvalidFormat
	}
	if env.Event == "" {
		return env, ErrInvalidFormat
	}
	return env, nil
}

// handleMark checks session, class id and role in that order before the payload.
func (r *Router) handleMark(sender types.Identity, data json.RawMessage) []types.Outbound {
	classID, ok := r.state.ClassID()
	if !ok || classID == "" {
		return reject(ErrNoActiveSession)
	}
	if sender.Role != types.RoleTeacher {
		return reject(ErrTeacherOnly)
	}

	var payload types.MarkPayload
	if len(data) == 0 || json.Unmarshal(data, &payload) != nil {
		return reject(ErrInvalidFormat)
	}
	if err := payload.Validate(); err != nil {
		return reject(ErrInvalidFormat)
	}

	if err := r.state.Mark(payload.StudentID, payload.Status); err != nil {
		return reject(protocolError(err))
	}

	return broadcast(types.EventMarkResult, types.MarkResult{
		StudentID: payload.StudentID,
		Status:    payload.Status,
	})
}

func (r *Router) handleSummary(sender types.Identity) []types.Outbound {
	if !r.state.Active() {
		return reject(ErrNoActiveSession)
	}
	if sender.Role != types.RoleTeacher {
		return reject(ErrTeacherOnly)
	}

	counts, err := r.state.Summary()
	if err != nil {
		return reject(protocolError(err))
	}
	return broadcast(types.EventSummary, counts)
}

func (r *Router) handleSelfStatus(sender types.Identity) []types.Outbound {
	if !r.state.Active() {
		return reject(ErrNoActiveSession)
	}
	if sender.Role != types.RoleStudent {
		return reject(ErrStudentOnly)
	}

	status, err := r.state.StatusOf(sender.ID)
	if err != nil {
		return reject(protocolError(err))
	}
	return reply(types.EventSelfStatus, types.SelfStatusResult{Status: status})
}

// handleFinalize persists the session and clears it. The roster fetch and
// writes run while the hub holds the event loop, so no mark can interleave.
func (r *Router) handleFinalize(ctx context.Context, sender types.Identity) []types.Outbound {
	current, ok := r.state.Current()
	if !ok {
		return reject(ErrNoActiveSession)
	}
	if sender.Role != types.RoleTeacher {
		return reject(ErrTeacherOnly)
	}

	result, err := r.finalizer.Finalize(ctx, current.ClassID, current.Attendance)
	if err != nil {
		log.Printf("Finalize for class %s aborted, session kept: %v", current.ClassID, err)
		return reject(ErrRosterUnavailable)
	}

	if result.Failed() && r.policy == PolicyStrict {
		log.Printf("Finalize for class %s kept session: %v", current.ClassID, finalize.FailureError(result))
		return reject(ErrPersistIncomplete)
	}

	r.state.Clear("finalized by " + sender.ID)

	return broadcast(types.EventFinalizeResult, types.FinalizeResult{
		Message: types.FinalizeMessage,
		Counts:  result.Counts,
	})
}

// protocolError maps session state errors to client-facing errors.
func protocolError(err error) error {
	switch {
	case errors.Is(err, session.ErrNoActiveSession), errors.Is(err, session.ErrMissingClassID):
		return ErrNoActiveSession
	default:
		return ErrInvalidFormat
	}
}

func reject(err error) []types.Outbound {
	return reply(types.EventError, types.ErrorPayload{Message: err.Error()})
}

func reply(event types.EventType, data interface{}) []types.Outbound {
	return []types.Outbound{{
		Audience: types.AudienceCaller,
		Envelope: types.Envelope{Event: event, Data: data},
	}}
}

func broadcast(event types.EventType, data interface{}) []types.Outbound {
	return []types.Outbound{{
		Audience: types.AudienceAll,
		Envelope: types.Envelope{Event: event, Data: data},
	}}
}
