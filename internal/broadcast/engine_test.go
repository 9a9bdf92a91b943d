package broadcast

import (
	"errors"
	"sync"
	"testing"

	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

type fakeConn struct {
	id      string
	role    types.Role
	mu      sync.Mutex
	frames  []string
	sendErr error
}

func (c *fakeConn) ID() string               { return c.id }
func (c *fakeConn) Identity() types.Identity { return types.Identity{ID: c.id, Role: c.role} }
func (c *fakeConn) Close() error             { return nil }

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, string(payload))
	return nil
}

// fakeRegistry mirrors the real registry's best-effort loop
type fakeRegistry struct {
	conns    []*fakeConn
	payloads [][]byte
}

func (r *fakeRegistry) Broadcast(payload []byte, predicate func(interfaces.Connection) bool) (int, int) {
	r.payloads = append(r.payloads, payload)
	sent, failed := 0, 0
	for _, c := range r.conns {
		if predicate != nil && !predicate(c) {
			continue
		}
		if err := c.Send(payload); err != nil {
			failed++
			continue
		}
		sent++
	}
	return sent, failed
}

func TestEncode_WireShape(t *testing.T) {
	payload, err := Encode(types.Envelope{
		Event: types.EventMarkResult,
		Data:  types.MarkResult{StudentID: "s1", Status: types.StatusPresent},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := `{"event":"MARK_RESULT","data":{"studentId":"s1","status":"present"}}`
	if string(payload) != want {
		t.Errorf("got %s\nwant %s", payload, want)
	}
}

func TestEngine_BroadcastIdenticalBytes(t *testing.T) {
	teacher := &fakeConn{id: "t1", role: types.RoleTeacher}
	student := &fakeConn{id: "s1", role: types.RoleStudent}
	registry := &fakeRegistry{conns: []*fakeConn{teacher, student}}
	engine := NewEngine(registry)

	err := engine.Broadcast(types.Envelope{Event: types.EventSummary, Data: types.Counts{Present: 1, Total: 1}})
	if err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}

	if len(registry.payloads) != 1 {
		t.Fatalf("Envelope should be encoded once, got %d", len(registry.payloads))
	}
	if len(teacher.frames) != 1 || len(student.frames) != 1 || teacher.frames[0] != student.frames[0] {
		t.Errorf("Every role should receive identical bytes: %v %v", teacher.frames, student.frames)
	}
}

func TestEngine_BroadcastSurvivesFailedRecipient(t *testing.T) {
	broken := &fakeConn{id: "x", sendErr: errors.New("gone")}
	healthy := &fakeConn{id: "s1"}
	engine := NewEngine(&fakeRegistry{conns: []*fakeConn{broken, healthy}})

	if err := engine.Broadcast(types.Envelope{Event: types.EventSummary, Data: types.Counts{}}); err != nil {
		t.Errorf("Per-recipient failure must not surface, got %v", err)
	}
	if len(healthy.frames) != 1 {
		t.Error("Healthy recipient should still receive the frame")
	}
}

func TestEngine_EncodeFailure(t *testing.T) {
	engine := NewEngine(&fakeRegistry{})
	err := engine.Broadcast(types.Envelope{Event: types.EventSummary, Data: func() {}})
	if err == nil {
		t.Error("Expected encode error")
	}
}

func TestEngine_Deliver(t *testing.T) {
	sender := &fakeConn{id: "t1", role: types.RoleTeacher}
	other := &fakeConn{id: "s1", role: types.RoleStudent}
	engine := NewEngine(&fakeRegistry{conns: []*fakeConn{sender, other}})

	engine.Deliver(sender, []types.Outbound{
		{Audience: types.AudienceCaller, Envelope: types.Envelope{Event: types.EventError, Data: types.ErrorPayload{Message: "x"}}},
		{Audience: types.AudienceAll, Envelope: types.Envelope{Event: types.EventSummary, Data: types.Counts{}}},
	})

	if len(sender.frames) != 2 {
		t.Errorf("Sender should get reply and broadcast, got %v", sender.frames)
	}
	if len(other.frames) != 1 {
		t.Errorf("Other connection should only get the broadcast, got %v", other.frames)
	}
}
