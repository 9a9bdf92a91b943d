package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"rollcall/pkg/types"
)

func startedState(t *testing.T, classID string) *State {
	t.Helper()
	s := NewState()
	if _, _, err := s.Start(classID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return s
}

// Functional Validation Tests - lifecycle

func TestState_StartsEmpty(t *testing.T) {
	s := NewState()

	if s.Active() {
		t.Error("New state should have no session")
	}
	if _, ok := s.Current(); ok {
		t.Error("Current should report no session")
	}
	if _, ok := s.Clear("test"); ok {
		t.Error("Clear on empty state should report nothing cleared")
	}
}

func TestState_Start(t *testing.T) {
	s := NewState()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	started, replaced, err := s.Start("c1")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if replaced != nil {
		t.Error("First start should not replace anything")
	}
	if started.ClassID != "c1" || !started.StartedAt.Equal(fixed) {
		t.Errorf("Unexpected session %+v", started)
	}
	if started.Attendance == nil || len(started.Attendance) != 0 {
		t.Errorf("New session should have an empty attendance map, got %v", started.Attendance)
	}

	// the returned session is a copy
	started.Attendance["s1"] = types.StatusPresent
	if counts, _ := s.Summary(); counts.Total != 0 {
		t.Error("Mutating the returned session changed state")
	}
}

func TestState_StartRejectsInvalidClass(t *testing.T) {
	s := NewState()
	for _, classID := range []string{"", "bad id"} {
		if _, _, err := s.Start(classID); !errors.Is(err, ErrInvalidClassID) {
			t.Errorf("Start(%q): expected ErrInvalidClassID, got %v", classID, err)
		}
	}
	if s.Active() {
		t.Error("Rejected start must not create a session")
	}
}

func TestState_StartReplacesExisting(t *testing.T) {
	s := startedState(t, "c1")
	if err := s.Mark("s1", types.StatusPresent); err != nil {
		t.Fatalf("Mark failed: %v", err)
	}

	_, replaced, err := s.Start("c2")
	if err != nil {
		t.Fatalf("Second start failed: %v", err)
	}
	if replaced == nil || replaced.ClassID != "c1" || len(replaced.Attendance) != 1 {
		t.Errorf("Expected c1 session with one mark to be replaced, got %+v", replaced)
	}

	current, _ := s.Current()
	if current.ClassID != "c2" || len(current.Attendance) != 0 {
		t.Errorf("Expected fresh c2 session, got %+v", current)
	}
}

func TestState_Clear(t *testing.T) {
	s := startedState(t, "c1")
	_ = s.Mark("s1", types.StatusAbsent)

	cleared, ok := s.Clear("finalized")
	if !ok || cleared.ClassID != "c1" || len(cleared.Attendance) != 1 {
		t.Errorf("Unexpected clear result %+v %v", cleared, ok)
	}
	if s.Active() {
		t.Error("Session should be gone after Clear")
	}
}

// Functional Validation Tests - operations

func TestState_OperationsWithoutSession(t *testing.T) {
	s := NewState()

	if err := s.Mark("s1", types.StatusPresent); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("Mark: expected ErrNoActiveSession, got %v", err)
	}
	if _, err := s.Summary(); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("Summary: expected ErrNoActiveSession, got %v", err)
	}
	if _, err := s.StatusOf("s1"); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("StatusOf: expected ErrNoActiveSession, got %v", err)
	}
}

func TestState_MarkLastWriteWins(t *testing.T) {
	s := startedState(t, "c1")

	_ = s.Mark("s1", types.StatusPresent)
	_ = s.Mark("s1", types.StatusAbsent)
	_ = s.Mark("s2", types.StatusPresent)

	counts, err := s.Summary()
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if counts != (types.Counts{Present: 1, Absent: 1, Total: 2}) {
		t.Errorf("Unexpected counts %+v", counts)
	}

	status, _ := s.StatusOf("s1")
	if status != types.StatusAbsent {
		t.Errorf("Expected s1 absent, got %s", status)
	}
}

func TestState_MarkValidation(t *testing.T) {
	s := startedState(t, "c1")

	if err := s.Mark("bad id", types.StatusPresent); !errors.Is(err, ErrInvalidStudent) {
		t.Errorf("Expected ErrInvalidStudent, got %v", err)
	}
	if err := s.Mark("s1", types.StatusNotYetUpdated); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("Expected ErrInvalidStatus, got %v", err)
	}
}

func TestState_MarkRequiresClassID(t *testing.T) {
	s := startedState(t, "c1")
	s.current.ClassID = ""

	if err := s.Mark("s1", types.StatusPresent); !errors.Is(err, ErrMissingClassID) {
		t.Errorf("Expected ErrMissingClassID, got %v", err)
	}
}

func TestState_StatusOfUnmarked(t *testing.T) {
	s := startedState(t, "c1")

	status, err := s.StatusOf("s9")
	if err != nil {
		t.Fatalf("StatusOf failed: %v", err)
	}
	if status != types.StatusNotYetUpdated {
		t.Errorf("Expected %q, got %q", types.StatusNotYetUpdated, status)
	}
}

func TestState_Stats(t *testing.T) {
	s := NewState()
	if s.Stats()["active"] != false {
		t.Error("Expected inactive stats")
	}

	_, _, _ = s.Start("c1")
	_ = s.Mark("s1", types.StatusPresent)
	stats := s.Stats()
	if stats["active"] != true || stats["class_id"] != "c1" || stats["marks"] != 1 {
		t.Errorf("Unexpected stats %v", stats)
	}
}

func TestState_ConcurrentReadersAndWriter(t *testing.T) {
	s := startedState(t, "c1")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = s.Current()
				_, _ = s.Summary()
			}
		}()
	}
	for j := 0; j < 100; j++ {
		_ = s.Mark("s1", types.StatusPresent)
	}
	wg.Wait()
}

func TestState_ClassID(t *testing.T) {
	s := NewState()
	if _, ok := s.ClassID(); ok {
		t.Error("Expected no class without a session")
	}
	_, _, _ = s.Start("c7")
	if id, ok := s.ClassID(); !ok || id != "c7" {
		t.Errorf("Expected c7, got %q %v", id, ok)
	}
}
