// Package finalize turns a live session into durable attendance records.
package finalize

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

// ErrPersistFailed reports that at least one attendance write failed.
var ErrPersistFailed = errors.New("attendance persistence incomplete")

// StudentFailure is one failed attendance write.
type StudentFailure struct {
	StudentID string
	Err       error
}

// Result is the outcome of a finalize run.
type Result struct {
	types.Counts
	Failures []StudentFailure
}

// Failed reports whether any write failed.
func (r Result) Failed() bool { return len(r.Failures) > 0 }

// Bridge fills in absentees and persists one record per roster student.
type Bridge struct {
	classes     interfaces.ClassStore
	attendance  interfaces.AttendanceStore
	concurrency int
}

// NewBridge creates a bridge issuing at most concurrency writes at once.
func NewBridge(classes interfaces.ClassStore, attendance interfaces.AttendanceStore, concurrency int) *Bridge {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Bridge{classes: classes, attendance: attendance, concurrency: concurrency}
}

// Finalize completes the attendance map against the class roster and
// persists it. Students on the roster without a mark are set to absent in
// attendance itself. A failed write is recorded in the result and never
// stops the others. Marks for students outside the roster are counted but
// not persisted.
//
// An error is returned only when the roster cannot be fetched, in which
// case nothing was written and attendance is unchanged.
func (b *Bridge) Finalize(ctx context.Context, classID string, attendance map[string]types.Status) (Result, error) {
	roster, err := b.classes.FetchClassRoster(ctx, classID)
	if err != nil {
		return Result{}, fmt.Errorf("fetch roster for class %s: %w", classID, err)
	}

	for _, studentID := range roster {
		if _, marked := attendance[studentID]; !marked {
			attendance[studentID] = types.StatusAbsent
		}
	}

	var (
		mu       sync.Mutex
		failures []StudentFailure
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	seen := make(map[string]bool, len(roster))
	for _, studentID := range roster {
		if seen[studentID] {
			continue
		}
		seen[studentID] = true

		studentID, status := studentID, attendance[studentID]
		g.Go(func() error {
			if err := b.attendance.PersistAttendance(gctx, classID, studentID, status); err != nil {
				log.Printf("Failed to persist attendance for student %s in class %s: %v", studentID, classID, err)
				mu.Lock()
				failures = append(failures, StudentFailure{StudentID: studentID, Err: err})
				mu.Unlock()
			}
			// failures stay local to the student; never cancel the group
			return nil
		})
	}
	_ = g.Wait()

	session := types.Session{ClassID: classID, Attendance: attendance}
	result := Result{Counts: session.Counts(), Failures: failures}

	if result.Failed() {
		log.Printf("Finalized class %s with %d of %d writes failed", classID, len(failures), len(seen))
	} else {
		log.Printf("Finalized class %s: %d present, %d absent", classID, result.Present, result.Absent)
	}

	return result, nil
}

// FailureError summarizes result failures as an error wrapping ErrPersistFailed.
func FailureError(result Result) error {
	if !result.Failed() {
		return nil
	}
	return fmt.Errorf("%w: %d student records not saved", ErrPersistFailed, len(result.Failures))
}
