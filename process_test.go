package simcore

import (
	"errors"
	"testing"
	"time"
)

func TestProcessOrdering(t *testing.T) {
	s := NewProcessScheduler(quietLogger(), 0)
	var order []string
	add := func(name string, delay time.Duration) *ProcessHandle {
		return s.ScheduleFunc(name, func() { order = append(order, name) }, delay)
	}

	add("late", 30*time.Millisecond)
	add("first", 10*time.Millisecond)
	add("second", 10*time.Millisecond)
	add("now", 0)
	cancelled := add("cancelled", 5*time.Millisecond)
	cancelled.Cancel()

	if n := s.Advance(0); n != 1 {
		t.Fatalf("expected one process due at 0, got %d", n)
	}
	if n := s.Advance(20 * time.Millisecond); n != 2 {
		t.Fatalf("expected two processes, got %d", n)
	}
	s.Advance(20 * time.Millisecond)

	want := []string{"now", "first", "second", "late"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
	if !cancelled.Cancelled() {
		t.Errorf("handle lost its cancellation")
	}
	if s.Now() != 40*time.Millisecond {
		t.Errorf("unexpected clock %v", s.Now())
	}
	if s.Len() != 0 {
		t.Errorf("queue not drained: %d", s.Len())
	}
}

func TestProcessScheduledFromProcessWaits(t *testing.T) {
	s := NewProcessScheduler(quietLogger(), 0)
	ran := 0
	s.ScheduleFunc("outer", func() {
		s.ScheduleFunc("inner", func() { ran++ }, 0)
	}, 0)

	s.Advance(0)
	if ran != 0 {
		t.Fatal("inner process ran in the same advance")
	}
	s.Advance(0)
	if ran != 1 {
		t.Fatal("inner process did not run on the next advance")
	}
}

func TestProcessPanicRecovered(t *testing.T) {
	s := NewProcessScheduler(quietLogger(), 0)
	after := false
	s.ScheduleFunc("boom", func() { panic("boom") }, 0)
	s.ScheduleFunc("after", func() { after = true }, 0)

	s.Advance(0)
	if !after {
		t.Error("a panicking process stopped the queue")
	}
}

type addCommand struct {
	total *int
	n     int
	fail  bool
}

func (c *addCommand) Execute() error {
	if c.fail {
		return errors.New("refused")
	}
	*c.total += c.n
	return nil
}

func (c *addCommand) Undo() error {
	*c.total -= c.n
	return nil
}

func TestUndoRedo(t *testing.T) {
	s := NewProcessScheduler(quietLogger(), 2)
	total := 0

	for _, n := range []int{1, 2, 4} {
		if err := s.Execute(&addCommand{total: &total, n: n}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Execute(&addCommand{total: &total, n: 100, fail: true}); err == nil {
		t.Fatal("expected the failing command to report")
	}
	if total != 7 {
		t.Fatalf("expected 7, got %d", total)
	}

	// maxUndo keeps the two newest commands.
	if err := s.Undo(); err != nil {
		t.Fatal(err)
	}
	if err := s.Undo(); err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Fatalf("expected 1 after two undos, got %d", total)
	}
	if err := s.Undo(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	if err := s.Redo(); err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Fatalf("expected 3 after redo, got %d", total)
	}

	// A new command drops the redo stack.
	if err := s.Execute(&addCommand{total: &total, n: 10}); err != nil {
		t.Fatal(err)
	}
	if s.CanRedo() {
		t.Error("redo stack survived a new command")
	}
	if err := s.Redo(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}
