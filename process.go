package simcore

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Process is a unit of delayed work run by a ProcessScheduler.
type Process interface {
	Run()
}

// ProcessFunc adapts a function to Process.
type ProcessFunc func()

// Run calls f.
func (f ProcessFunc) Run() { f() }

// Command is an undoable operation.
type Command interface {
	Execute() error
	Undo() error
}

// scheduledProcess represents a process scheduled for future execution.
type scheduledProcess struct {
	// at is the simulated time the process should run at
	at time.Duration

	// seq orders processes scheduled for the same instant
	seq uint64

	name string
	proc Process

	// cancelled indicates if the process has been cancelled
	cancelled atomic.Bool

	// index is the heap index for efficient removal
	index int
}

func (p *scheduledProcess) before(o *scheduledProcess) bool {
	if p.at != o.at {
		return p.at < o.at
	}
	return p.seq < o.seq
}

// ProcessHandle allows cancelling a scheduled process.
type ProcessHandle struct {
	p *scheduledProcess
}

// Cancel cancels the scheduled process.
func (h *ProcessHandle) Cancel() {
	if h != nil && h.p != nil {
		h.p.cancelled.Store(true)
	}
}

// Cancelled reports whether Cancel was called.
func (h *ProcessHandle) Cancelled() bool {
	return h != nil && h.p != nil && h.p.cancelled.Load()
}

// ProcessScheduler runs processes after a delay measured in simulated time, and
// keeps an undo/redo stack of commands. Time only moves through Advance.
type ProcessScheduler struct {
	log *slog.Logger

	mu   sync.Mutex
	heap []*scheduledProcess
	now  time.Duration
	seq  uint64

	// cmdMu protects the command stacks
	cmdMu   sync.Mutex
	undo    []Command
	redo    []Command
	maxUndo int
}

// NewProcessScheduler creates a scheduler. maxUndo bounds the undo stack; zero
// keeps every command.
func NewProcessScheduler(log *slog.Logger, maxUndo int) *ProcessScheduler {
	if log == nil {
		log = slog.Default()
	}
	return &ProcessScheduler{
		log:     log,
		heap:    make([]*scheduledProcess, 0, 64),
		maxUndo: maxUndo,
	}
}

// Now returns the simulated time.
func (s *ProcessScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Schedule runs p once delay has elapsed. A delay of zero runs p on the next
// Advance.
func (s *ProcessScheduler) Schedule(name string, p Process, delay time.Duration) *ProcessHandle {
	if p == nil {
		return nil
	}
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	if len(s.heap) > 100 && len(s.heap)%100 == 0 {
		s.compactHeap()
	}
	s.seq++
	sp := &scheduledProcess{at: s.now + delay, seq: s.seq, name: name, proc: p}
	s.push(sp)
	s.mu.Unlock()

	return &ProcessHandle{p: sp}
}

// ScheduleFunc is Schedule for a plain function.
func (s *ProcessScheduler) ScheduleFunc(name string, fn func(), delay time.Duration) *ProcessHandle {
	return s.Schedule(name, ProcessFunc(fn), delay)
}

// Advance moves simulated time forward by dt and runs every due process in
// order. It returns the number of processes that ran. Processes scheduled by a
// running process wait for the next Advance.
func (s *ProcessScheduler) Advance(dt time.Duration) int {
	if dt < 0 {
		dt = 0
	}
	s.mu.Lock()
	s.now += dt
	due := s.popDue(s.now)
	s.mu.Unlock()

	for _, p := range due {
		s.run(p)
	}
	return len(due)
}

func (s *ProcessScheduler) run(p *scheduledProcess) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("simcore: panic in process",
				"process", p.name,
				"error", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	if p.cancelled.Load() {
		return
	}
	p.proc.Run()
}

// Len returns the number of queued processes, cancelled ones included until
// they are compacted away.
func (s *ProcessScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heap)
}

// Clear drops every queued process.
func (s *ProcessScheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.heap {
		s.heap[i] = nil
	}
	s.heap = s.heap[:0]
}

// Execute runs cmd and pushes it on the undo stack. The redo stack is dropped.
func (s *ProcessScheduler) Execute(cmd Command) error {
	if err := cmd.Execute(); err != nil {
		return err
	}
	s.cmdMu.Lock()
	s.undo = append(s.undo, cmd)
	if s.maxUndo > 0 && len(s.undo) > s.maxUndo {
		s.undo = s.undo[len(s.undo)-s.maxUndo:]
	}
	s.redo = s.redo[:0]
	s.cmdMu.Unlock()
	return nil
}

// Undo reverts the most recent command.
func (s *ProcessScheduler) Undo() error {
	s.cmdMu.Lock()
	if len(s.undo) == 0 {
		s.cmdMu.Unlock()
		return withMetadata(CodeInvalidState, "simcore: nothing to undo", nil)
	}
	cmd := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.cmdMu.Unlock()

	if err := cmd.Undo(); err != nil {
		return err
	}
	s.cmdMu.Lock()
	s.redo = append(s.redo, cmd)
	s.cmdMu.Unlock()
	return nil
}

// Redo re-executes the most recently undone command.
func (s *ProcessScheduler) Redo() error {
	s.cmdMu.Lock()
	if len(s.redo) == 0 {
		s.cmdMu.Unlock()
		return withMetadata(CodeInvalidState, "simcore: nothing to redo", nil)
	}
	cmd := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.cmdMu.Unlock()

	if err := cmd.Execute(); err != nil {
		return err
	}
	s.cmdMu.Lock()
	s.undo = append(s.undo, cmd)
	s.cmdMu.Unlock()
	return nil
}

// CanUndo reports whether a command is waiting to be undone.
func (s *ProcessScheduler) CanUndo() bool {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	return len(s.undo) > 0
}

// CanRedo reports whether an undone command can be redone.
func (s *ProcessScheduler) CanRedo() bool {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	return len(s.redo) > 0
}

// compactHeap removes cancelled processes and rebuilds the heap property.
// Caller must hold mu.
func (s *ProcessScheduler) compactHeap() {
	write := 0
	for read := 0; read < len(s.heap); read++ {
		if !s.heap[read].cancelled.Load() {
			s.heap[write] = s.heap[read]
			s.heap[write].index = write
			write++
		}
	}
	for i := write; i < len(s.heap); i++ {
		s.heap[i] = nil
	}
	s.heap = s.heap[:write]

	for i := len(s.heap)/2 - 1; i >= 0; i-- {
		s.down(i, len(s.heap))
	}
}

// popDue removes every process due at now. Caller must hold mu.
func (s *ProcessScheduler) popDue(now time.Duration) []*scheduledProcess {
	var due []*scheduledProcess
	cancelled := 0

	for len(s.heap) > 0 && s.heap[0].at <= now {
		p := s.pop()
		if p.cancelled.Load() {
			cancelled++
			continue
		}
		due = append(due, p)
	}

	if cancelled > 50 && len(s.heap) > 0 {
		s.compactHeap()
	}
	return due
}

func (s *ProcessScheduler) push(p *scheduledProcess) {
	p.index = len(s.heap)
	s.heap = append(s.heap, p)
	s.up(p.index)
}

func (s *ProcessScheduler) pop() *scheduledProcess {
	n := len(s.heap) - 1
	s.swap(0, n)
	s.down(0, n)
	p := s.heap[n]
	s.heap[n] = nil
	s.heap = s.heap[:n]
	p.index = -1
	return p
}

func (s *ProcessScheduler) up(i int) {
	for {
		parent := (i - 1) / 2
		if parent == i || !s.heap[i].before(s.heap[parent]) {
			break
		}
		s.swap(i, parent)
		i = parent
	}
}

func (s *ProcessScheduler) down(i, n int) {
	for {
		left := 2*i + 1
		if left >= n || left < 0 {
			break
		}
		j := left
		if right := left + 1; right < n && s.heap[right].before(s.heap[left]) {
			j = right
		}
		if !s.heap[j].before(s.heap[i]) {
			break
		}
		s.swap(i, j)
		i = j
	}
}

func (s *ProcessScheduler) swap(i, j int) {
	s.heap[i], s.heap[j] = s.heap[j], s.heap[i]
	s.heap[i].index = i
	s.heap[j].index = j
}
