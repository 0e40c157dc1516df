package simcore

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// RenderQueue runs work on the goroutine that owns render-side geometry.
// EnqueueAndWait blocks until fn ran and returns its error.
type RenderQueue interface {
	EnqueueAndWait(fn func() error) error
}

// InlineRenderQueue runs every job on the calling goroutine.
type InlineRenderQueue struct{}

// EnqueueAndWait runs fn on the calling goroutine.
func (InlineRenderQueue) EnqueueAndWait(fn func() error) error {
	return runRenderJob(fn)
}

type renderJob struct {
	fn   func() error
	done chan error
}

// RenderThread is a RenderQueue backed by one dedicated goroutine.
type RenderThread struct {
	jobs chan renderJob

	// mu orders sends against Close
	mu     sync.RWMutex
	closed bool

	wg sync.WaitGroup
}

// NewRenderThread starts a render goroutine with a job buffer of depth.
func NewRenderThread(depth int) *RenderThread {
	if depth < 0 {
		depth = 0
	}
	rt := &RenderThread{jobs: make(chan renderJob, depth)}
	rt.wg.Add(1)
	go rt.loop()
	return rt
}

func (rt *RenderThread) loop() {
	defer rt.wg.Done()
	for job := range rt.jobs {
		job.done <- runRenderJob(job.fn)
	}
}

// EnqueueAndWait runs fn on the render goroutine and returns its error.
// It fails with ErrRenderQueueClosed once Close was called.
func (rt *RenderThread) EnqueueAndWait(fn func() error) error {
	job := renderJob{fn: fn, done: make(chan error, 1)}

	rt.mu.RLock()
	if rt.closed {
		rt.mu.RUnlock()
		return ErrRenderQueueClosed
	}
	rt.jobs <- job
	rt.mu.RUnlock()

	return <-job.done
}

// Close stops accepting jobs, lets queued jobs finish and waits for the
// goroutine to exit. Close is idempotent.
func (rt *RenderThread) Close() {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return
	}
	rt.closed = true
	close(rt.jobs)
	rt.mu.Unlock()

	rt.wg.Wait()
}

func runRenderJob(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("simcore: panic in render job: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}

// DebugDrawer draws debug geometry. A line is identified by key: drawing an
// existing key moves the line instead of creating another one.
type DebugDrawer interface {
	DrawLine(key string, from, to mgl64.Vec3)
	RemoveLine(key string)
}

// DebugLine is one line held by DebugLines.
type DebugLine struct {
	From, To mgl64.Vec3
	Updates  int
}

// DebugLines is an in-memory DebugDrawer.
type DebugLines struct {
	mu    sync.Mutex
	lines map[string]*DebugLine
}

// DrawLine adds the line under key, replacing any line already stored there.
func (d *DebugLines) DrawLine(key string, from, to mgl64.Vec3) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lines == nil {
		d.lines = make(map[string]*DebugLine)
	}
	l, ok := d.lines[key]
	if !ok {
		l = &DebugLine{}
		d.lines[key] = l
	}
	l.From, l.To = from, to
	l.Updates++
}

// RemoveLine drops the line stored under key.
func (d *DebugLines) RemoveLine(key string) {
	d.mu.Lock()
	delete(d.lines, key)
	d.mu.Unlock()
}

// Line returns a copy of the line stored under key.
func (d *DebugLines) Line(key string) (DebugLine, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.lines[key]
	if !ok {
		return DebugLine{}, false
	}
	return *l, true
}

// Len returns the number of distinct lines.
func (d *DebugLines) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lines)
}

type noopDrawer struct{}

func (noopDrawer) DrawLine(string, mgl64.Vec3, mgl64.Vec3) {}
func (noopDrawer) RemoveLine(string)                       {}
