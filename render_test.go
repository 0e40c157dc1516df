package simcore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

// gateQueue refuses jobs while closed is set.
type gateQueue struct {
	closed atomic.Bool
	jobs   atomic.Int32
}

func (q *gateQueue) EnqueueAndWait(fn func() error) error {
	if q.closed.Load() {
		return ErrRenderQueueClosed
	}
	q.jobs.Add(1)
	return fn()
}

func TestRenderThreadRunsJobs(t *testing.T) {
	rt := NewRenderThread(4)
	defer rt.Close()

	var mu sync.Mutex
	ran := 0
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rt.EnqueueAndWait(func() error {
				mu.Lock()
				ran++
				mu.Unlock()
				return nil
			}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if ran != 16 {
		t.Fatalf("expected 16 jobs, got %d", ran)
	}

	want := errors.New("job failed")
	if err := rt.EnqueueAndWait(func() error { return want }); !errors.Is(err, want) {
		t.Errorf("expected the job error, got %v", err)
	}
}

func TestRenderThreadRecoversPanics(t *testing.T) {
	rt := NewRenderThread(0)
	defer rt.Close()

	if err := rt.EnqueueAndWait(func() error { panic("bad mesh") }); err == nil {
		t.Fatal("expected the panic as an error")
	}
	if err := rt.EnqueueAndWait(func() error { return nil }); err != nil {
		t.Fatalf("render thread died after a panic: %v", err)
	}
}

func TestRenderThreadClose(t *testing.T) {
	rt := NewRenderThread(1)
	rt.Close()
	rt.Close()
	if err := rt.EnqueueAndWait(func() error { return nil }); !errors.Is(err, ErrRenderQueueClosed) {
		t.Errorf("expected ErrRenderQueueClosed, got %v", err)
	}
}

func TestClosedRenderQueueLeavesBodyInert(t *testing.T) {
	q := &gateQueue{}
	q.closed.Store(true)
	r, w := newTestRegistry(t, WithRenderQueue(q))

	obj := mustRegister(t, r, dynamicBox("ghost", "", mgl64.Vec3{}, 1))
	pb := obj.Physics()
	if pb.Body() != nil || pb.State() != StateUninitialized {
		t.Fatalf("expected an inert component, got state %v", pb.State())
	}
	if w.BodyCount() != 0 {
		t.Fatalf("no engine body may exist")
	}

	// Setters retry once the queue is back.
	q.closed.Store(false)
	pb.SetSize(mgl64.Vec3{2, 2, 2})
	if pb.Body() == nil || pb.State() != StateBodyCreated {
		t.Fatalf("expected a body after the retry, got state %v", pb.State())
	}
}

func TestStartRetriesBodyCreation(t *testing.T) {
	q := &gateQueue{}
	q.closed.Store(true)
	r, _ := newTestRegistry(t, WithRenderQueue(q))
	obj := mustRegister(t, r, dynamicBox("late", "", mgl64.Vec3{}, 1))

	q.closed.Store(false)
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if obj.Physics().Body() == nil || obj.Physics().State() != StateConnected {
		t.Errorf("expected a connected body, got state %v", obj.Physics().State())
	}
	if q.jobs.Load() == 0 {
		t.Errorf("collision was not built through the render queue")
	}
}

func TestDebugLines(t *testing.T) {
	d := &DebugLines{}
	d.DrawLine("a", mgl64.Vec3{}, mgl64.Vec3{1, 0, 0})
	d.DrawLine("a", mgl64.Vec3{}, mgl64.Vec3{2, 0, 0})
	d.DrawLine("b", mgl64.Vec3{}, mgl64.Vec3{0, 1, 0})
	if d.Len() != 2 {
		t.Fatalf("expected 2 lines, got %d", d.Len())
	}
	l, ok := d.Line("a")
	if !ok || l.Updates != 2 || l.To != (mgl64.Vec3{2, 0, 0}) {
		t.Errorf("line a not upserted: %+v", l)
	}
	d.RemoveLine("a")
	if _, ok := d.Line("a"); ok || d.Len() != 1 {
		t.Errorf("line a not removed")
	}
}
