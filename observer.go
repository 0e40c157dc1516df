package simcore

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/oriumgames/simcore/engine"
)

// ForceObserver is notified on the solver goroutine once per step, after the
// body's forces were accumulated.
type ForceObserver interface {
	OnForceAdd(body engine.Body, timeStep float64, threadIndex int)
}

// ForceObserverFunc adapts a function to ForceObserver.
type ForceObserverFunc func(body engine.Body, timeStep float64, threadIndex int)

// OnForceAdd calls f.
func (f ForceObserverFunc) OnForceAdd(body engine.Body, timeStep float64, threadIndex int) {
	f(body, timeStep, threadIndex)
}

// ObserverHandle identifies an attached force observer.
type ObserverHandle uuid.UUID

func (h ObserverHandle) String() string { return uuid.UUID(h).String() }

type forceObserver struct {
	handle   ObserverHandle
	observer ForceObserver
	inert    atomic.Bool
}

// AttachForceObserver registers o and returns the handle to detach it with.
func (pb *PhysicsBody) AttachForceObserver(o ForceObserver) ObserverHandle {
	entry := &forceObserver{handle: ObserverHandle(uuid.New()), observer: o}

	pb.observersMu.Lock()
	next := make([]*forceObserver, 0, len(pb.observers)+1)
	next = append(next, pb.observers...)
	pb.observers = append(next, entry)
	pb.observersMu.Unlock()
	return entry.handle
}

// DetachAndDestroyForceObserver marks the observer inert and removes it. A
// solver step that already copied the list skips it. It reports whether the
// handle was attached.
func (pb *PhysicsBody) DetachAndDestroyForceObserver(h ObserverHandle) bool {
	pb.observersMu.Lock()
	defer pb.observersMu.Unlock()

	for i, o := range pb.observers {
		if o.handle != h {
			continue
		}
		o.inert.Store(true)
		next := make([]*forceObserver, 0, len(pb.observers)-1)
		next = append(next, pb.observers[:i]...)
		pb.observers = append(next, pb.observers[i+1:]...)
		return true
	}
	return false
}

// ObserverCount returns the number of attached force observers.
func (pb *PhysicsBody) ObserverCount() int {
	pb.observersMu.RLock()
	defer pb.observersMu.RUnlock()
	return len(pb.observers)
}

func (pb *PhysicsBody) notifyObservers(body engine.Body, timeStep float64, threadIndex int) {
	pb.observersMu.RLock()
	observers := pb.observers
	pb.observersMu.RUnlock()

	for _, o := range observers {
		if o.inert.Load() {
			continue
		}
		o.observer.OnForceAdd(body, timeStep, threadIndex)
	}
}
