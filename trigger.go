package simcore

import (
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// TriggerObserver is notified when objects enter or leave a trigger sphere.
type TriggerObserver interface {
	OnEnter(obj *GameObject)
	OnLeave(obj *GameObject)
}

// TriggerFuncs adapts two functions to TriggerObserver. Either may be nil.
type TriggerFuncs struct {
	Enter func(obj *GameObject)
	Leave func(obj *GameObject)
}

// OnEnter calls Enter when set.
func (f TriggerFuncs) OnEnter(obj *GameObject) {
	if f.Enter != nil {
		f.Enter(obj)
	}
}

// OnLeave calls Leave when set.
func (f TriggerFuncs) OnLeave(obj *GameObject) {
	if f.Leave != nil {
		f.Leave(obj)
	}
}

// TriggerHandle identifies an attached trigger observer.
type TriggerHandle uuid.UUID

func (h TriggerHandle) String() string { return uuid.UUID(h).String() }

type trigger struct {
	origin      uint64
	radius      float64
	categoryIDs uint32
	observer    TriggerObserver
	interval    time.Duration
	elapsed     time.Duration
	inside      map[uint64]*GameObject
}

type triggerEvent struct {
	observer TriggerObserver
	obj      *GameObject
	enter    bool
}

// AttachTriggerObserver watches a sphere of radius around originID for objects
// in categoryIDs. The check runs from Update every interval, or every
// Config.TriggerInterval when interval is 0.
func (r *Registry) AttachTriggerObserver(originID uint64, radius float64, categoryIDs uint32, o TriggerObserver, interval time.Duration) (TriggerHandle, error) {
	if interval <= 0 {
		interval = r.cfg.TriggerInterval
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.objects[originID]; !ok {
		return TriggerHandle{}, notFound(originID)
	}
	h := TriggerHandle(uuid.New())
	r.triggers[h] = &trigger{
		origin:      originID,
		radius:      radius,
		categoryIDs: categoryIDs,
		observer:    o,
		interval:    interval,
		inside:      make(map[uint64]*GameObject),
	}
	return h, nil
}

// DetachTriggerObserver removes the observer. Tracked objects get no OnLeave.
func (r *Registry) DetachTriggerObserver(h TriggerHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.triggers[h]; !ok {
		return false
	}
	delete(r.triggers, h)
	return true
}

// CheckAreaForActiveObjects returns the objects in categoryIDs within radius
// of origin, nearest first.
func (r *Registry) CheckAreaForActiveObjects(origin mgl64.Vec3, radius float64, categoryIDs uint32) []*GameObject {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.areaLocked(origin, radius, categoryIDs, 0)
}

func (r *Registry) areaLocked(origin mgl64.Vec3, radius float64, categoryIDs uint32, exclude uint64) []*GameObject {
	type hit struct {
		obj  *GameObject
		dist float64
	}
	var hits []hit
	r2 := radius * radius
	for id, obj := range r.objects {
		if id == exclude || obj.categoryID&categoryIDs == 0 {
			continue
		}
		d := obj.Position().Sub(origin).LenSqr()
		if d <= r2 {
			hits = append(hits, hit{obj, d})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].obj.id < hits[j].obj.id
	})
	out := make([]*GameObject, len(hits))
	for i, h := range hits {
		out[i] = h.obj
	}
	return out
}

// updateTriggers evaluates the triggers whose interval elapsed and notifies
// observers outside the lock.
func (r *Registry) updateTriggers(dt time.Duration) {
	var events []triggerEvent

	r.mu.Lock()
	for h, t := range r.triggers {
		origin, ok := r.objects[t.origin]
		if !ok {
			delete(r.triggers, h)
			continue
		}
		t.elapsed += dt
		if t.elapsed < t.interval {
			continue
		}
		t.elapsed = 0

		found := r.areaLocked(origin.Position(), t.radius, t.categoryIDs, t.origin)
		seen := make(map[uint64]bool, len(found))
		for _, obj := range found {
			seen[obj.id] = true
			if _, tracked := t.inside[obj.id]; tracked {
				continue
			}
			t.inside[obj.id] = obj
			events = append(events, triggerEvent{t.observer, obj, true})
		}
		for id, obj := range t.inside {
			if !seen[id] {
				delete(t.inside, id)
				events = append(events, triggerEvent{t.observer, obj, false})
			}
		}
	}
	r.mu.Unlock()

	for _, e := range events {
		if e.enter {
			e.observer.OnEnter(e.obj)
		} else {
			e.observer.OnLeave(e.obj)
		}
	}
}
