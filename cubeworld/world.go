// Package cubeworld is a small reference solver for simcore.
//
// Collision volumes are approximated by dragonfly cube.BBox boxes, ray casts use
// the dragonfly trace package, and bodies are integrated with semi-implicit Euler.
// Contacts between bodies are not resolved; the solver exists so that the force
// hand-off, joint bookkeeping and ray queries of simcore can run end to end.
package cubeworld

import (
	"math"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/df-mc/dragonfly/server/block/cube/trace"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/oriumgames/simcore/engine"
)

// World owns bodies and joints and runs force callbacks on a worker pool.
type World struct {
	gravity mgl64.Vec3
	workers int

	// mu protects bodies and joints
	mu     sync.RWMutex
	bodies map[uint64]*Body
	joints map[uint64]*Joint

	// stepMu serialises Step
	stepMu sync.Mutex

	nextID atomic.Uint64
	steps  atomic.Uint64
}

var _ engine.World = (*World)(nil)

// Option configures a World.
type Option func(*World)

// WithGravity sets the world gravity returned by Gravity.
func WithGravity(g mgl64.Vec3) Option {
	return func(w *World) { w.gravity = g }
}

// WithWorkers sets the number of goroutines that run force callbacks.
func WithWorkers(n int) Option {
	return func(w *World) {
		if n > 0 {
			w.workers = n
		}
	}
}

// New creates an empty world.
func New(opts ...Option) *World {
	workers := runtime.GOMAXPROCS(0)
	if workers < 1 {
		workers = 1
	}
	w := &World{
		gravity: mgl64.Vec3{0, -9.81, 0},
		workers: workers,
		bodies:  make(map[uint64]*Body),
		joints:  make(map[uint64]*Joint),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Gravity returns the gravity the world was created with.
func (w *World) Gravity() mgl64.Vec3 {
	return w.gravity
}

// Steps returns the number of completed steps.
func (w *World) Steps() uint64 {
	return w.steps.Load()
}

// BodyCount returns the number of live bodies.
func (w *World) BodyCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.bodies)
}

// JointCount returns the number of live joints.
func (w *World) JointCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.joints)
}

// JointsOf returns the joints in which b is the child.
func (w *World) JointsOf(b engine.Body) []engine.Joint {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []engine.Joint
	for _, j := range w.joints {
		if j.child == b {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID() < out[k].ID() })
	return out
}

// CreateCollision builds a primitive volume from desc.
func (w *World) CreateCollision(desc engine.CollisionDesc) (engine.Collision, error) {
	half, err := halfExtents(desc)
	if err != nil {
		return nil, err
	}
	local := cube.Box(-half[0], -half[1], -half[2], half[0], half[1], half[2])
	return &collision{
		shape: desc.Shape,
		box:   transformBox(local, desc.Orientation, desc.Offset),
	}, nil
}

// CreateCompoundCollision merges parts into one volume bounded by their union.
func (w *World) CreateCompoundCollision(parts []engine.CompoundPart) (engine.Collision, error) {
	if len(parts) == 0 {
		return nil, engine.ErrInvalidShape
	}
	min := mgl64.Vec3{math.Inf(1), math.Inf(1), math.Inf(1)}
	max := mgl64.Vec3{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, part := range parts {
		if part.Collision == nil {
			return nil, engine.ErrInvalidShape
		}
		bb := transformBox(boxOf(part.Collision), part.Orientation, part.Offset)
		lo, hi := bb.Min(), bb.Max()
		for k := 0; k < 3; k++ {
			min[k] = math.Min(min[k], lo[k])
			max[k] = math.Max(max[k], hi[k])
		}
	}
	return &collision{
		shape: engine.ShapeCompound,
		box:   cube.Box(min[0], min[1], min[2], max[0], max[1], max[2]),
	}, nil
}

// CreateBody adds a body with collision c placed at t.
func (w *World) CreateBody(c engine.Collision, t engine.Transform) (engine.Body, error) {
	if c == nil {
		return nil, engine.ErrInvalidShape
	}
	b := newBody(w.nextID.Add(1), c, t)

	w.mu.Lock()
	w.bodies[b.id] = b
	w.mu.Unlock()
	return b, nil
}

// DestroyBody removes the body and every joint that references it.
func (w *World) DestroyBody(eb engine.Body) {
	b, ok := eb.(*Body)
	if !ok || b == nil {
		return
	}
	if b.destroyed.Swap(true) {
		return
	}

	w.mu.Lock()
	delete(w.bodies, b.id)
	var orphaned []*Joint
	for id, j := range w.joints {
		if j.child == eb || (j.parent != nil && j.parent == eb) {
			orphaned = append(orphaned, j)
			delete(w.joints, id)
		}
	}
	w.mu.Unlock()

	for _, j := range orphaned {
		if cb, ok := j.child.(*Body); ok {
			cb.removeConstraint(j)
		}
	}
	b.SetForceCallback(nil)
}

// CreateJoint connects spec.Child to spec.Parent, or to the world when
// Parent is nil.
func (w *World) CreateJoint(spec engine.JointSpec) (engine.Joint, error) {
	if spec.Child == nil {
		return nil, engine.ErrNilBody
	}
	child, ok := spec.Child.(*Body)
	if !ok || child.Destroyed() {
		return nil, engine.ErrNilBody
	}
	if p, ok := spec.Parent.(*Body); ok && p.Destroyed() {
		return nil, engine.ErrNilBody
	}

	j := &Joint{
		id:     w.nextID.Add(1),
		kind:   spec.Kind,
		child:  spec.Child,
		parent: spec.Parent,
		pivot:  spec.Pivot,
		pin:    spec.Pin,
	}

	w.mu.Lock()
	w.joints[j.id] = j
	w.mu.Unlock()

	if j.kind == engine.JointPlane || j.kind == engine.JointUpVector {
		child.addConstraint(j)
	}
	return j, nil
}

// DestroyJoint removes ej. Unknown joints are ignored.
func (w *World) DestroyJoint(ej engine.Joint) {
	j, ok := ej.(*Joint)
	if !ok || j == nil {
		return
	}
	w.mu.Lock()
	_, live := w.joints[j.id]
	delete(w.joints, j.id)
	w.mu.Unlock()

	if !live {
		return
	}
	if child, ok := j.child.(*Body); ok {
		child.removeConstraint(j)
	}
}

// RayCast returns the closest body hit between from and to that passes filter.
func (w *World) RayCast(from, to mgl64.Vec3, filter func(engine.Body) bool) (engine.RayHit, bool) {
	var (
		best  engine.RayHit
		found bool
	)
	for _, b := range w.snapshot() {
		if b.Destroyed() {
			continue
		}
		if filter != nil && !filter(b) {
			continue
		}
		res, ok := trace.BBoxIntercept(b.WorldBounds(), from, to)
		if !ok {
			continue
		}
		d := res.Position().Sub(from).Len()
		if !found || d < best.Distance {
			best = engine.RayHit{
				Body:     b,
				Point:    res.Position(),
				Normal:   faceNormal(res.Face()),
				Distance: d,
			}
			found = true
		}
	}
	return best, found
}

// Step runs every force callback on the worker pool and then integrates all bodies.
// Callbacks for body i run on worker i % workers, which is also the thread index
// passed to the callback.
func (w *World) Step(timeStep float64) {
	if timeStep <= 0 {
		return
	}
	w.stepMu.Lock()
	defer w.stepMu.Unlock()

	bodies := w.snapshot()
	workers := w.workers
	if workers > len(bodies) {
		workers = len(bodies)
	}

	var wg sync.WaitGroup
	for worker := 0; worker < workers; worker++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			for i := index; i < len(bodies); i += workers {
				b := bodies[i]
				if b.Destroyed() {
					continue
				}
				if cb := b.beginStep(); cb != nil {
					cb(b, timeStep, index)
				}
			}
		}(worker)
	}
	wg.Wait()

	for _, b := range bodies {
		if !b.Destroyed() {
			b.integrate(timeStep)
		}
	}
	w.steps.Add(1)
}

// snapshot returns the live bodies ordered by id.
func (w *World) snapshot() []*Body {
	w.mu.RLock()
	bodies := make([]*Body, 0, len(w.bodies))
	for _, b := range w.bodies {
		bodies = append(bodies, b)
	}
	w.mu.RUnlock()

	sort.Slice(bodies, func(i, j int) bool { return bodies[i].id < bodies[j].id })
	return bodies
}

// faceNormal converts the face hit by a ray into an outward normal.
func faceNormal(f cube.Face) mgl64.Vec3 {
	switch f {
	case cube.FaceDown:
		return mgl64.Vec3{0, -1, 0}
	case cube.FaceUp:
		return mgl64.Vec3{0, 1, 0}
	case cube.FaceNorth:
		return mgl64.Vec3{0, 0, -1}
	case cube.FaceSouth:
		return mgl64.Vec3{0, 0, 1}
	case cube.FaceWest:
		return mgl64.Vec3{-1, 0, 0}
	case cube.FaceEast:
		return mgl64.Vec3{1, 0, 0}
	}
	return mgl64.Vec3{}
}
