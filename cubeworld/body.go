package cubeworld

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/oriumgames/simcore/engine"
)

// Body is a rigid body integrated by World.Step.
// A body with zero mass is static and never moves.
type Body struct {
	id uint64

	// mu protects every field below
	mu sync.RWMutex

	pos   mgl64.Vec3
	rot   mgl64.Quat
	vel   mgl64.Vec3
	omega mgl64.Vec3

	mass    float64
	inertia mgl64.Vec3
	com     mgl64.Vec3

	linearDamping  float64
	angularDamping mgl64.Vec3

	typ   uint32
	group int

	col engine.Collision

	// force and torque accumulate during the current step
	force  mgl64.Vec3
	torque mgl64.Vec3

	callback engine.ForceCallback
	userData any

	// constraints holds the plane and up-vector joints acting on this body
	constraints map[uint64]*Joint

	destroyed atomic.Bool
}

var _ engine.Body = (*Body)(nil)

func newBody(id uint64, c engine.Collision, t engine.Transform) *Body {
	return &Body{
		id:          id,
		pos:         t.Position,
		rot:         orient(t.Orientation),
		col:         c,
		typ:         math.MaxUint32,
		constraints: make(map[uint64]*Joint),
	}
}

// ID returns the world-unique body id.
func (b *Body) ID() uint64 { return b.id }

// Position returns the world position of the body origin.
func (b *Body) Position() mgl64.Vec3 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pos
}

// SetPosition teleports the body.
func (b *Body) SetPosition(p mgl64.Vec3) {
	b.mu.Lock()
	b.pos = p
	b.mu.Unlock()
}

// Orientation returns the world orientation.
func (b *Body) Orientation() mgl64.Quat {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rot
}

// SetOrientation stores q normalized.
func (b *Body) SetOrientation(q mgl64.Quat) {
	b.mu.Lock()
	b.rot = orient(q).Normalize()
	b.mu.Unlock()
}

// Velocity returns the linear velocity.
func (b *Body) Velocity() mgl64.Vec3 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.vel
}

// SetVelocity overwrites the linear velocity.
func (b *Body) SetVelocity(v mgl64.Vec3) {
	b.mu.Lock()
	b.vel = v
	b.mu.Unlock()
}

// Omega returns the angular velocity.
func (b *Body) Omega() mgl64.Vec3 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.omega
}

// SetOmega overwrites the angular velocity.
func (b *Body) SetOmega(w mgl64.Vec3) {
	b.mu.Lock()
	b.omega = w
	b.mu.Unlock()
}

// Mass returns the mass; 0 means static.
func (b *Body) Mass() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mass
}

// Inertia returns the diagonal of the inertia tensor.
func (b *Body) Inertia() mgl64.Vec3 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.inertia
}

// SetMassMatrix sets mass and the inertia diagonal together.
func (b *Body) SetMassMatrix(mass float64, inertia mgl64.Vec3) {
	if mass < 0 || math.IsNaN(mass) {
		mass = 0
	}
	b.mu.Lock()
	b.mass = mass
	b.inertia = inertia
	b.mu.Unlock()
}

// CenterOfMass returns the center of mass in body space.
func (b *Body) CenterOfMass() mgl64.Vec3 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.com
}

// SetCenterOfMass moves the center of mass in body space.
func (b *Body) SetCenterOfMass(c mgl64.Vec3) {
	b.mu.Lock()
	b.com = c
	b.mu.Unlock()
}

// SetDamping sets the per-second linear and angular damping.
func (b *Body) SetDamping(linear float64, angular mgl64.Vec3) {
	b.mu.Lock()
	b.linearDamping = linear
	b.angularDamping = angular
	b.mu.Unlock()
}

// Type returns the collision category bits.
func (b *Body) Type() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.typ
}

// SetType replaces the collision category bits.
func (b *Body) SetType(bits uint32) {
	b.mu.Lock()
	b.typ = bits
	b.mu.Unlock()
}

// MaterialGroup returns the material group id.
func (b *Body) MaterialGroup() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.group
}

// SetMaterialGroup replaces the material group id.
func (b *Body) SetMaterialGroup(id int) {
	b.mu.Lock()
	b.group = id
	b.mu.Unlock()
}

// Collision returns the collision volume of the body.
func (b *Body) Collision() engine.Collision {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.col
}

// SetCollision swaps the collision volume in place.
func (b *Body) SetCollision(c engine.Collision) {
	if c == nil {
		return
	}
	b.mu.Lock()
	b.col = c
	b.mu.Unlock()
}

// AddForce accumulates f for the current step.
func (b *Body) AddForce(f mgl64.Vec3) {
	b.mu.Lock()
	b.force = b.force.Add(f)
	b.mu.Unlock()
}

// AddTorque accumulates t for the current step.
func (b *Body) AddTorque(t mgl64.Vec3) {
	b.mu.Lock()
	b.torque = b.torque.Add(t)
	b.mu.Unlock()
}

// Force returns the force accumulated so far in the current step.
func (b *Body) Force() mgl64.Vec3 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.force
}

// SetForceCallback installs cb; nil removes it.
func (b *Body) SetForceCallback(cb engine.ForceCallback) {
	b.mu.Lock()
	b.callback = cb
	b.mu.Unlock()
}

// UserData returns the value stored by SetUserData.
func (b *Body) UserData() any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.userData
}

// SetUserData attaches an arbitrary value to the body.
func (b *Body) SetUserData(v any) {
	b.mu.Lock()
	b.userData = v
	b.mu.Unlock()
}

// WorldBounds returns the axis-aligned box of the body's collision in world space.
func (b *Body) WorldBounds() cube.BBox {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.col == nil {
		return cube.Box(b.pos[0], b.pos[1], b.pos[2], b.pos[0], b.pos[1], b.pos[2])
	}
	return transformBox(boxOf(b.col), b.rot, b.pos)
}

// Destroyed reports whether the body was removed from its world.
func (b *Body) Destroyed() bool {
	return b.destroyed.Load()
}

func (b *Body) addConstraint(j *Joint) {
	b.mu.Lock()
	b.constraints[j.id] = j
	b.mu.Unlock()
}

func (b *Body) removeConstraint(j *Joint) {
	b.mu.Lock()
	delete(b.constraints, j.id)
	b.mu.Unlock()
}

// beginStep clears the accumulators and returns the callback to run.
func (b *Body) beginStep() engine.ForceCallback {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.force = mgl64.Vec3{}
	b.torque = mgl64.Vec3{}
	return b.callback
}

// integrate advances the body by one semi-implicit Euler step.
func (b *Body) integrate(dt float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.mass <= 0 {
		return
	}

	b.vel = b.vel.Add(b.force.Mul(dt / b.mass))
	b.vel = b.vel.Mul(math.Max(0, 1-b.linearDamping*dt))

	for i := 0; i < 3; i++ {
		if b.inertia[i] > 0 {
			b.omega[i] += b.torque[i] / b.inertia[i] * dt
		}
		b.omega[i] *= math.Max(0, 1-b.angularDamping[i]*dt)
	}

	for _, j := range b.constraints {
		pin := j.pin
		if pin.LenSqr() == 0 {
			continue
		}
		pin = pin.Normalize()
		switch j.kind {
		case engine.JointPlane:
			b.vel = b.vel.Sub(pin.Mul(b.vel.Dot(pin)))
		case engine.JointUpVector:
			b.omega = pin.Mul(b.omega.Dot(pin))
		}
	}

	b.pos = b.pos.Add(b.vel.Mul(dt))

	if b.omega.LenSqr() > 0 {
		spin := mgl64.Quat{W: 0, V: b.omega}.Mul(b.rot).Scale(0.5 * dt)
		b.rot = b.rot.Add(spin).Normalize()
	}
}
