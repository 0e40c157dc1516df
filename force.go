package simcore

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/oriumgames/simcore/engine"
)

// ApplyForce adds f to the body on the next solver step. Safe from any
// goroutine; a later call before the step replaces the value.
func (pb *PhysicsBody) ApplyForce(f mgl64.Vec3) {
	pb.commands.force.store(f)
}

// ApplyRequiredForceForVelocity applies the force that reaches velocity v in
// one step.
func (pb *PhysicsBody) ApplyRequiredForceForVelocity(v mgl64.Vec3) {
	pb.commands.velocity.store(v)
}

// ApplyRequiredForceForJumpVelocity is ApplyRequiredForceForVelocity restricted
// to the direction of v, so velocity across it is kept.
func (pb *PhysicsBody) ApplyRequiredForceForJumpVelocity(v mgl64.Vec3) {
	pb.commands.jump.store(v)
}

// ApplyOmegaForce sets the angular velocity on the next solver step.
func (pb *PhysicsBody) ApplyOmegaForce(omega mgl64.Vec3) {
	pb.commands.omega.store(omega)
}

// GravityDirection returns the unit direction of the gravity that acted on the
// body in the last step, falling back to the configured gravity.
func (pb *PhysicsBody) GravityDirection() mgl64.Vec3 {
	if d := pb.gravityDir.Load(); d != nil {
		return *d
	}
	return mgl64.Vec3{0, -1, 0}
}

// moveCallback is run by the solver once per step.
func (pb *PhysicsBody) moveCallback(body engine.Body, timeStep float64, threadIndex int) {
	if timeStep <= 0 {
		return
	}
	mass := body.Mass()

	if f, ok := pb.commands.force.take(); ok {
		body.AddForce(f)
	}
	if v, ok := pb.commands.velocity.take(); ok {
		body.AddForce(v.Sub(body.Velocity()).Mul(mass / timeStep))
	}
	if v, ok := pb.commands.jump.take(); ok {
		if l := v.Len(); l > 0 {
			dir := v.Mul(1 / l)
			dv := l - body.Velocity().Dot(dir)
			body.AddForce(dir.Mul(dv * mass / timeStep))
		}
	}
	if w, ok := pb.commands.omega.take(); ok {
		body.SetOmega(w)
	}

	gravity := pb.currentGravity(body.Position())
	if gravity.LenSqr() > 0 {
		d := gravity.Normalize()
		pb.gravityDir.Store(&d)
	}
	body.AddForce(gravity.Mul(mass))

	pb.partnersMu.RLock()
	partners := pb.partners
	pb.partnersMu.RUnlock()
	for _, p := range partners {
		body.AddForce(p.force(body))
	}

	pb.notifyObservers(body, timeStep, threadIndex)
}

// currentGravity returns standard gravity, or the pull toward the nearest
// gravity source when one is configured and found.
func (pb *PhysicsBody) currentGravity(pos mgl64.Vec3) mgl64.Vec3 {
	p := pb.params.Load()
	if p == nil {
		return mgl64.Vec3{}
	}
	if p.sourceCategory == "" || pb.env == nil {
		return p.gravity
	}
	// Resolved per step: the category may be registered late or its bit
	// recycled under another name.
	mask := pb.env.objects.CategoryID(p.sourceCategory)
	if mask == 0 {
		return p.gravity
	}
	src, ok := pb.nearestGravitySource(pos, mask)
	if !ok {
		return p.gravity
	}
	d := src.Sub(pos)
	if d.LenSqr() < 1e-12 {
		return mgl64.Vec3{}
	}
	return d.Normalize().Mul(p.sourceStrength)
}

// nearestGravitySource returns the position of the closest source other than
// the body itself. Only one source ever pulls a body.
func (pb *PhysicsBody) nearestGravitySource(pos mgl64.Vec3, mask uint32) (mgl64.Vec3, bool) {
	var (
		best  mgl64.Vec3
		dist  = math.Inf(1)
		found bool
	)
	for _, obj := range pb.env.objects.GameObjectsByCategoryID(mask) {
		if obj.ID() == pb.owner {
			continue
		}
		p := obj.Position()
		if d := p.Sub(pos).LenSqr(); d < dist {
			best, dist, found = p, d, true
		}
	}
	return best, found
}

type partnerKind uint8

const (
	partnerSpring partnerKind = iota + 1
	partnerAttractor
)

// forcePartner is a force between this body and another one, registered by a
// spring or attractor joint.
type forcePartner struct {
	joint uint64
	kind  partnerKind
	other *PhysicsBody

	stiffness  float64
	damping    float64
	restLength float64

	strength float64
	radius   float64
}

func (p forcePartner) force(self engine.Body) mgl64.Vec3 {
	other := p.other.Body()
	if other == nil {
		return mgl64.Vec3{}
	}
	d := other.Position().Sub(self.Position())
	dist := d.Len()
	if dist < 1e-9 {
		return mgl64.Vec3{}
	}
	dir := d.Mul(1 / dist)

	switch p.kind {
	case partnerSpring:
		rel := other.Velocity().Sub(self.Velocity()).Dot(dir)
		return dir.Mul(p.stiffness*(dist-p.restLength) + p.damping*rel)
	case partnerAttractor:
		if p.radius > 0 && dist > p.radius {
			return mgl64.Vec3{}
		}
		return dir.Mul(p.strength / math.Max(dist*dist, 1))
	}
	return mgl64.Vec3{}
}

func (pb *PhysicsBody) addPartner(p forcePartner) {
	pb.partnersMu.Lock()
	next := make([]forcePartner, 0, len(pb.partners)+1)
	next = append(next, pb.partners...)
	pb.partners = append(next, p)
	pb.partnersMu.Unlock()
}

// removePartners drops the partners registered by joint.
func (pb *PhysicsBody) removePartners(joint uint64) {
	pb.partnersMu.Lock()
	next := make([]forcePartner, 0, len(pb.partners))
	for _, p := range pb.partners {
		if p.joint != joint {
			next = append(next, p)
		}
	}
	pb.partners = next
	pb.partnersMu.Unlock()
}

func (pb *PhysicsBody) clearPartners() {
	pb.partnersMu.Lock()
	pb.partners = nil
	pb.partnersMu.Unlock()
}

// PartnerCount returns the number of spring and attractor partners.
func (pb *PhysicsBody) PartnerCount() int {
	pb.partnersMu.RLock()
	defer pb.partnersMu.RUnlock()
	return len(pb.partners)
}
