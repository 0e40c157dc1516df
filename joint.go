package simcore

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/oriumgames/simcore/engine"
)

// JointKind selects how a joint component links its owner to its predecessor.
type JointKind uint8

const (
	JointHinge JointKind = iota + 1
	JointBallAndSocket
	JointSlider
	// JointSpring pulls both bodies toward the rest length.
	JointSpring
	// JointAttractor pulls the owner toward its predecessor.
	JointAttractor
)

// String returns the string representation of the kind.
func (k JointKind) String() string {
	switch k {
	case JointHinge:
		return "Hinge"
	case JointBallAndSocket:
		return "BallAndSocket"
	case JointSlider:
		return "Slider"
	case JointSpring:
		return "Spring"
	case JointAttractor:
		return "Attractor"
	default:
		return "Unknown"
	}
}

func (k JointKind) engineKind() (engine.JointKind, bool) {
	switch k {
	case JointHinge:
		return engine.JointHinge, true
	case JointBallAndSocket:
		return engine.JointBallAndSocket, true
	case JointSlider:
		return engine.JointSlider, true
	}
	return 0, false
}

// JointComponent is one node of a joint chain. A node whose predecessor id is 0
// is the chain root. Ids refer to game objects and are resolved by
// Registry.ConnectJoints.
type JointComponent struct {
	owner         uint64
	kind          JointKind
	predecessorID uint64
	targetID      uint64
	pivot         mgl64.Vec3
	pin           mgl64.Vec3

	stiffness  float64
	damping    float64
	restLength float64
	strength   float64
	radius     float64

	// mu protects the resolved links and the engine joints
	mu                  sync.Mutex
	linked              bool
	resolvedPredecessor uint64
	resolvedTarget      uint64
	primary             engine.Joint
	secondary           engine.Joint
	partners            []*PhysicsBody
}

// NewJoint creates a joint node linked to predecessorID.
func NewJoint(kind JointKind, predecessorID uint64) *JointComponent {
	return &JointComponent{
		kind:          kind,
		predecessorID: predecessorID,
		pin:           mgl64.Vec3{0, 1, 0},
	}
}

// Target adds a second link to targetID.
func (j *JointComponent) Target(targetID uint64) *JointComponent {
	j.targetID = targetID
	return j
}

// Pivot sets the anchor relative to the owner's position.
func (j *JointComponent) Pivot(p mgl64.Vec3) *JointComponent {
	j.pivot = p
	return j
}

// Pin sets the joint axis.
func (j *JointComponent) Pin(p mgl64.Vec3) *JointComponent {
	j.pin = p
	return j
}

// Spring sets the spring parameters.
func (j *JointComponent) Spring(stiffness, damping, restLength float64) *JointComponent {
	j.stiffness, j.damping, j.restLength = stiffness, damping, restLength
	return j
}

// Attractor sets the attractor strength and range. A zero radius has no limit.
func (j *JointComponent) Attractor(strength, radius float64) *JointComponent {
	j.strength, j.radius = strength, radius
	return j
}

// Owner returns the id of the object holding the joint.
func (j *JointComponent) Owner() uint64 { return j.owner }

func (j *JointComponent) Kind() JointKind { return j.kind }

// PredecessorID returns the declared predecessor, 0 for a root.
func (j *JointComponent) PredecessorID() uint64 { return j.predecessorID }

// TargetID returns the declared secondary target, 0 when none.
func (j *JointComponent) TargetID() uint64 { return j.targetID }

// IsRoot reports whether the joint declares no predecessor.
func (j *JointComponent) IsRoot() bool { return j.predecessorID == 0 }

// Linked reports whether the node was connected and not invalidated since.
func (j *JointComponent) Linked() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.linked
}

// ResolvedPredecessor returns the object id the predecessor resolved to, or 0.
func (j *JointComponent) ResolvedPredecessor() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.resolvedPredecessor
}

// ResolvedTarget returns the object id the target resolved to, or 0.
func (j *JointComponent) ResolvedTarget() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.resolvedTarget
}

// Primary returns the engine joint to the predecessor, or to the world for a root.
func (j *JointComponent) Primary() engine.Joint {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.primary
}

// Secondary returns the engine joint to the target.
func (j *JointComponent) Secondary() engine.Joint {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.secondary
}

// link creates the primary link from own to pred. A nil pred with predID 0
// anchors a root to the world. The caller guarantees pred has a body.
func (j *JointComponent) link(world engine.World, own, pred *PhysicsBody, predID uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.releasePrimaryLocked(world)
	j.resolvedPredecessor = predID
	j.linked = true

	if predID == 0 {
		if kind, ok := j.kind.engineKind(); ok {
			jt, err := j.createLocked(world, kind, own, nil)
			if err != nil {
				return err
			}
			j.primary = jt
		}
		return nil
	}
	return j.connectLocked(world, own, pred, &j.primary)
}

// linkTarget creates the secondary link from own to target.
func (j *JointComponent) linkTarget(world engine.World, own, target *PhysicsBody, targetID uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.secondary != nil {
		world.DestroyJoint(j.secondary)
		j.secondary = nil
	}
	j.resolvedTarget = targetID
	return j.connectLocked(world, own, target, &j.secondary)
}

func (j *JointComponent) connectLocked(world engine.World, own, other *PhysicsBody, slot *engine.Joint) error {
	if kind, ok := j.kind.engineKind(); ok {
		jt, err := j.createLocked(world, kind, own, other.Body())
		if err != nil {
			return err
		}
		*slot = jt
		return nil
	}

	switch j.kind {
	case JointSpring:
		p := forcePartner{joint: j.owner, kind: partnerSpring, stiffness: j.stiffness, damping: j.damping, restLength: j.restLength}
		p.other = other
		own.addPartner(p)
		p.other = own
		other.addPartner(p)
		j.partners = append(j.partners, own, other)
	case JointAttractor:
		own.addPartner(forcePartner{joint: j.owner, kind: partnerAttractor, other: other, strength: j.strength, radius: j.radius})
		j.partners = append(j.partners, own)
	}
	return nil
}

func (j *JointComponent) createLocked(world engine.World, kind engine.JointKind, own *PhysicsBody, parent engine.Body) (engine.Joint, error) {
	body := own.Body()
	if body == nil {
		return nil, engine.ErrNilBody
	}
	return world.CreateJoint(engine.JointSpec{
		Kind:   kind,
		Child:  body,
		Parent: parent,
		Pivot:  body.Position().Add(j.pivot),
		Pin:    j.pin,
	})
}

func (j *JointComponent) releasePrimaryLocked(world engine.World) {
	if j.primary != nil {
		world.DestroyJoint(j.primary)
		j.primary = nil
	}
	for _, pb := range j.partners {
		pb.removePartners(j.owner)
	}
	j.partners = nil
}

// release destroys every engine joint and partner force and forgets the
// resolved links. The declared ids are kept for the next ConnectJoints.
func (j *JointComponent) release(world engine.World) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.releasePrimaryLocked(world)
	if j.secondary != nil {
		world.DestroyJoint(j.secondary)
		j.secondary = nil
	}
	j.resolvedPredecessor = 0
	j.resolvedTarget = 0
	j.linked = false
}

// references reports whether the resolved links point at id.
func (j *JointComponent) references(id uint64) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.linked && (j.resolvedPredecessor == id || j.resolvedTarget == id)
}

func (j *JointComponent) clone() *JointComponent {
	c := NewJoint(j.kind, j.predecessorID)
	c.targetID = j.targetID
	c.pivot, c.pin = j.pivot, j.pin
	c.stiffness, c.damping, c.restLength = j.stiffness, j.damping, j.restLength
	c.strength, c.radius = j.strength, j.radius
	return c
}
