// Package engine defines the contract between simcore and a rigid-body solver.
//
// The solver itself is opaque: simcore only creates collisions, bodies and joints
// through a World, registers one per-step force callback per body and asks the
// World for ray casts. Any solver that can satisfy these interfaces can drive a
// simcore Registry; the cubeworld package provides a small reference implementation.
package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// ErrInvalidShape is returned when a collision description cannot produce a volume.
var ErrInvalidShape = errors.New("engine: invalid collision shape")

// ErrNilBody is returned when a joint or constraint is requested without a child body.
var ErrNilBody = errors.New("engine: nil body")

// ShapeType identifies the primitive a collision is built from.
type ShapeType uint8

const (
	// ShapeBox is an oriented box; Size holds the full extents.
	ShapeBox ShapeType = iota + 1
	// ShapeSphere uses Size.X as radius.
	ShapeSphere
	// ShapeCapsule uses Size.X as radius and Size.Y as height.
	ShapeCapsule
	// ShapeCylinder uses Size.X as radius and Size.Y as height.
	ShapeCylinder
	// ShapeCone uses Size.X as radius and Size.Y as height.
	ShapeCone
	// ShapeCompound is produced by World.CreateCompoundCollision only.
	ShapeCompound
)

// String returns the lower-case name of the shape.
func (s ShapeType) String() string {
	switch s {
	case ShapeBox:
		return "box"
	case ShapeSphere:
		return "sphere"
	case ShapeCapsule:
		return "capsule"
	case ShapeCylinder:
		return "cylinder"
	case ShapeCone:
		return "cone"
	case ShapeCompound:
		return "compound"
	default:
		return "unknown"
	}
}

// ParseShapeType parses a shape name as returned by ShapeType.String.
func ParseShapeType(name string) (ShapeType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "box":
		return ShapeBox, nil
	case "sphere", "ellipsoid":
		return ShapeSphere, nil
	case "capsule":
		return ShapeCapsule, nil
	case "cylinder":
		return ShapeCylinder, nil
	case "cone":
		return ShapeCone, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidShape, name)
}

// Transform is a rigid placement in world space.
type Transform struct {
	Position    mgl64.Vec3
	Orientation mgl64.Quat
}

// CollisionDesc describes a primitive collision volume in body-local space.
type CollisionDesc struct {
	Shape       ShapeType
	Size        mgl64.Vec3
	Offset      mgl64.Vec3
	Orientation mgl64.Quat
}

// CompoundPart places an existing collision inside a compound collision.
type CompoundPart struct {
	Collision   Collision
	Offset      mgl64.Vec3
	Orientation mgl64.Quat
}

// Collision is an immutable collision volume.
type Collision interface {
	// Shape returns the primitive type, or ShapeCompound.
	Shape() ShapeType
	// Bounds returns the local axis-aligned bounding box.
	Bounds() (min, max mgl64.Vec3)
	// Volume returns the volume of the local bounding box.
	Volume() float64
}

// ForceCallback is invoked by the solver once per step for every body that has one.
// threadIndex identifies the solver worker running the callback.
type ForceCallback func(b Body, timeStep float64, threadIndex int)

// Body is a rigid body owned by a World. Implementations must make every method
// safe for concurrent use, since force callbacks run on solver workers while the
// logic goroutine reads positions.
type Body interface {
	ID() uint64

	Position() mgl64.Vec3
	SetPosition(p mgl64.Vec3)
	Orientation() mgl64.Quat
	SetOrientation(q mgl64.Quat)
	Velocity() mgl64.Vec3
	SetVelocity(v mgl64.Vec3)
	Omega() mgl64.Vec3
	SetOmega(w mgl64.Vec3)

	Mass() float64
	Inertia() mgl64.Vec3
	SetMassMatrix(mass float64, inertia mgl64.Vec3)
	CenterOfMass() mgl64.Vec3
	SetCenterOfMass(c mgl64.Vec3)
	SetDamping(linear float64, angular mgl64.Vec3)

	// Type holds the collision filter bits consumed by the broad phase.
	Type() uint32
	SetType(bits uint32)
	MaterialGroup() int
	SetMaterialGroup(id int)

	Collision() Collision
	SetCollision(c Collision)

	// AddForce and AddTorque accumulate into the current step only. They are meant
	// to be called from a ForceCallback.
	AddForce(f mgl64.Vec3)
	AddTorque(t mgl64.Vec3)

	SetForceCallback(cb ForceCallback)
	UserData() any
	SetUserData(v any)
}

// JointKind identifies an engine-side constraint.
type JointKind uint8

const (
	JointHinge JointKind = iota + 1
	JointBallAndSocket
	JointSlider
	// JointPlane keeps the child moving in the plane whose normal is Pin.
	JointPlane
	// JointUpVector keeps the child rotating about Pin only.
	JointUpVector
)

// String returns the name of the joint kind.
func (k JointKind) String() string {
	switch k {
	case JointHinge:
		return "hinge"
	case JointBallAndSocket:
		return "ball"
	case JointSlider:
		return "slider"
	case JointPlane:
		return "plane"
	case JointUpVector:
		return "upvector"
	default:
		return "unknown"
	}
}

// JointSpec describes a joint between Child and Parent. A nil Parent anchors the
// child to the world.
type JointSpec struct {
	Kind   JointKind
	Child  Body
	Parent Body
	Pivot  mgl64.Vec3
	Pin    mgl64.Vec3
}

// Joint is a constraint created by a World.
type Joint interface {
	ID() uint64
	Kind() JointKind
	Child() Body
	Parent() Body
}

// RayHit is the nearest intersection returned by World.RayCast.
type RayHit struct {
	Body     Body
	Point    mgl64.Vec3
	Normal   mgl64.Vec3
	Distance float64
}

// World is the solver.
type World interface {
	CreateCollision(desc CollisionDesc) (Collision, error)
	CreateCompoundCollision(parts []CompoundPart) (Collision, error)
	CreateBody(c Collision, t Transform) (Body, error)
	DestroyBody(b Body)
	CreateJoint(spec JointSpec) (Joint, error)
	DestroyJoint(j Joint)

	// RayCast returns the hit nearest to from on the segment from → to. Bodies for
	// which filter returns false are ignored; a nil filter accepts every body.
	RayCast(from, to mgl64.Vec3, filter func(Body) bool) (RayHit, bool)

	Gravity() mgl64.Vec3
	Step(timeStep float64)
}
