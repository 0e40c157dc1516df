package cubeworld

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/oriumgames/simcore/engine"
)

// Joint records a constraint between two bodies. Only plane and up-vector joints
// influence integration; the remaining kinds are bookkeeping for callers.
type Joint struct {
	id     uint64
	kind   engine.JointKind
	child  engine.Body
	parent engine.Body
	pivot  mgl64.Vec3
	pin    mgl64.Vec3
}

var _ engine.Joint = (*Joint)(nil)

// ID returns the world-unique joint id.
func (j *Joint) ID() uint64 { return j.id }

// Kind returns the joint kind.
func (j *Joint) Kind() engine.JointKind { return j.kind }

// Child returns the constrained body.
func (j *Joint) Child() engine.Body { return j.child }

// Parent returns the other body, nil when anchored to the world.
func (j *Joint) Parent() engine.Body { return j.parent }

// Pin returns the joint axis.
func (j *Joint) Pin() mgl64.Vec3 { return j.pin }

// Pivot returns the world-space anchor the joint was created with.
func (j *Joint) Pivot() mgl64.Vec3 { return j.pivot }
