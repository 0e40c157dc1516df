package simcore

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/oriumgames/simcore/engine"
)

// SetConstraintAxis keeps the body moving in the plane whose normal is axis.
// A zero axis removes the constraint.
func (pb *PhysicsBody) SetConstraintAxis(axis mgl64.Vec3) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.constraintAxis = axis
	pb.reapplyConstraintsLocked()
}

// SetConstraintDirection only lets the body rotate about direction. A zero
// direction removes the constraint.
func (pb *PhysicsBody) SetConstraintDirection(direction mgl64.Vec3) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.constraintDirection = direction
	pb.reapplyConstraintsLocked()
}

// ConstraintAxis returns the plane normal, zero when unconstrained.
func (pb *PhysicsBody) ConstraintAxis() mgl64.Vec3 {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.constraintAxis
}

// ConstraintDirection returns the up vector, zero when unconstrained.
func (pb *PhysicsBody) ConstraintDirection() mgl64.Vec3 {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.constraintDirection
}

// HasPlaneConstraint reports whether the axis constraint exists on the body.
func (pb *PhysicsBody) HasPlaneConstraint() bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.planeJoint != nil
}

// HasUpVectorConstraint reports whether the direction constraint exists on the body.
func (pb *PhysicsBody) HasUpVectorConstraint() bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.upJoint != nil
}

// reapplyConstraintsLocked releases both constraints and creates both again.
// The solver couples the plane and up-vector joints, so one is never rebuilt
// without the other.
func (pb *PhysicsBody) reapplyConstraintsLocked() {
	if pb.body == nil || pb.env == nil {
		return
	}
	pb.releaseConstraintsLocked()
	pb.applyConstraintsLocked()
}

func (pb *PhysicsBody) releaseConstraintsLocked() {
	if pb.env == nil {
		return
	}
	if pb.upJoint != nil {
		pb.env.world.DestroyJoint(pb.upJoint)
		pb.upJoint = nil
	}
	if pb.planeJoint != nil {
		pb.env.world.DestroyJoint(pb.planeJoint)
		pb.planeJoint = nil
	}
}

// applyConstraintsLocked creates the configured constraints against the current
// body pose. It must run after the transform has been restored.
func (pb *PhysicsBody) applyConstraintsLocked() {
	if pb.body == nil || pb.env == nil {
		return
	}
	pos := pb.body.Position()

	if pb.constraintAxis.LenSqr() > 0 {
		j, err := pb.env.world.CreateJoint(engine.JointSpec{
			Kind:  engine.JointPlane,
			Child: pb.body,
			Pivot: pos,
			Pin:   pb.constraintAxis.Normalize(),
		})
		if err != nil {
			pb.logger().Error("simcore: plane constraint failed", "id", pb.owner, "error", err)
		} else {
			pb.planeJoint = j
		}
	}

	if pb.constraintDirection.LenSqr() > 0 {
		j, err := pb.env.world.CreateJoint(engine.JointSpec{
			Kind:  engine.JointUpVector,
			Child: pb.body,
			Pivot: pos,
			Pin:   pb.constraintDirection.Normalize(),
		})
		if err != nil {
			pb.logger().Error("simcore: up-vector constraint failed", "id", pb.owner, "error", err)
		} else {
			pb.upJoint = j
		}
	}
}
