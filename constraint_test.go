package simcore

import (
	"context"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

func TestConstraintsAreRebuiltTogether(t *testing.T) {
	r, w := newTestRegistry(t, WithConfig(weightless()))
	obj := mustRegister(t, r, dynamicBox("slider", "", mgl64.Vec3{}, 1))
	pb := obj.Physics()

	pb.SetConstraintAxis(mgl64.Vec3{0, 0, 2})
	if !pb.HasPlaneConstraint() || pb.HasUpVectorConstraint() || w.JointCount() != 1 {
		t.Fatalf("expected only the plane constraint, got %d joints", w.JointCount())
	}
	plane := pb.planeJoint

	pb.SetConstraintDirection(mgl64.Vec3{0, 1, 0})
	if !pb.HasUpVectorConstraint() || w.JointCount() != 2 {
		t.Fatalf("expected both constraints, got %d joints", w.JointCount())
	}
	if pb.planeJoint == plane {
		t.Errorf("the plane constraint must be recreated with the up-vector one")
	}

	pb.SetSize(mgl64.Vec3{1, 2, 1})
	if !pb.HasPlaneConstraint() || !pb.HasUpVectorConstraint() || w.JointCount() != 2 {
		t.Errorf("a rebuild must keep both constraints, got %d joints", w.JointCount())
	}

	pb.SetConstraintAxis(mgl64.Vec3{})
	if pb.HasPlaneConstraint() || !pb.HasUpVectorConstraint() || w.JointCount() != 1 {
		t.Errorf("a zero axis removes only the plane constraint, got %d joints", w.JointCount())
	}
}

func TestPlaneConstraintLimitsMotion(t *testing.T) {
	r, w := newTestRegistry(t, WithConfig(weightless()))
	obj := dynamicBox("puck", "", mgl64.Vec3{}, 1)
	obj.physics.SetConstraintAxis(mgl64.Vec3{0, 0, 1})
	mustRegister(t, r, obj)
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	obj.Physics().SetVelocity(mgl64.Vec3{1, 0, 1})
	w.Step(1)
	r.Update(time.Second)
	if v := obj.Physics().Velocity(); !nearVec(v, mgl64.Vec3{1, 0, 0}, 1e-9) {
		t.Errorf("expected the normal component removed, got %v", v)
	}
	if p := obj.Position(); !nearVec(p, mgl64.Vec3{1, 0, 0}, 1e-9) {
		t.Errorf("expected the puck to stay in its plane, got %v", p)
	}
}
