package simcore

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestSnapshotRestore(t *testing.T) {
	r, _ := newTestRegistry(t)
	src := dynamicBox("lamp", "Props", mgl64.Vec3{1, 2, 3}, 5)
	src.transform.Orientation = mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 1, 0})
	src.transform.Scale = mgl64.Vec3{2, 2, 2}
	src.physics.SetGravity(mgl64.Vec3{0, -1, 0})
	src.physics.SetGravitySource("Planet", 3)
	src.joint = NewJoint(JointSpring, 7).Spring(4, 0.5, 2)
	mustRegister(t, r, src)

	data, err := r.SnapshotGameObject(src.ID())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("<gameObject")) {
		t.Fatalf("unexpected document %s", data)
	}

	if _, err := r.RestoreGameObject(data); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("restoring over a live id must fail, got %v", err)
	}
	if err := r.DeleteGameObjectImmediately(src.ID()); err != nil {
		t.Fatal(err)
	}

	got, err := r.RestoreGameObject(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID() != src.ID() || got.Name() != "lamp" || got.Category() != "Props" || !got.Dynamic() {
		t.Errorf("identity not restored: %d %q %q", got.ID(), got.Name(), got.Category())
	}
	if !got.Transform().ApproxEqual(src.Transform(), 1e-9) {
		t.Errorf("transform not restored: %+v", got.Transform())
	}
	pb := got.Physics()
	if pb == nil || pb.Mass() != 5 || pb.Body() == nil {
		t.Fatal("physics not restored")
	}
	if pb.gravitySourceCategory != "Planet" || pb.gravitySourceStrength != 3 || !pb.hasGravity {
		t.Errorf("gravity settings not restored")
	}
	j := got.Joint()
	if j == nil || j.Kind() != JointSpring || j.PredecessorID() != 7 || j.stiffness != 4 || j.restLength != 2 {
		t.Errorf("joint not restored: %+v", j)
	}
	if j.Linked() {
		t.Errorf("a restored joint starts unlinked")
	}
}

func TestSnapshotErrors(t *testing.T) {
	r, _ := newTestRegistry(t)
	if _, err := r.SnapshotGameObject(42); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.RestoreGameObject([]byte("<gameObject")); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for a truncated document, got %v", err)
	}
	if err := r.DeleteGameObjectWithUndo(42); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
