package simcore

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/oriumgames/simcore/cubeworld"
	"github.com/oriumgames/simcore/engine"
)

func compoundPair(t *testing.T, r *Registry) (*GameObject, *GameObject) {
	t.Helper()
	root := dynamicBox("hull", "Ship", mgl64.Vec3{1, 2, 3}, 1)
	root.transform.Orientation = mgl64.QuatRotate(math.Pi/4, mgl64.Vec3{0, 1, 0})
	root.compound = NewCompoundConnection(0)
	mustRegister(t, r, root)

	child := dynamicBox("turret", "Ship", mgl64.Vec3{3, 2, 3}, 2)
	child.transform.Orientation = mgl64.QuatRotate(math.Pi/3, mgl64.Vec3{1, 0, 0})
	child.compound = NewCompoundConnection(root.ID())
	mustRegister(t, r, child)
	return root, child
}

func TestCompoundRoundTrip(t *testing.T) {
	r, _ := newTestRegistry(t)
	root, child := compoundPair(t, r)
	before := child.Transform()

	if err := root.Physics().CreateCompoundBody([]*PhysicsBody{child.Physics()}); err != nil {
		t.Fatal(err)
	}
	if child.Physics().Body() != nil {
		t.Fatal("a merged child must lose its body")
	}
	if child.Physics().CompoundRoot() != root.ID() || child.Parent() != root.ID() {
		t.Fatalf("child not parented to the root")
	}
	if m := root.Physics().Body().Mass(); math.Abs(m-3) > 1e-9 {
		t.Errorf("expected combined mass 3, got %v", m)
	}
	if !child.Transform().ApproxEqual(before, 1e-9) {
		t.Errorf("merging moved the child: %+v != %+v", child.Transform(), before)
	}

	if err := root.Physics().DestroyCompoundBody([]*PhysicsBody{child.Physics()}); err != nil {
		t.Fatal(err)
	}
	if !child.Transform().ApproxEqual(before, 1e-9) {
		t.Errorf("round trip moved the child: %+v != %+v", child.Transform(), before)
	}
	if child.Physics().Body() == nil || child.Parent() != 0 {
		t.Fatal("child did not get its body and parent back")
	}
	if m := root.Physics().Body().Mass(); math.Abs(m-1) > 1e-9 {
		t.Errorf("expected the root's own mass 1, got %v", m)
	}
	if len(root.Physics().CompoundChildren()) != 0 {
		t.Errorf("root still lists children")
	}
}

func TestCompoundChildFollowsRoot(t *testing.T) {
	r, _ := newTestRegistry(t)
	root, child := compoundPair(t, r)
	if err := root.Physics().CreateCompoundBody([]*PhysicsBody{child.Physics()}); err != nil {
		t.Fatal(err)
	}

	offset := child.Position().Sub(root.Position())
	root.SetPosition(root.Position().Add(mgl64.Vec3{0, 10, 0}))
	r.Update(0)

	if got := child.Position().Sub(root.Position()); !nearVec(got, offset, 1e-9) {
		t.Errorf("expected the child to keep offset %v, got %v", offset, got)
	}
}

func TestConnectCompoundCollisionsOnStart(t *testing.T) {
	r, _ := newTestRegistry(t)
	root, child := compoundPair(t, r)
	orphan := dynamicBox("orphan", "Ship", mgl64.Vec3{9, 0, 0}, 1)
	orphan.compound = NewCompoundConnection(999)
	mustRegister(t, r, orphan)

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if child.Physics().Body() != nil || len(root.Compound().Children()) != 1 {
		t.Fatal("expected the child merged into the root")
	}
	if r.Compound(root.ID()) != root.Compound() {
		t.Errorf("compound not indexed")
	}
	if orphan.Physics().Body() == nil {
		t.Errorf("an unresolved child must keep its body")
	}

	reports := r.ConnectCompoundCollisions()
	if len(reports) != 1 || !errors.Is(reports[0], ErrUnresolvedRoot) {
		t.Fatalf("expected one unresolved root report, got %v", reports)
	}

	r.Stop(context.Background())
	if child.Physics().Body() == nil || child.Physics().CompoundRoot() != 0 {
		t.Errorf("stop must dissolve the compound")
	}
	if r.Compound(root.ID()) != nil {
		t.Errorf("stop must clear the compound index")
	}
}

func TestDeleteCompoundChild(t *testing.T) {
	r, _ := newTestRegistry(t)
	root, child := compoundPair(t, r)
	if err := root.Physics().CreateCompoundBody([]*PhysicsBody{child.Physics()}); err != nil {
		t.Fatal(err)
	}

	if err := r.DeleteGameObjectImmediately(child.ID()); err != nil {
		t.Fatal(err)
	}
	if len(root.Physics().CompoundChildren()) != 0 {
		t.Errorf("deleted child still merged")
	}
	if m := root.Physics().Body().Mass(); math.Abs(m-1) > 1e-9 {
		t.Errorf("expected the root's own mass after the child left, got %v", m)
	}
}

// noCompoundWorld refuses to create bodies for compound collisions.
type noCompoundWorld struct {
	*cubeworld.World
}

func (w noCompoundWorld) CreateBody(c engine.Collision, t engine.Transform) (engine.Body, error) {
	if c.Shape() == engine.ShapeCompound {
		return nil, errors.New("compound bodies unsupported")
	}
	return w.World.CreateBody(c, t)
}

func TestFailedCompoundKeepsRootBody(t *testing.T) {
	w := cubeworld.New(cubeworld.WithWorkers(2))
	r := NewRegistry(noCompoundWorld{w}, WithLogger(quietLogger()))
	root, child := compoundPair(t, r)

	err := root.Physics().CreateCompoundBody([]*PhysicsBody{child.Physics()})
	if !errors.Is(err, ErrBodyCreationFailed) {
		t.Fatalf("expected a body creation failure, got %v", err)
	}

	if root.Physics().Body() == nil {
		t.Fatal("the root must keep an individual body")
	}
	if m := root.Physics().Body().Mass(); math.Abs(m-1) > 1e-9 {
		t.Errorf("expected the root's own mass 1, got %v", m)
	}
	if child.Physics().Body() == nil || child.Physics().CompoundRoot() != 0 || child.Parent() != 0 {
		t.Errorf("the child must be restored")
	}
	if len(root.Physics().CompoundChildren()) != 0 {
		t.Errorf("root still lists children")
	}
	if w.BodyCount() != 2 {
		t.Errorf("expected 2 bodies, got %d", w.BodyCount())
	}
}
