package simcore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/oriumgames/simcore/engine"
)

type recorder struct {
	kind Kind
	name string
	log  *[]string
}

func (b *recorder) Kind() Kind { return b.kind }

func (b *recorder) Connect(obj *GameObject) error {
	*b.log = append(*b.log, "connect:"+b.name)
	return nil
}

func (b *recorder) Disconnect(obj *GameObject) {
	*b.log = append(*b.log, "disconnect:"+b.name)
}

func (b *recorder) Destroy(obj *GameObject) {
	*b.log = append(*b.log, "destroy:"+b.name)
}

func (b *recorder) Clone() Behavior {
	return &recorder{kind: b.kind, name: b.name + "'", log: b.log}
}

type vehicle struct {
	name string
	log  *[]string
}

func (v *vehicle) Kind() Kind { return KindVehicle }

func (v *vehicle) ConnectVehicle(obj *GameObject, objects Lookup) error {
	if objects.GameObject(obj.ID()) != obj {
		return errors.New("lookup mismatch")
	}
	*v.log = append(*v.log, "vehicle:"+v.name)
	return nil
}

type counter struct {
	updates, late int
}

func (c *counter) Kind() Kind                                { return KindBehavior }
func (c *counter) Update(obj *GameObject, dt time.Duration)     { c.updates++ }
func (c *counter) LateUpdate(obj *GameObject, dt time.Duration) { c.late++ }

func TestRegisterAssignsIDs(t *testing.T) {
	r, _ := newTestRegistry(t)
	var registered []GameObjectRegistered
	Subscribe(r.Events(), func(e GameObjectRegistered) { registered = append(registered, e) })

	a := mustRegister(t, r, NewGameObject("a", ""))
	b := mustRegister(t, r, NewGameObject("b", "Props"))
	if a.ID() == 0 || b.ID() <= a.ID() {
		t.Fatalf("unexpected ids %d %d", a.ID(), b.ID())
	}
	if a.Category() != DefaultCategory {
		t.Errorf("expected the default category, got %q", a.Category())
	}
	if r.GameObjectByName("b") != b {
		t.Errorf("lookup by name failed")
	}
	if len(registered) != 2 || registered[1].Name != "b" || registered[1].Category != "Props" {
		t.Errorf("unexpected registration events %+v", registered)
	}

	dup := NewGameObject("dup", "")
	dup.id = a.ID()
	if err := r.Register(dup); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestRegisterPanicsOnZeroRegistry(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic")
		}
	}()
	var r Registry
	r.Register(NewGameObject("x", ""))
}

func TestRegisterRejectsInvalidShape(t *testing.T) {
	r, _ := newTestRegistry(t)
	obj := Build("bad", "Broken").Physics(NewPhysicsBody(engine.ShapeBox, mgl64.Vec3{0, 1, 1}, 1)).Object()

	err := r.Register(obj)
	if !errors.Is(err, ErrInvalidShape) {
		t.Fatalf("expected ErrInvalidShape, got %v", err)
	}
	if len(r.AllGameObjectIDs()) != 0 || r.LiveCategoryCount() != 0 {
		t.Errorf("a rejected object must leave nothing behind")
	}
}

func TestDeleteGameObjectIsIdempotent(t *testing.T) {
	r, _ := newTestRegistry(t)
	var deleting, deleted atomic.Int32
	Subscribe(r.Events(), func(GameObjectDeleting) { deleting.Add(1) })
	Subscribe(r.Events(), func(GameObjectDeleted) { deleted.Add(1) })

	var log []string
	obj := Build("doomed", "").Behavior(&recorder{kind: KindBehavior, name: "doomed", log: &log}).Object()
	mustRegister(t, r, obj)

	r.DeleteGameObject(obj.ID())
	r.DeleteGameObject(obj.ID())
	if deleting.Load() != 1 {
		t.Fatalf("expected one deleting notification, got %d", deleting.Load())
	}
	if r.GameObject(obj.ID()) == nil || !r.PendingDeletion(obj.ID()) {
		t.Fatal("deletion must wait for the update pass")
	}

	r.Update(0)
	r.Update(0)
	if deleted.Load() != 1 {
		t.Fatalf("expected one deleted notification, got %d", deleted.Load())
	}
	if r.GameObject(obj.ID()) != nil {
		t.Fatal("object still live")
	}
	if len(log) != 1 || log[0] != "destroy:doomed" {
		t.Errorf("expected one destroy, got %v", log)
	}
	if err := r.DeleteGameObjectImmediately(obj.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteGameObjectDelayed(t *testing.T) {
	r, _ := newTestRegistry(t)
	obj := mustRegister(t, r, NewGameObject("later", ""))

	r.DeleteGameObjectDelayed(obj.ID(), 100*time.Millisecond)
	r.Update(50 * time.Millisecond)
	if r.GameObject(obj.ID()) == nil {
		t.Fatal("deleted too early")
	}
	// the process runs after the deletion pass, so the object goes one frame later
	r.Update(50 * time.Millisecond)
	r.Update(0)
	if r.GameObject(obj.ID()) != nil {
		t.Fatal("delayed deletion did not happen")
	}
}

func TestStartConnectsMainObjectLast(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MainObjectName = "hero"
	r, _ := newTestRegistry(t, WithConfig(cfg))

	var log []string
	mustRegister(t, r, Build("hero", "Player").Behavior(&recorder{kind: KindPlayerController, name: "hero", log: &log}).Object())
	mustRegister(t, r, Build("a", "").Behavior(&recorder{kind: KindBehavior, name: "a", log: &log}).Object())
	b := Build("b", "").Behavior(&vehicle{name: "b", log: &log}).Object()
	mustRegister(t, r, b)

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []string{"connect:a", "vehicle:b", "connect:hero"}
	if len(log) != len(want) {
		t.Fatalf("expected %v, got %v", want, log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, log)
		}
	}
	if err := r.Start(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected a second Start to fail, got %v", err)
	}

	hero := r.GameObjectByName("hero")
	if r.PlayerController(hero.ID()) == nil {
		t.Errorf("player controller lookup failed")
	}
}

func TestStopRestoresInitialTransforms(t *testing.T) {
	r, w := newTestRegistry(t)
	obj := mustRegister(t, r, dynamicBox("faller", "", mgl64.Vec3{0, 10, 0}, 1))
	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}

	w.Step(1)
	r.Update(time.Second)
	if obj.Position().Y() >= 10 {
		t.Fatalf("the body did not fall: %v", obj.Position())
	}

	r.Stop(ctx)
	if !nearVec(obj.Position(), mgl64.Vec3{0, 10, 0}, 1e-9) {
		t.Errorf("expected the initial position back, got %v", obj.Position())
	}
	body := obj.Physics().Body()
	if body == nil || !nearVec(body.Position(), mgl64.Vec3{0, 10, 0}, 1e-9) {
		t.Errorf("expected a fresh body at the initial position")
	}
	if obj.Physics().State() != StateBodyCreated {
		t.Errorf("expected BodyCreated after stop, got %v", obj.Physics().State())
	}
	if r.Running() {
		t.Errorf("registry still running")
	}
}

func TestUpdatePasses(t *testing.T) {
	r, _ := newTestRegistry(t)
	c := &counter{}
	mustRegister(t, r, Build("ticker", "").Behavior(c).Object())
	r.Update(time.Millisecond)
	r.Update(time.Millisecond)
	if c.updates != 2 || c.late != 2 {
		t.Errorf("expected 2 updates and 2 late updates, got %d %d", c.updates, c.late)
	}
}

func TestNextGameObjectWraps(t *testing.T) {
	r, _ := newTestRegistry(t)
	e1 := mustRegister(t, r, NewGameObject("e1", "Enemy"))
	e2 := mustRegister(t, r, NewGameObject("e2", "Enemy"))
	mustRegister(t, r, NewGameObject("p", "Player"))
	e3 := mustRegister(t, r, NewGameObject("e3", "Enemy"))
	enemy := r.CategoryID("Enemy")

	want := []*GameObject{e1, e2, e3, e1, e2}
	for i, w := range want {
		if got := r.NextGameObject(enemy); got != w {
			t.Fatalf("pick %d: expected %s, got %v", i, w.Name(), got)
		}
	}

	if err := r.DeleteGameObjectImmediately(e3.ID()); err != nil {
		t.Fatal(err)
	}
	if got := r.NextGameObject(enemy); got != e1 {
		t.Errorf("expected the cursor to wrap to e1, got %v", got)
	}
	if r.NextGameObject(1<<20) != nil {
		t.Errorf("expected nil for an empty match set")
	}
}

func TestCloneCopiesComponents(t *testing.T) {
	r, _ := newTestRegistry(t)
	var log []string
	src := dynamicBox("crate", "Props", mgl64.Vec3{1, 2, 3}, 4)
	src.behaviors = append(src.behaviors, &recorder{kind: KindBehavior, name: "crate", log: &log}, &counter{})
	mustRegister(t, r, src)

	cp, err := r.Clone(src.ID(), "")
	if err != nil {
		t.Fatal(err)
	}
	if cp.Name() != "crate" || cp.PriorID() != src.ID() || cp.Category() != "Props" {
		t.Errorf("unexpected clone %d %q %q", cp.PriorID(), cp.Name(), cp.Category())
	}
	if !nearVec(cp.Position(), mgl64.Vec3{1, 2, 3}, 1e-9) {
		t.Errorf("clone not placed at the source")
	}
	if cp.Physics() == src.Physics() || cp.Physics().Body() == nil || cp.Physics().Mass() != 4 {
		t.Errorf("physics component not copied")
	}
	if len(cp.Behaviors()) != 1 {
		t.Errorf("only cloneable behaviors are copied, got %d", len(cp.Behaviors()))
	}
	if _, err := r.Clone(999, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteWithUndo(t *testing.T) {
	r, _ := newTestRegistry(t)
	obj := dynamicBox("vase", "Props", mgl64.Vec3{0, 1, 0}, 2)
	obj.physics.SetConstraintAxis(mgl64.Vec3{0, 0, 1})
	mustRegister(t, r, obj)
	id := obj.ID()

	if err := r.DeleteGameObjectWithUndo(id); err != nil {
		t.Fatal(err)
	}
	if !r.PendingDeletion(id) {
		t.Fatal("expected a pending deletion")
	}

	// Undo before the deletion pass cancels it.
	if err := r.Processes().Undo(); err != nil {
		t.Fatal(err)
	}
	r.Update(0)
	if r.GameObject(id) != obj {
		t.Fatal("undo did not cancel the pending deletion")
	}

	// Redo, let the deletion run, then undo restores from the snapshot.
	if err := r.Processes().Redo(); err != nil {
		t.Fatal(err)
	}
	r.Update(0)
	if r.GameObject(id) != nil {
		t.Fatal("redo did not delete")
	}
	if err := r.Processes().Undo(); err != nil {
		t.Fatal(err)
	}
	restored := r.GameObject(id)
	if restored == nil || restored == obj {
		t.Fatal("expected a restored object under the same id")
	}
	if restored.Name() != "vase" || restored.Category() != "Props" || !restored.Dynamic() {
		t.Errorf("restored object differs: %q %q", restored.Name(), restored.Category())
	}
	if !nearVec(restored.Position(), mgl64.Vec3{0, 1, 0}, 1e-9) {
		t.Errorf("restored at %v", restored.Position())
	}
	pb := restored.Physics()
	if pb == nil || pb.Mass() != 2 || !pb.HasPlaneConstraint() || pb.Body() == nil {
		t.Errorf("physics not restored")
	}

	// The guard keeps one record per object and run.
	if err := r.DeleteGameObjectWithUndo(id); err != nil {
		t.Fatal(err)
	}
	r.Update(0)
	if r.GameObject(id) != nil {
		t.Fatal("guarded deletion did not happen")
	}
	if r.Processes().CanUndo() {
		t.Errorf("a guarded deletion must not be recorded")
	}
}
