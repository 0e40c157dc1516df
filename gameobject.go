package simcore

import (
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// Kind tags a behavior so the registry can find vehicles and player
// controllers without type assertions.
type Kind int

const (
	// KindBehavior is a plain scripted behavior.
	KindBehavior Kind = iota

	// KindVehicle behaviors are connected after joints during Start.
	KindVehicle

	// KindPlayerController behaviors are returned by Registry.PlayerController.
	KindPlayerController
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindBehavior:
		return "Behavior"
	case KindVehicle:
		return "Vehicle"
	case KindPlayerController:
		return "PlayerController"
	default:
		return "Unknown"
	}
}

// Behavior is logic attached to a game object. Behaviors may additionally
// implement Updater, LateUpdater, Connectable, VehicleConnector, Destroyer or
// Cloner.
type Behavior interface {
	Kind() Kind
}

// Updater runs in the update pass of Registry.Update.
type Updater interface {
	Update(obj *GameObject, dt time.Duration)
}

// LateUpdater runs in the late-update pass of Registry.Update.
type LateUpdater interface {
	LateUpdate(obj *GameObject, dt time.Duration)
}

// Connectable is notified at simulation start and stop.
type Connectable interface {
	Connect(obj *GameObject) error
	Disconnect(obj *GameObject)
}

// VehicleConnector is connected by Start once joints exist.
type VehicleConnector interface {
	ConnectVehicle(obj *GameObject, objects Lookup) error
}

// Destroyer releases resources when its object is deleted.
type Destroyer interface {
	Destroy(obj *GameObject)
}

// Cloner copies a behavior for Registry.Clone. Behaviors without it are not
// carried over.
type Cloner interface {
	Clone() Behavior
}

// GameObject is a simulated entity. Identity and category are owned by the
// Registry; the transform is safe for concurrent use.
type GameObject struct {
	id      uint64
	priorID uint64
	name    string

	category   string
	categoryID uint32

	dynamic          bool
	defaultDirection mgl64.Vec3

	// mu protects the transform and parent fields
	mu        sync.RWMutex
	transform Transform
	initial   Transform
	parentID  uint64
	local     Transform

	physics   *PhysicsBody
	joint     *JointComponent
	compound  *CompoundConnection
	behaviors []Behavior
}

// NewGameObject creates an unregistered object at the origin.
func NewGameObject(name, category string) *GameObject {
	if category == "" {
		category = DefaultCategory
	}
	return &GameObject{
		name:             name,
		category:         category,
		defaultDirection: mgl64.Vec3{0, 0, 1},
		transform:        IdentityTransform(),
	}
}

// ID returns the id assigned by Register, or 0.
func (o *GameObject) ID() uint64 { return o.id }

// PriorID returns the id of the object this one was cloned from.
func (o *GameObject) PriorID() uint64 { return o.priorID }

// Name returns the name the object was built with.
func (o *GameObject) Name() string { return o.name }

// Category returns the category name the object belongs to.
func (o *GameObject) Category() string { return o.category }

// CategoryID returns the category bit assigned by the registry.
func (o *GameObject) CategoryID() uint32 { return o.categoryID }

// Dynamic reports whether the object was built as a dynamic body.
func (o *GameObject) Dynamic() bool { return o.dynamic }

// DefaultDirection returns the local forward axis.
func (o *GameObject) DefaultDirection() mgl64.Vec3 { return o.defaultDirection }

// Physics returns the physics component or nil.
func (o *GameObject) Physics() *PhysicsBody { return o.physics }

// Joint returns the joint component or nil.
func (o *GameObject) Joint() *JointComponent { return o.joint }

// Compound returns the compound connection or nil.
func (o *GameObject) Compound() *CompoundConnection { return o.compound }

// Behaviors returns the attached behaviors.
func (o *GameObject) Behaviors() []Behavior { return o.behaviors }

// Behavior returns the first behavior of kind k.
func (o *GameObject) Behavior(k Kind) Behavior {
	for _, b := range o.behaviors {
		if b.Kind() == k {
			return b
		}
	}
	return nil
}

// Transform returns the world transform.
func (o *GameObject) Transform() Transform {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.transform
}

// Position returns the world position.
func (o *GameObject) Position() mgl64.Vec3 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.transform.Position
}

// Orientation returns the world orientation.
func (o *GameObject) Orientation() mgl64.Quat {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.transform.Orientation
}

// Scale returns the local scale, (1,1,1) when unset.
func (o *GameObject) Scale() mgl64.Vec3 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.transform.Scale
}

// Forward returns the default direction rotated into world space.
func (o *GameObject) Forward() mgl64.Vec3 {
	return o.Orientation().Rotate(o.defaultDirection)
}

// SetTransform moves the object and its body, if any.
func (o *GameObject) SetTransform(t Transform) {
	t = t.normalized()
	o.mu.Lock()
	o.transform = t
	o.mu.Unlock()
	if o.physics != nil {
		o.physics.syncToBody(t)
	}
}

// SetPosition moves the object in its parent's space.
func (o *GameObject) SetPosition(p mgl64.Vec3) {
	t := o.Transform()
	t.Position = p
	o.SetTransform(t)
}

// SetOrientation rotates the object in its parent's space.
func (o *GameObject) SetOrientation(q mgl64.Quat) {
	t := o.Transform()
	t.Orientation = q
	o.SetTransform(t)
}

// SetScale changes the scale. The collision is rebuilt since it is sized by
// the scale.
func (o *GameObject) SetScale(s mgl64.Vec3) {
	o.mu.Lock()
	o.transform.Scale = s
	o.transform = o.transform.normalized()
	o.mu.Unlock()
	if o.physics != nil {
		o.physics.attributeChanged(rebuildBody)
	}
}

// Parent returns the scene parent id, or 0.
func (o *GameObject) Parent() uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.parentID
}

// reparent attaches the object to parentID, whose world transform is parent,
// keeping the object's world transform. parentID 0 detaches it. It returns the
// previous parent.
func (o *GameObject) reparent(parentID uint64, parent Transform) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	prev := o.parentID
	o.parentID = parentID
	if parentID == 0 {
		o.local = Transform{}
		return prev
	}
	o.local = o.transform.Relative(parent)
	return prev
}

// followParent recomputes the world transform from the parent's.
func (o *GameObject) followParent(parent Transform) {
	o.mu.Lock()
	if o.parentID != 0 {
		o.transform = parent.Mul(o.local)
	}
	o.mu.Unlock()
}

// localTransform returns the transform relative to the parent.
func (o *GameObject) localTransform() Transform {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.local
}

// setFromBody copies a body pose without touching scale.
func (o *GameObject) setFromBody(p mgl64.Vec3, q mgl64.Quat) {
	o.mu.Lock()
	o.transform.Position = p
	o.transform.Orientation = q
	o.mu.Unlock()
}

func (o *GameObject) recordInitial() {
	o.mu.Lock()
	o.initial = o.transform
	o.mu.Unlock()
}

func (o *GameObject) restoreInitial() {
	o.mu.Lock()
	if o.initial != (Transform{}) {
		o.transform = o.initial
	}
	o.mu.Unlock()
}

// ObjectBuilder assembles a GameObject before registration.
// Use Build() to create a builder and chain configuration methods.
type ObjectBuilder struct {
	obj *GameObject
}

// Build starts a builder for an object named name in category.
func Build(name, category string) *ObjectBuilder {
	return &ObjectBuilder{obj: NewGameObject(name, category)}
}

// At sets the initial transform.
func (b *ObjectBuilder) At(t Transform) *ObjectBuilder {
	b.obj.transform = t.normalized()
	return b
}

// Position sets the initial position.
func (b *ObjectBuilder) Position(p mgl64.Vec3) *ObjectBuilder {
	b.obj.transform.Position = p
	return b
}

// Dynamic marks the object as simulated.
func (b *ObjectBuilder) Dynamic() *ObjectBuilder {
	b.obj.dynamic = true
	return b
}

// Direction sets the local forward axis.
func (b *ObjectBuilder) Direction(d mgl64.Vec3) *ObjectBuilder {
	if d.LenSqr() > 0 {
		b.obj.defaultDirection = d.Normalize()
	}
	return b
}

// Physics attaches a physics component.
func (b *ObjectBuilder) Physics(pb *PhysicsBody) *ObjectBuilder {
	b.obj.physics = pb
	return b
}

// Joint attaches a joint component.
func (b *ObjectBuilder) Joint(j *JointComponent) *ObjectBuilder {
	b.obj.joint = j
	return b
}

// Compound attaches a compound connection.
func (b *ObjectBuilder) Compound(c *CompoundConnection) *ObjectBuilder {
	b.obj.compound = c
	return b
}

// Behavior appends a behavior.
func (b *ObjectBuilder) Behavior(bh Behavior) *ObjectBuilder {
	b.obj.behaviors = append(b.obj.behaviors, bh)
	return b
}

// Object returns the assembled object.
func (b *ObjectBuilder) Object() *GameObject {
	return b.obj
}
