package simcore

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/oriumgames/simcore/engine"
)

// BodyState is the lifecycle state of a PhysicsBody.
type BodyState uint8

const (
	StateUninitialized BodyState = iota
	StateBodyCreated
	StateConnected
	StateDisconnected
	StateDestroyed
)

// String returns the string representation of the state.
func (s BodyState) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateBodyCreated:
		return "BodyCreated"
	case StateConnected:
		return "Connected"
	case StateDisconnected:
		return "Disconnected"
	case StateDestroyed:
		return "Destroyed"
	default:
		return "Unknown"
	}
}

// env is what a component may reach: the engine, the render queue and a
// read-only view of the registry. Components never hold the Registry itself.
type env struct {
	world   engine.World
	render  RenderQueue
	debug   DebugDrawer
	log     *slog.Logger
	cfg     Config
	objects Lookup

	// rewire re-creates the joints touching an object after its body changed
	rewire func(id uint64)
}

type rebuildKind uint8

const (
	rebuildBody rebuildKind = iota
	rebuildCollision
)

// liveBody is published atomically for readers outside mu.
type liveBody struct {
	body engine.Body
}

// motionParams is the part of the configuration read by the solver callback.
type motionParams struct {
	gravity        mgl64.Vec3
	sourceCategory string
	sourceStrength float64
}

// PhysicsBody owns the rigid body of one game object.
type PhysicsBody struct {
	owner uint64
	env   *env

	// mu protects attributes, the engine handles and state
	mu sync.Mutex

	shape                engine.ShapeType
	size                 mgl64.Vec3
	offset               mgl64.Vec3
	collisionOrientation mgl64.Quat

	mass          float64
	massOrigin    mgl64.Vec3
	hasMassOrigin bool

	linearDamping  float64
	angularDamping mgl64.Vec3

	gravity               mgl64.Vec3
	hasGravity            bool
	gravitySourceCategory string
	gravitySourceStrength float64

	constraintAxis      mgl64.Vec3
	constraintDirection mgl64.Vec3
	debugContacts       bool

	state      BodyState
	body       engine.Body
	collision  engine.Collision
	planeJoint engine.Joint
	upJoint    engine.Joint

	// compoundRoot is the root id while this body is merged into a compound
	compoundRoot     uint64
	savedParent      uint64
	compoundChildren []*PhysicsBody

	live       atomic.Pointer[liveBody]
	params     atomic.Pointer[motionParams]
	gravityDir atomic.Pointer[mgl64.Vec3]
	commands   commandSet

	partnersMu sync.RWMutex
	partners   []forcePartner

	observersMu sync.RWMutex
	observers   []*forceObserver
}

// NewPhysicsBody creates a component with a primitive collision. size is the
// full box extents, or (radius, height, -) for round shapes.
func NewPhysicsBody(shape engine.ShapeType, size mgl64.Vec3, mass float64) *PhysicsBody {
	pb := &PhysicsBody{
		shape:                shape,
		size:                 size,
		collisionOrientation: mgl64.QuatIdent(),
		mass:                 mass,
		linearDamping:        0.1,
		angularDamping:       mgl64.Vec3{0.1, 0.1, 0.1},
	}
	pb.params.Store(&motionParams{})
	return pb
}

// Owner returns the id of the owning game object.
func (pb *PhysicsBody) Owner() uint64 { return pb.owner }

// State returns the lifecycle state of the component.
func (pb *PhysicsBody) State() BodyState {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.state
}

// Body returns the engine body, or nil while inert or merged into a compound.
func (pb *PhysicsBody) Body() engine.Body {
	if l := pb.live.Load(); l != nil {
		return l.body
	}
	return nil
}

// CompoundRoot returns the id of the compound root this body is merged into.
func (pb *PhysicsBody) CompoundRoot() uint64 {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.compoundRoot
}

// Mass returns the configured mass; 0 makes the body static.
func (pb *PhysicsBody) Mass() float64 {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.mass
}

// SetShape changes the primitive and rebuilds the body.
func (pb *PhysicsBody) SetShape(s engine.ShapeType) {
	pb.mu.Lock()
	pb.shape = s
	pb.mu.Unlock()
	pb.attributeChanged(rebuildBody)
}

// SetSize changes the collision size and rebuilds the body.
func (pb *PhysicsBody) SetSize(size mgl64.Vec3) {
	pb.mu.Lock()
	pb.size = size
	pb.mu.Unlock()
	pb.attributeChanged(rebuildBody)
}

// SetOffset moves the collision inside the body and rebuilds it.
func (pb *PhysicsBody) SetOffset(offset mgl64.Vec3) {
	pb.mu.Lock()
	pb.offset = offset
	pb.mu.Unlock()
	pb.attributeChanged(rebuildBody)
}

// SetCollisionOrientation rotates the collision inside the body and rebuilds it.
func (pb *PhysicsBody) SetCollisionOrientation(q mgl64.Quat) {
	pb.mu.Lock()
	pb.collisionOrientation = q
	pb.mu.Unlock()
	pb.attributeChanged(rebuildBody)
}

// SetMass swaps the mass matrix in place.
func (pb *PhysicsBody) SetMass(mass float64) {
	pb.mu.Lock()
	pb.mass = mass
	pb.mu.Unlock()
	pb.attributeChanged(rebuildCollision)
}

// SetMassOrigin overrides the centre of mass.
func (pb *PhysicsBody) SetMassOrigin(origin mgl64.Vec3) {
	pb.mu.Lock()
	pb.massOrigin = origin
	pb.hasMassOrigin = true
	pb.mu.Unlock()
	pb.attributeChanged(rebuildCollision)
}

// SetDamping sets linear and per-axis angular damping.
func (pb *PhysicsBody) SetDamping(linear float64, angular mgl64.Vec3) {
	pb.mu.Lock()
	pb.linearDamping = linear
	pb.angularDamping = angular
	if pb.body != nil {
		pb.body.SetDamping(linear, angular)
	}
	pb.mu.Unlock()
}

// SetGravity overrides the configured gravity for this body.
func (pb *PhysicsBody) SetGravity(g mgl64.Vec3) {
	pb.mu.Lock()
	pb.gravity = g
	pb.hasGravity = true
	pb.refreshParamsLocked()
	pb.mu.Unlock()
}

// SetGravitySource makes the nearest object of category pull this body with
// a constant acceleration of strength. An empty category disables it; a zero
// strength uses the configured default.
func (pb *PhysicsBody) SetGravitySource(category string, strength float64) {
	pb.mu.Lock()
	pb.gravitySourceCategory = category
	pb.gravitySourceStrength = strength
	pb.refreshParamsLocked()
	pb.mu.Unlock()
}

// SetDebugContacts draws a debug line for every contact query.
func (pb *PhysicsBody) SetDebugContacts(on bool) {
	pb.mu.Lock()
	pb.debugContacts = on
	pb.mu.Unlock()
}

// SetVelocity sets the body velocity directly.
func (pb *PhysicsBody) SetVelocity(v mgl64.Vec3) {
	if b := pb.Body(); b != nil {
		b.SetVelocity(v)
	}
}

// Velocity returns the body velocity, or zero without a body.
func (pb *PhysicsBody) Velocity() mgl64.Vec3 {
	if b := pb.Body(); b != nil {
		return b.Velocity()
	}
	return mgl64.Vec3{}
}

// attach binds the component to its owner. Called by Register.
func (pb *PhysicsBody) attach(owner uint64, e *env) {
	pb.mu.Lock()
	pb.owner = owner
	pb.env = e
	if pb.state == StateDestroyed {
		pb.state = StateUninitialized
	}
	pb.refreshParamsLocked()
	pb.mu.Unlock()
}

func (pb *PhysicsBody) object() *GameObject {
	if pb.env == nil {
		return nil
	}
	return pb.env.objects.GameObject(pb.owner)
}

func (pb *PhysicsBody) logger() *slog.Logger {
	if pb.env == nil {
		return slog.Default()
	}
	return pb.env.log
}

// refreshParamsLocked republishes the values read by the solver callback.
func (pb *PhysicsBody) refreshParamsLocked() {
	p := &motionParams{
		sourceCategory: pb.gravitySourceCategory,
		sourceStrength: pb.gravitySourceStrength,
	}
	if pb.env != nil {
		p.gravity = pb.env.cfg.Gravity
		if p.sourceStrength == 0 {
			p.sourceStrength = pb.env.cfg.GravitySourceStrength
		}
	}
	if pb.hasGravity {
		p.gravity = pb.gravity
	}
	pb.params.Store(p)
	if pb.gravityDir.Load() == nil && p.gravity.LenSqr() > 0 {
		d := p.gravity.Normalize()
		pb.gravityDir.Store(&d)
	}
}

// CreateDynamicBody builds the collision through the render queue and creates
// the body. On failure the component stays without a body.
func (pb *PhysicsBody) CreateDynamicBody() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.createDynamicBodyLocked()
}

func (pb *PhysicsBody) createDynamicBodyLocked() error {
	if pb.env == nil {
		return withMetadata(CodeInvalidState, "simcore: physics body is not attached", nil)
	}
	if pb.state == StateDestroyed {
		return withMetadata(CodeInvalidState, "simcore: physics body destroyed",
			map[string]string{"id": fmt.Sprint(pb.owner)})
	}
	obj := pb.object()
	if obj == nil {
		return notFound(pb.owner)
	}

	col, err := pb.buildCollision(pb.collisionDescLocked(obj.Scale()))
	if err != nil {
		return err
	}
	if pb.body != nil {
		pb.destroyBodyLocked()
	}
	return pb.createBodyLocked(col, obj, pb.massLocked(obj), pb.massOriginLocked(col))
}

// buildCollision creates a collision on the render queue.
func (pb *PhysicsBody) buildCollision(desc engine.CollisionDesc) (engine.Collision, error) {
	var col engine.Collision
	err := pb.env.render.EnqueueAndWait(func() error {
		c, err := pb.env.world.CreateCollision(desc)
		if err != nil {
			return err
		}
		col = c
		return nil
	})
	if err != nil {
		return nil, classifyCreateError(pb.owner, err)
	}
	return col, nil
}

func classifyCreateError(id uint64, err error) error {
	meta := map[string]string{"id": fmt.Sprint(id)}
	if errors.Is(err, engine.ErrInvalidShape) {
		e := wrapError(CodeInvalidShape, "simcore: invalid collision shape", err)
		e.Metadata = meta
		return e
	}
	e := wrapError(CodeBodyCreationFailed, "simcore: collision creation failed", err)
	e.Metadata = meta
	return e
}

func (pb *PhysicsBody) collisionDescLocked(scale mgl64.Vec3) engine.CollisionDesc {
	if scale == (mgl64.Vec3{}) {
		scale = mgl64.Vec3{1, 1, 1}
	}
	return engine.CollisionDesc{
		Shape:       pb.shape,
		Size:        mulElem(pb.size, scale),
		Offset:      mulElem(pb.offset, scale),
		Orientation: pb.collisionOrientation,
	}
}

func (pb *PhysicsBody) massLocked(obj *GameObject) float64 {
	if !obj.Dynamic() || pb.mass < 0 {
		return 0
	}
	return pb.mass
}

func (pb *PhysicsBody) massOriginLocked(col engine.Collision) mgl64.Vec3 {
	if pb.hasMassOrigin {
		return pb.massOrigin
	}
	lo, hi := col.Bounds()
	return lo.Add(hi).Mul(0.5)
}

// createBodyLocked creates the engine body for col, then restores the transform
// and re-applies constraints in that order.
func (pb *PhysicsBody) createBodyLocked(col engine.Collision, obj *GameObject, mass float64, com mgl64.Vec3) error {
	t := obj.Transform()
	body, err := pb.env.world.CreateBody(col, t.engine())
	if err != nil {
		e := wrapError(CodeBodyCreationFailed, "simcore: body creation failed", err)
		e.Metadata = map[string]string{"id": fmt.Sprint(pb.owner)}
		return e
	}

	pb.body = body
	pb.collision = col
	body.SetUserData(pb)
	setMassMatrix(body, col, mass)
	body.SetCenterOfMass(com)
	body.SetDamping(pb.linearDamping, pb.angularDamping)
	body.SetType(obj.CategoryID())
	body.SetMaterialGroup(materialGroup(obj.CategoryID()))

	body.SetPosition(t.Position)
	body.SetOrientation(t.normalized().Orientation)
	pb.live.Store(&liveBody{body: body})

	pb.applyConstraintsLocked()

	if pb.state == StateUninitialized || pb.state == StateDisconnected {
		pb.state = StateBodyCreated
	}
	if pb.state == StateConnected {
		body.SetForceCallback(pb.moveCallback)
	}
	return nil
}

// setMassMatrix sets mass with the inertia of the collision's bounding box.
func setMassMatrix(body engine.Body, col engine.Collision, mass float64) {
	lo, hi := col.Bounds()
	ext := hi.Sub(lo)
	x2, y2, z2 := ext[0]*ext[0], ext[1]*ext[1], ext[2]*ext[2]
	inertia := mgl64.Vec3{y2 + z2, x2 + z2, x2 + y2}.Mul(mass / 12)
	body.SetMassMatrix(mass, inertia)
}

// ReCreateCollision swaps the collision and mass matrix of the existing body.
// Without a body it falls back to CreateDynamicBody.
func (pb *PhysicsBody) ReCreateCollision() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.reCreateCollisionLocked()
}

func (pb *PhysicsBody) reCreateCollisionLocked() error {
	if pb.body == nil {
		return pb.createDynamicBodyLocked()
	}
	obj := pb.object()
	if obj == nil {
		return notFound(pb.owner)
	}
	col, err := pb.buildCollision(pb.collisionDescLocked(obj.Scale()))
	if err != nil {
		return err
	}
	pb.body.SetCollision(col)
	pb.collision = col
	setMassMatrix(pb.body, col, pb.massLocked(obj))
	pb.body.SetCenterOfMass(pb.massOriginLocked(col))
	return nil
}

// attributeChanged rebuilds after a setter. A component left without a body
// by an earlier failure retries here.
func (pb *PhysicsBody) attributeChanged(kind rebuildKind) {
	pb.mu.Lock()
	if pb.env == nil || pb.state == StateDestroyed || pb.compoundRoot != 0 {
		pb.mu.Unlock()
		return
	}
	if len(pb.compoundChildren) > 0 {
		children := pb.compoundChildren
		pb.mu.Unlock()
		if err := pb.rebuildCompound(children); err != nil {
			pb.logger().Error("simcore: compound rebuild failed", "id", pb.owner, "error", err)
		}
		return
	}

	var err error
	if kind == rebuildCollision && pb.body != nil {
		err = pb.reCreateCollisionLocked()
	} else {
		err = pb.createDynamicBodyLocked()
	}
	pb.mu.Unlock()

	if err != nil {
		pb.logger().Error("simcore: physics body rebuild failed", "id", pb.owner, "error", err)
		return
	}
	if pb.env.rewire != nil {
		pb.env.rewire(pb.owner)
	}
}

// applyCategory rewrites the collision filter after a category change.
func (pb *PhysicsBody) applyCategory(categoryID uint32) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.body != nil {
		pb.body.SetType(categoryID)
		pb.body.SetMaterialGroup(materialGroup(categoryID))
	}
}

// syncToBody teleports the body after the object was moved.
func (pb *PhysicsBody) syncToBody(t Transform) {
	if b := pb.Body(); b != nil {
		b.SetPosition(t.Position)
		b.SetOrientation(t.Orientation)
	}
}

func (pb *PhysicsBody) destroyBodyLocked() {
	pb.releaseConstraintsLocked()
	if pb.body != nil {
		pb.body.SetForceCallback(nil)
		pb.body.SetUserData(nil)
		pb.env.world.DestroyBody(pb.body)
	}
	pb.body = nil
	pb.collision = nil
	pb.live.Store(nil)
}

// postInit creates the body when the object is registered.
func (pb *PhysicsBody) postInit() error {
	return pb.CreateDynamicBody()
}

// connect enables the solver callback. A component without a body retries
// the creation first.
func (pb *PhysicsBody) connect() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.connectLocked()
}

func (pb *PhysicsBody) connectLocked() error {
	if pb.state == StateDestroyed || pb.env == nil {
		return nil
	}
	pb.refreshParamsLocked()
	if pb.body == nil && pb.compoundRoot == 0 {
		if err := pb.createDynamicBodyLocked(); err != nil {
			return err
		}
	}
	pb.state = StateConnected
	if pb.body != nil {
		pb.body.SetForceCallback(pb.moveCallback)
	}
	return nil
}

// disconnect tears down forces, constraints and the body.
func (pb *PhysicsBody) disconnect() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.state == StateDestroyed || pb.env == nil {
		return
	}
	pb.commands.reset()
	pb.clearPartners()
	pb.destroyBodyLocked()
	pb.compoundRoot = 0
	pb.savedParent = 0
	pb.compoundChildren = nil
	pb.state = StateDisconnected
}

// destroy releases everything. The component cannot be used afterwards.
func (pb *PhysicsBody) destroy() {
	pb.mu.Lock()
	if pb.env != nil {
		pb.destroyBodyLocked()
		if pb.env.debug != nil {
			for _, key := range pb.contactKeys() {
				pb.env.debug.RemoveLine(key)
			}
		}
	}
	pb.commands.reset()
	pb.clearPartners()
	pb.compoundChildren = nil
	pb.state = StateDestroyed
	pb.mu.Unlock()

	pb.observersMu.Lock()
	for _, o := range pb.observers {
		o.inert.Store(true)
	}
	pb.observers = nil
	pb.observersMu.Unlock()
}

// update copies the body pose to the object.
func (pb *PhysicsBody) update(obj *GameObject) {
	pb.mu.Lock()
	connected := pb.state == StateConnected && pb.compoundRoot == 0
	body := pb.body
	pb.mu.Unlock()
	if connected && body != nil {
		obj.setFromBody(body.Position(), body.Orientation())
	}
}

// lateUpdate makes compound children follow their root.
func (pb *PhysicsBody) lateUpdate(obj *GameObject) {
	pb.mu.Lock()
	root := pb.compoundRoot
	pb.mu.Unlock()
	if root == 0 || pb.env == nil {
		return
	}
	if r := pb.env.objects.GameObject(root); r != nil {
		obj.followParent(r.Transform())
	}
}

// clone copies the attributes, not the runtime state.
func (pb *PhysicsBody) clone() *PhysicsBody {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	c := NewPhysicsBody(pb.shape, pb.size, pb.mass)
	c.offset = pb.offset
	c.collisionOrientation = pb.collisionOrientation
	c.massOrigin, c.hasMassOrigin = pb.massOrigin, pb.hasMassOrigin
	c.linearDamping, c.angularDamping = pb.linearDamping, pb.angularDamping
	c.gravity, c.hasGravity = pb.gravity, pb.hasGravity
	c.gravitySourceCategory = pb.gravitySourceCategory
	c.gravitySourceStrength = pb.gravitySourceStrength
	c.constraintAxis = pb.constraintAxis
	c.constraintDirection = pb.constraintDirection
	c.debugContacts = pb.debugContacts
	return c
}
