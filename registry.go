package simcore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oriumgames/simcore/engine"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Lookup is the read-only view of a registry handed to components and
// behaviors.
type Lookup interface {
	GameObject(id uint64) *GameObject
	GameObjectsByCategoryID(categoryIDs uint32) []*GameObject
	CategoryID(name string) uint32
	Joint(id uint64) *JointComponent
}

// Registry owns every game object of a simulation session.
// Multiple registries can coexist, each bound to its own engine world.
type Registry struct {
	session uuid.UUID
	world   engine.World
	cfg     Config
	log     *slog.Logger
	render  RenderQueue
	debug   DebugDrawer
	tracer  trace.Tracer
	events  *EventBus
	procs   *ProcessScheduler
	env     *env

	// mu protects every field below
	mu            sync.RWMutex
	objects       map[uint64]*GameObject
	byName        map[string]uint64
	categories    categoryTable
	joints        map[uint64]*JointComponent
	compounds     map[uint64]*CompoundConnection
	roundRobin    map[uint32]int
	pendingDelete map[uint64]struct{}
	deleteOrder   []uint64
	undoGuard     map[uint64]struct{}
	triggers      map[TriggerHandle]*trigger
	nextID        uint64
	mainID        uint64
	running       bool
}

var _ Lookup = (*Registry)(nil)

// Option configures a Registry.
type Option func(*Registry)

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(r *Registry) { r.cfg = cfg }
}

// WithLogger sets the logger. The session id is added to every record.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithRenderQueue sets the queue collisions are created on.
func WithRenderQueue(q RenderQueue) Option {
	return func(r *Registry) { r.render = q }
}

// WithDebugDrawer sets where contact debug lines go.
func WithDebugDrawer(d DebugDrawer) Option {
	return func(r *Registry) { r.debug = d }
}

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Registry) { r.tracer = tp.Tracer(tracerName) }
}

// NewRegistry creates a registry driving world.
func NewRegistry(world engine.World, opts ...Option) *Registry {
	r := &Registry{
		session:       uuid.New(),
		world:         world,
		cfg:           DefaultConfig(),
		render:        InlineRenderQueue{},
		debug:         noopDrawer{},
		events:        &EventBus{},
		objects:       make(map[uint64]*GameObject),
		byName:        make(map[string]uint64),
		categories:    newCategoryTable(),
		joints:        make(map[uint64]*JointComponent),
		compounds:     make(map[uint64]*CompoundConnection),
		roundRobin:    make(map[uint32]int),
		pendingDelete: make(map[uint64]struct{}),
		undoGuard:     make(map[uint64]struct{}),
		triggers:      make(map[TriggerHandle]*trigger),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	r.log = r.log.With("session", r.session.String())
	if r.tracer == nil {
		r.tracer = defaultTracer()
	}
	r.procs = NewProcessScheduler(r.log, 0)
	r.env = &env{
		world:   world,
		render:  r.render,
		debug:   r.debug,
		log:     r.log,
		cfg:     r.cfg,
		objects: r,
		rewire:  r.rewireJoints,
	}
	return r
}

// Session returns the id of this registry.
func (r *Registry) Session() uuid.UUID { return r.session }

// Config returns the configuration the registry was created with.
func (r *Registry) Config() Config { return r.cfg }

// World returns the engine world bodies are created in.
func (r *Registry) World() engine.World { return r.world }

// Events returns the bus registry notifications are published on.
func (r *Registry) Events() *EventBus { return r.events }

// Processes returns the process scheduler advanced by Update.
func (r *Registry) Processes() *ProcessScheduler { return r.procs }

// Running reports whether Start was called without a matching Stop.
func (r *Registry) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Register inserts obj, assigns its category bit and creates its components.
// A configuration error (category exhaustion, invalid shape) aborts the
// registration. A body that cannot be created for another reason is logged and
// the object stays registered without one.
func (r *Registry) Register(obj *GameObject) error {
	if r.objects == nil {
		panic("simcore: Register on a Registry not created by NewRegistry")
	}
	if obj == nil {
		return withMetadata(CodeInvalidState, "simcore: nil game object", nil)
	}

	r.mu.Lock()
	if obj.id != 0 {
		if _, ok := r.objects[obj.id]; ok {
			r.mu.Unlock()
			return withMetadata(CodeAlreadyRegistered, fmt.Sprintf("simcore: game object %d already registered", obj.id),
				map[string]string{"id": fmt.Sprint(obj.id)})
		}
	}
	catID, err := r.categories.register(obj.category)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if obj.id == 0 {
		r.nextID++
		obj.id = r.nextID
	} else if obj.id > r.nextID {
		r.nextID = obj.id
	}
	obj.categoryID = catID
	r.objects[obj.id] = obj
	if _, taken := r.byName[obj.name]; !taken && obj.name != "" {
		r.byName[obj.name] = obj.id
	}
	running := r.running
	r.mu.Unlock()

	if obj.joint != nil {
		obj.joint.owner = obj.id
	}
	if obj.compound != nil {
		obj.compound.owner = obj.id
	}
	if pb := obj.physics; pb != nil {
		pb.attach(obj.id, r.env)
		if err := pb.postInit(); err != nil {
			if CodeOf(err) == CodeInvalidShape {
				r.unregister(obj)
				return err
			}
			r.log.Error("simcore: physics body creation failed", "id", obj.id, "name", obj.name, "error", err)
		}
	}

	if running {
		obj.recordInitial()
		r.connectObject(obj)
	}

	r.log.Debug("simcore: registered game object", "id", obj.id, "name", obj.name, "category", obj.category)
	Publish(r.events, GameObjectRegistered{ID: obj.id, Name: obj.name, Category: obj.category})
	return nil
}

// unregister rolls back a failed Register.
func (r *Registry) unregister(obj *GameObject) {
	r.mu.Lock()
	delete(r.objects, obj.id)
	if r.byName[obj.name] == obj.id {
		delete(r.byName, obj.name)
	}
	r.freeCategoryLocked(obj.id, obj.category)
	r.mu.Unlock()
	if obj.physics != nil {
		obj.physics.destroy()
	}
}

// RegisterCategory makes sure name has a bit and returns it.
func (r *Registry) RegisterCategory(name string) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.categories.register(name)
}

// CategoryID returns the bit of name, or 0 if it was never registered.
func (r *Registry) CategoryID(name string) uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.categories.id(name)
}

// CategoryIDs evaluates a category expression such as "All-Player+Enemy".
func (r *Registry) CategoryIDs(expr string) (uint32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.categories.parse(expr)
}

// Categories returns the names of all occupied categories.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.categories.names()
}

// LiveCategoryCount returns the number of occupied category bits.
func (r *Registry) LiveCategoryCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.categories.live()
}

// ChangeCategory moves the object to another category and rewrites the body's
// collision filter and material group.
func (r *Registry) ChangeCategory(id uint64, category string) error {
	if category == "" {
		category = DefaultCategory
	}
	r.mu.Lock()
	obj, ok := r.objects[id]
	if !ok {
		r.mu.Unlock()
		return notFound(id)
	}
	if obj.category == category {
		r.mu.Unlock()
		return nil
	}
	catID, err := r.categories.register(category)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	oldCategory := obj.category
	obj.category = category
	obj.categoryID = catID
	freed := r.freeCategoryLocked(id, oldCategory)
	r.mu.Unlock()

	if obj.physics != nil {
		obj.physics.applyCategory(catID)
	}
	if freed != nil {
		Publish(r.events, *freed)
	}
	return nil
}

// FreeCategoryFromGameObject marks the object's category unoccupied when no
// other live object uses it.
func (r *Registry) FreeCategoryFromGameObject(obj *GameObject) {
	r.mu.Lock()
	freed := r.freeCategoryLocked(obj.id, obj.category)
	r.mu.Unlock()
	if freed != nil {
		Publish(r.events, *freed)
	}
}

// freeCategoryLocked frees category unless an object other than id uses it.
func (r *Registry) freeCategoryLocked(id uint64, category string) *CategoryFreed {
	for oid, other := range r.objects {
		if oid != id && other.category == category {
			return nil
		}
	}
	bit, ok := r.categories.free(category)
	if !ok {
		return nil
	}
	return &CategoryFreed{Name: category, ID: bit}
}

// GameObject returns the live object with id, or nil.
func (r *Registry) GameObject(id uint64) *GameObject {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.objects[id]
}

// GameObjectByName returns the first registered live object called name.
func (r *Registry) GameObjectByName(name string) *GameObject {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.byName[name]; ok {
		return r.objects[id]
	}
	for _, obj := range r.objects {
		if obj.name == name {
			return obj
		}
	}
	return nil
}

// AllGameObjectIDs returns every live id in ascending order.
func (r *Registry) AllGameObjectIDs() []uint64 {
	r.mu.RLock()
	ids := make([]uint64, 0, len(r.objects))
	for id := range r.objects {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// GameObjectsByCategoryID returns the objects whose category bit is in
// categoryIDs, ordered by id.
func (r *Registry) GameObjectsByCategoryID(categoryIDs uint32) []*GameObject {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byCategoryLocked(categoryIDs)
}

func (r *Registry) byCategoryLocked(categoryIDs uint32) []*GameObject {
	var out []*GameObject
	for _, obj := range r.objects {
		if obj.categoryID&categoryIDs != 0 {
			out = append(out, obj)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// NextGameObject cycles through the objects matching categoryIDs. The cursor
// of each mask wraps around. It returns nil when nothing matches.
func (r *Registry) NextGameObject(categoryIDs uint32) *GameObject {
	r.mu.Lock()
	defer r.mu.Unlock()
	matches := r.byCategoryLocked(categoryIDs)
	if len(matches) == 0 {
		delete(r.roundRobin, categoryIDs)
		return nil
	}
	i := r.roundRobin[categoryIDs] % len(matches)
	r.roundRobin[categoryIDs] = (i + 1) % len(matches)
	return matches[i]
}

// Joint returns the joint component indexed for id since Start.
func (r *Registry) Joint(id uint64) *JointComponent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.joints[id]
}

// Compound returns the compound connection indexed for id since Start.
func (r *Registry) Compound(id uint64) *CompoundConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.compounds[id]
}

// PlayerController returns the player controller behavior of id, or nil.
func (r *Registry) PlayerController(id uint64) Behavior {
	obj := r.GameObject(id)
	if obj == nil {
		return nil
	}
	return obj.Behavior(KindPlayerController)
}

// SetMainGameObject marks the object connected last by Start.
func (r *Registry) SetMainGameObject(id uint64) {
	r.mu.Lock()
	r.mainID = id
	r.mu.Unlock()
}

// MainGameObject returns the main object id, or 0.
func (r *Registry) MainGameObject() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mainID
}

// DeleteGameObject schedules the object for deletion after the current
// frame and publishes GameObjectDeleting. Repeated calls before the deletion
// pass do nothing.
func (r *Registry) DeleteGameObject(id uint64) {
	r.mu.Lock()
	if _, ok := r.objects[id]; !ok {
		r.mu.Unlock()
		r.log.Warn("simcore: delete of unknown game object", "id", id)
		return
	}
	if _, pending := r.pendingDelete[id]; pending {
		r.mu.Unlock()
		return
	}
	r.pendingDelete[id] = struct{}{}
	r.deleteOrder = append(r.deleteOrder, id)
	r.mu.Unlock()

	Publish(r.events, GameObjectDeleting{ID: id})
}

// PendingDeletion reports whether id waits for the deletion pass.
func (r *Registry) PendingDeletion(id uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pendingDelete[id]
	return ok
}

// DeleteGameObjectDelayed deletes the object once delay of simulated time
// has passed.
func (r *Registry) DeleteGameObjectDelayed(id uint64, delay time.Duration) *ProcessHandle {
	return r.procs.ScheduleFunc(fmt.Sprintf("delete %d", id), func() {
		r.DeleteGameObject(id)
	}, delay)
}

// DeleteGameObjectImmediately tears the object down now. It must not be called
// from inside Update.
func (r *Registry) DeleteGameObjectImmediately(id uint64) error {
	obj := r.GameObject(id)
	if obj == nil {
		return notFound(id)
	}
	r.detachFromCompound(obj)

	r.mu.Lock()
	if r.objects[id] != obj {
		r.mu.Unlock()
		return notFound(id)
	}
	delete(r.objects, id)
	if r.byName[obj.name] == id {
		delete(r.byName, obj.name)
	}
	r.cancelDeletionLocked(id)
	if r.mainID == id {
		r.mainID = 0
	}
	delete(r.joints, id)
	delete(r.compounds, id)
	freed := r.freeCategoryLocked(id, obj.category)
	r.mu.Unlock()

	r.invalidateJointLinks(id, make(map[uint64]bool))
	if obj.joint != nil {
		obj.joint.release(r.world)
	}

	if obj.physics != nil {
		obj.physics.destroy()
	}
	for _, b := range obj.behaviors {
		if d, ok := b.(Destroyer); ok {
			d.Destroy(obj)
		}
	}

	r.log.Debug("simcore: deleted game object", "id", id, "name", obj.name)
	if freed != nil {
		Publish(r.events, *freed)
	}
	Publish(r.events, GameObjectDeleted{ID: id, Category: obj.category})
	return nil
}

// detachFromCompound splits a deleted object off its compound, or dissolves
// the compound it is the root of.
func (r *Registry) detachFromCompound(obj *GameObject) {
	pb := obj.physics
	if pb == nil {
		return
	}
	if children := pb.CompoundChildren(); len(children) > 0 {
		if err := pb.DestroyCompoundBody(children); err != nil {
			r.log.Error("simcore: dissolving compound failed", "root", obj.id, "error", err)
		}
		return
	}
	if rootID := pb.CompoundRoot(); rootID != 0 {
		if root := r.GameObject(rootID); root != nil && root.physics != nil {
			if err := root.physics.removeCompoundChild(pb); err != nil {
				r.log.Error("simcore: removing compound child failed", "root", rootID, "child", obj.id, "error", err)
			}
		}
	}
}

// flushDeletions runs the deferred deletion pass.
func (r *Registry) flushDeletions() {
	r.mu.Lock()
	order := r.deleteOrder
	r.deleteOrder = nil
	r.mu.Unlock()

	for _, id := range order {
		if err := r.DeleteGameObjectImmediately(id); err != nil {
			r.log.Warn("simcore: deferred deletion skipped", "id", id, "error", err)
		}
	}
}

// Clone registers a copy of the object under a new id. The copy records the
// original id as its prior id so joint chains can re-link to it.
func (r *Registry) Clone(id uint64, name string) (*GameObject, error) {
	src := r.GameObject(id)
	if src == nil {
		return nil, notFound(id)
	}
	if name == "" {
		name = src.name
	}

	obj := NewGameObject(name, src.category)
	obj.priorID = id
	obj.dynamic = src.dynamic
	obj.defaultDirection = src.defaultDirection
	obj.transform = src.Transform()
	if src.physics != nil {
		obj.physics = src.physics.clone()
	}
	if src.joint != nil {
		obj.joint = src.joint.clone()
	}
	if src.compound != nil {
		obj.compound = NewCompoundConnection(src.compound.rootID)
	}
	for _, b := range src.behaviors {
		if c, ok := b.(Cloner); ok {
			obj.behaviors = append(obj.behaviors, c.Clone())
		}
	}

	if err := r.Register(obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// snapshotObjects returns the live objects ordered by id.
func (r *Registry) snapshotObjects() []*GameObject {
	r.mu.RLock()
	out := make([]*GameObject, 0, len(r.objects))
	for _, obj := range r.objects {
		out = append(out, obj)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Start connects every object, the main object last, then builds compounds,
// joints and vehicles.
func (r *Registry) Start(ctx context.Context) error {
	ctx, span := r.startSpan(ctx, "Registry.Start")
	defer span.End()

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return withMetadata(CodeInvalidState, "simcore: registry already started", nil)
	}
	r.running = true
	mainID := r.mainID
	r.mu.Unlock()

	if mainID == 0 && r.cfg.MainObjectName != "" {
		if obj := r.GameObjectByName(r.cfg.MainObjectName); obj != nil {
			mainID = obj.id
		}
	}

	objects := r.snapshotObjects()
	span.SetAttributes(attribute.Int("simcore.objects", len(objects)))

	var main *GameObject
	for _, obj := range objects {
		obj.recordInitial()
		if obj.id == mainID {
			main = obj
			continue
		}
		r.connectObject(obj)
	}

	r.connectCompoundCollisions(ctx)
	r.connectJoints(ctx)
	r.connectVehicles(objects)

	if main != nil {
		r.connectObject(main)
	}

	r.log.Debug("simcore: simulation started", "objects", len(objects))
	return nil
}

// connectObject indexes the object's joint and compound components and
// connects its body and behaviors.
func (r *Registry) connectObject(obj *GameObject) {
	r.mu.Lock()
	if obj.joint != nil {
		r.joints[obj.id] = obj.joint
	}
	if obj.compound != nil {
		r.compounds[obj.id] = obj.compound
	}
	r.mu.Unlock()

	if obj.physics != nil {
		if err := obj.physics.connect(); err != nil {
			r.log.Error("simcore: physics body connect failed", "id", obj.id, "error", err)
		}
	}
	for _, b := range obj.behaviors {
		if c, ok := b.(Connectable); ok {
			if err := c.Connect(obj); err != nil {
				r.log.Error("simcore: behavior connect failed", "id", obj.id, "kind", b.Kind(), "error", err)
			}
		}
	}
}

func (r *Registry) connectVehicles(objects []*GameObject) {
	for _, obj := range objects {
		for _, b := range obj.behaviors {
			if b.Kind() != KindVehicle {
				continue
			}
			v, ok := b.(VehicleConnector)
			if !ok {
				continue
			}
			if err := v.ConnectVehicle(obj, r); err != nil {
				r.log.Error("simcore: vehicle connect failed", "id", obj.id, "error", err)
			}
		}
	}
}

// Stop disconnects everything, restores every object to its transform at
// Start and recreates the bodies there.
func (r *Registry) Stop(ctx context.Context) {
	_, span := r.startSpan(ctx, "Registry.Stop")
	defer span.End()

	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.flushDeletions()

	objects := r.snapshotObjects()
	for _, obj := range objects {
		if obj.physics == nil {
			continue
		}
		if children := obj.physics.CompoundChildren(); len(children) > 0 {
			if err := obj.physics.DestroyCompoundBody(children); err != nil {
				r.log.Error("simcore: dissolving compound failed", "root", obj.id, "error", err)
			}
		}
	}

	r.mu.Lock()
	joints := make([]*JointComponent, 0, len(r.joints))
	for _, j := range r.joints {
		joints = append(joints, j)
	}
	r.joints = make(map[uint64]*JointComponent)
	r.compounds = make(map[uint64]*CompoundConnection)
	r.undoGuard = make(map[uint64]struct{})
	r.mu.Unlock()

	for _, j := range joints {
		j.release(r.world)
	}

	for _, obj := range objects {
		for _, b := range obj.behaviors {
			if c, ok := b.(Connectable); ok {
				c.Disconnect(obj)
			}
		}
		if obj.compound != nil {
			obj.compound.takeChildren()
		}
		if obj.physics != nil {
			obj.physics.disconnect()
		}
		obj.restoreInitial()
		if obj.physics != nil {
			if err := obj.physics.CreateDynamicBody(); err != nil {
				r.log.Error("simcore: physics body recreation failed", "id", obj.id, "error", err)
			}
		}
	}

	span.SetAttributes(attribute.Int("simcore.objects", len(objects)))
	r.log.Debug("simcore: simulation stopped", "objects", len(objects))
}

// Update runs one frame: the update pass, the late-update pass, deferred
// deletions, due processes and, when their interval elapsed, triggers.
func (r *Registry) Update(dt time.Duration) {
	objects := r.snapshotObjects()

	for _, obj := range objects {
		if obj.physics != nil {
			obj.physics.update(obj)
		}
		for _, b := range obj.behaviors {
			if u, ok := b.(Updater); ok {
				u.Update(obj, dt)
			}
		}
	}
	for _, obj := range objects {
		if obj.physics != nil {
			obj.physics.lateUpdate(obj)
		}
		for _, b := range obj.behaviors {
			if u, ok := b.(LateUpdater); ok {
				u.LateUpdate(obj, dt)
			}
		}
	}

	r.flushDeletions()
	r.procs.Advance(dt)
	r.updateTriggers(dt)
}
