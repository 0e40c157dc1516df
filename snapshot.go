package simcore

import (
	"encoding/xml"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/oriumgames/simcore/engine"
)

type vec3XML struct {
	X float64 `xml:"x,attr"`
	Y float64 `xml:"y,attr"`
	Z float64 `xml:"z,attr"`
}

func toVec3XML(v mgl64.Vec3) vec3XML { return vec3XML{v[0], v[1], v[2]} }
func (v vec3XML) vec() mgl64.Vec3    { return mgl64.Vec3{v.X, v.Y, v.Z} }

type quatXML struct {
	W float64 `xml:"w,attr"`
	X float64 `xml:"x,attr"`
	Y float64 `xml:"y,attr"`
	Z float64 `xml:"z,attr"`
}

type physicsXML struct {
	Shape                 engine.ShapeType `xml:"shape,attr"`
	Mass                  float64          `xml:"mass,attr"`
	LinearDamping         float64          `xml:"linearDamping,attr"`
	GravitySourceCategory string           `xml:"gravitySource,attr,omitempty"`
	GravitySourceStrength float64          `xml:"gravitySourceStrength,attr,omitempty"`
	DebugContacts         bool             `xml:"debugContacts,attr,omitempty"`
	Size                  vec3XML          `xml:"size"`
	Offset                vec3XML          `xml:"offset"`
	CollisionOrientation  quatXML          `xml:"collisionOrientation"`
	AngularDamping        vec3XML          `xml:"angularDamping"`
	MassOrigin            *vec3XML         `xml:"massOrigin,omitempty"`
	Gravity               *vec3XML         `xml:"gravity,omitempty"`
	ConstraintAxis        vec3XML          `xml:"constraintAxis"`
	ConstraintDirection   vec3XML          `xml:"constraintDirection"`
}

type jointXML struct {
	Kind        JointKind `xml:"kind,attr"`
	Predecessor uint64    `xml:"predecessor,attr"`
	Target      uint64    `xml:"target,attr,omitempty"`
	Stiffness   float64   `xml:"stiffness,attr,omitempty"`
	Damping     float64   `xml:"damping,attr,omitempty"`
	RestLength  float64   `xml:"restLength,attr,omitempty"`
	Strength    float64   `xml:"strength,attr,omitempty"`
	Radius      float64   `xml:"radius,attr,omitempty"`
	Pivot       vec3XML   `xml:"pivot"`
	Pin         vec3XML   `xml:"pin"`
}

type compoundXML struct {
	Root uint64 `xml:"root,attr"`
}

// objectXML is the scene fragment of one game object.
type objectXML struct {
	XMLName     xml.Name     `xml:"gameObject"`
	ID          uint64       `xml:"id,attr"`
	PriorID     uint64       `xml:"priorId,attr,omitempty"`
	Name        string       `xml:"name,attr"`
	Category    string       `xml:"category,attr"`
	Dynamic     bool         `xml:"dynamic,attr"`
	Position    vec3XML      `xml:"transform>position"`
	Orientation quatXML      `xml:"transform>orientation"`
	Scale       vec3XML      `xml:"transform>scale"`
	Direction   vec3XML      `xml:"direction"`
	Physics     *physicsXML  `xml:"physics,omitempty"`
	Joint       *jointXML    `xml:"joint,omitempty"`
	Compound    *compoundXML `xml:"compound,omitempty"`
}

// SnapshotGameObject encodes the object and its components as an XML
// fragment. Behaviors and runtime state are not part of it.
func (r *Registry) SnapshotGameObject(id uint64) ([]byte, error) {
	obj := r.GameObject(id)
	if obj == nil {
		return nil, notFound(id)
	}
	t := obj.Transform()
	q := t.Orientation
	x := objectXML{
		ID:          obj.id,
		PriorID:     obj.priorID,
		Name:        obj.name,
		Category:    obj.category,
		Dynamic:     obj.dynamic,
		Position:    toVec3XML(t.Position),
		Orientation: quatXML{q.W, q.V[0], q.V[1], q.V[2]},
		Scale:       toVec3XML(t.Scale),
		Direction:   toVec3XML(obj.defaultDirection),
	}
	if pb := obj.physics; pb != nil {
		x.Physics = pb.snapshot()
	}
	if j := obj.joint; j != nil {
		x.Joint = &jointXML{
			Kind:        j.kind,
			Predecessor: j.predecessorID,
			Target:      j.targetID,
			Stiffness:   j.stiffness,
			Damping:     j.damping,
			RestLength:  j.restLength,
			Strength:    j.strength,
			Radius:      j.radius,
			Pivot:       toVec3XML(j.pivot),
			Pin:         toVec3XML(j.pin),
		}
	}
	if c := obj.compound; c != nil {
		x.Compound = &compoundXML{Root: c.rootID}
	}
	return xml.MarshalIndent(x, "", "  ")
}

func (pb *PhysicsBody) snapshot() *physicsXML {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	q := pb.collisionOrientation
	p := &physicsXML{
		Shape:                 pb.shape,
		Mass:                  pb.mass,
		LinearDamping:         pb.linearDamping,
		GravitySourceCategory: pb.gravitySourceCategory,
		GravitySourceStrength: pb.gravitySourceStrength,
		DebugContacts:         pb.debugContacts,
		Size:                  toVec3XML(pb.size),
		Offset:                toVec3XML(pb.offset),
		CollisionOrientation:  quatXML{q.W, q.V[0], q.V[1], q.V[2]},
		AngularDamping:        toVec3XML(pb.angularDamping),
		ConstraintAxis:        toVec3XML(pb.constraintAxis),
		ConstraintDirection:   toVec3XML(pb.constraintDirection),
	}
	if pb.hasMassOrigin {
		v := toVec3XML(pb.massOrigin)
		p.MassOrigin = &v
	}
	if pb.hasGravity {
		v := toVec3XML(pb.gravity)
		p.Gravity = &v
	}
	return p
}

// decodeSnapshot rebuilds an unregistered object from a fragment written by
// SnapshotGameObject. The id is kept.
func decodeSnapshot(data []byte) (*GameObject, error) {
	var x objectXML
	if err := xml.Unmarshal(data, &x); err != nil {
		return nil, wrapError(CodeInvalidState, "simcore: malformed game object snapshot", err)
	}

	obj := NewGameObject(x.Name, x.Category)
	obj.id = x.ID
	obj.priorID = x.PriorID
	obj.dynamic = x.Dynamic
	obj.defaultDirection = x.Direction.vec()
	obj.transform = Transform{
		Position:    x.Position.vec(),
		Orientation: mgl64.Quat{W: x.Orientation.W, V: mgl64.Vec3{x.Orientation.X, x.Orientation.Y, x.Orientation.Z}},
		Scale:       x.Scale.vec(),
	}

	if p := x.Physics; p != nil {
		pb := NewPhysicsBody(p.Shape, p.Size.vec(), p.Mass)
		pb.offset = p.Offset.vec()
		pb.collisionOrientation = mgl64.Quat{W: p.CollisionOrientation.W, V: mgl64.Vec3{p.CollisionOrientation.X, p.CollisionOrientation.Y, p.CollisionOrientation.Z}}
		pb.linearDamping = p.LinearDamping
		pb.angularDamping = p.AngularDamping.vec()
		pb.gravitySourceCategory = p.GravitySourceCategory
		pb.gravitySourceStrength = p.GravitySourceStrength
		pb.debugContacts = p.DebugContacts
		pb.constraintAxis = p.ConstraintAxis.vec()
		pb.constraintDirection = p.ConstraintDirection.vec()
		if p.MassOrigin != nil {
			pb.massOrigin, pb.hasMassOrigin = p.MassOrigin.vec(), true
		}
		if p.Gravity != nil {
			pb.gravity, pb.hasGravity = p.Gravity.vec(), true
		}
		obj.physics = pb
	}
	if j := x.Joint; j != nil {
		jc := NewJoint(j.Kind, j.Predecessor).Target(j.Target).Pivot(j.Pivot.vec()).Pin(j.Pin.vec())
		jc.Spring(j.Stiffness, j.Damping, j.RestLength).Attractor(j.Strength, j.Radius)
		obj.joint = jc
	}
	if c := x.Compound; c != nil {
		obj.compound = NewCompoundConnection(c.Root)
	}
	return obj, nil
}

// RestoreGameObject registers the object encoded in data under its recorded
// id.
func (r *Registry) RestoreGameObject(data []byte) (*GameObject, error) {
	obj, err := decodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	if err := r.Register(obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// deleteCommand is the undoable deletion recorded by DeleteGameObjectWithUndo.
type deleteCommand struct {
	r         *Registry
	id        uint64
	snapshot  []byte
	behaviors []Behavior
}

func (c *deleteCommand) Execute() error {
	if c.r.GameObject(c.id) == nil {
		return notFound(c.id)
	}
	c.r.DeleteGameObject(c.id)
	return nil
}

func (c *deleteCommand) Undo() error {
	if c.r.cancelDeletion(c.id) {
		return nil
	}
	obj, err := decodeSnapshot(c.snapshot)
	if err != nil {
		return err
	}
	for _, b := range c.behaviors {
		if cl, ok := b.(Cloner); ok {
			obj.behaviors = append(obj.behaviors, cl.Clone())
		}
	}
	if err := c.r.Register(obj); err != nil {
		return fmt.Errorf("restore game object %d: %w", c.id, err)
	}
	return nil
}

// DeleteGameObjectWithUndo deletes the object like DeleteGameObject and
// records the deletion on the process scheduler's undo stack. An object whose
// deletion was already recorded in this run is deleted without a new record.
func (r *Registry) DeleteGameObjectWithUndo(id uint64) error {
	obj := r.GameObject(id)
	if obj == nil {
		return notFound(id)
	}

	r.mu.Lock()
	_, guarded := r.undoGuard[id]
	r.undoGuard[id] = struct{}{}
	r.mu.Unlock()
	if guarded {
		r.DeleteGameObject(id)
		return nil
	}

	data, err := r.SnapshotGameObject(id)
	if err != nil {
		return err
	}
	return r.procs.Execute(&deleteCommand{r: r, id: id, snapshot: data, behaviors: obj.Behaviors()})
}

// cancelDeletion withdraws a deferred deletion that has not run yet.
func (r *Registry) cancelDeletion(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelDeletionLocked(id)
}

func (r *Registry) cancelDeletionLocked(id uint64) bool {
	if _, ok := r.pendingDelete[id]; !ok {
		return false
	}
	delete(r.pendingDelete, id)
	for i, pid := range r.deleteOrder {
		if pid == id {
			r.deleteOrder = append(r.deleteOrder[:i], r.deleteOrder[i+1:]...)
			break
		}
	}
	return true
}
