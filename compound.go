package simcore

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/oriumgames/simcore/engine"
)

// CompoundConnection merges its owner's collision into the compound body of a
// root object. A connection with root id 0 is itself a root.
type CompoundConnection struct {
	owner  uint64
	rootID uint64

	mu       sync.Mutex
	children []*PhysicsBody
}

// NewCompoundConnection creates a connection to rootID, or a root when rootID is 0.
func NewCompoundConnection(rootID uint64) *CompoundConnection {
	return &CompoundConnection{rootID: rootID}
}

// Owner returns the id of the object holding the connection.
func (c *CompoundConnection) Owner() uint64 { return c.owner }

// RootID returns the declared root, 0 for a root itself.
func (c *CompoundConnection) RootID() uint64 { return c.rootID }

// IsRoot reports whether the connection declares no root.
func (c *CompoundConnection) IsRoot() bool { return c.rootID == 0 }

// Children returns the physics bodies accumulated by the last
// ConnectCompoundCollisions.
func (c *CompoundConnection) Children() []*PhysicsBody {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*PhysicsBody(nil), c.children...)
}

func (c *CompoundConnection) addChild(pb *PhysicsBody) {
	c.mu.Lock()
	c.children = append(c.children, pb)
	c.mu.Unlock()
}

func (c *CompoundConnection) takeChildren() []*PhysicsBody {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.children
	c.children = nil
	return out
}

// CompoundChildren returns the bodies merged into this root.
func (pb *PhysicsBody) CompoundChildren() []*PhysicsBody {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return append([]*PhysicsBody(nil), pb.compoundChildren...)
}

// CreateCompoundBody merges children into one body on pb. Each child object is
// parented to the root keeping its world transform and loses its own body. The
// compound collision is the root's primitive plus every child's primitive in
// root space, the mass is the sum, and the centre of mass is the offsets
// weighted by each part's bounding volume.
func (pb *PhysicsBody) CreateCompoundBody(children []*PhysicsBody) error {
	pb.mu.Lock()
	err := pb.createCompoundLocked(children)
	pb.mu.Unlock()
	// the root's body is replaced on success and on a failed build alike
	if pb.env != nil && pb.env.rewire != nil {
		pb.env.rewire(pb.owner)
	}
	return err
}

// DestroyCompoundBody is the inverse of CreateCompoundBody. Children get their
// parent and their own body back, and the root gets an individual body again.
// Children not listed stay merged in a rebuilt compound.
func (pb *PhysicsBody) DestroyCompoundBody(children []*PhysicsBody) error {
	pb.mu.Lock()
	err := pb.destroyCompoundLocked(children)
	pb.mu.Unlock()
	if err == nil && pb.env.rewire != nil {
		pb.env.rewire(pb.owner)
	}
	return err
}

func (pb *PhysicsBody) rebuildCompound(children []*PhysicsBody) error {
	pb.mu.Lock()
	err := pb.destroyCompoundLocked(children)
	if err == nil {
		err = pb.createCompoundLocked(children)
	}
	pb.mu.Unlock()
	if err == nil && pb.env.rewire != nil {
		pb.env.rewire(pb.owner)
	}
	return err
}

// removeCompoundChild splits child off and rebuilds the compound from the rest.
func (pb *PhysicsBody) removeCompoundChild(child *PhysicsBody) error {
	pb.mu.Lock()
	err := pb.destroyCompoundLocked([]*PhysicsBody{child})
	pb.mu.Unlock()
	if err == nil && pb.env.rewire != nil {
		pb.env.rewire(pb.owner)
	}
	return err
}

func (pb *PhysicsBody) createCompoundLocked(children []*PhysicsBody) error {
	if pb.env == nil || pb.state == StateDestroyed {
		return withMetadata(CodeInvalidState, "simcore: compound root is not usable", nil)
	}
	rootObj := pb.object()
	if rootObj == nil {
		return notFound(pb.owner)
	}
	rootWorld := rootObj.Transform().normalized()

	rootCol, err := pb.buildCollision(pb.collisionDescLocked(rootWorld.Scale))
	if err != nil {
		return err
	}

	parts := []engine.CompoundPart{{Collision: rootCol}}
	mass := pb.massLocked(rootObj)
	totalVolume := rootCol.Volume()
	weighted := mgl64.Vec3{}
	merged := make([]*PhysicsBody, 0, len(children))

	for _, c := range children {
		if c == nil || c == pb {
			continue
		}
		part, childMass, ok := pb.mergeChild(c, rootWorld)
		if !ok {
			continue
		}
		parts = append(parts, part)
		mass += childMass
		vol := part.Collision.Volume()
		totalVolume += vol
		weighted = weighted.Add(part.Offset.Mul(vol))
		merged = append(merged, c)
	}

	var compound engine.Collision
	err = pb.env.render.EnqueueAndWait(func() error {
		col, err := pb.env.world.CreateCompoundCollision(parts)
		if err != nil {
			return err
		}
		compound = col
		return nil
	})
	if err != nil {
		pb.restoreChildren(merged, rootWorld)
		return classifyCreateError(pb.owner, err)
	}

	com := weighted
	if totalVolume > 0 {
		com = weighted.Mul(1 / totalVolume)
	}
	if pb.hasMassOrigin {
		com = pb.massOrigin
	}

	pb.destroyBodyLocked()
	if err := pb.createBodyLocked(compound, rootObj, mass, com); err != nil {
		pb.restoreChildren(merged, rootWorld)
		if rerr := pb.createDynamicBodyLocked(); rerr != nil {
			pb.logger().Error("simcore: compound root lost its body", "root", pb.owner, "error", rerr)
		}
		return err
	}
	pb.compoundChildren = merged
	return nil
}

// mergeChild parents c to the root and releases its body. It returns c's
// primitive placed in root space.
func (pb *PhysicsBody) mergeChild(c *PhysicsBody, rootWorld Transform) (engine.CompoundPart, float64, bool) {
	obj := c.object()
	if obj == nil {
		return engine.CompoundPart{}, 0, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDestroyed || (c.compoundRoot != 0 && c.compoundRoot != pb.owner) {
		return engine.CompoundPart{}, 0, false
	}

	col, err := c.buildCollision(c.collisionDescLocked(obj.Scale()))
	if err != nil {
		pb.logger().Error("simcore: compound child collision failed", "root", pb.owner, "child", c.owner, "error", err)
		return engine.CompoundPart{}, 0, false
	}

	if c.compoundRoot == 0 {
		c.savedParent = obj.reparent(pb.owner, rootWorld)
	}
	local := obj.localTransform()
	c.destroyBodyLocked()
	c.compoundRoot = pb.owner

	return engine.CompoundPart{
		Collision:   col,
		Offset:      mulElem(local.Position, rootWorld.Scale),
		Orientation: local.Orientation,
	}, c.massLocked(obj), true
}

// restoreChildren undoes mergeChild for a failed compound build.
func (pb *PhysicsBody) restoreChildren(children []*PhysicsBody, rootWorld Transform) {
	connected := pb.state == StateConnected
	for _, c := range children {
		pb.splitChild(c, rootWorld, connected)
	}
}

func (pb *PhysicsBody) destroyCompoundLocked(children []*PhysicsBody) error {
	if pb.env == nil {
		return withMetadata(CodeInvalidState, "simcore: compound root is not attached", nil)
	}
	rootObj := pb.object()
	if rootObj == nil {
		return notFound(pb.owner)
	}
	rootWorld := rootObj.Transform().normalized()
	connected := pb.state == StateConnected

	split := make(map[*PhysicsBody]bool, len(children))
	for _, c := range children {
		if c == nil || c == pb {
			continue
		}
		if pb.splitChild(c, rootWorld, connected) {
			split[c] = true
		}
	}

	remaining := make([]*PhysicsBody, 0, len(pb.compoundChildren))
	for _, c := range pb.compoundChildren {
		if !split[c] {
			remaining = append(remaining, c)
		}
	}
	pb.compoundChildren = remaining

	if err := pb.createDynamicBodyLocked(); err != nil {
		return err
	}
	if len(remaining) > 0 {
		return pb.createCompoundLocked(remaining)
	}
	return nil
}

// splitChild gives c its parent and body back. It reports whether c was merged
// into pb.
func (pb *PhysicsBody) splitChild(c *PhysicsBody, rootWorld Transform, connect bool) bool {
	obj := c.object()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.compoundRoot != pb.owner {
		return false
	}

	if obj != nil {
		obj.followParent(rootWorld)
		parentWorld := IdentityTransform()
		if c.savedParent != 0 {
			if p := c.env.objects.GameObject(c.savedParent); p != nil {
				parentWorld = p.Transform()
			}
		}
		obj.reparent(c.savedParent, parentWorld)
	}
	c.compoundRoot = 0
	c.savedParent = 0

	if c.state == StateDestroyed {
		return true
	}
	if err := c.createDynamicBodyLocked(); err != nil {
		pb.logger().Error("simcore: compound child body failed", "root", pb.owner, "child", c.owner, "error", err)
		return true
	}
	if connect {
		if err := c.connectLocked(); err != nil {
			pb.logger().Error("simcore: compound child connect failed", "child", c.owner, "error", err)
		}
	}
	return true
}
