package simcore

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
)

// ConnectJoints links every indexed joint chain. Roots are linked first, then
// each node once its predecessor is linked. Unresolved references are logged
// and returned; the rest of the graph still links.
func (r *Registry) ConnectJoints() []error {
	return r.connectJoints(context.Background())
}

// ConnectCompoundCollisions merges every indexed compound child into its root
// and builds one body per root. Unresolved roots are logged and returned.
func (r *Registry) ConnectCompoundCollisions() []error {
	return r.connectCompoundCollisions(context.Background())
}

func (r *Registry) connectJoints(ctx context.Context) []error {
	_, span := r.startSpan(ctx, "Registry.connectJoints")
	defer span.End()

	r.mu.RLock()
	joints := make([]*JointComponent, 0, len(r.joints))
	for _, j := range r.joints {
		joints = append(joints, j)
	}
	r.mu.RUnlock()
	sort.Slice(joints, func(i, k int) bool { return joints[i].owner < joints[k].owner })

	var reports []error
	var pending []*JointComponent
	for _, j := range joints {
		if !j.IsRoot() {
			pending = append(pending, j)
			continue
		}
		if err := r.linkRoot(j); err != nil {
			reports = append(reports, err)
		}
	}

	// Each pass links the nodes whose predecessor is linked or is not a joint.
	for len(pending) > 0 {
		var next []*JointComponent
		progressed := false
		for _, j := range pending {
			pred := r.resolveRef(j.predecessorID)
			if pred == nil {
				reports = append(reports, r.unresolved(CodeUnresolvedPredecessor, j, j.predecessorID))
				progressed = true
				continue
			}
			if pj := r.Joint(pred.id); pj != nil && !pj.Linked() && containsJoint(pending, pj) {
				next = append(next, j)
				continue
			}
			progressed = true
			if err := r.linkNode(j, pred); err != nil {
				reports = append(reports, err)
			}
		}
		if !progressed {
			// a cycle: nothing left can resolve
			for _, j := range next {
				reports = append(reports, r.unresolved(CodeUnresolvedPredecessor, j, j.predecessorID))
			}
			break
		}
		pending = next
	}

	span.SetAttributes(
		attribute.Int("simcore.joints", len(joints)),
		attribute.Int("simcore.unresolved", len(reports)),
	)
	return reports
}

func containsJoint(list []*JointComponent, j *JointComponent) bool {
	for _, o := range list {
		if o == j {
			return true
		}
	}
	return false
}

func (r *Registry) linkRoot(j *JointComponent) error {
	own := r.jointBody(j.owner)
	if own == nil || own.Body() == nil {
		r.log.Warn("simcore: joint root has no body", "id", j.owner)
		return nil
	}
	if err := j.link(r.world, own, nil, 0); err != nil {
		r.log.Error("simcore: joint root creation failed", "id", j.owner, "error", err)
		return err
	}
	return r.linkJointTarget(j)
}

// linkNode links j to the resolved predecessor object. The engine joint is
// only created when the predecessor has a body.
func (r *Registry) linkNode(j *JointComponent, pred *GameObject) error {
	own := r.jointBody(j.owner)
	other := r.jointBody(pred.id)
	if own == nil || own.Body() == nil {
		r.log.Warn("simcore: joint node has no body", "id", j.owner)
		return nil
	}
	if other == nil || other.Body() == nil {
		r.log.Warn("simcore: joint predecessor has no body", "id", j.owner, "predecessor", pred.id)
		return nil
	}
	if err := j.link(r.world, own, other, pred.id); err != nil {
		r.log.Error("simcore: joint creation failed", "id", j.owner, "predecessor", pred.id, "error", err)
		return err
	}
	return r.linkJointTarget(j)
}

func (r *Registry) linkJointTarget(j *JointComponent) error {
	if j.targetID == 0 {
		return nil
	}
	target := r.resolveRef(j.targetID)
	if target == nil {
		return r.unresolved(CodeUnresolvedTarget, j, j.targetID)
	}
	own := r.jointBody(j.owner)
	other := r.jointBody(target.id)
	if other == nil || other.Body() == nil {
		r.log.Warn("simcore: joint target has no body", "id", j.owner, "target", target.id)
		return nil
	}
	if err := j.linkTarget(r.world, own, other, target.id); err != nil {
		r.log.Error("simcore: joint target creation failed", "id", j.owner, "target", target.id, "error", err)
		return err
	}
	return nil
}

func (r *Registry) unresolved(code Code, j *JointComponent, ref uint64) error {
	err := withMetadata(code, fmt.Sprintf("simcore: joint %d references missing game object %d", j.owner, ref),
		map[string]string{"joint": fmt.Sprint(j.owner), "ref": fmt.Sprint(ref)})
	r.log.Warn("simcore: unresolved joint reference", "id", j.owner, "ref", ref, "code", code)
	return err
}

// resolveRef finds a live object by id, falling back to the clone that records
// id as its prior id.
func (r *Registry) resolveRef(id uint64) *GameObject {
	if id == 0 {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if obj, ok := r.objects[id]; ok {
		return obj
	}
	var match *GameObject
	for _, obj := range r.objects {
		if obj.priorID == id && (match == nil || obj.id < match.id) {
			match = obj
		}
	}
	return match
}

// jointBody returns the component holding the body that represents id. A
// compound child is represented by its root.
func (r *Registry) jointBody(id uint64) *PhysicsBody {
	obj := r.GameObject(id)
	if obj == nil || obj.physics == nil {
		return nil
	}
	if root := obj.physics.CompoundRoot(); root != 0 {
		if ro := r.GameObject(root); ro != nil {
			return ro.physics
		}
	}
	return obj.physics
}

// bodyOwner is the object whose body represents id.
func (r *Registry) bodyOwner(id uint64) uint64 {
	if obj := r.GameObject(id); obj != nil && obj.physics != nil {
		if root := obj.physics.CompoundRoot(); root != 0 {
			return root
		}
	}
	return id
}

// rewireJoints recreates the linked joints that touch the body of id.
func (r *Registry) rewireJoints(id uint64) {
	r.mu.RLock()
	joints := make([]*JointComponent, 0, len(r.joints))
	for _, j := range r.joints {
		joints = append(joints, j)
	}
	r.mu.RUnlock()

	for _, j := range joints {
		if !j.Linked() {
			continue
		}
		pred, target := j.ResolvedPredecessor(), j.ResolvedTarget()
		touches := r.bodyOwner(j.owner) == id ||
			(pred != 0 && r.bodyOwner(pred) == id) ||
			(target != 0 && r.bodyOwner(target) == id)
		if !touches {
			continue
		}
		if pred == 0 {
			r.linkRoot(j)
			continue
		}
		if obj := r.GameObject(pred); obj != nil {
			r.linkNode(j, obj)
		}
	}
}

// invalidateJointLinks releases every joint linked to id, then everything
// linked to those, so no engine joint points at a removed body.
func (r *Registry) invalidateJointLinks(id uint64, visited map[uint64]bool) {
	if visited[id] {
		return
	}
	visited[id] = true

	r.mu.RLock()
	var dependents []*JointComponent
	for _, j := range r.joints {
		if j.owner != id && j.references(id) {
			dependents = append(dependents, j)
		}
	}
	r.mu.RUnlock()

	for _, j := range dependents {
		j.release(r.world)
		r.log.Debug("simcore: joint link invalidated", "id", j.owner, "removed", id)
		r.invalidateJointLinks(j.owner, visited)
	}
}

func (r *Registry) connectCompoundCollisions(ctx context.Context) []error {
	_, span := r.startSpan(ctx, "Registry.connectCompoundCollisions")
	defer span.End()

	r.mu.RLock()
	conns := make([]*CompoundConnection, 0, len(r.compounds))
	for _, c := range r.compounds {
		conns = append(conns, c)
	}
	r.mu.RUnlock()
	sort.Slice(conns, func(i, k int) bool { return conns[i].owner < conns[k].owner })

	var roots []*CompoundConnection
	for _, c := range conns {
		if c.IsRoot() {
			c.takeChildren()
			roots = append(roots, c)
		}
	}

	var reports []error
	for _, c := range conns {
		if c.IsRoot() {
			continue
		}
		child := r.GameObject(c.owner)
		if child == nil || child.physics == nil {
			continue
		}
		rootObj := r.resolveRef(c.rootID)
		if rootObj == nil || rootObj.compound == nil || !rootObj.compound.IsRoot() || rootObj.physics == nil {
			err := withMetadata(CodeUnresolvedRoot, fmt.Sprintf("simcore: compound child %d references missing root %d", c.owner, c.rootID),
				map[string]string{"child": fmt.Sprint(c.owner), "root": fmt.Sprint(c.rootID)})
			r.log.Warn("simcore: unresolved compound root", "id", c.owner, "root", c.rootID)
			reports = append(reports, err)
			continue
		}
		rootObj.compound.addChild(child.physics)
	}

	built := 0
	for _, c := range roots {
		children := c.Children()
		if len(children) == 0 {
			continue
		}
		root := r.GameObject(c.owner)
		if root == nil || root.physics == nil {
			continue
		}
		if err := root.physics.CreateCompoundBody(children); err != nil {
			r.log.Error("simcore: compound body creation failed", "root", c.owner, "error", err)
			reports = append(reports, err)
			continue
		}
		built++
	}

	span.SetAttributes(attribute.Int("simcore.compounds", built))
	return reports
}
