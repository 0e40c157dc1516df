package simcore

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/oriumgames/simcore/engine"
)

// ContactData is the result of a contact query. A zero value means no contact.
type ContactData struct {
	Hit          bool
	GameObjectID uint64
	Distance     float64
	Normal       mgl64.Vec3
	// Slope is the angle in degrees between Normal and the up direction.
	Slope float64
	Point mgl64.Vec3
}

// ContactBelow casts a ray along gravity from the body position plus offset.
func (pb *PhysicsBody) ContactBelow(offset mgl64.Vec3, categoryIDs uint32) ContactData {
	return pb.contact("below", pb.GravityDirection(), offset, categoryIDs)
}

// ContactAbove casts a ray against gravity.
func (pb *PhysicsBody) ContactAbove(offset mgl64.Vec3, categoryIDs uint32) ContactData {
	return pb.contact("above", pb.GravityDirection().Mul(-1), offset, categoryIDs)
}

// ContactAhead casts a ray along the object's forward axis, flattened onto the
// plane perpendicular to gravity.
func (pb *PhysicsBody) ContactAhead(offset mgl64.Vec3, categoryIDs uint32) ContactData {
	obj := pb.object()
	if obj == nil {
		return ContactData{}
	}
	fwd := obj.Forward()
	g := pb.GravityDirection()
	flat := fwd.Sub(g.Mul(fwd.Dot(g)))
	if flat.LenSqr() > 1e-12 {
		fwd = flat
	}
	return pb.contact("ahead", fwd, offset, categoryIDs)
}

// ContactToDirection casts a ray along direction, given in world space.
func (pb *PhysicsBody) ContactToDirection(direction, offset mgl64.Vec3, categoryIDs uint32) ContactData {
	return pb.contact("direction", direction, offset, categoryIDs)
}

func (pb *PhysicsBody) contact(kind string, dir, offset mgl64.Vec3, categoryIDs uint32) ContactData {
	self := pb.Body()
	if self == nil || pb.env == nil || dir.LenSqr() == 0 {
		return ContactData{}
	}
	dir = dir.Normalize()

	from := self.Position().Add(offset)
	to := from.Add(dir.Mul(pb.env.cfg.ContactRayLength))

	pb.mu.Lock()
	draw := pb.debugContacts || pb.env.cfg.DebugContacts
	pb.mu.Unlock()
	if draw && pb.env.debug != nil {
		pb.env.debug.DrawLine(pb.contactKey(kind), from, to)
	}

	hit, ok := pb.env.world.RayCast(from, to, func(b engine.Body) bool {
		return b != self && b.Type()&categoryIDs != 0
	})
	if !ok {
		return ContactData{}
	}
	other, ok := hit.Body.UserData().(*PhysicsBody)
	if !ok || other == nil {
		return ContactData{}
	}

	up := pb.GravityDirection().Mul(-1)
	cos := mgl64.Clamp(hit.Normal.Dot(up), -1, 1)
	return ContactData{
		Hit:          true,
		GameObjectID: other.owner,
		Distance:     hit.Distance,
		Normal:       hit.Normal,
		Slope:        mgl64.RadToDeg(math.Acos(cos)),
		Point:        hit.Point,
	}
}

func (pb *PhysicsBody) contactKey(kind string) string {
	return fmt.Sprintf("contact:%d:%s", pb.owner, kind)
}

func (pb *PhysicsBody) contactKeys() []string {
	return []string{
		pb.contactKey("below"),
		pb.contactKey("above"),
		pb.contactKey("ahead"),
		pb.contactKey("direction"),
	}
}
