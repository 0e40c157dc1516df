package cubeworld

import (
	"fmt"
	"math"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/oriumgames/simcore/engine"
)

// collision is an axis-aligned approximation of a primitive or compound volume.
// The box is stored in body-local space with the primitive's offset and orientation
// already applied.
type collision struct {
	shape engine.ShapeType
	box   cube.BBox
}

func (c *collision) Shape() engine.ShapeType {
	return c.shape
}

func (c *collision) Bounds() (mgl64.Vec3, mgl64.Vec3) {
	return c.box.Min(), c.box.Max()
}

func (c *collision) Volume() float64 {
	return c.box.Width() * c.box.Height() * c.box.Length()
}

// halfExtents returns the half extents of the bounding box of a primitive.
func halfExtents(desc engine.CollisionDesc) (mgl64.Vec3, error) {
	s := desc.Size
	for i := 0; i < 3; i++ {
		if math.IsNaN(s[i]) || math.IsInf(s[i], 0) {
			return mgl64.Vec3{}, fmt.Errorf("%w: size %v", engine.ErrInvalidShape, s)
		}
	}

	switch desc.Shape {
	case engine.ShapeBox:
		if s.X() <= 0 || s.Y() <= 0 || s.Z() <= 0 {
			return mgl64.Vec3{}, fmt.Errorf("%w: box size %v", engine.ErrInvalidShape, s)
		}
		return s.Mul(0.5), nil
	case engine.ShapeSphere:
		if s.X() <= 0 {
			return mgl64.Vec3{}, fmt.Errorf("%w: sphere radius %v", engine.ErrInvalidShape, s.X())
		}
		return mgl64.Vec3{s.X(), s.X(), s.X()}, nil
	case engine.ShapeCapsule, engine.ShapeCylinder, engine.ShapeCone:
		if s.X() <= 0 || s.Y() <= 0 {
			return mgl64.Vec3{}, fmt.Errorf("%w: %s size %v", engine.ErrInvalidShape, desc.Shape, s)
		}
		return mgl64.Vec3{s.X(), s.Y() * 0.5, s.X()}, nil
	default:
		return mgl64.Vec3{}, fmt.Errorf("%w: shape %d", engine.ErrInvalidShape, desc.Shape)
	}
}

// orient returns q, or the identity for the zero quaternion.
func orient(q mgl64.Quat) mgl64.Quat {
	if q == (mgl64.Quat{}) {
		return mgl64.QuatIdent()
	}
	return q
}

// transformBox returns the axis-aligned box enclosing bb after rotating it by q
// and moving it by offset.
func transformBox(bb cube.BBox, q mgl64.Quat, offset mgl64.Vec3) cube.BBox {
	q = orient(q)
	lo, hi := bb.Min(), bb.Max()
	min := mgl64.Vec3{math.Inf(1), math.Inf(1), math.Inf(1)}
	max := mgl64.Vec3{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for i := 0; i < 8; i++ {
		corner := mgl64.Vec3{lo.X(), lo.Y(), lo.Z()}
		if i&1 != 0 {
			corner[0] = hi.X()
		}
		if i&2 != 0 {
			corner[1] = hi.Y()
		}
		if i&4 != 0 {
			corner[2] = hi.Z()
		}
		p := q.Rotate(corner).Add(offset)
		for k := 0; k < 3; k++ {
			min[k] = math.Min(min[k], p[k])
			max[k] = math.Max(max[k], p[k])
		}
	}
	return cube.Box(min[0], min[1], min[2], max[0], max[1], max[2])
}

// boxOf returns the local box of any engine.Collision.
func boxOf(c engine.Collision) cube.BBox {
	if cc, ok := c.(*collision); ok {
		return cc.box
	}
	lo, hi := c.Bounds()
	return cube.Box(lo[0], lo[1], lo[2], hi[0], hi[1], hi[2])
}
