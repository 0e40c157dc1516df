package simcore

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/oriumgames/simcore/engine"
)

// Transform places a game object in its parent's space. A zero Orientation is
// read as identity and a zero Scale as (1,1,1).
type Transform struct {
	Position    mgl64.Vec3
	Orientation mgl64.Quat
	Scale       mgl64.Vec3
}

// IdentityTransform returns the transform at the origin with unit scale.
func IdentityTransform() Transform {
	return Transform{Orientation: mgl64.QuatIdent(), Scale: mgl64.Vec3{1, 1, 1}}
}

func (t Transform) normalized() Transform {
	if t.Orientation == (mgl64.Quat{}) {
		t.Orientation = mgl64.QuatIdent()
	}
	if t.Scale == (mgl64.Vec3{}) {
		t.Scale = mgl64.Vec3{1, 1, 1}
	}
	return t
}

// Mul returns child expressed in the space t is expressed in.
func (t Transform) Mul(child Transform) Transform {
	t, child = t.normalized(), child.normalized()
	return Transform{
		Position:    t.Position.Add(t.Orientation.Rotate(mulElem(t.Scale, child.Position))),
		Orientation: t.Orientation.Mul(child.Orientation).Normalize(),
		Scale:       mulElem(t.Scale, child.Scale),
	}
}

// Relative returns the local transform l such that parent.Mul(l) equals t.
func (t Transform) Relative(parent Transform) Transform {
	t, parent = t.normalized(), parent.normalized()
	inv := parent.Orientation.Inverse()
	return Transform{
		Position:    divElem(inv.Rotate(t.Position.Sub(parent.Position)), parent.Scale),
		Orientation: inv.Mul(t.Orientation).Normalize(),
		Scale:       divElem(t.Scale, parent.Scale),
	}
}

// ApproxEqual compares two transforms with tolerance eps. q and -q are the same
// rotation.
func (t Transform) ApproxEqual(o Transform, eps float64) bool {
	t, o = t.normalized(), o.normalized()
	if !nearVec(t.Position, o.Position, eps) || !nearVec(t.Scale, o.Scale, eps) {
		return false
	}
	return nearQuat(t.Orientation, o.Orientation, eps) || nearQuat(t.Orientation, o.Orientation.Scale(-1), eps)
}

// nearVec compares component-wise with an absolute tolerance. mgl64's
// ApproxEqualThreshold is relative and rejects tiny residues next to zero.
func nearVec(a, b mgl64.Vec3, eps float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > eps {
			return false
		}
	}
	return true
}

func nearQuat(a, b mgl64.Quat, eps float64) bool {
	return math.Abs(a.W-b.W) <= eps && nearVec(a.V, b.V, eps)
}

func (t Transform) engine() engine.Transform {
	t = t.normalized()
	return engine.Transform{Position: t.Position, Orientation: t.Orientation}
}

func mulElem(a, b mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

func divElem(a, b mgl64.Vec3) mgl64.Vec3 {
	var out mgl64.Vec3
	for i := range out {
		if b[i] != 0 {
			out[i] = a[i] / b[i]
		}
	}
	return out
}
