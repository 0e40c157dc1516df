package simcore

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestTransformRelativeRoundTrip(t *testing.T) {
	parent := Transform{
		Position:    mgl64.Vec3{1, 2, 3},
		Orientation: mgl64.QuatRotate(math.Pi/3, mgl64.Vec3{0, 1, 0}),
		Scale:       mgl64.Vec3{2, 2, 2},
	}
	world := Transform{
		Position:    mgl64.Vec3{-4, 0.5, 7},
		Orientation: mgl64.QuatRotate(math.Pi/5, mgl64.Vec3{1, 0, 0}),
		Scale:       mgl64.Vec3{1, 3, 1},
	}

	local := world.Relative(parent)
	if got := parent.Mul(local); !got.ApproxEqual(world, 1e-9) {
		t.Errorf("round trip failed: %+v != %+v", got, world)
	}
}

func TestTransformMulTranslatesInParentSpace(t *testing.T) {
	parent := Transform{
		Position:    mgl64.Vec3{10, 0, 0},
		Orientation: mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 1, 0}),
	}
	child := Transform{Position: mgl64.Vec3{1, 0, 0}}

	got := parent.Mul(child)
	if !nearVec(got.Position, mgl64.Vec3{10, 0, -1}, 1e-9) {
		t.Errorf("unexpected position %v", got.Position)
	}
	if got.Scale != (mgl64.Vec3{1, 1, 1}) {
		t.Errorf("zero scale must read as unit, got %v", got.Scale)
	}
}

func TestTransformApproxEqualSign(t *testing.T) {
	q := mgl64.QuatRotate(1, mgl64.Vec3{0, 0, 1})
	a := Transform{Orientation: q}
	b := Transform{Orientation: q.Scale(-1)}
	if !a.ApproxEqual(b, 1e-12) {
		t.Error("q and -q describe the same rotation")
	}
	if a.ApproxEqual(Transform{Position: mgl64.Vec3{0, 0, 1e-3}, Orientation: q}, 1e-6) {
		t.Error("positions differ")
	}
	if !(Transform{}).ApproxEqual(IdentityTransform(), 0) {
		t.Error("the zero transform is the identity")
	}
}
