package simcore

import (
	"io"
	"log/slog"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/oriumgames/simcore/cubeworld"
	"github.com/oriumgames/simcore/engine"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *cubeworld.World) {
	t.Helper()
	w := cubeworld.New(cubeworld.WithWorkers(2))
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return NewRegistry(w, opts...), w
}

// weightless is DefaultConfig without standard gravity.
func weightless() Config {
	cfg := DefaultConfig()
	cfg.Gravity = mgl64.Vec3{}
	return cfg
}

func mustRegister(t *testing.T, r *Registry, obj *GameObject) *GameObject {
	t.Helper()
	if err := r.Register(obj); err != nil {
		t.Fatalf("register %q: %v", obj.Name(), err)
	}
	return obj
}

// undamped returns a unit box body without damping.
func undamped(mass float64) *PhysicsBody {
	pb := NewPhysicsBody(engine.ShapeBox, mgl64.Vec3{1, 1, 1}, mass)
	pb.SetDamping(0, mgl64.Vec3{})
	return pb
}

func dynamicBox(name, category string, pos mgl64.Vec3, mass float64) *GameObject {
	return Build(name, category).Position(pos).Dynamic().Physics(undamped(mass)).Object()
}

func approx(a, b float64) bool {
	const eps = 1e-9
	d := a - b
	return d < eps && d > -eps
}
