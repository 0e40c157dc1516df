package main

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/oriumgames/simcore"
)

// walker keeps its object moving along +X while it stands on the ground.
// The reference solver resolves no contacts, so standing means holding the
// vertical velocity at zero while the ground is within reach.
type walker struct {
	speed  float64
	ground uint32
}

func (w *walker) Kind() simcore.Kind { return simcore.KindPlayerController }

func (w *walker) Update(obj *simcore.GameObject, dt time.Duration) {
	pb := obj.Physics()
	if pb == nil {
		return
	}
	c := pb.ContactBelow(mgl64.Vec3{}, w.ground)
	if !c.Hit || c.Distance > 1 {
		return
	}
	pb.ApplyRequiredForceForVelocity(mgl64.Vec3{w.speed, 0, 0})
}
