package simcore

import (
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
)

// commandSlot hands one vector from any number of producers to the solver.
//
// Producers store the value and then raise pending. The consumer claims the slot
// with a CAS on inProgress, lowers pending and swaps the value out, so a written
// value is applied at most once and later writes win.
type commandSlot struct {
	value      atomic.Pointer[mgl64.Vec3]
	pending    atomic.Bool
	inProgress atomic.Bool
}

func (s *commandSlot) store(v mgl64.Vec3) {
	s.value.Store(&v)
	s.pending.Store(true)
}

// take returns the pending value. It reports false when another consumer owns
// the slot or nothing is pending.
func (s *commandSlot) take() (mgl64.Vec3, bool) {
	if !s.inProgress.CompareAndSwap(false, true) {
		return mgl64.Vec3{}, false
	}
	defer s.inProgress.Store(false)

	if !s.pending.Swap(false) {
		return mgl64.Vec3{}, false
	}
	v := s.value.Swap(nil)
	if v == nil {
		return mgl64.Vec3{}, false
	}
	return *v, true
}

func (s *commandSlot) reset() {
	s.pending.Store(false)
	s.value.Store(nil)
}

// commandSet is the four slots of a physics body.
type commandSet struct {
	force    commandSlot
	velocity commandSlot
	jump     commandSlot
	omega    commandSlot
}

func (c *commandSet) reset() {
	c.force.reset()
	c.velocity.reset()
	c.jump.reset()
	c.omega.reset()
}
