package tree

import (
	"github.com/san-kum/rigidsim/internal/scene"
	"github.com/san-kum/rigidsim/internal/treedyn"
)

// jointRecord is what a bound joint points at: its mobilizer, or its loop
// constraint, and the force elements created per axis.
type jointRecord struct {
	joint    *scene.Joint
	mobod    treedyn.MobilizedBody
	loop     *treedyn.WeldConstraint
	reversed bool
	// xCB is the joint frame in the child body.
	xCB treedyn.Transform

	stops   []*treedyn.MobilityLinearStop
	dampers []*treedyn.MobilityLinearDamper
	springs []*treedyn.MobilityLinearSpring
}

// hasReference is true for ball and free mobilizers, whose coordinates are
// orientations rather than signed axis values.
func (r *jointRecord) hasReference() bool {
	k := r.mobod.Kind()
	return k == treedyn.Ball || k == treedyn.Free
}

// sign maps joint axis values onto the mobilizer coordinate. A reversed
// mobilizer measures its axis from the child side.
func (r *jointRecord) sign() float64 {
	if r.reversed && !r.hasReference() {
		return -1
	}
	return 1
}

func (r *jointRecord) valid(axis int) bool {
	return axis >= 0 && axis < len(r.dampers)
}

func (r *jointRecord) Damping(axis int) float64 {
	if !r.valid(axis) {
		return 0
	}
	return r.dampers[axis].Damping
}

func (r *jointRecord) SetDamping(axis int, v float64) {
	if r.valid(axis) {
		r.dampers[axis].Damping = v
	}
}

func (r *jointRecord) SpringStiffness(axis int) float64 {
	if !r.valid(axis) {
		return 0
	}
	return r.springs[axis].Stiffness
}

func (r *jointRecord) SetSpringStiffness(axis int, v float64) {
	if r.valid(axis) {
		r.springs[axis].Stiffness = v
	}
}

func (r *jointRecord) SpringReference(axis int) float64 {
	if !r.valid(axis) {
		return 0
	}
	return r.sign() * r.springs[axis].Reference
}

func (r *jointRecord) SetSpringReference(axis int, v float64) {
	if r.valid(axis) {
		r.springs[axis].Reference = r.sign() * v
	}
}

func (r *jointRecord) Limits(axis int) (float64, float64) {
	if !r.valid(axis) {
		return 0, 0
	}
	s := r.stops[axis]
	if r.sign() < 0 {
		return -s.High, -s.Low
	}
	return s.Low, s.High
}

func (r *jointRecord) SetLimits(axis int, lower, upper float64) {
	if !r.valid(axis) {
		return
	}
	s := r.stops[axis]
	if r.sign() < 0 {
		lower, upper = -upper, -lower
	}
	s.Low, s.High = lower, upper
}

var _ scene.AxisBinding = (*jointRecord)(nil)
