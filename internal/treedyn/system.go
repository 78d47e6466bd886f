// Package treedyn is a reduced-coordinate rigid multibody engine. Bodies are
// arranged in a tree of mobilizers rooted at Ground; loops are closed with
// weld constraints. Dynamics are formed in world-frame spatial algebra and
// integrated with the schemes in the integrators package.
package treedyn

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParent = errors.New("treedyn: parent body does not exist")
	ErrNotRealized   = errors.New("treedyn: topology not realized")
	ErrStaleState    = errors.New("treedyn: state belongs to an older topology")
	ErrMasslessBody  = errors.New("treedyn: terminal body has no mass")
	ErrSingular      = errors.New("treedyn: singular system matrix")
	ErrWrongKind     = errors.New("treedyn: operation not supported by mobilizer kind")
	ErrBadCoordinate = errors.New("treedyn: coordinate out of range")
)

// State is the continuous state of a realized System.
type State struct {
	Time float64
	Q    []float64
	U    []float64
	// Ref holds the reference orientation of Ball and Free mobilizers.
	Ref     []Rotation
	Gravity Vec3

	topology int
}

func (st State) Clone() State {
	c := st
	c.Q = append([]float64(nil), st.Q...)
	c.U = append([]float64(nil), st.U...)
	c.Ref = append([]Rotation(nil), st.Ref...)
	return c
}

// System owns the multibody tree, its force elements, constraints and
// contact surfaces.
type System struct {
	bodies   []*mobod
	forces   []Force
	welds    []*WeldConstraint
	surfaces []*ContactSurface

	nextClique         int
	defaultGravity     Vec3
	transitionVelocity float64
	stabilization      float64

	nq       int
	realized bool
	topology int

	bodyForces     []SpatialVec
	mobilityForces []float64
}

func NewSystem() *System {
	s := &System{
		transitionVelocity: 0.01,
		stabilization:      20,
		defaultGravity:     Vec3{0, 0, -9.8},
	}
	s.bodies = append(s.bodies, &mobod{
		index:      Ground,
		parent:     -1,
		spec:       MobilizerSpec{Kind: Weld},
		xPF:        TransformIdentity(),
		xMB:        TransformIdentity(),
		refIndex:   -1,
		defaultRef: RotationIdentity(),
	})
	return s
}

func (s *System) Ground() MobilizedBody {
	return MobilizedBody{sys: s, index: Ground}
}

func (s *System) Body(i MobodIndex) MobilizedBody {
	return MobilizedBody{sys: s, index: i}
}

func (s *System) NumBodies() int { return len(s.bodies) }

// NumQ is the number of generalized coordinates. Valid after RealizeTopology.
func (s *System) NumQ() int { return s.nq }

// AddMobilizedBody adds a body connected to parent. xPF places the inboard
// frame F on the parent and xBM places the outboard frame M on the new body.
func (s *System) AddMobilizedBody(parent MobodIndex, spec MobilizerSpec, xPF, xBM Transform, mass MassProperties) (MobilizedBody, error) {
	if parent < 0 || int(parent) >= len(s.bodies) {
		return MobilizedBody{}, fmt.Errorf("%w: %d", ErrInvalidParent, parent)
	}
	prims, ref := layout(spec.Kind, spec.Pitch)
	b := &mobod{
		index:      MobodIndex(len(s.bodies)),
		parent:     parent,
		spec:       spec,
		xPF:        xPF,
		xMB:        xBM.Inverse(),
		mass:       mass,
		prims:      prims,
		refIndex:   ref,
		defaultQ:   make([]float64, len(prims)),
		defaultRef: RotationIdentity(),
	}
	s.bodies = append(s.bodies, b)
	s.bodies[parent].children = append(s.bodies[parent].children, b.index)
	s.invalidate()
	return MobilizedBody{sys: s, index: b.index}, nil
}

// SetDefaultQ sets the topology-default coordinates of b.
func (s *System) SetDefaultQ(b MobodIndex, q []float64) error {
	mb := s.bodies[b]
	if len(q) != mb.nq() {
		return fmt.Errorf("%w: %s wants %d coordinates, got %d", ErrBadCoordinate, mb.spec.Kind, mb.nq(), len(q))
	}
	copy(mb.defaultQ, q)
	return nil
}

// SetDefaultTransform sets the default X_FM of a Free mobilizer, or just its
// orientation for a Ball.
func (s *System) SetDefaultTransform(b MobodIndex, xFM Transform) error {
	mb := s.bodies[b]
	switch mb.spec.Kind {
	case Free:
		mb.defaultQ[0], mb.defaultQ[1], mb.defaultQ[2] = xFM.P[0], xFM.P[1], xFM.P[2]
		mb.defaultQ[3], mb.defaultQ[4], mb.defaultQ[5] = 0, 0, 0
		mb.defaultRef = xFM.R
	case Ball:
		mb.defaultQ[0], mb.defaultQ[1], mb.defaultQ[2] = 0, 0, 0
		mb.defaultRef = xFM.R
	default:
		return fmt.Errorf("%w: default transform on %s", ErrWrongKind, mb.spec.Kind)
	}
	return nil
}

func (s *System) SetDefaultGravity(g Vec3) { s.defaultGravity = g }
func (s *System) DefaultGravity() Vec3     { return s.defaultGravity }

// SetTransitionVelocity sets the slip speed below which friction ramps
// linearly towards zero.
func (s *System) SetTransitionVelocity(v float64) {
	if v > 0 {
		s.transitionVelocity = v
	}
}

func (s *System) TransitionVelocity() float64 { return s.transitionVelocity }

// SetConstraintStabilization sets the natural frequency, in rad/s, used to
// pull weld constraint drift back to zero.
func (s *System) SetConstraintStabilization(omega float64) {
	if omega > 0 {
		s.stabilization = omega
	}
}

func (s *System) invalidate() {
	s.realized = false
}

// RealizeTopology assigns coordinates and returns the default state. Every
// state from a previous realization becomes stale.
func (s *System) RealizeTopology() (State, error) {
	n := 0
	for _, b := range s.bodies[1:] {
		if b.parent >= b.index {
			return State{}, fmt.Errorf("%w: body %d has parent %d", ErrInvalidParent, b.index, b.parent)
		}
		b.qStart = n
		n += b.nq()
		parentChain := s.bodies[b.parent].chain
		b.chain = make([]int, 0, len(parentChain)+b.nq())
		b.chain = append(b.chain, parentChain...)
		for k := 0; k < b.nq(); k++ {
			b.chain = append(b.chain, b.qStart+k)
		}
	}
	for _, b := range s.bodies[1:] {
		if len(b.children) == 0 && b.mass.Mass <= 0 && b.nq() > 0 {
			return State{}, fmt.Errorf("%w: body %d", ErrMasslessBody, b.index)
		}
	}
	s.nq = n
	s.topology++
	s.realized = true
	s.bodyForces = make([]SpatialVec, len(s.bodies))
	s.mobilityForces = make([]float64, n)
	return s.DefaultState(), nil
}

// DefaultState returns the topology-default state.
func (s *System) DefaultState() State {
	st := State{
		Q:        make([]float64, s.nq),
		U:        make([]float64, s.nq),
		Ref:      make([]Rotation, len(s.bodies)),
		Gravity:  s.defaultGravity,
		topology: s.topology,
	}
	for _, b := range s.bodies {
		st.Ref[b.index] = b.defaultRef
		copy(st.Q[b.qStart:b.qStart+b.nq()], b.defaultQ)
	}
	return st
}

func (s *System) check(st *State) error {
	if !s.realized {
		return ErrNotRealized
	}
	if st.topology != s.topology {
		return ErrStaleState
	}
	return nil
}

// ApplyBodyForce adds a world-frame force at a world point to b's force
// buffer for the next step.
func (s *System) ApplyBodyForce(b MobodIndex, force, point Vec3) {
	if int(b) < len(s.bodyForces) {
		s.bodyForces[b] = s.bodyForces[b].Add(ForceAtPoint(force, point))
	}
}

func (s *System) ApplyBodyTorque(b MobodIndex, torque Vec3) {
	if int(b) < len(s.bodyForces) {
		s.bodyForces[b] = s.bodyForces[b].Add(SpatialVec{W: torque})
	}
}

// ApplyMobilityForce adds a generalized force on one coordinate of b.
func (s *System) ApplyMobilityForce(b MobodIndex, axis int, f float64) {
	mb := s.bodies[b]
	if axis < 0 || axis >= mb.nq() || !s.realized {
		return
	}
	s.mobilityForces[mb.qStart+axis] += f
}

// ClearForces drops every buffered body and mobility force.
func (s *System) ClearForces() {
	for i := range s.bodyForces {
		s.bodyForces[i] = SpatialVec{}
	}
	for i := range s.mobilityForces {
		s.mobilityForces[i] = 0
	}
}

// rebase folds the local angles of Ball and Free mobilizers into their
// reference rotation so the angles stay near zero.
func (s *System) rebase(st *State) {
	for _, b := range s.bodies[1:] {
		lo, _, ok := b.rotationalRange()
		if !ok {
			continue
		}
		r := st.Ref[b.index]
		for k := 0; k < 3; k++ {
			r = r.Mul(RotationAboutAxis(st.Q[lo+k], CoordinateAxis(k)))
		}
		w := s.localAngularVelocity(st, b)
		st.Ref[b.index] = r
		u := r.Transpose().Apply(w)
		for k := 0; k < 3; k++ {
			st.Q[lo+k] = 0
			st.U[lo+k] = u[k]
		}
	}
}

// localAngularVelocity is the angular velocity of M relative to the
// rotation's base frame, expressed in that frame.
func (s *System) localAngularVelocity(st *State, b *mobod) Vec3 {
	lo, _, _ := b.rotationalRange()
	r := st.Ref[b.index]
	var w Vec3
	for k := 0; k < 3; k++ {
		w = w.Add(r.Apply(CoordinateAxis(k).Unit()).Mul(st.U[lo+k]))
		r = r.Mul(RotationAboutAxis(st.Q[lo+k], CoordinateAxis(k)))
	}
	return w
}
