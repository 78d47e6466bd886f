package treedyn

import (
	"math"

	"github.com/san-kum/rigidsim/internal/integrators"
)

var nan = math.NaN()

// kinematics holds position and velocity level results for one state.
type kinematics struct {
	x     []Transform
	v     []SpatialVec
	abias []SpatialVec
	axes  []SpatialVec
	frame []Transform
}

func (s *System) kinematics(q, u []float64, ref []Rotation) *kinematics {
	nb := len(s.bodies)
	k := &kinematics{
		x:     make([]Transform, nb),
		v:     make([]SpatialVec, nb),
		abias: make([]SpatialVec, nb),
		axes:  make([]SpatialVec, len(q)),
		frame: make([]Transform, nb),
	}
	k.x[Ground] = TransformIdentity()
	k.frame[Ground] = TransformIdentity()

	for _, b := range s.bodies[1:] {
		cur := k.x[b.parent].Mul(b.xPF)
		k.frame[b.index] = cur
		vel := k.v[b.parent]
		acc := k.abias[b.parent]
		for i, p := range b.prims {
			if i == b.refIndex {
				cur = cur.Mul(Transform{R: ref[b.index]})
			}
			j := b.qStart + i
			axis := p.axisVector(cur)
			k.axes[j] = axis
			acc = acc.Add(CrossMotion(vel, axis).Scale(u[j]))
			vel = vel.Add(axis.Scale(u[j]))
			cur = cur.Mul(p.transform(q[j]))
		}
		k.x[b.index] = cur.Mul(b.xMB)
		k.v[b.index] = vel
		k.abias[b.index] = acc
	}
	return k
}

// dynamics is the result of solving for accelerations at one state.
type dynamics struct {
	kin      *kinematics
	inertia  []spatialInertia
	applied  []SpatialVec
	udot     []float64
	mu       []float64
	weldSite []Vec3
}

// solve forms M u̇ = τ + Σ Jᵀ(F - I·a_bias - v ×* I·v) with weld rows
// appended, and solves the regularized KKT system.
func (s *System) solve(st *State, q, u []float64) (*dynamics, error) {
	n := len(q)
	nb := len(s.bodies)
	kin := s.kinematics(q, u, st.Ref)

	d := &dynamics{
		kin:     kin,
		inertia: make([]spatialInertia, nb),
		applied: make([]SpatialVec, nb),
	}

	s.contactForces(kin.x, kin.v, d.applied)
	gravity := SpatialVec{V: st.Gravity}
	for _, b := range s.bodies[1:] {
		in := worldInertia(b.mass, kin.x[b.index])
		d.inertia[b.index] = in
		d.applied[b.index] = d.applied[b.index].Add(in.mul(gravity))
		if int(b.index) < len(s.bodyForces) {
			d.applied[b.index] = d.applied[b.index].Add(s.bodyForces[b.index])
		}
	}

	nc := 6 * len(s.welds)
	size := n + nc
	a := newMatrix(size)
	rhs := make([]float64, size)

	for i := 0; i < n && i < len(s.mobilityForces); i++ {
		rhs[i] = s.mobilityForces[i]
	}
	for _, f := range s.forces {
		f.calcForce(s, q, u, rhs[:n])
	}

	for _, b := range s.bodies[1:] {
		in := d.inertia[b.index]
		vel := kin.v[b.index]
		bias := in.mul(kin.abias[b.index]).Add(CrossForce(vel, in.mul(vel)))
		net := d.applied[b.index].Sub(bias)

		ia := make([]SpatialVec, len(b.chain))
		for ci, j := range b.chain {
			ia[ci] = in.mul(kin.axes[j])
			rhs[j] += kin.axes[j].Dot(net)
		}
		for ci, i := range b.chain {
			for cj, j := range b.chain {
				if cj < ci {
					continue
				}
				m := kin.axes[i].Dot(ia[cj])
				a[i][j] += m
				if i != j {
					a[j][i] += m
				}
			}
		}
	}

	d.weldSite = make([]Vec3, len(s.welds))
	omega := s.stabilization
	for wi, w := range s.welds {
		rotErr, posErr, p := w.errors(kin.x)
		d.weldSite[wi] = p
		row := n + 6*wi

		add := func(body MobodIndex, sign float64) {
			if body == Ground {
				return
			}
			for _, j := range s.bodies[body].chain {
				g := shiftMotion(kin.axes[j], p)
				for r := 0; r < 3; r++ {
					if !w.pointOnly {
						a[row+r][j] += sign * g.W[r]
						a[j][row+r] += sign * g.W[r]
					}
					a[row+3+r][j] += sign * g.V[r]
					a[j][row+3+r] += sign * g.V[r]
				}
			}
		}
		add(w.a, 1)
		add(w.b, -1)

		biasRel := shiftMotion(kin.abias[w.a].Sub(kin.abias[w.b]), p)
		velRel := shiftMotion(kin.v[w.a].Sub(kin.v[w.b]), p)
		for r := 0; r < 3; r++ {
			if w.pointOnly {
				// decoupled rows keep the multiplier layout fixed
				a[row+r][row+r] = 1
			} else {
				rhs[row+r] = -biasRel.W[r] - 2*omega*velRel.W[r] - omega*omega*rotErr[r]
				a[row+r][row+r] -= 1e-10
			}
			rhs[row+3+r] = -biasRel.V[r] - 2*omega*velRel.V[r] - omega*omega*posErr[r]
			a[row+3+r][row+3+r] -= 1e-10
		}
	}

	x, err := solveDense(a, rhs)
	if err != nil {
		return nil, err
	}
	d.udot = x[:n]
	d.mu = x[n:]
	return d, nil
}

// derivative adapts a System to the integrators.System interface for the
// [q; u] layout. Errors are latched and surface as NaN derivatives.
type derivative struct {
	sys *System
	st  *State
	err error
}

func (dv *derivative) Derive(x integrators.State, t float64) integrators.State {
	n := len(x) / 2
	out := make(integrators.State, len(x))
	copy(out[:n], x[n:])
	d, err := dv.sys.solve(dv.st, x[:n], x[n:])
	if err != nil {
		dv.err = err
		for i := range out {
			out[i] = nan
		}
		return out
	}
	copy(out[n:], d.udot)
	return out
}

// Realized exposes body transforms and velocities of one state.
type Realized struct {
	kin *kinematics
}

// Realize computes positions and velocities of every body.
func (s *System) Realize(st *State) (*Realized, error) {
	if err := s.check(st); err != nil {
		return nil, err
	}
	return &Realized{kin: s.kinematics(st.Q, st.U, st.Ref)}, nil
}

// BodyTransform is X_GB, the body frame in ground.
func (r *Realized) BodyTransform(b MobodIndex) Transform {
	return r.kin.x[b]
}

// BodyVelocity returns the angular velocity and the linear velocity of the
// body frame origin, both in ground.
func (r *Realized) BodyVelocity(b MobodIndex) (Vec3, Vec3) {
	v := r.kin.v[b]
	return v.W, v.PointVelocity(r.kin.x[b].P)
}

// CalcUDot returns generalized accelerations at st.
func (s *System) CalcUDot(st *State) ([]float64, error) {
	if err := s.check(st); err != nil {
		return nil, err
	}
	d, err := s.solve(st, st.Q, st.U)
	if err != nil {
		return nil, err
	}
	return d.udot, nil
}

// MobilizerReactions returns, per body, the spatial force its inboard
// mobilizer exerts on it, measured at the world origin.
func (s *System) MobilizerReactions(st *State) ([]SpatialVec, error) {
	if err := s.check(st); err != nil {
		return nil, err
	}
	d, err := s.solve(st, st.Q, st.U)
	if err != nil {
		return nil, err
	}
	kin := d.kin
	nb := len(s.bodies)

	constraint := make([]SpatialVec, nb)
	for wi, w := range s.welds {
		m := d.mu[6*wi : 6*wi+6]
		f := shiftForceBack(SpatialVec{W: Vec3{m[0], m[1], m[2]}, V: Vec3{m[3], m[4], m[5]}}, d.weldSite[wi])
		constraint[w.a] = constraint[w.a].Sub(f)
		constraint[w.b] = constraint[w.b].Add(f)
	}

	out := make([]SpatialVec, nb)
	for i := nb - 1; i >= 1; i-- {
		b := s.bodies[i]
		acc := kin.abias[i]
		for _, j := range b.chain {
			acc = acc.Add(kin.axes[j].Scale(d.udot[j]))
		}
		in := d.inertia[i]
		net := in.mul(acc).Add(CrossForce(kin.v[i], in.mul(kin.v[i])))
		out[i] = out[i].Add(net.Sub(d.applied[i]).Sub(constraint[i]))
		if b.parent != Ground {
			out[b.parent] = out[b.parent].Add(out[i])
		}
	}
	return out, nil
}

// MobilizerFrame returns the inboard frame F of b's mobilizer in ground.
func (r *Realized) MobilizerFrame(b MobodIndex) Transform {
	return r.kin.frame[b]
}
