package treedyn

import "fmt"

// Coordinates returns the mobilizer state of b in a parameterization that
// does not depend on the reference rotation. Ball gives a quaternion and
// the angular velocity in F. Free gives position then quaternion, and
// linear then angular velocity, all in F. Other kinds return their raw
// coordinates.
func (s *System) Coordinates(st *State, b MobodIndex) ([]float64, []float64, error) {
	if err := s.check(st); err != nil {
		return nil, nil, err
	}
	mb := s.bodies[b]
	lo, hi := mb.qStart, mb.qStart+mb.nq()
	rlo, _, ok := mb.rotationalRange()
	if !ok {
		return append([]float64(nil), st.Q[lo:hi]...), append([]float64(nil), st.U[lo:hi]...), nil
	}

	r := st.Ref[b]
	for k := 0; k < 3; k++ {
		r = r.Mul(RotationAboutAxis(st.Q[rlo+k], CoordinateAxis(k)))
	}
	quat := r.Quaternion()
	w := s.localAngularVelocity(st, mb)

	var q, u []float64
	if mb.spec.Kind == Free {
		q = append(q, st.Q[lo:lo+3]...)
		u = append(u, st.U[lo:lo+3]...)
	}
	q = append(q, quat[:]...)
	u = append(u, w[0], w[1], w[2])
	return q, u, nil
}

// SetCoordinates is the inverse of Coordinates.
func (s *System) SetCoordinates(st *State, b MobodIndex, q, u []float64) error {
	if err := s.check(st); err != nil {
		return err
	}
	mb := s.bodies[b]
	lo, n := mb.qStart, mb.nq()
	rlo, _, ok := mb.rotationalRange()
	if !ok {
		if len(q) != n || len(u) != n {
			return fmt.Errorf("%w: %s wants %d coordinates, got %d/%d", ErrBadCoordinate, mb.spec.Kind, n, len(q), len(u))
		}
		copy(st.Q[lo:lo+n], q)
		copy(st.U[lo:lo+n], u)
		return nil
	}

	off := 0
	if mb.spec.Kind == Free {
		off = 3
	}
	if len(q) != off+4 || len(u) != off+3 {
		return fmt.Errorf("%w: %s wants %d/%d coordinates, got %d/%d", ErrBadCoordinate, mb.spec.Kind, off+4, off+3, len(q), len(u))
	}
	copy(st.Q[lo:lo+off], q[:off])
	copy(st.U[lo:lo+off], u[:off])

	r := RotationFromQuaternion(Quaternion{q[off], q[off+1], q[off+2], q[off+3]})
	st.Ref[b] = r
	w := r.Transpose().Apply(Vec3{u[off], u[off+1], u[off+2]})
	for k := 0; k < 3; k++ {
		st.Q[rlo+k] = 0
		st.U[rlo+k] = w[k]
	}
	return nil
}

// SetFreeTransform places a Free mobilizer at X_FM with the given angular
// and linear velocity of M in F.
func (s *System) SetFreeTransform(st *State, b MobodIndex, xFM Transform, angular, linear Vec3) error {
	if s.bodies[b].spec.Kind != Free {
		return fmt.Errorf("%w: free transform on %s", ErrWrongKind, s.bodies[b].spec.Kind)
	}
	quat := xFM.R.Quaternion()
	q := []float64{xFM.P[0], xFM.P[1], xFM.P[2], quat[0], quat[1], quat[2], quat[3]}
	u := []float64{linear[0], linear[1], linear[2], angular[0], angular[1], angular[2]}
	return s.SetCoordinates(st, b, q, u)
}

// SetGravity changes the gravity of a live state.
func (st *State) SetGravity(g Vec3) { st.Gravity = g }
