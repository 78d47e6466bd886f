package treedyn

// WeldConstraint holds frame F on body A coincident with frame M on body B.
// A point-only weld leaves the relative rotation free, which makes it a
// ball constraint.
type WeldConstraint struct {
	a, b      MobodIndex
	xAF       Transform
	xBM       Transform
	pointOnly bool
}

// AddWeld welds frame xAF of body a to frame xBM of body b.
func (s *System) AddWeld(a, b MobodIndex, xAF, xBM Transform) *WeldConstraint {
	w := &WeldConstraint{a: a, b: b, xAF: xAF, xBM: xBM}
	s.welds = append(s.welds, w)
	return w
}

// AddBallConstraint holds point pA on body a coincident with point pB on
// body b.
func (s *System) AddBallConstraint(a, b MobodIndex, pA, pB Vec3) *WeldConstraint {
	w := &WeldConstraint{
		a:         a,
		b:         b,
		xAF:       NewTransform(RotationIdentity(), pA),
		xBM:       NewTransform(RotationIdentity(), pB),
		pointOnly: true,
	}
	s.welds = append(s.welds, w)
	return w
}

func (s *System) NumWelds() int { return len(s.welds) }

func (w *WeldConstraint) PointOnly() bool { return w.pointOnly }

// Bodies returns the two welded bodies.
func (w *WeldConstraint) Bodies() (MobodIndex, MobodIndex) { return w.a, w.b }

// errors returns the rotational and positional violation of w.
func (w *WeldConstraint) errors(x []Transform) (Vec3, Vec3, Vec3) {
	fa := x[w.a].Mul(w.xAF)
	fb := x[w.b].Mul(w.xBM)
	rot := fa.R.Mul(fb.R.Transpose()).Vee()
	pos := fa.P.Sub(fb.P)
	return rot, pos, fa.P
}

// shiftMotion expresses a motion vector by its angular part and the linear
// velocity of the point p.
func shiftMotion(m SpatialVec, p Vec3) SpatialVec {
	return SpatialVec{W: m.W, V: m.PointVelocity(p)}
}

// shiftForceBack maps a force at point p back to a force at the origin.
func shiftForceBack(f SpatialVec, p Vec3) SpatialVec {
	return SpatialVec{W: f.W.Add(p.Cross(f.V)), V: f.V}
}
