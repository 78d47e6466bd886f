package treedyn

// Force contributes generalized forces from the current coordinates.
type Force interface {
	calcForce(sys *System, q, u, tau []float64)
}

// AddForce registers a force element with the system.
func (s *System) AddForce(f Force) {
	s.forces = append(s.forces, f)
}

// MobilityLinearStop is a one-sided compliant stop on one coordinate. It
// pushes back when the coordinate leaves [Low, High] and never pulls.
type MobilityLinearStop struct {
	body        MobodIndex
	axis        int
	Stiffness   float64
	Dissipation float64
	Low, High   float64
}

func (s *System) AddMobilityLinearStop(b MobodIndex, axis int, stiffness, dissipation, low, high float64) *MobilityLinearStop {
	stop := &MobilityLinearStop{body: b, axis: axis, Stiffness: stiffness, Dissipation: dissipation, Low: low, High: high}
	s.AddForce(stop)
	return stop
}

func (f *MobilityLinearStop) calcForce(sys *System, q, u, tau []float64) {
	i := sys.bodies[f.body].qStart + f.axis
	x, v := q[i], u[i]
	var fk float64
	switch {
	case x > f.High:
		fk = f.Stiffness * (f.High - x)
		if fk = fk * (1 + f.Dissipation*v); fk > 0 {
			fk = 0
		}
	case x < f.Low:
		fk = f.Stiffness * (f.Low - x)
		if fk = fk * (1 - f.Dissipation*v); fk < 0 {
			fk = 0
		}
	}
	tau[i] += fk
}

// MobilityLinearDamper applies -Damping*u to one coordinate.
type MobilityLinearDamper struct {
	body    MobodIndex
	axis    int
	Damping float64
}

func (s *System) AddMobilityLinearDamper(b MobodIndex, axis int, damping float64) *MobilityLinearDamper {
	d := &MobilityLinearDamper{body: b, axis: axis, Damping: damping}
	s.AddForce(d)
	return d
}

func (f *MobilityLinearDamper) calcForce(sys *System, q, u, tau []float64) {
	i := sys.bodies[f.body].qStart + f.axis
	tau[i] -= f.Damping * u[i]
}

// MobilityLinearSpring applies -Stiffness*(q - Reference) to one coordinate.
type MobilityLinearSpring struct {
	body      MobodIndex
	axis      int
	Stiffness float64
	Reference float64
}

func (s *System) AddMobilityLinearSpring(b MobodIndex, axis int, stiffness, reference float64) *MobilityLinearSpring {
	sp := &MobilityLinearSpring{body: b, axis: axis, Stiffness: stiffness, Reference: reference}
	s.AddForce(sp)
	return sp
}

func (f *MobilityLinearSpring) calcForce(sys *System, q, u, tau []float64) {
	i := sys.bodies[f.body].qStart + f.axis
	tau[i] -= f.Stiffness * (q[i] - f.Reference)
}
