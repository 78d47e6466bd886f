package integrators

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(dyn System, x State, t float64, dt float64) State {
	dx := dyn.Derive(x, t)
	result := make(State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}
