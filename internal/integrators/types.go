// Package integrators provides the fixed-step and adaptive ODE integrators
// used by the tree backend to advance its [q; u] state.
//
//   - [Euler]: explicit first order
//   - [Leapfrog]: semi-explicit (kick-drift-kick), the default
//   - [Verlet]: velocity Verlet
//   - [RK4]: classic fourth order
//   - [RK45]: Dormand-Prince with error control
//
// States are laid out as positions followed by velocities of equal length,
// which the second-order schemes rely on.
package integrators

import (
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// System is a first-order ODE dx/dt = f(x, t).
type System interface {
	Derive(x State, t float64) State
}

type Integrator interface {
	Step(dyn System, x State, t, dt float64) State
}

// AdaptiveIntegrator also estimates its local error. StepAdaptive returns
// ErrStepRejected together with a smaller suggested dt when the error
// exceeds tol; x is returned unchanged in that case.
type AdaptiveIntegrator interface {
	Integrator
	StepAdaptive(dyn System, x State, t, dt, tol float64) (State, float64, error)
}
