package treedyn

import (
	"errors"
	"math"

	"github.com/san-kum/rigidsim/internal/integrators"
)

// TimeStepper advances a System's state with one of the integrators. Each
// internal step is committed only once it succeeds, so a failed step leaves
// the last good state in place.
type TimeStepper struct {
	sys    *System
	method integrators.Integrator
	state  State

	accuracy float64
	maxStep  float64
	minStep  float64
	nextDt   float64
	steps    int
}

func NewTimeStepper(sys *System, method integrators.Integrator) *TimeStepper {
	return &TimeStepper{
		sys:      sys,
		method:   method,
		accuracy: 1e-3,
		maxStep:  1e-3,
		minStep:  1e-8,
	}
}

// Initialize replaces the current state.
func (ts *TimeStepper) Initialize(st State) {
	ts.state = st.Clone()
	ts.nextDt = 0
}

// State returns the current state. Callers may mutate it between steps.
func (ts *TimeStepper) State() *State { return &ts.state }

func (ts *TimeStepper) Time() float64 { return ts.state.Time }

func (ts *TimeStepper) Steps() int { return ts.steps }

func (ts *TimeStepper) SetAccuracy(tol float64) {
	if tol > 0 {
		ts.accuracy = tol
	}
}

// Accuracy is the error tolerance used by adaptive methods.
func (ts *TimeStepper) Accuracy() float64 { return ts.accuracy }

func (ts *TimeStepper) SetMaxStepSize(dt float64) {
	if dt > 0 {
		ts.maxStep = dt
	}
}

func (ts *TimeStepper) MaxStepSize() float64 { return ts.maxStep }

// SetMinStepSize bounds how far an adaptive method may shrink its step.
func (ts *TimeStepper) SetMinStepSize(dt float64) {
	if dt > 0 {
		ts.minStep = dt
	}
}

// StepTo integrates until the state time reaches target.
func (ts *TimeStepper) StepTo(target float64) error {
	if err := ts.sys.check(&ts.state); err != nil {
		return err
	}
	adaptive, isAdaptive := ts.method.(integrators.AdaptiveIntegrator)
	n := len(ts.state.Q)

	for target-ts.state.Time > 1e-12 {
		dt := math.Min(ts.maxStep, target-ts.state.Time)
		if isAdaptive && ts.nextDt > 0 {
			dt = math.Min(dt, ts.nextDt)
		}

		x := make(integrators.State, 2*n)
		copy(x[:n], ts.state.Q)
		copy(x[n:], ts.state.U)
		dyn := &derivative{sys: ts.sys, st: &ts.state}

		var next integrators.State
		if isAdaptive {
			var dtNew float64
			var err error
			next, dtNew, err = adaptive.StepAdaptive(dyn, x, ts.state.Time, dt, ts.accuracy)
			if errors.Is(err, integrators.ErrStepRejected) {
				if dtNew < ts.minStep {
					return &integrators.StepError{Time: ts.state.Time, Dt: dtNew, Wrapped: integrators.ErrStepTooSmall}
				}
				ts.nextDt = dtNew
				continue
			}
			if err != nil {
				return ts.stepError(dyn, dt, err)
			}
			ts.nextDt = dtNew
		} else {
			next = ts.method.Step(dyn, x, ts.state.Time, dt)
		}

		if dyn.err != nil || !next.IsValid() {
			return ts.stepError(dyn, dt, integrators.ErrInvalidState)
		}

		copy(ts.state.Q, next[:n])
		copy(ts.state.U, next[n:])
		ts.state.Time += dt
		ts.sys.rebase(&ts.state)
		ts.steps++
	}
	return nil
}

func (ts *TimeStepper) stepError(dyn *derivative, dt float64, err error) error {
	if dyn.err != nil {
		err = errors.Join(err, dyn.err)
	}
	return &integrators.StepError{Time: ts.state.Time, Dt: dt, Wrapped: err}
}
