package integrators

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState indicates a NaN or Inf in the integrated state.
	ErrInvalidState = errors.New("integrators: invalid state (NaN or Inf detected)")

	// ErrStepTooSmall indicates the adaptive timestep fell below the minimum.
	ErrStepTooSmall = errors.New("integrators: adaptive timestep below minimum")

	// ErrStepRejected indicates the error estimate exceeded the tolerance.
	ErrStepRejected = errors.New("integrators: step rejected by error control")

	// ErrUnknownIntegrator is returned by New for an unregistered name.
	ErrUnknownIntegrator = errors.New("integrators: unknown integrator")
)

// StepError wraps a failed step with the time it was attempted at.
type StepError struct {
	Time    float64
	Dt      float64
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step at t=%.6f (dt=%.2e): %v", e.Time, e.Dt, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}
