package physics

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/rigidsim/internal/snapshot"
)

// Runtime parameter keys.
const (
	ParamType                 = "type"
	ParamSolverType           = "solver_type"
	ParamIntegratorType       = "integrator_type"
	ParamAccuracy             = "accuracy"
	ParamMaxTransientVelocity = "max_transient_velocity"
	ParamMaxStepSize          = "max_step_size"
)

// GetParam reads a runtime parameter. "type" is a deprecated alias of
// "solver_type".
func (e *Engine) GetParam(ctx context.Context, key string) (any, error) {
	_, unlock, err := e.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return e.getParam(key)
}

func (e *Engine) getParam(key string) (any, error) {
	switch key {
	case ParamType:
		e.log.Warnf("parameter [%s] is deprecated, use [%s]", ParamType, ParamSolverType)
		return e.getParam(ParamSolverType)
	case ParamSolverType:
		return e.world.SolverType(), nil
	case ParamIntegratorType:
		return e.world.IntegratorType(), nil
	case ParamAccuracy:
		return e.world.Accuracy(), nil
	case ParamMaxTransientVelocity:
		return e.world.TransitionVelocity(), nil
	case ParamMaxStepSize:
		return e.world.MaxStepSize(), nil
	}
	e.log.Warnf("parameter [%s] is not supported", key)
	return nil, fmt.Errorf("%w: %q", ErrUnknownParam, key)
}

// SetParam changes a runtime parameter. Solver parameters are fixed once a
// model is running; before that they configure the next world built.
func (e *Engine) SetParam(ctx context.Context, key string, value any) error {
	_, unlock, err := e.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	defer e.publish()

	if err := e.setParam(key, value); err != nil {
		e.log.Warnf("set parameter [%s] to [%v]: %v", key, value, err)
		return err
	}
	return nil
}

func (e *Engine) setParam(key string, value any) error {
	switch key {
	case ParamType:
		e.log.Warnf("parameter [%s] is deprecated, use [%s]", ParamType, ParamSolverType)
		return e.setParam(ParamSolverType, value)
	case ParamSolverType:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s wants a string, got %T", ErrParamType, key, value)
		}
		if s == e.world.SolverType() {
			return nil
		}
		return fmt.Errorf("%w: %s is fixed by the backend", ErrUnsupportedParam, key)
	case ParamIntegratorType:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s wants a string, got %T", ErrParamType, key, value)
		}
		if err := e.beforeRunning(key); err != nil {
			return err
		}
		e.cfg.Integrator = s
	case ParamAccuracy, ParamMaxTransientVelocity, ParamMaxStepSize:
		v, ok := toFloat(value)
		if !ok {
			return fmt.Errorf("%w: %s wants a number, got %T", ErrParamType, key, value)
		}
		if err := e.beforeRunning(key); err != nil {
			return err
		}
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be positive and finite, got %g", ErrParamRange, key, v)
		}
		switch key {
		case ParamAccuracy:
			e.cfg.Accuracy = v
		case ParamMaxTransientVelocity:
			e.cfg.TransitionVelocity = v
		default:
			if v < e.cfg.MinStepSize {
				return fmt.Errorf("%w: %s below min step size %g", ErrParamRange, key, e.cfg.MinStepSize)
			}
			e.cfg.MaxStepSize = v
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownParam, key)
	}
	// the idle world reports the new settings
	return e.rebuild(nil, snapshot.Snapshot{}, e.idle)
}

func (e *Engine) beforeRunning(key string) error {
	if e.running() {
		return fmt.Errorf("%w: %s is read-only while models are running", ErrUnsupportedParam, key)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	}
	return 0, false
}
