package automation

import (
	"context"
	"fmt"

	"github.com/san-kum/rigidsim/internal/logging"
	"github.com/san-kum/rigidsim/internal/metrics"
	"github.com/san-kum/rigidsim/internal/physics"
	"github.com/san-kum/rigidsim/internal/sceneio"
	"github.com/san-kum/rigidsim/internal/shapes"
	"github.com/san-kum/rigidsim/internal/sim"
)

// ParameterSweep runs one scene once per value of an engine parameter.
// The value is set before the scene's models are added, so solver
// parameters that freeze once models run can be swept.
type ParameterSweep struct {
	Scene  string
	Preset string
	// Param is a key accepted by Engine.SetParam.
	Param    string
	Values   []any
	Duration float64
	Dt       float64
	// StabilitySpeed is the link speed counted as unstable. Zero uses
	// 100 m/s.
	StabilitySpeed float64
}

// SweepResult holds results from a parameter sweep
type SweepResult struct {
	Value      any
	Integrator string
	Result     *sim.Result
	Final      sim.Frame
}

// RunSweep runs every value concurrently, each on its own engine, and
// returns the results in the order of the values.
func RunSweep(ctx context.Context, sweep *ParameterSweep, log logging.Logger) ([]SweepResult, error) {
	if len(sweep.Values) == 0 {
		return nil, fmt.Errorf("sweep of %q has no values", sweep.Param)
	}
	if log == nil {
		log = logging.Nop()
	}
	speed := sweep.StabilitySpeed
	if speed <= 0 {
		speed = 100
	}

	tess := shapes.NewTessellator(0)
	defer tess.Close()

	finals := make([]sim.Frame, len(sweep.Values))
	integrators := make([]string, len(sweep.Values))
	build := func(idx int) (*sim.Simulator, error) {
		sc, err := sceneio.Load(sweep.Scene, log)
		if err != nil {
			return nil, err
		}
		cfg := EngineConfig(sc, sweep.Preset)
		cfg.RealTimeFactor = 0
		eng, err := physics.New(cfg, physics.WithLogger(log), physics.WithTessellator(tess))
		if err != nil {
			return nil, err
		}
		if err := eng.SetParam(ctx, sweep.Param, sweep.Values[idx]); err != nil {
			eng.Close()
			return nil, fmt.Errorf("%s=%v: %w", sweep.Param, sweep.Values[idx], err)
		}
		for _, m := range sc.Models {
			if err := eng.AddModel(ctx, m); err != nil {
				eng.Close()
				return nil, err
			}
		}
		integrators[idx] = eng.Info().IntegratorType

		s := sim.New(eng)
		s.AddMetric(metrics.NewEnergyDrift())
		s.AddMetric(metrics.NewStability(speed))
		s.AddMetric(metrics.NewDisplacement())
		s.AddObserver(sim.ObserverFunc(func(f sim.Frame) { finals[idx] = f }))
		return s, nil
	}

	results, err := sim.NewEnsemble(build, len(sweep.Values)).Run(ctx, sim.Config{Duration: sweep.Duration, Dt: sweep.Dt})
	if err != nil {
		return nil, err
	}

	out := make([]SweepResult, len(results))
	for i, r := range results {
		out[i] = SweepResult{
			Value:      sweep.Values[i],
			Integrator: integrators[i],
			Result:     r,
			Final:      finals[i],
		}
		log.Infof("sweep %d/%d: %s=%v energy_drift=%.3g failures=%d", i+1, len(results), sweep.Param, sweep.Values[i], r.Metrics["energy_drift"], len(r.Errors))
	}
	return out, nil
}
