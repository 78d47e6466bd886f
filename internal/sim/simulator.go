package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/san-kum/rigidsim/internal/physics"
)

// Simulator ticks an engine at a fixed interval and feeds every completed
// tick to its metrics and observers. Ticks are paced by the engine's real
// time factor; zero runs as fast as possible.
type Simulator struct {
	eng       *physics.Engine
	metrics   []Metric
	observers []Observer
}

func New(eng *physics.Engine) *Simulator {
	return &Simulator{
		eng:       eng,
		metrics:   make([]Metric, 0),
		observers: make([]Observer, 0),
	}
}

func (s *Simulator) Engine() *physics.Engine { return s.eng }

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// Run ticks the engine cfg.Duration/dt times, each tick dt past the
// engine's current time, so a reset mid-run resumes from the new clock. A
// failed tick is recorded in Result.Errors and retried on the next one
// unless cfg.StopOnError is set; any other error ends the run and is
// returned with the partial result.
func (s *Simulator) Run(ctx context.Context, cfg Config) (*Result, error) {
	dt, err := s.tickInterval(cfg)
	if err != nil {
		return nil, err
	}

	steps := int(math.Round(cfg.Duration / dt))
	every := max(cfg.RecordEvery, 1)
	result := &Result{
		Metrics: make(map[string]float64),
		Errors:  make([]error, 0),
	}
	if cfg.Record {
		result.Frames = make([]Frame, 0, steps/every+1)
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	frame := Capture(s.eng)
	result.Start = frame.Time
	initialEnergy := frame.Energy()
	s.observe(frame)
	if cfg.Record {
		result.Frames = append(result.Frames, frame)
	}

	pace := newPacer(frame.Time)
	wallStart := time.Now()
	defer func() { result.Wall = time.Since(wallStart) }()

	for i := 1; i <= steps; i++ {
		select {
		case <-ctx.Done():
			result.End = s.eng.Time()
			return result, ctx.Err()
		default:
		}

		target := s.eng.Time() + dt
		if err := s.eng.Step(ctx, target); err != nil {
			var tickErr *physics.TickError
			if !errors.As(err, &tickErr) || cfg.StopOnError {
				result.End = s.eng.Time()
				return result, err
			}
			result.Errors = append(result.Errors, err)
			continue
		}
		result.StepsTaken++

		frame = Capture(s.eng)
		if cfg.ValidateState && !frame.IsValid() {
			result.Errors = append(result.Errors, SimError{Time: frame.Time, Step: i, Message: "invalid state (NaN/Inf)"})
			break
		}
		s.observe(frame)
		if cfg.Record && i%every == 0 {
			result.Frames = append(result.Frames, frame)
		}

		if err := pace.wait(ctx, target, s.eng.Info().RealTimeFactor); err != nil {
			result.End = s.eng.Time()
			return result, err
		}
	}

	result.End = s.eng.Time()
	if initialEnergy != 0 {
		result.EnergyDrift = math.Abs(frame.Energy()-initialEnergy) / math.Abs(initialEnergy)
	}
	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	return result, nil
}

func (s *Simulator) tickInterval(cfg Config) (float64, error) {
	if cfg.Duration <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %f", cfg.Duration)
	}
	if cfg.Dt < 0 {
		return 0, fmt.Errorf("dt must not be negative, got %f", cfg.Dt)
	}
	if cfg.Dt > 0 {
		return cfg.Dt, nil
	}
	info := s.eng.Info()
	if info.UpdateRate > 0 {
		return 1 / info.UpdateRate, nil
	}
	return info.MaxStepSize, nil
}

func (s *Simulator) observe(f Frame) {
	for _, m := range s.metrics {
		m.Observe(f)
	}
	for _, obs := range s.observers {
		obs.OnStep(f)
	}
}

// pacer holds simulation time to wall time scaled by the real time factor.
// A factor change or a clock moved back by a reset restarts the reference.
type pacer struct {
	rtf      float64
	simStart float64
	wall     time.Time
}

func newPacer(t float64) *pacer {
	return &pacer{simStart: t, wall: time.Now()}
}

func (p *pacer) wait(ctx context.Context, t, rtf float64) error {
	if rtf != p.rtf || t < p.simStart {
		p.rtf = rtf
		p.simStart = t
		p.wall = time.Now()
		return nil
	}
	if rtf <= 0 {
		return nil
	}
	due := p.wall.Add(time.Duration((t - p.simStart) / rtf * float64(time.Second)))
	d := time.Until(due)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
