package sim

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	_ "github.com/san-kum/rigidsim/internal/backend/tree"
	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/jointtype"
	"github.com/san-kum/rigidsim/internal/physics"
	"github.com/san-kum/rigidsim/internal/scene"
)

// pendulum hangs a bob one metre below a pin at the origin, displaced by
// offset along X.
func pendulum(offset float64) *scene.Model {
	m := scene.NewModel("pendulum")
	bob, _ := m.AddLink("bob", scene.SolidSphere(1, 0.1), geom.NewPose(offset, 0, -1, 0, 0, 0))
	j, _ := m.AddJoint("pivot", jointtype.Revolute, nil, bob)
	j.Pose = geom.NewPose(-offset, 0, 1, 0, 0, 0)
	j.Axes[0].Xyz = mgl64.Vec3{0, 1, 0}
	return m
}

func newEngine(t *testing.T, rtf float64, gravity mgl64.Vec3) *physics.Engine {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RealTimeFactor = rtf
	cfg.SetGravityVec(gravity)
	eng, err := physics.New(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(eng.Close)
	if err := eng.AddModel(context.Background(), pendulum(0.5)); err != nil {
		t.Fatalf("add model: %v", err)
	}
	return eng
}

type countMetric struct {
	count int
	sum   float64
}

func (c *countMetric) Name() string { return "count" }
func (c *countMetric) Observe(f Frame) {
	c.count++
	c.sum += f.Time
}
func (c *countMetric) Value() float64 { return float64(c.count) }
func (c *countMetric) Reset() {
	c.count = 0
	c.sum = 0
}

func TestSimulatorRun(t *testing.T) {
	eng := newEngine(t, 0, mgl64.Vec3{0, 0, -9.8})
	s := New(eng)

	metric := &countMetric{}
	s.AddMetric(metric)
	var seen int
	s.AddObserver(ObserverFunc(func(Frame) { seen++ }))

	result, err := s.Run(context.Background(), Config{Duration: 0.1, Dt: 0.01, Record: true})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if result.StepsTaken != 10 {
		t.Errorf("expected 10 steps, got %d", result.StepsTaken)
	}
	if len(result.Frames) != 11 {
		t.Errorf("expected 11 frames, got %d", len(result.Frames))
	}
	if math.Abs(result.End-0.1) > 1e-9 {
		t.Errorf("expected end time 0.1, got %f", result.End)
	}
	if metric.count != 11 || seen != 11 {
		t.Errorf("expected 11 observations, got metric %d observer %d", metric.count, seen)
	}
	if result.Metrics["count"] != 11 {
		t.Errorf("metric not found in result: %v", result.Metrics)
	}

	first, _ := result.Frames[0].Link("pendulum", "bob")
	last, _ := result.Frames[10].Link("pendulum", "bob")
	if last.Pose.Pos[0] >= first.Pose.Pos[0] {
		t.Errorf("bob did not swing back: x %f -> %f", first.Pose.Pos[0], last.Pose.Pos[0])
	}
	if result.EnergyDrift > 0.05 {
		t.Errorf("energy drift %f", result.EnergyDrift)
	}
}

func TestSimulatorRecordEvery(t *testing.T) {
	eng := newEngine(t, 0, mgl64.Vec3{0, 0, -9.8})

	result, err := New(eng).Run(context.Background(), Config{Duration: 0.1, Dt: 0.01, Record: true, RecordEvery: 5})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Frames) != 3 {
		t.Errorf("expected 3 frames, got %d", len(result.Frames))
	}
}

func TestSimulatorDefaultsToUpdateRate(t *testing.T) {
	eng := newEngine(t, 0, mgl64.Vec3{0, 0, -9.8})

	result, err := New(eng).Run(context.Background(), Config{Duration: 0.01})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	want := int(config.DefaultUpdateRate * 0.01)
	if result.StepsTaken != want {
		t.Errorf("expected %d steps at the update rate, got %d", want, result.StepsTaken)
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	eng := newEngine(t, 0, mgl64.Vec3{0, 0, -9.8})
	s := New(eng)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative dt", Config{Dt: -0.1, Duration: 1.0}},
		{"zero duration", Config{Dt: 0.1, Duration: 0}},
		{"negative duration", Config{Dt: 0.1, Duration: -1.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Run(context.Background(), tt.cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestSimulatorCancel(t *testing.T) {
	eng := newEngine(t, 0, mgl64.Vec3{0, 0, -9.8})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := New(eng).Run(ctx, Config{Duration: 1, Dt: 0.01})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.StepsTaken != 0 {
		t.Errorf("expected no steps, got %d", result.StepsTaken)
	}
}

func TestSimulatorPacesRealTime(t *testing.T) {
	eng := newEngine(t, 1, mgl64.Vec3{0, 0, -9.8})

	result, err := New(eng).Run(context.Background(), Config{Duration: 0.06, Dt: 0.01})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Wall < 40*time.Millisecond {
		t.Errorf("run took %v, expected about 60ms of wall time", result.Wall)
	}
}

func TestEnsemble(t *testing.T) {
	gravities := []float64{-1, -5, -20}
	build := func(idx int) (*Simulator, error) {
		cfg := config.DefaultConfig()
		cfg.RealTimeFactor = 0
		cfg.SetGravityVec(mgl64.Vec3{0, 0, gravities[idx]})
		eng, err := physics.New(cfg)
		if err != nil {
			return nil, err
		}
		if err := eng.AddModel(context.Background(), pendulum(0.5)); err != nil {
			return nil, err
		}
		return New(eng), nil
	}

	results, err := NewEnsemble(build, len(gravities)).Run(context.Background(), Config{Duration: 0.1, Dt: 0.01, Record: true})
	if err != nil {
		t.Fatalf("ensemble failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	prev := math.Inf(1)
	for i, r := range results {
		bob, ok := r.Frames[len(r.Frames)-1].Link("pendulum", "bob")
		if !ok {
			t.Fatalf("run %d has no bob", i)
		}
		if bob.Pose.Pos[0] >= prev {
			t.Errorf("run %d: stronger gravity should swing further, x=%f after %f", i, bob.Pose.Pos[0], prev)
		}
		prev = bob.Pose.Pos[0]
	}
}
