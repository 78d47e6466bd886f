package automation

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/san-kum/rigidsim/internal/backend/tree"
	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/logging"
	"github.com/san-kum/rigidsim/internal/physics"
	"github.com/san-kum/rigidsim/internal/sceneio"
	"github.com/san-kum/rigidsim/internal/sim"
)

const twoPendulums = `
name: pair
physics:
  real_time_factor: 0
models:
  - name: left
    links:
      - name: bob
        pose: [0.5, 0, -1]
        mass: 1
    joints:
      - name: pivot
        type: revolute
        child: bob
        pose: [-0.5, 0, 1]
        axes:
          - xyz: [0, 1, 0]
  - name: right
    pose: [3, 0, 0]
    links:
      - name: bob
        pose: [0.5, 0, -1]
        mass: 1
    joints:
      - name: pivot
        type: revolute
        child: bob
        pose: [-0.5, 0, 1]
        axes:
          - xyz: [0, 1, 0]
`

const pairScenario = `
name: pair
scene: pair.yaml
duration: 0.1
dt: 0.01
events:
  - at: 0.03
    add_model: right
  - at: 0.05
    gravity: [0, 0, -1.62]
  - at: 0.06
    joint_force: {model: left, joint: elbow, value: 1}
  - at: 0.07
    torque: {model: left, link: bob, value: [0, 0.5, 0], duration: 0.02}
  - at: 0.08
    remove_model: left
`

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestLoadScenario(t *testing.T) {
	dir := writeFiles(t, map[string]string{"pair.yaml": twoPendulums, "run.yaml": pairScenario})

	s, err := LoadScenario(filepath.Join(dir, "run.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "pair", s.Name)
	assert.Len(t, s.Events, 5)
	assert.Equal(t, filepath.Join(dir, "pair.yaml"), s.ScenePath())
	require.NotNil(t, s.Events[3].Torque)
	assert.Equal(t, 0.02, s.Events[3].Torque.Duration)

	sc, err := sceneio.Load(s.ScenePath(), nil)
	require.NoError(t, err)
	initial := InitialModels(s, sc)
	require.Len(t, initial, 1)
	assert.Equal(t, "left", initial[0].Name)
}

func TestScenarioValidate(t *testing.T) {
	tests := []struct {
		name string
		s    Scenario
	}{
		{"no scene", Scenario{Duration: 1}},
		{"no duration", Scenario{Scene: "x.yaml"}},
		{"negative dt", Scenario{Scene: "x.yaml", Duration: 1, Dt: -1}},
		{"unknown preset", Scenario{Scene: "x.yaml", Duration: 1, Preset: "bouncy"}},
		{"empty event", Scenario{Scene: "x.yaml", Duration: 1, Events: []Event{{At: 1}}}},
		{"two actions", Scenario{Scene: "x.yaml", Duration: 1, Events: []Event{{Reset: true, RemoveModel: "a"}}}},
		{"short gravity", Scenario{Scene: "x.yaml", Duration: 1, Events: []Event{{Gravity: []float64{0, -9.8}}}}},
		{"short force", Scenario{Scene: "x.yaml", Duration: 1, Events: []Event{{Force: &LinkLoad{Value: []float64{1}}}}}},
		{"hold without gain", Scenario{Scene: "x.yaml", Duration: 1, Events: []Event{{HoldJoint: &JointTarget{Model: "a", Joint: "j"}}}}},
		{"negative time", Scenario{Scene: "x.yaml", Duration: 1, Events: []Event{{At: -1, Reset: true}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.s.Validate(), ErrInvalidScenario)
		})
	}

	ok := Scenario{Scene: "x.yaml", Duration: 1, Preset: "planar", Events: []Event{{At: 0.5, Reset: true}}}
	assert.NoError(t, ok.Validate())
}

func TestRunScenario(t *testing.T) {
	dir := writeFiles(t, map[string]string{"pair.yaml": twoPendulums, "run.yaml": pairScenario})
	s, err := LoadScenario(filepath.Join(dir, "run.yaml"))
	require.NoError(t, err)

	rec := logging.NewRecorder()
	report, err := RunScenario(context.Background(), s, rec)
	require.NoError(t, err)

	r := report.Result
	assert.Equal(t, 10, r.StepsTaken)
	assert.InDelta(t, 0.1, r.End, 1e-9)
	assert.Empty(t, r.Errors)
	require.Len(t, r.Frames, 11)

	// Only the unknown joint fails.
	require.Len(t, report.EventErrors, 1)
	assert.Contains(t, report.EventErrors[0].Error(), "elbow")
	assert.Equal(t, 1, rec.Count("WARN"))

	_, ok := r.Frames[2].Link("right", "bob")
	assert.False(t, ok, "right is added at 0.03")
	_, ok = r.Frames[4].Link("right", "bob")
	assert.True(t, ok)
	_, ok = r.Frames[8].Link("left", "bob")
	assert.True(t, ok)
	_, ok = r.Frames[9].Link("left", "bob")
	assert.False(t, ok, "left is removed at 0.08")

	assert.Equal(t, mgl64.Vec3{0, 0, -9.8}, r.Frames[5].Gravity)
	assert.Equal(t, mgl64.Vec3{0, 0, -1.62}, r.Frames[6].Gravity)
}

const holdScenario = `
name: hold
scene: pair.yaml
duration: 1.5
dt: 0.01
events:
  - at: 0
    hold_joint: {model: left, joint: pivot, target: 0.5, kp: 400, ki: 10, kd: 40}
  - at: 0.5
    hold_joint: {model: right, joint: pivot, target: 0.5, kp: 400, kd: 40, duration: 0.01}
`

func TestHoldJoint(t *testing.T) {
	dir := writeFiles(t, map[string]string{"pair.yaml": twoPendulums, "hold.yaml": holdScenario})
	s, err := LoadScenario(filepath.Join(dir, "hold.yaml"))
	require.NoError(t, err)
	require.NotNil(t, s.Events[0].HoldJoint)
	assert.Equal(t, 400.0, s.Events[0].HoldJoint.Kp)

	sc, err := sceneio.Load(s.ScenePath(), nil)
	require.NoError(t, err)
	eng, err := physics.New(EngineConfig(sc, s.Preset))
	require.NoError(t, err)
	defer eng.Close()

	ctx := context.Background()
	report, err := NewRunner(eng, sim.New(eng), sc).Run(ctx, s, InitialModels(s, sc))
	require.NoError(t, err)
	assert.Empty(t, report.EventErrors)
	assert.Equal(t, 150, report.Result.StepsTaken)

	left := sc.Models[0]
	q, err := eng.JointPosition(ctx, left.JointByName("pivot"), 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, q, 0.05)

	// The brief hold on the right pendulum has expired.
	right := sc.Models[1]
	q, err = eng.JointPosition(ctx, right.JointByName("pivot"), 0)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(q))
}

func TestEngineConfig(t *testing.T) {
	withPhysics := &sceneio.Scene{Physics: config.GetPreset("precise")}
	assert.Equal(t, "rk4", EngineConfig(withPhysics, "planar").Integrator)

	bare := &sceneio.Scene{}
	assert.Equal(t, "planar", EngineConfig(bare, "planar").Backend)
	assert.Equal(t, config.DefaultBackend, EngineConfig(bare, "").Backend)
}

func TestRunSweep(t *testing.T) {
	dir := writeFiles(t, map[string]string{"pair.yaml": twoPendulums})

	results, err := RunSweep(context.Background(), &ParameterSweep{
		Scene:    filepath.Join(dir, "pair.yaml"),
		Param:    "integrator_type",
		Values:   []any{"semi_explicit_euler", "rk4"},
		Duration: 0.05,
		Dt:       0.01,
	}, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	for i, want := range []string{"semi_explicit_euler", "rk4"} {
		assert.Equal(t, want, results[i].Integrator)
		assert.Equal(t, 5, results[i].Result.StepsTaken)
		assert.Contains(t, results[i].Result.Metrics, "energy_drift")
		assert.Equal(t, 1.0, results[i].Result.Metrics["stability"])
		bob, ok := results[i].Final.Link("left", "bob")
		require.True(t, ok)
		assert.Less(t, bob.Pose.Pos[0], 0.5)
	}

	_, err = RunSweep(context.Background(), &ParameterSweep{
		Scene:    filepath.Join(dir, "pair.yaml"),
		Param:    "accuracy",
		Values:   []any{-1.0},
		Duration: 0.05,
	}, nil)
	assert.Error(t, err)
}
