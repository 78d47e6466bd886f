// Package automation runs scripted simulations: scenarios that load a scene
// and change the world at given times, and parameter sweeps that run one
// scene under several solver settings side by side.
package automation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/control"
	"github.com/san-kum/rigidsim/internal/logging"
	"github.com/san-kum/rigidsim/internal/physics"
	"github.com/san-kum/rigidsim/internal/sceneio"
	"github.com/san-kum/rigidsim/internal/scene"
	"github.com/san-kum/rigidsim/internal/sim"
)

var ErrInvalidScenario = errors.New("automation: invalid scenario")

// Scenario defines a scripted simulation sequence
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Scene is a scene file, relative to the scenario file.
	Scene string `yaml:"scene"`
	// Preset names the physics configuration used when the scene has no
	// physics section.
	Preset   string  `yaml:"preset"`
	Duration float64 `yaml:"duration"`
	Dt       float64 `yaml:"dt"`
	Events   []Event `yaml:"events"`

	dir string
}

// Event changes the world once simulation time reaches At. Exactly one
// action is set.
type Event struct {
	At          float64             `yaml:"at"`
	Gravity     []float64           `yaml:"gravity,flow"`
	Force       *LinkLoad           `yaml:"force"`
	Torque      *LinkLoad           `yaml:"torque"`
	JointForce  *JointLoad          `yaml:"joint_force"`
	HoldJoint   *JointTarget        `yaml:"hold_joint"`
	AddModel    string              `yaml:"add_model"`
	RemoveModel string              `yaml:"remove_model"`
	Physics     *physics.PhysicsMsg `yaml:"physics"`
	Param       *Param              `yaml:"param"`
	Reset       bool                `yaml:"reset"`
}

// LinkLoad is a force or torque on a link. It is held for Duration
// seconds; zero applies it for a single tick.
type LinkLoad struct {
	Model    string    `yaml:"model"`
	Link     string    `yaml:"link"`
	Value    []float64 `yaml:"value,flow"`
	Point    []float64 `yaml:"point,flow"`
	Duration float64   `yaml:"duration"`
}

type JointLoad struct {
	Model    string  `yaml:"model"`
	Joint    string  `yaml:"joint"`
	Axis     int     `yaml:"axis"`
	Value    float64 `yaml:"value"`
	Duration float64 `yaml:"duration"`
}

// JointTarget drives a joint axis toward Target with a PID loop. Zero
// Duration holds it until the run ends.
type JointTarget struct {
	Model    string  `yaml:"model"`
	Joint    string  `yaml:"joint"`
	Axis     int     `yaml:"axis"`
	Target   float64 `yaml:"target"`
	Kp       float64 `yaml:"kp"`
	Ki       float64 `yaml:"ki"`
	Kd       float64 `yaml:"kd"`
	MaxForce float64 `yaml:"max_force"`
	Duration float64 `yaml:"duration"`
}

type Param struct {
	Key   string `yaml:"key"`
	Value any    `yaml:"value"`
}

func (ev Event) actions() int {
	n := 0
	for _, set := range []bool{
		ev.Gravity != nil, ev.Force != nil, ev.Torque != nil, ev.JointForce != nil, ev.HoldJoint != nil,
		ev.AddModel != "", ev.RemoveModel != "", ev.Physics != nil, ev.Param != nil, ev.Reset,
	} {
		if set {
			n++
		}
	}
	return n
}

// Validate checks the scenario without touching any engine.
func (s *Scenario) Validate() error {
	if s.Scene == "" {
		return fmt.Errorf("%w: no scene", ErrInvalidScenario)
	}
	if s.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %g", ErrInvalidScenario, s.Duration)
	}
	if s.Dt < 0 {
		return fmt.Errorf("%w: dt must not be negative, got %g", ErrInvalidScenario, s.Dt)
	}
	if s.Preset != "" && config.GetPreset(s.Preset) == nil {
		return fmt.Errorf("%w: unknown preset %q", ErrInvalidScenario, s.Preset)
	}
	for i, ev := range s.Events {
		if n := ev.actions(); n != 1 {
			return fmt.Errorf("%w: event %d at t=%g has %d actions, want 1", ErrInvalidScenario, i, ev.At, n)
		}
		if ev.At < 0 {
			return fmt.Errorf("%w: event %d at negative time %g", ErrInvalidScenario, i, ev.At)
		}
		if ev.Gravity != nil && len(ev.Gravity) != 3 {
			return fmt.Errorf("%w: event %d gravity needs 3 components", ErrInvalidScenario, i)
		}
		if h := ev.HoldJoint; h != nil && (h.Kp <= 0 || h.MaxForce < 0 || h.Duration < 0) {
			return fmt.Errorf("%w: event %d hold_joint needs kp > 0 and non-negative max_force and duration", ErrInvalidScenario, i)
		}
		for _, l := range []*LinkLoad{ev.Force, ev.Torque} {
			if l != nil && len(l.Value) != 3 {
				return fmt.Errorf("%w: event %d load needs 3 components", ErrInvalidScenario, i)
			}
			if l != nil && l.Point != nil && len(l.Point) != 3 {
				return fmt.Errorf("%w: event %d point needs 3 components", ErrInvalidScenario, i)
			}
		}
	}
	return nil
}

// ScenePath is the scene file resolved against the scenario's directory.
func (s *Scenario) ScenePath() string {
	if filepath.IsAbs(s.Scene) || s.dir == "" {
		return s.Scene
	}
	return filepath.Join(s.dir, s.Scene)
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	scenario.dir = filepath.Dir(path)
	if err := scenario.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &scenario, nil
}

// EngineConfig picks the physics configuration for a scene: its own
// physics section, else the named preset, else the defaults.
func EngineConfig(sc *sceneio.Scene, preset string) *config.Config {
	switch {
	case sc.Physics != nil:
		return sc.Physics.Clone()
	case preset != "":
		if cfg := config.GetPreset(preset); cfg != nil {
			return cfg
		}
	}
	return config.DefaultConfig()
}

// Report is the outcome of a scenario run.
type Report struct {
	Result *sim.Result
	// EventErrors holds the events that could not be applied. They do not
	// stop the run.
	EventErrors []error
}

// Runner plays scenarios against one engine.
type Runner struct {
	eng    *physics.Engine
	sim    *sim.Simulator
	models map[string]*scene.Model
	log    logging.Logger

	ctx     context.Context
	pending []Event
	loads   []heldLoad
	errs    []error
}

// heldLoad is a load re-applied after every tick until its time is up.
type heldLoad struct {
	model string
	until float64
	apply func(ctx context.Context) error
}

// NewRunner prepares the scene's models for eng. Models named by
// add_model events are taken from sc.
func NewRunner(eng *physics.Engine, s *sim.Simulator, sc *sceneio.Scene) *Runner {
	r := &Runner{
		eng:    eng,
		sim:    s,
		models: map[string]*scene.Model{},
		log:    eng.Logger(),
	}
	for _, m := range sc.Models {
		r.models[m.Name] = m
	}
	s.AddObserver(sim.ObserverFunc(r.onStep))
	return r
}

// Run loads every given model not already in the engine, then advances
// by the scenario's duration, firing events as their time passes. An
// event fires after the first tick that reaches its time; events at zero
// fire before the first tick. After a reset, pending events wait for the
// rewound clock to reach them.
func (r *Runner) Run(ctx context.Context, s *Scenario, models []*scene.Model) (*Report, error) {
	for _, m := range models {
		if r.eng.Model(m.ID) != nil {
			continue
		}
		if err := r.eng.AddModel(ctx, m); err != nil {
			return nil, err
		}
	}

	start := r.eng.Time()
	r.ctx = ctx
	r.pending = make([]Event, len(s.Events))
	copy(r.pending, s.Events)
	for i := range r.pending {
		r.pending[i].At += start
	}
	sort.SliceStable(r.pending, func(i, j int) bool { return r.pending[i].At < r.pending[j].At })
	r.loads = nil
	r.errs = nil
	defer func() { r.ctx = nil }()

	result, err := r.sim.Run(ctx, sim.Config{Duration: s.Duration, Dt: s.Dt, Record: true})
	return &Report{Result: result, EventErrors: r.errs}, err
}

func (r *Runner) onStep(f sim.Frame) {
	if r.ctx == nil {
		return
	}
	kept := r.loads[:0]
	for _, l := range r.loads {
		if f.Time >= l.until {
			continue
		}
		if err := l.apply(r.ctx); err != nil {
			r.fail(f.Time, err)
			continue
		}
		kept = append(kept, l)
	}
	r.loads = kept
	r.fire(f.Time)
}

// fire applies every pending event due at t.
func (r *Runner) fire(t float64) {
	const eps = 1e-9
	for len(r.pending) > 0 && r.pending[0].At <= t+eps {
		ev := r.pending[0]
		r.pending = r.pending[1:]
		if err := r.apply(ev, t); err != nil {
			r.fail(t, err)
		}
	}
}

func (r *Runner) fail(t float64, err error) {
	r.log.Warnf("scenario event at t=%.4f: %v", t, err)
	r.errs = append(r.errs, err)
}

func (r *Runner) loaded(name string) (*scene.Model, error) {
	for _, m := range r.eng.Models() {
		if m.Name == name {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", physics.ErrUnknownModel, name)
}

func (r *Runner) link(model, link string) (*scene.Link, error) {
	m, err := r.loaded(model)
	if err != nil {
		return nil, err
	}
	l := m.LinkByName(link)
	if l == nil {
		return nil, fmt.Errorf("model %q has no link %q", model, link)
	}
	return l, nil
}

func vec(v []float64) mgl64.Vec3 {
	if len(v) != 3 {
		return mgl64.Vec3{}
	}
	return mgl64.Vec3{v[0], v[1], v[2]}
}

func (r *Runner) joint(model, joint string) (*scene.Joint, error) {
	m, err := r.loaded(model)
	if err != nil {
		return nil, err
	}
	j := m.JointByName(joint)
	if j == nil {
		return nil, fmt.Errorf("model %q has no joint %q", model, joint)
	}
	return j, nil
}

func (r *Runner) hold(model string, now, duration float64, apply func(ctx context.Context) error) error {
	if err := apply(r.ctx); err != nil {
		return err
	}
	if duration > 0 {
		r.loads = append(r.loads, heldLoad{model: model, until: now + duration, apply: apply})
	}
	return nil
}

// release drops the held loads on a model.
func (r *Runner) release(model string) {
	kept := r.loads[:0]
	for _, l := range r.loads {
		if l.model != model {
			kept = append(kept, l)
		}
	}
	r.loads = kept
}

func (r *Runner) apply(ev Event, now float64) error {
	ctx := r.ctx
	switch {
	case ev.Gravity != nil:
		return r.eng.SetGravity(ctx, vec(ev.Gravity))
	case ev.Force != nil:
		l, err := r.link(ev.Force.Model, ev.Force.Link)
		if err != nil {
			return err
		}
		force, point := vec(ev.Force.Value), vec(ev.Force.Point)
		return r.hold(ev.Force.Model, now, ev.Force.Duration, func(ctx context.Context) error {
			return r.eng.ApplyLinkForce(ctx, l, force, point)
		})
	case ev.Torque != nil:
		l, err := r.link(ev.Torque.Model, ev.Torque.Link)
		if err != nil {
			return err
		}
		torque := vec(ev.Torque.Value)
		return r.hold(ev.Torque.Model, now, ev.Torque.Duration, func(ctx context.Context) error {
			return r.eng.ApplyLinkTorque(ctx, l, torque)
		})
	case ev.JointForce != nil:
		jl := ev.JointForce
		j, err := r.joint(jl.Model, jl.Joint)
		if err != nil {
			return err
		}
		return r.hold(jl.Model, now, jl.Duration, func(ctx context.Context) error {
			return r.eng.SetJointForce(ctx, j, jl.Axis, jl.Value)
		})
	case ev.HoldJoint != nil:
		h := ev.HoldJoint
		j, err := r.joint(h.Model, h.Joint)
		if err != nil {
			return err
		}
		pid := control.NewPID(h.Kp, h.Ki, h.Kd, h.Target)
		pid.MaxOutput = h.MaxForce
		ctl, err := control.NewJointController(r.eng, j, h.Axis, pid)
		if err != nil {
			return err
		}
		until := math.Inf(1)
		if h.Duration > 0 {
			until = now + h.Duration
		}
		update := func(ctx context.Context) error {
			_, err := ctl.Update(ctx, r.eng.Time())
			return err
		}
		if err := update(ctx); err != nil {
			return err
		}
		r.loads = append(r.loads, heldLoad{model: h.Model, until: until, apply: update})
		return nil
	case ev.AddModel != "":
		m, ok := r.models[ev.AddModel]
		if !ok {
			return fmt.Errorf("scene has no model %q", ev.AddModel)
		}
		return r.eng.AddModel(ctx, m)
	case ev.RemoveModel != "":
		m, err := r.loaded(ev.RemoveModel)
		if err != nil {
			return err
		}
		r.release(m.Name)
		return r.eng.RemoveModel(ctx, m.ID)
	case ev.Physics != nil:
		return r.eng.HandlePhysicsMsg(ctx, *ev.Physics)
	case ev.Param != nil:
		return r.eng.SetParam(ctx, ev.Param.Key, ev.Param.Value)
	case ev.Reset:
		r.loads = nil
		return r.eng.Reset(ctx)
	}
	return fmt.Errorf("%w: empty event", ErrInvalidScenario)
}

// RunScenario loads the scenario's scene into a fresh engine and plays it.
func RunScenario(ctx context.Context, s *Scenario, log logging.Logger, opts ...physics.Option) (*Report, error) {
	sc, err := sceneio.Load(s.ScenePath(), log)
	if err != nil {
		return nil, err
	}
	opts = append([]physics.Option{physics.WithLogger(log)}, opts...)
	eng, err := physics.New(EngineConfig(sc, s.Preset), opts...)
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	log.Infof("scenario [%s]: %d models, %d events over %gs", s.Name, len(sc.Models), len(s.Events), s.Duration)
	return NewRunner(eng, sim.New(eng), sc).Run(ctx, s, InitialModels(s, sc))
}

// InitialModels is the scene without the models whose first event adds
// them.
func InitialModels(s *Scenario, sc *sceneio.Scene) []*scene.Model {
	events := make([]Event, len(s.Events))
	copy(events, s.Events)
	sort.SliceStable(events, func(i, j int) bool { return events[i].At < events[j].At })

	deferred := map[string]bool{}
	seen := map[string]bool{}
	for _, ev := range events {
		switch {
		case ev.AddModel != "" && !seen[ev.AddModel]:
			seen[ev.AddModel] = true
			deferred[ev.AddModel] = true
		case ev.RemoveModel != "":
			seen[ev.RemoveModel] = true
		}
	}

	out := make([]*scene.Model, 0, len(sc.Models))
	for _, m := range sc.Models {
		if !deferred[m.Name] {
			out = append(out, m)
		}
	}
	return out
}
