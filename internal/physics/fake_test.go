package physics_test

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigidsim/internal/backend"
	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/graph"
	"github.com/san-kum/rigidsim/internal/integrators"
	"github.com/san-kum/rigidsim/internal/scene"
)

const fakeName = "fake"

// fakeControl steers every fake world the registry hands out.
type fakeControl struct {
	created   int
	failSteps int
	last      *fakeWorld
}

var fake = &fakeControl{}

func (c *fakeControl) reset() { *c = fakeControl{} }

func init() {
	backend.Register(fakeName, func(opts backend.Options) (backend.World, error) {
		fake.created++
		w := &fakeWorld{
			opts:           opts,
			defaultGravity: opts.Gravity,
			maxStep:        opts.MaxStepSize,
			poses:          map[*scene.Link]geom.Pose{},
		}
		fake.last = w
		return w, nil
	})
}

// fakeWorld slides every link along +X at 1 m/s.
type fakeWorld struct {
	opts        backend.Options
	initialized bool
	time        float64

	defaultGravity mgl64.Vec3
	gravity        mgl64.Vec3
	liveGravitySet int
	maxStep        float64

	poses   map[*scene.Link]geom.Pose
	forces  int
	cleared int
}

func (w *fakeWorld) Kind() scene.BackendKind { return scene.TreeBackend }
func (w *fakeWorld) SolverType() string      { return "fake solver" }
func (w *fakeWorld) IntegratorType() string  { return w.opts.Integrator }

func (w *fakeWorld) BindModel(m *scene.Model, g *graph.Graph) error {
	if w.initialized {
		return backend.ErrInitialized
	}
	if m.Name == "broken" {
		return &backend.BindError{Model: m.Name, Wrapped: fmt.Errorf("refused")}
	}
	for i, l := range m.Links {
		l.SetMaster(scene.BodyHandle{Backend: scene.TreeBackend, Index: i})
		w.poses[l] = l.DefaultWorldPose()
	}
	return nil
}

func (w *fakeWorld) Initialize() error {
	w.initialized = true
	w.gravity = w.defaultGravity
	return nil
}

func (w *fakeWorld) Initialized() bool { return w.initialized }

func (w *fakeWorld) Reset() error {
	w.time = 0
	w.gravity = w.defaultGravity
	return nil
}

func (w *fakeWorld) Time() float64     { return w.time }
func (w *fakeWorld) SetTime(t float64) { w.time = t }

func (w *fakeWorld) StepTo(target float64) error {
	if fake.failSteps > 0 {
		fake.failSteps--
		return &integrators.StepError{Time: w.time, Dt: target - w.time, Wrapped: integrators.ErrInvalidState}
	}
	dx := target - w.time
	for l, p := range w.poses {
		p.Pos[0] += dx
		w.poses[l] = p
	}
	w.time = target
	return nil
}

func (w *fakeWorld) SetDefaultGravity(g mgl64.Vec3) { w.defaultGravity = g }

func (w *fakeWorld) SetGravity(g mgl64.Vec3) error {
	if !w.initialized {
		return backend.ErrNotInitialized
	}
	w.gravity = g
	w.liveGravitySet++
	return nil
}

func (w *fakeWorld) Gravity() mgl64.Vec3 {
	if w.initialized {
		return w.gravity
	}
	return w.defaultGravity
}

func (w *fakeWorld) Accuracy() float64           { return w.opts.Accuracy }
func (w *fakeWorld) TransitionVelocity() float64 { return w.opts.TransitionVelocity }
func (w *fakeWorld) MaxStepSize() float64        { return w.maxStep }
func (w *fakeWorld) SetMaxStepSize(dt float64)   { w.maxStep = dt }

func (w *fakeWorld) LinkPose(l *scene.Link) (geom.Pose, error) {
	p, ok := w.poses[l]
	if !ok {
		return geom.Pose{}, backend.ErrNotBound
	}
	return p, nil
}

func (w *fakeWorld) LinkVelocity(l *scene.Link) (geom.Velocity, error) {
	if _, ok := w.poses[l]; !ok {
		return geom.Velocity{}, backend.ErrNotBound
	}
	return geom.Velocity{Linear: mgl64.Vec3{1, 0, 0}}, nil
}

func (w *fakeWorld) SetLinkState(l *scene.Link, p geom.Pose, v geom.Velocity) error {
	if _, ok := w.poses[l]; !ok {
		return backend.ErrNotBound
	}
	w.poses[l] = p
	return nil
}

func (w *fakeWorld) JointState(j *scene.Joint) ([]float64, []float64, error) {
	return nil, nil, backend.ErrNotBound
}

func (w *fakeWorld) SetJointState(j *scene.Joint, q, u []float64) error {
	return backend.ErrNotBound
}

func (w *fakeWorld) SetJointForce(j *scene.Joint, axis int, f float64) error {
	return backend.ErrNotBound
}

func (w *fakeWorld) JointWrench(j *scene.Joint) (geom.Wrench, error) {
	return geom.Wrench{}, backend.ErrNotBound
}

func (w *fakeWorld) ApplyLinkForce(l *scene.Link, force, point mgl64.Vec3) error {
	w.forces++
	return nil
}

func (w *fakeWorld) ApplyLinkTorque(l *scene.Link, torque mgl64.Vec3) error {
	w.forces++
	return nil
}

func (w *fakeWorld) ClearForces() {
	w.forces = 0
	w.cleared++
}
