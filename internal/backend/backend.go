// Package backend defines the world a physics engine steps and the
// registry of interchangeable implementations. A World is built fresh for
// every topology change: models are bound into it, it is initialized once,
// and from then on only state and force parameters change.
package backend

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/graph"
	"github.com/san-kum/rigidsim/internal/integrators"
	"github.com/san-kum/rigidsim/internal/logging"
	"github.com/san-kum/rigidsim/internal/scene"
	"github.com/san-kum/rigidsim/internal/shapes"
)

var (
	ErrUnknownBackend   = errors.New("backend: unknown backend")
	ErrUnknownJointKind = errors.New("backend: joint kind not implemented")
	ErrMissingChild     = errors.New("backend: joint has no child link")
	ErrNotBound         = errors.New("backend: element is not bound to this world")
	ErrNotInitialized   = errors.New("backend: world is not initialized")
	ErrInitialized      = errors.New("backend: world is already initialized")
)

// BindError reports which model and element a bind failed on.
type BindError struct {
	Model   string
	Element string
	Wrapped error
}

func (e *BindError) Error() string {
	if e.Element == "" {
		return fmt.Sprintf("bind model %q: %v", e.Model, e.Wrapped)
	}
	return fmt.Sprintf("bind model %q at %q: %v", e.Model, e.Element, e.Wrapped)
}

func (e *BindError) Unwrap() error { return e.Wrapped }

// Options configure a new World.
type Options struct {
	Integrator         string
	Accuracy           float64
	MaxStepSize        float64
	MinStepSize        float64
	TransitionVelocity float64
	Material           scene.ContactMaterial
	Gravity            mgl64.Vec3
	// LoopConstraints closes loops at ball and fixed joints with a
	// constraint instead of a welded slave body, where supported.
	LoopConstraints bool
	Logger          logging.Logger
	// Tessellator is shared across rebuilds. Nil meshes serially.
	Tessellator *shapes.Tessellator
}

func DefaultOptions() Options {
	return Options{
		Integrator:         integrators.Default,
		Accuracy:           1e-3,
		MaxStepSize:        1e-3,
		MinStepSize:        1e-8,
		TransitionVelocity: 0.01,
		Material:           scene.DefaultContactMaterial(),
		Gravity:            mgl64.Vec3{0, 0, -9.8},
		Logger:             logging.Nop(),
	}
}

// World is one backend's simulation of every bound model.
type World interface {
	Kind() scene.BackendKind
	// SolverType is the human-readable name of the solver.
	SolverType() string
	IntegratorType() string

	// BindModel adds m, whose graph is g, to the world. It must be called
	// before Initialize. Structural problems are logged and skipped; an
	// error means nothing of m was bound.
	BindModel(m *scene.Model, g *graph.Graph) error
	// Initialize realizes the bound topology and starts from the default
	// state.
	Initialize() error
	Initialized() bool
	// Reset returns to the default state at time zero.
	Reset() error

	Time() float64
	SetTime(t float64)
	// StepTo advances to target. On error the state of the last good
	// internal step is kept.
	StepTo(target float64) error

	SetDefaultGravity(g mgl64.Vec3)
	// SetGravity changes gravity of the running state without a rebuild.
	SetGravity(g mgl64.Vec3) error
	Gravity() mgl64.Vec3

	Accuracy() float64
	TransitionVelocity() float64
	MaxStepSize() float64
	SetMaxStepSize(dt float64)

	LinkPose(l *scene.Link) (geom.Pose, error)
	LinkVelocity(l *scene.Link) (geom.Velocity, error)
	// SetLinkState moves a link whose pose is not implied by a joint,
	// such as one on an added free base. Other links are left alone.
	SetLinkState(l *scene.Link, p geom.Pose, v geom.Velocity) error

	// JointState returns the native coordinates of a joint.
	JointState(j *scene.Joint) (q, u []float64, err error)
	SetJointState(j *scene.Joint, q, u []float64) error
	// SetJointForce adds a generalized force on axis for the next step.
	SetJointForce(j *scene.Joint, axis int, f float64) error
	// JointWrench is the force and torque the joint exerts on its child,
	// in world frame about the joint origin.
	JointWrench(j *scene.Joint) (geom.Wrench, error)

	// ApplyLinkForce adds a world-frame force at a world point.
	ApplyLinkForce(l *scene.Link, force, point mgl64.Vec3) error
	ApplyLinkTorque(l *scene.Link, torque mgl64.Vec3) error
	ClearForces()
}

// JointPosition returns coordinate axis of j.
func JointPosition(w World, j *scene.Joint, axis int) (float64, error) {
	q, _, err := w.JointState(j)
	if err != nil {
		return 0, err
	}
	if axis < 0 || axis >= len(q) {
		return 0, fmt.Errorf("%w: joint %q has %d coordinates, got %d", scene.ErrBadAxis, j.Name, len(q), axis)
	}
	return q[axis], nil
}

// JointVelocity returns the rate of axis of j.
func JointVelocity(w World, j *scene.Joint, axis int) (float64, error) {
	_, u, err := w.JointState(j)
	if err != nil {
		return 0, err
	}
	if axis < 0 || axis >= len(u) {
		return 0, fmt.Errorf("%w: joint %q has %d rates, got %d", scene.ErrBadAxis, j.Name, len(u), axis)
	}
	return u[axis], nil
}

// Factory builds an empty World.
type Factory func(Options) (World, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available to New. It panics on a duplicate
// name.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := factories[name]; ok {
		panic("backend: duplicate registration of " + name)
	}
	factories[name] = f
}

func New(name string, opts Options) (World, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return f(opts)
}

func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckChildren returns ErrMissingChild, wrapped in a BindError, for the
// first joint of m without a child link.
func CheckChildren(m *scene.Model) error {
	for _, j := range m.Joints {
		if j.Child == nil {
			return &BindError{Model: m.Name, Element: j.Name, Wrapped: ErrMissingChild}
		}
	}
	return nil
}

// Tessellate meshes the collisions of l with t, or serially when t is
// nil. Results follow l.Collisions.
func Tessellate(t *shapes.Tessellator, l *scene.Link) []shapes.Result {
	batch := make([]scene.Shape, len(l.Collisions))
	for i, c := range l.Collisions {
		batch[i] = c.Shape
	}
	if t != nil {
		return t.TessellateAll(batch)
	}
	out := make([]shapes.Result, len(batch))
	for i, s := range batch {
		m, err := shapes.Tessellate(s)
		if errors.Is(err, shapes.ErrAnalytic) {
			out[i] = shapes.Result{Analytic: true}
			continue
		}
		out[i] = shapes.Result{Mesh: m, Err: err}
	}
	return out
}

// Material returns the collision's material override or def.
func Material(c *scene.Collision, def scene.ContactMaterial) scene.ContactMaterial {
	if c.Material != nil {
		return *c.Material
	}
	return def
}
